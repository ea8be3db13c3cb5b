package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/room-access-backend/internal/domain"
)

func TestCreateRoom_NormalizesAndRejectsDuplicates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r, err := e.registry.CreateRoom(ctx, "  b12 ")
	if err != nil || r.Number != "B12" {
		t.Fatalf("CreateRoom: %+v err=%v", r, err)
	}
	if _, err := e.registry.CreateRoom(ctx, "B12"); !errors.Is(err, ErrDuplicateRoom) {
		t.Fatalf("expected ErrDuplicateRoom, got %v", err)
	}
	if _, err := e.registry.CreateRoom(ctx, "   "); !errors.Is(err, ErrEmptyRoomNumber) {
		t.Fatalf("expected ErrEmptyRoomNumber, got %v", err)
	}
	got, err := e.registry.GetRoomByNumber(ctx, "b12")
	if err != nil || got.ID != r.ID {
		t.Fatalf("lookup must be case-insensitive: %+v err=%v", got, err)
	}
	if _, err := e.registry.GetRoomByNumber(ctx, "Z9"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestListRooms_NaturalOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, n := range []string{"10", "LOBBY", "9", "10B", "10A"} {
		if _, err := e.registry.CreateRoom(ctx, n); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
	}
	rooms, err := e.registry.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	want := []string{"9", "10", "10A", "10B", "101", "LOBBY"}
	if len(rooms) != len(want) {
		t.Fatalf("got %d rooms; want %d", len(rooms), len(want))
	}
	for i, r := range rooms {
		if r.Number != want[i] {
			t.Fatalf("position %d: %s; want %s", i, r.Number, want[i])
		}
	}
}

func TestCreateDevice_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		code    string
		room    string
		typ     domain.DeviceType
		version domain.DeviceVersion
		want    error
	}{
		{"blank code", " ", "101", domain.DeviceKey, domain.VersionBackup, ErrMissingField},
		{"bad type", "X-1", "101", "laptop", domain.VersionPrimary, ErrInvalidDeviceType},
		{"bad version", "X-2", "101", domain.DeviceKey, "tertiary", ErrInvalidDeviceType},
		{"unknown room", "X-3", "999", domain.DeviceKey, domain.VersionPrimary, ErrRoomNotFound},
		{"duplicate code", "KEY-101", "101", domain.DeviceRemote, domain.VersionPrimary, ErrDuplicateDevice},
		{"duplicate triple", "KEY-101-B", "101", domain.DeviceKey, domain.VersionPrimary, ErrDuplicateDevice},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := e.registry.CreateDevice(ctx, c.code, c.room, c.typ, c.version); !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}
	if _, err := e.registry.GetDevice(ctx, "NOPE"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestListDevices_OrderAndFilters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.registry.CreateRoom(ctx, "9"); err != nil {
		t.Fatalf("room: %v", err)
	}
	mustDevice := func(code, room string, typ domain.DeviceType, v domain.DeviceVersion) {
		t.Helper()
		if _, err := e.registry.CreateDevice(ctx, code, room, typ, v); err != nil {
			t.Fatalf("device %s: %v", code, err)
		}
	}
	mustDevice("KEY-101-B", "101", domain.DeviceKey, domain.VersionBackup)
	mustDevice("MIC-101", "101", domain.DeviceMicrophone, domain.VersionPrimary)
	mustDevice("KEY-9", "9", domain.DeviceKey, domain.VersionPrimary)

	rows, err := e.registry.ListDevices(ctx, DeviceFilter{})
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	want := []string{"KEY-9", "KEY-101", "KEY-101-B", "MIC-101"}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows; want %d", len(rows), len(want))
	}
	for i, r := range rows {
		if r.Code != want[i] {
			t.Fatalf("position %d: %s; want %s", i, r.Code, want[i])
		}
	}

	rows, _ = e.registry.ListDevices(ctx, DeviceFilter{RoomNumber: "101", Type: domain.DeviceKey})
	if len(rows) != 2 {
		t.Fatalf("filtered rows: %+v", rows)
	}
	if _, err := e.registry.ListDevices(ctx, DeviceFilter{Type: "laptop"}); !errors.Is(err, ErrInvalidDeviceType) {
		t.Fatalf("expected ErrInvalidDeviceType, got %v", err)
	}
}

func TestStats_ChangesWithNotes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	n, stamp, err := e.registry.Stats(ctx)
	if err != nil || n != 1 || stamp == "" {
		t.Fatalf("Stats: n=%d stamp=%q err=%v", n, stamp, err)
	}
	if _, err := e.notes.AddDeviceNote(ctx, "KEY-101", nil, "scratched"); err != nil {
		t.Fatalf("note: %v", err)
	}
	_, after, _ := e.registry.Stats(ctx)
	if after < stamp {
		t.Fatalf("stamp must not go backwards: %q -> %q", stamp, after)
	}
}
