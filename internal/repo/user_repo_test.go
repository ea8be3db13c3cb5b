package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/room-access-backend/internal/domain"
)

func TestUsers_LookupAndDuplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	fx := seedFixture(t, db)

	card := "CARD-1"
	ada := &domain.User{
		Kind: domain.UserKindAccount, FirstName: "Ada", LastName: "L",
		Account: &domain.Account{Login: "ada", PasswordHash: "h", CardID: &card, Role: domain.RoleUser},
	}
	if err := CreateUser(ctx, db, ada); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if ada.Account.UserID != ada.ID {
		t.Fatalf("account must share the user id, got %d vs %d", ada.Account.UserID, ada.ID)
	}

	byLogin, err := GetUserByLogin(ctx, db, "ada")
	if err != nil || byLogin.ID != ada.ID || byLogin.Account == nil {
		t.Fatalf("GetUserByLogin: got=%+v err=%v", byLogin, err)
	}
	byCard, err := GetUserByCard(ctx, db, card)
	if err != nil || byCard.ID != ada.ID {
		t.Fatalf("GetUserByCard: got=%+v err=%v", byCard, err)
	}
	if _, err := GetUserByLogin(ctx, db, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	guest, err := GetUser(ctx, db, fx.borrower.ID)
	if err != nil || guest.Guest == nil || guest.Account != nil {
		t.Fatalf("GetUser guest: got=%+v err=%v", guest, err)
	}

	dup := &domain.User{
		Kind: domain.UserKindAccount, FirstName: "Other", LastName: "Ada",
		Account: &domain.Account{Login: "ada", PasswordHash: "h", Role: domain.RoleUser},
	}
	if err := CreateUser(ctx, db, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for login, got %v", err)
	}
}

func TestNotes_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	fx := seedFixture(t, db)
	author := fx.concierge.ID

	if _, err := CreateUserNote(ctx, db, fx.borrower.ID, &author, "lost a key once"); err != nil {
		t.Fatalf("CreateUserNote: %v", err)
	}
	if _, err := CreateUserNote(ctx, db, 999, nil, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
	notes, err := ListUserNotes(ctx, db, fx.borrower.ID)
	if err != nil || len(notes) != 1 || *notes[0].AuthorID != author {
		t.Fatalf("ListUserNotes: %+v err=%v", notes, err)
	}

	if _, err := CreateDeviceNote(ctx, db, fx.device.ID, nil, "bent"); err != nil {
		t.Fatalf("CreateDeviceNote: %v", err)
	}
	dn, _ := ListDeviceNotes(ctx, db, fx.device.ID)
	if len(dn) != 1 || dn[0].Body != "bent" {
		t.Fatalf("ListDeviceNotes: %+v", dn)
	}
}

func TestTokenBlacklist(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := BlacklistToken(ctx, db, "tok-a", now.Add(time.Hour)); err != nil {
		t.Fatalf("BlacklistToken: %v", err)
	}
	if err := BlacklistToken(ctx, db, "tok-a", now.Add(time.Hour)); err != nil {
		t.Fatalf("second revoke must be a no-op, got %v", err)
	}
	if err := BlacklistToken(ctx, db, "tok-b", now.Add(-time.Minute)); err != nil {
		t.Fatalf("BlacklistToken: %v", err)
	}

	if ok, _ := IsTokenBlacklisted(ctx, db, "tok-a", now); !ok {
		t.Fatalf("tok-a must be blacklisted")
	}
	if ok, _ := IsTokenBlacklisted(ctx, db, "tok-b", now); ok {
		t.Fatalf("expired entry must be logically dead")
	}

	n, err := DeleteExpiredTokens(ctx, db, now)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 purged, got %d err=%v", n, err)
	}
}
