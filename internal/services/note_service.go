package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
)

// NoteService attaches free-text notes to users and devices.
type NoteService struct {
	DB *gorm.DB

	// MaxRunes caps note length; 0 disables the cap.
	MaxRunes int
}

// NewNoteService constructs a NoteService.
func NewNoteService(db *gorm.DB) *NoteService {
	return &NoteService{DB: db, MaxRunes: 2000}
}

func (s *NoteService) clean(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyNote
	}
	if s.MaxRunes > 0 && utf8.RuneCountInString(body) > s.MaxRunes {
		return "", newError(ErrInvalid, "note body too long")
	}
	return body, nil
}

// AddUserNote attaches a note to userID.
func (s *NoteService) AddUserNote(ctx context.Context, userID uint, authorID *uint, body string) (*domain.UserNote, error) {
	body, err := s.clean(body)
	if err != nil {
		return nil, err
	}
	n, err := repo.CreateUserNote(ctx, s.DB, userID, authorID, body)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("add user note", err)
	}
	return n, nil
}

// ListUserNotes returns notes attached to userID.
func (s *NoteService) ListUserNotes(ctx context.Context, userID uint) ([]domain.UserNote, error) {
	if _, err := repo.GetUser(ctx, s.DB, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("list user notes", err)
	}
	notes, err := repo.ListUserNotes(ctx, s.DB, userID)
	if err != nil {
		return nil, internalError("list user notes", err)
	}
	return nonNil(notes), nil
}

// AddDeviceNote attaches a note to the device with the given code.
func (s *NoteService) AddDeviceNote(ctx context.Context, deviceCode string, authorID *uint, body string) (*domain.DeviceNote, error) {
	body, err := s.clean(body)
	if err != nil {
		return nil, err
	}
	dev, err := s.device(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	n, err := repo.CreateDeviceNote(ctx, s.DB, dev.ID, authorID, body)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, internalError("add device note", err)
	}
	return n, nil
}

// ListDeviceNotes returns notes attached to the device with the given code.
func (s *NoteService) ListDeviceNotes(ctx context.Context, deviceCode string) ([]domain.DeviceNote, error) {
	dev, err := s.device(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	notes, err := repo.ListDeviceNotes(ctx, s.DB, dev.ID)
	if err != nil {
		return nil, internalError("list device notes", err)
	}
	return nonNil(notes), nil
}

func (s *NoteService) device(ctx context.Context, code string) (*domain.Device, error) {
	dev, err := repo.GetDeviceByCode(ctx, s.DB, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, internalError("get device", err)
	}
	return dev, nil
}
