package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
)

// BorrowerRef identifies a borrower by exactly one of id, login or card.
type BorrowerRef struct {
	ID     uint   `json:"user_id,omitempty"`
	Login  string `json:"login,omitempty"`
	CardID string `json:"card_id,omitempty"`
}

// NewAccount is the input of CreateAccount.
type NewAccount struct {
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Login     string      `json:"login"`
	Password  string      `json:"password"`
	CardID    string      `json:"card_id,omitempty"`
	Email     string      `json:"email,omitempty"`
	Role      domain.Role `json:"role"`
}

// NewGuest is the input of CreateGuest.
type NewGuest struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Document     string `json:"document,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// PasswordHasher hashes account passwords.
type PasswordHasher interface {
	HashPassword(pw string) (string, error)
}

// UserService manages borrower identities.
type UserService struct {
	DB     *gorm.DB
	Hasher PasswordHasher
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, h PasswordHasher) *UserService {
	return &UserService{DB: db, Hasher: h}
}

// CreateAccount registers a user who can log in.
func (s *UserService) CreateAccount(ctx context.Context, in NewAccount) (*domain.User, error) {
	in.Login = strings.TrimSpace(in.Login)
	in.FirstName = strings.TrimSpace(in.FirstName)
	if in.Login == "" || in.Password == "" || in.FirstName == "" {
		return nil, ErrMissingField
	}
	if in.Role == "" {
		in.Role = domain.RoleUser
	}
	role, ok := domain.ParseRole(string(in.Role))
	if !ok {
		return nil, newError(ErrInvalid, "unknown role")
	}
	hash, err := s.Hasher.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	acc := &domain.Account{Login: in.Login, PasswordHash: hash, Email: strings.TrimSpace(in.Email), Role: role}
	if card := strings.TrimSpace(in.CardID); card != "" {
		acc.CardID = &card
	}
	u := &domain.User{
		Kind:      domain.UserKindAccount,
		FirstName: in.FirstName,
		LastName:  strings.TrimSpace(in.LastName),
		Account:   acc,
	}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateAccount
		}
		return nil, internalError("create account", err)
	}
	return u, nil
}

// CreateGuest registers a borrower without an account.
func (s *UserService) CreateGuest(ctx context.Context, in NewGuest) (*domain.User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	if in.FirstName == "" {
		return nil, ErrMissingField
	}
	u := &domain.User{
		Kind:      domain.UserKindGuest,
		FirstName: in.FirstName,
		LastName:  strings.TrimSpace(in.LastName),
		Guest: &domain.Guest{
			Document:     strings.TrimSpace(in.Document),
			Phone:        strings.TrimSpace(in.Phone),
			Organization: strings.TrimSpace(in.Organization),
		},
	}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		return nil, internalError("create guest", err)
	}
	return u, nil
}

// Get returns the borrower with the given id.
func (s *UserService) Get(ctx context.Context, id uint) (domain.Borrower, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("get user", err)
	}
	b, err := domain.BorrowerFrom(u)
	if err != nil {
		return nil, internalError("get user", err)
	}
	return b, nil
}

// FindBorrower resolves a BorrowerRef. The id wins over login, login over
// card.
func (s *UserService) FindBorrower(ctx context.Context, ref BorrowerRef) (domain.Borrower, error) {
	var (
		u   *domain.User
		err error
	)
	switch {
	case ref.ID != 0:
		return s.Get(ctx, ref.ID)
	case strings.TrimSpace(ref.Login) != "":
		u, err = repo.GetUserByLogin(ctx, s.DB, strings.TrimSpace(ref.Login))
	case strings.TrimSpace(ref.CardID) != "":
		u, err = repo.GetUserByCard(ctx, s.DB, strings.TrimSpace(ref.CardID))
	default:
		return nil, ErrMissingField
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("find borrower", err)
	}
	b, err := domain.BorrowerFrom(u)
	if err != nil {
		return nil, internalError("find borrower", err)
	}
	return b, nil
}
