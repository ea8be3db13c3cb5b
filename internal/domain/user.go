package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is the privilege level of an account. Roles are ordered:
// user < concierge < admin.
type Role string

const (
	RoleUser      Role = "user"
	RoleConcierge Role = "concierge"
	RoleAdmin     Role = "admin"
)

// Level returns the rank of r, or -1 for unknown roles.
func (r Role) Level() int {
	switch r {
	case RoleUser:
		return 0
	case RoleConcierge:
		return 1
	case RoleAdmin:
		return 2
	}
	return -1
}

// AtLeast reports whether r ranks at or above min. Unknown roles never do.
func (r Role) AtLeast(min Role) bool {
	return r.Level() >= 0 && r.Level() >= min.Level()
}

// ParseRole converts s into a Role, accepting any letter case.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Level() >= 0
}

// UserKind tags which variant row accompanies a User.
type UserKind string

const (
	UserKindAccount UserKind = "account"
	UserKindGuest   UserKind = "guest"
)

// User is the shared identity row for both authenticated accounts and
// guests. Exactly one of Account or Guest is populated, matching Kind.
type User struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	Kind      UserKind  `json:"kind"       gorm:"type:varchar(16);not null;check:kind IN ('account','guest')"`
	FirstName string    `json:"first_name" gorm:"type:varchar(128);not null"`
	LastName  string    `json:"last_name"  gorm:"type:varchar(128);not null"`
	CreatedAt time.Time `json:"created_at"`

	Account *Account `json:"account,omitempty" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Guest   *Guest   `json:"guest,omitempty"   gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Account holds the credentials of a user who can log in.
type Account struct {
	UserID       uint    `json:"user_id"           gorm:"primaryKey;autoIncrement:false"`
	Login        string  `json:"login"             gorm:"type:varchar(64);not null;uniqueIndex:ux_accounts_login"`
	PasswordHash string  `json:"-"                 gorm:"type:varchar(100);not null"`
	CardID       *string `json:"card_id,omitempty" gorm:"type:varchar(64);uniqueIndex:ux_accounts_card"`
	Email        string  `json:"email,omitempty"   gorm:"type:varchar(255)"`
	Role         Role    `json:"role"              gorm:"type:varchar(16);not null;default:'user';check:role IN ('user','concierge','admin')"`
}

// TableName returns the database table name for Account.
func (Account) TableName() string { return "accounts" }

// Guest holds the details recorded for a borrower without an account.
type Guest struct {
	UserID       uint   `json:"user_id"                gorm:"primaryKey;autoIncrement:false"`
	Document     string `json:"document,omitempty"     gorm:"type:varchar(64)"`
	Phone        string `json:"phone,omitempty"        gorm:"type:varchar(32)"`
	Organization string `json:"organization,omitempty" gorm:"type:varchar(255)"`
}

// TableName returns the database table name for Guest.
func (Guest) TableName() string { return "guests" }

// Borrower is the identity a session is opened for. It is either
// Authenticated or GuestBorrower; the unexported method keeps the set closed.
type Borrower interface {
	IdentityID() uint
	DisplayName() string
	isBorrower()
}

// Authenticated is a borrower backed by an account.
type Authenticated struct {
	User    User
	Account Account
}

func (a Authenticated) IdentityID() uint    { return a.User.ID }
func (a Authenticated) DisplayName() string { return fullName(a.User) }
func (Authenticated) isBorrower()           {}

// GuestBorrower is a borrower identified only by guest details.
type GuestBorrower struct {
	User  User
	Guest Guest
}

func (g GuestBorrower) IdentityID() uint    { return g.User.ID }
func (g GuestBorrower) DisplayName() string { return fullName(g.User) }
func (GuestBorrower) isBorrower()           {}

// ErrMalformedUser is returned when a user row has no variant matching Kind.
var ErrMalformedUser = errors.New("user row has no matching account or guest record")

// BorrowerFrom builds the Borrower variant for u. The Account or Guest
// association must be preloaded.
func BorrowerFrom(u *User) (Borrower, error) {
	switch u.Kind {
	case UserKindAccount:
		if u.Account == nil {
			return nil, ErrMalformedUser
		}
		return Authenticated{User: *u, Account: *u.Account}, nil
	case UserKindGuest:
		if u.Guest == nil {
			return nil, ErrMalformedUser
		}
		return GuestBorrower{User: *u, Guest: *u.Guest}, nil
	}
	return nil, ErrMalformedUser
}

func fullName(u User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
