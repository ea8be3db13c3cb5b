// Package domain defines the persistence models for rooms, devices, room
// permissions, issue/return sessions, and the two-phase operation ledger.
// These types are mapped with GORM and form the core data layer of the
// access-control backend.
package domain

import "time"

// DeviceType enumerates the kinds of physical devices handed out at the desk.
type DeviceType string

const (
	DeviceKey        DeviceType = "key"
	DeviceMicrophone DeviceType = "microphone"
	DeviceRemote     DeviceType = "remote"
)

// Valid reports whether t is one of the known device types.
func (t DeviceType) Valid() bool {
	switch t {
	case DeviceKey, DeviceMicrophone, DeviceRemote:
		return true
	}
	return false
}

// DeviceVersion distinguishes the primary copy of a device from its backup.
type DeviceVersion string

const (
	VersionPrimary DeviceVersion = "primary"
	VersionBackup  DeviceVersion = "backup"
)

// Valid reports whether v is one of the known device versions.
func (v DeviceVersion) Valid() bool {
	return v == VersionPrimary || v == VersionBackup
}

// OperationType is the direction of a device hand-over.
type OperationType string

const (
	OperationTake   OperationType = "take"
	OperationReturn OperationType = "return"
)

// Next returns the operation that is expected to follow t for the same
// device. The zero value (no history) is followed by a take.
func (t OperationType) Next() OperationType {
	if t == OperationTake {
		return OperationReturn
	}
	return OperationTake
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionApproved   SessionStatus = "approved"
	SessionRejected   SessionStatus = "rejected"
)

// Terminal reports whether s is a final state.
func (s SessionStatus) Terminal() bool {
	return s == SessionApproved || s == SessionRejected
}

// Room is a physical room identified by a human-readable number such as
// "101" or "B12". Numbers are stored upper-cased.
type Room struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	Number    string    `json:"number"     gorm:"type:varchar(32);not null;uniqueIndex:ux_rooms_number"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Room.
func (Room) TableName() string { return "rooms" }

// Device is a key, microphone or remote that belongs to a room.
//
// The (type, room, version) triple is unique. IsTaken, LastTakenAt,
// LastReturnedAt and LastOwnerID are a cached projection of the operation
// history and are written only when an approval commits new history rows.
type Device struct {
	ID      uint          `json:"id"      gorm:"primaryKey"`
	Code    string        `json:"code"    gorm:"type:varchar(64);not null;uniqueIndex:ux_devices_code"`
	Type    DeviceType    `json:"type"    gorm:"type:varchar(16);not null;uniqueIndex:ux_device_triple,priority:1;check:type IN ('key','microphone','remote')"`
	RoomID  uint          `json:"room_id" gorm:"not null;uniqueIndex:ux_device_triple,priority:2;index"`
	Version DeviceVersion `json:"version" gorm:"type:varchar(16);not null;uniqueIndex:ux_device_triple,priority:3;check:version IN ('primary','backup')"`

	IsTaken        bool       `json:"is_taken"         gorm:"not null;default:false"`
	LastTakenAt    *time.Time `json:"last_taken_at,omitempty"`
	LastReturnedAt *time.Time `json:"last_returned_at,omitempty"`
	LastOwnerID    *uint      `json:"last_owner_id,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`

	Room Room `json:"-" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Device.
func (Device) TableName() string { return "devices" }

// Permission grants a user access to a room during [StartsAt, EndsAt).
// Intervals never overlap for the same room.
type Permission struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	UserID    uint      `json:"user_id"   gorm:"not null;index"`
	RoomID    uint      `json:"room_id"   gorm:"not null;index:idx_permissions_room_span,priority:1"`
	StartsAt  time.Time `json:"starts_at" gorm:"not null;index:idx_permissions_room_span,priority:2"`
	EndsAt    time.Time `json:"ends_at"   gorm:"not null;index:idx_permissions_room_span,priority:3;index"`
	CreatedAt time.Time `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Room Room `json:"-" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Permission.
func (Permission) TableName() string { return "permissions" }

// Contains reports whether at falls inside the half-open interval.
func (p Permission) Contains(at time.Time) bool {
	return !at.Before(p.StartsAt) && at.Before(p.EndsAt)
}

// Session is a bounded issue/return window between one borrower and the
// concierge who opened it. It leaves in_progress exactly once; EndTime is set
// iff the status is terminal.
type Session struct {
	ID          uint          `json:"id"           gorm:"primaryKey"`
	UserID      uint          `json:"user_id"      gorm:"not null;index"`
	ConciergeID uint          `json:"concierge_id" gorm:"not null;index"`
	StartTime   time.Time     `json:"start_time"   gorm:"not null"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	Status      SessionStatus `json:"status"       gorm:"type:varchar(16);not null;default:'in_progress';index;check:status IN ('in_progress','approved','rejected')"`

	User      User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Concierge User `json:"-" gorm:"foreignKey:ConciergeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// UnapprovedOperation is a staged take/return proposed during a session.
// At most one row exists per (device, session).
type UnapprovedOperation struct {
	ID            uint          `json:"id"             gorm:"primaryKey"`
	DeviceID      uint          `json:"device_id"      gorm:"not null;uniqueIndex:ux_unapproved_device_session,priority:1"`
	SessionID     uint          `json:"session_id"     gorm:"not null;uniqueIndex:ux_unapproved_device_session,priority:2;index"`
	OperationType OperationType `json:"operation_type" gorm:"type:varchar(8);not null;check:operation_type IN ('take','return')"`
	Entitled      bool          `json:"entitled"       gorm:"not null"`
	Timestamp     time.Time     `json:"timestamp"      gorm:"not null"`

	Device  Device  `json:"-" gorm:"foreignKey:DeviceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UnapprovedOperation.
func (UnapprovedOperation) TableName() string { return "unapproved_operations" }

// DeviceOperation is an approved, immutable history record. SessionID is
// nulled if the originating session is ever purged.
type DeviceOperation struct {
	ID            uint          `json:"id"             gorm:"primaryKey"`
	DeviceID      uint          `json:"device_id"      gorm:"not null;index:idx_device_operations_device_ts,priority:1"`
	SessionID     *uint         `json:"session_id"     gorm:"index"`
	OperationType OperationType `json:"operation_type" gorm:"type:varchar(8);not null;check:operation_type IN ('take','return')"`
	Entitled      bool          `json:"entitled"       gorm:"not null"`
	Timestamp     time.Time     `json:"timestamp"      gorm:"not null;index:idx_device_operations_device_ts,priority:2"`

	Device  Device   `json:"-" gorm:"foreignKey:DeviceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Session *Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for DeviceOperation.
func (DeviceOperation) TableName() string { return "device_operations" }

// UserNote is a free-text annotation attached to a user.
type UserNote struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	UserID    uint      `json:"user_id"   gorm:"not null;index"`
	AuthorID  *uint     `json:"author_id,omitempty"`
	Body      string    `json:"body"      gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UserNote.
func (UserNote) TableName() string { return "user_notes" }

// DeviceNote is a free-text annotation attached to a device.
type DeviceNote struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	DeviceID  uint      `json:"device_id" gorm:"not null;index"`
	AuthorID  *uint     `json:"author_id,omitempty"`
	Body      string    `json:"body"      gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`

	Device Device `json:"-" gorm:"foreignKey:DeviceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DeviceNote.
func (DeviceNote) TableName() string { return "device_notes" }

// TokenBlacklist holds revoked bearer tokens until their natural expiry.
type TokenBlacklist struct {
	ID        uint      `gorm:"primaryKey"`
	Token     string    `gorm:"type:text;not null;uniqueIndex:ux_token_blacklist_token"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

// TableName returns the database table name for TokenBlacklist.
func (TokenBlacklist) TableName() string { return "token_blacklist" }
