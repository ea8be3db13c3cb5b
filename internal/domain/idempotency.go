package domain

import "time"

// Idempotency records the response of a completed unsafe request, keyed by
// (actor_id, scope, key). A retried scan with the same Idempotency-Key is
// answered from Body instead of being applied again, which would otherwise
// cancel the operation it just staged.
//
// A row with Status 0 is a reservation: the first request holding the key is
// still running. RequestHash fingerprints the request body so a key reused
// for a different scan is refused instead of replayed.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	ActorID     uint      `gorm:"not null;uniqueIndex:ux_actor_scope_key,priority:1"`
	Scope       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_actor_scope_key,priority:2"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_actor_scope_key,priority:3"`
	RequestHash string    `gorm:"type:TEXT NOT NULL;default:''"`
	Status      int       `gorm:"type:INTEGER NOT NULL"`
	Body        []byte    `gorm:"type:BLOB"`
	CreatedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// Pending reports whether the request that reserved the key is still running.
func (r *Idempotency) Pending() bool { return r.Status == 0 }

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
