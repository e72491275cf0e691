package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry records an operator or API action.
type AuditEntry struct {
	ID     uuid.UUID `json:"id" db:"id"`
	At     time.Time `json:"at" db:"at"`
	Actor  string    `json:"actor" db:"actor"`
	Action string    `json:"action" db:"action"`
	Target string    `json:"target,omitempty" db:"target"`
	OK     bool      `json:"ok" db:"ok"`
	Detail string    `json:"detail,omitempty" db:"detail"`
}
