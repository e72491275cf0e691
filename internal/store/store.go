package store

import (
	"context"

	"github.com/eldtechnologies/simpleremote/internal/models"
)

// AuditLog records operator and API actions.
// Both PostgresStore and SQLiteStore implement this interface.
type AuditLog interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	Record(ctx context.Context, e models.AuditEntry) error
	Recent(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		return MaxAuditLimit
	}
	return limit
}
