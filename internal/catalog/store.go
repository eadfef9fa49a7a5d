package catalog

import (
	"context"
	"time"
)

// Store persists model records.
type Store interface {
	Create(ctx context.Context, m *Model) error
	Get(ctx context.Context, id string) (*Model, error)
	// List returns models ordered by created_at desc, id desc, starting
	// after the model with id after when set.
	List(ctx context.Context, limit int, after string) ([]*Model, error)
	Update(ctx context.Context, m *Model) error
	Close() error
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// stampCreate sets creation timestamps on m when unset.
func stampCreate(m *Model, now time.Time) {
	if m.CreatedAt == 0 {
		m.CreatedAt = now.Unix()
	}
	if m.UpdatedAt == 0 {
		m.UpdatedAt = m.CreatedAt
	}
}
