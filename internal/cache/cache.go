// Package cache stores the last committed currency rate snapshot so the rate
// service can serve a table immediately after a restart.
// Supports both local (file) and Redis backends for multi-instance deployments.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotVersion is the snapshot layout written by this build. Snapshots
// with any other version are treated as absent.
const SnapshotVersion = 1

// RateSnapshot is the cached form of a committed currency table.
type RateSnapshot struct {
	Version         int                `json:"version"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Base            string             `json:"base"`
	Rates           map[string]float64 `json:"rates"`
	Available       []string           `json:"available,omitempty"`
	DisplayCurrency string             `json:"display_currency,omitempty"`
}

// Cache defines the interface for rate snapshot storage.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves the rate snapshot.
	// Returns nil, nil if no cache exists yet.
	Get(ctx context.Context) (*RateSnapshot, error)

	// Set stores the rate snapshot.
	Set(ctx context.Context, snapshot *RateSnapshot) error

	// Close releases any resources held by the cache.
	Close() error
}

func decodeSnapshot(data []byte) (*RateSnapshot, error) {
	var snapshot RateSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse rate snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, nil
	}
	return &snapshot, nil
}
