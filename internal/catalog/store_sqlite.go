package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore stores models in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the models table and indexes if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS models (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			vendor TEXT NOT NULL,
			price_model TEXT NOT NULL,
			data TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create models table: %w", err)
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_models_created_at ON models(created_at DESC)"); err != nil {
		return nil, fmt.Errorf("failed to create models created_at index: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_models_vendor ON models(vendor)"); err != nil {
		return nil, fmt.Errorf("failed to create models vendor index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create inserts a new model.
func (s *SQLiteStore) Create(ctx context.Context, m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	stampCreate(m, time.Now())

	payload, err := serializeModel(m)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO models (id, created_at, updated_at, vendor, price_model, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.CreatedAt, m.UpdatedAt, m.Vendor, m.PriceModel, string(payload))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, m.ID)
		}
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

// Get returns a model by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Model, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM models WHERE id = ?", id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query model: %w", err)
	}

	m, err := deserializeModel([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return m, nil
}

// List returns models ordered by created_at desc, id desc.
func (s *SQLiteStore) List(ctx context.Context, limit int, after string) ([]*Model, error) {
	limit = normalizeLimit(limit)

	var rows *sql.Rows
	var err error
	if after == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT data
			FROM models
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, limit)
	} else {
		var cursorCreatedAt int64
		err = s.db.QueryRowContext(ctx, "SELECT created_at FROM models WHERE id = ?", after).Scan(&cursorCreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("query after cursor: %w", err)
		}

		rows, err = s.db.QueryContext(ctx, `
			SELECT data
			FROM models
			WHERE (created_at < ?) OR (created_at = ? AND id < ?)
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, cursorCreatedAt, cursorCreatedAt, after, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	items := make([]*Model, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan model row: %w", err)
		}
		m, err := deserializeModel([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decode model row: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model rows: %w", err)
	}
	return items, nil
}

// Update replaces a stored model and refreshes its updated_at.
func (s *SQLiteStore) Update(ctx context.Context, m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.UpdatedAt = time.Now().Unix()

	payload, err := serializeModel(m)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE models
		SET updated_at = ?, vendor = ?, price_model = ?, data = ?
		WHERE id = ?
	`, m.UpdatedAt, m.Vendor, m.PriceModel, string(payload), m.ID)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read update rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; DB lifecycle is managed by the storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
