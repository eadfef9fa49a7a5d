package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgreSQLStore stores models in PostgreSQL.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the models table and indexes if needed.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS models (
			id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			vendor TEXT NOT NULL,
			price_model TEXT NOT NULL,
			data JSONB NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create models table: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_models_created_at ON models(created_at DESC)"); err != nil {
		return nil, fmt.Errorf("failed to create models created_at index: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_models_vendor ON models(vendor)"); err != nil {
		return nil, fmt.Errorf("failed to create models vendor index: %w", err)
	}

	return &PostgreSQLStore{pool: pool}, nil
}

// Create inserts a new model.
func (s *PostgreSQLStore) Create(ctx context.Context, m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	stampCreate(m, time.Now())

	payload, err := serializeModel(m)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO models (id, created_at, updated_at, vendor, price_model, data)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`, m.ID, m.CreatedAt, m.UpdatedAt, m.Vendor, m.PriceModel, payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, m.ID)
		}
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

// Get returns a model by id.
func (s *PostgreSQLStore) Get(ctx context.Context, id string) (*Model, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, "SELECT data FROM models WHERE id = $1", id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query model: %w", err)
	}

	m, err := deserializeModel(payload)
	if err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return m, nil
}

// List returns models ordered by created_at desc, id desc.
func (s *PostgreSQLStore) List(ctx context.Context, limit int, after string) ([]*Model, error) {
	limit = normalizeLimit(limit)

	var rows pgx.Rows
	var err error
	if after == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT data
			FROM models
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		`, limit)
	} else {
		var cursorCreatedAt int64
		err = s.pool.QueryRow(ctx, "SELECT created_at FROM models WHERE id = $1", after).Scan(&cursorCreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("query after cursor: %w", err)
		}
		rows, err = s.pool.Query(ctx, `
			SELECT data
			FROM models
			WHERE (created_at < $1) OR (created_at = $1 AND id < $2)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		`, cursorCreatedAt, after, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	items := make([]*Model, 0, limit)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan model row: %w", err)
		}
		m, err := deserializeModel(payload)
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
func (s *PostgreSQLStore) Update(ctx context.Context, m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.UpdatedAt = time.Now().Unix()

	payload, err := serializeModel(m)
	if err != nil {
		return err
	}

	cmd, err := s.pool.Exec(ctx, `
		UPDATE models
		SET updated_at = $1, vendor = $2, price_model = $3, data = $4::jsonb
		WHERE id = $5
	`, m.UpdatedAt, m.Vendor, m.PriceModel, payload, m.ID)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; pool lifecycle is managed by the storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}
