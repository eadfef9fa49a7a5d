package catalog

import (
	"context"
	"errors"
	"fmt"

	"pricecatalog/internal/storage"
)

// Result holds the model store and the storage connection it owns, if any.
type Result struct {
	Store   Store
	Storage storage.Storage
}

// Close releases the store and any owned storage.
func (r *Result) Close() error {
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New opens the configured backend and creates a model store on it. The
// memory type needs no connection.
func New(ctx context.Context, cfg storage.Config) (*Result, error) {
	cfg = cfg.WithDefaults()
	if cfg.Type == storage.TypeMemory {
		return &Result{Store: NewMemoryStore()}, nil
	}

	conn, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	store, err := createStore(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Result{Store: store, Storage: conn}, nil
}

// NewWithSharedStorage creates a model store on a connection owned elsewhere.
func NewWithSharedStorage(ctx context.Context, shared storage.Storage) (*Result, error) {
	if shared == nil {
		return nil, fmt.Errorf("shared storage is required")
	}
	store, err := createStore(ctx, shared)
	if err != nil {
		return nil, err
	}
	return &Result{Store: store}, nil
}

func createStore(ctx context.Context, conn storage.Storage) (Store, error) {
	switch conn.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(conn.SQLiteDB())
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, conn.PostgreSQLPool())
	case storage.TypeMongoDB:
		return NewMongoDBStore(ctx, conn.MongoDatabase())
	default:
		return nil, fmt.Errorf("unknown storage type: %s", conn.Type())
	}
}
