package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"pricecatalog/internal/storage"
)

func TestModelValidate(t *testing.T) {
	tests := []struct {
		name    string
		model   *Model
		wantErr string
	}{
		{name: "nil", model: nil, wantErr: "model is nil"},
		{name: "missing id", model: &Model{Model: "m"}, wantErr: "id is required"},
		{name: "missing name", model: &Model{ID: "x"}, wantErr: "name is required"},
		{name: "bad price data", model: &Model{ID: "x", Model: "m", PriceData: json.RawMessage(`{`)}, wantErr: "price_data"},
		{name: "valid", model: &Model{ID: "x", Model: "m", License: json.RawMessage(`"MIT"`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.model.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: 20, -5: 20, 7: 7, 100: 100, 500: 100}
	for in, want := range cases {
		if got := normalizeLimit(in); got != want {
			t.Errorf("normalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func testModel(id string, createdAt int64) *Model {
	return &Model{
		ID:            id,
		Model:         "model-" + id,
		Vendor:        "acme",
		PriceModel:    "tokens",
		PriceCurrency: "USD",
		PriceData:     json.RawMessage(`{"base":{"input_token_1m":1,"output_token_1m":2}}`),
		CreatedAt:     createdAt,
	}
}

// exerciseStore runs the shared lifecycle checks against any backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, testModel(id, int64(100+i))); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	// same created_at as "c" so the id tiebreak applies
	if err := store.Create(ctx, testModel("d", 102)); err != nil {
		t.Fatalf("create d: %v", err)
	}

	if err := store.Create(ctx, testModel("a", 1)); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate create err = %v, want ErrAlreadyExists", err)
	}

	got, err := store.Get(ctx, "b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Model != "model-b" || got.CreatedAt != 101 || got.UpdatedAt != 101 {
		t.Fatalf("got = %+v", got)
	}
	var payload map[string]any
	if err := json.Unmarshal(got.PriceData, &payload); err != nil {
		t.Fatalf("price_data round trip: %v", err)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing err = %v, want ErrNotFound", err)
	}

	page, err := store.List(ctx, 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if ids := modelIDs(page); ids != "d,c" {
		t.Fatalf("first page = %s, want d,c", ids)
	}
	page, err = store.List(ctx, 10, "c")
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if ids := modelIDs(page); ids != "b,a" {
		t.Fatalf("second page = %s, want b,a", ids)
	}
	if _, err := store.List(ctx, 10, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("list after missing err = %v, want ErrNotFound", err)
	}

	got.PriceModel = "free"
	got.PriceData = nil
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, err := store.Get(ctx, "b")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if updated.PriceModel != "free" || len(updated.PriceData) != 0 {
		t.Fatalf("updated = %+v", updated)
	}
	if updated.CreatedAt != 101 {
		t.Fatalf("created_at = %d, want 101", updated.CreatedAt)
	}
	if updated.UpdatedAt < updated.CreatedAt {
		t.Fatalf("updated_at = %d, want >= created_at", updated.UpdatedAt)
	}

	if err := store.Update(ctx, testModel("ghost", 1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing err = %v, want ErrNotFound", err)
	}
}

func modelIDs(models []*Model) string {
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	return strings.Join(ids, ",")
}

func TestMemoryStoreLifecycle(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, testModel("a", 1)); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Vendor = "mutated"

	again, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Vendor != "acme" {
		t.Fatalf("vendor = %q, want acme", again.Vendor)
	}
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	st, err := storage.NewSQLite(storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "catalog.db")})
	if err != nil {
		t.Fatalf("new sqlite storage: %v", err)
	}
	defer st.Close()

	store, err := NewSQLiteStore(st.SQLiteDB())
	if err != nil {
		t.Fatalf("new sqlite model store: %v", err)
	}
	exerciseStore(t, store)
}

func TestNewSQLiteStoreRequiresDB(t *testing.T) {
	if _, err := NewSQLiteStore(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestFactory(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		res, err := New(context.Background(), storage.Config{Type: storage.TypeMemory})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if _, ok := res.Store.(*MemoryStore); !ok {
			t.Fatalf("store = %T, want *MemoryStore", res.Store)
		}
		if res.Storage != nil {
			t.Fatal("memory store should not own a connection")
		}
		if err := res.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		res, err := New(context.Background(), storage.Config{
			Type:   storage.TypeSQLite,
			SQLite: storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "nested", "catalog.db")},
		})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		defer res.Close()
		if _, ok := res.Store.(*SQLiteStore); !ok {
			t.Fatalf("store = %T, want *SQLiteStore", res.Store)
		}
	})

	t.Run("shared storage required", func(t *testing.T) {
		if _, err := NewWithSharedStorage(context.Background(), nil); err == nil {
			t.Fatal("expected error for nil shared storage")
		}
	})
}
