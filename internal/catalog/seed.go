package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Models []map[string]any `yaml:"models"`
}

// LoadSeed reads model records from a YAML or JSON file. The file holds
// either a list of models or an object with a "models" list. Loose fields
// such as price_data may be nested YAML or JSON-encoded strings.
func LoadSeed(path string) ([]*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed file contents.
func ParseSeed(data []byte) ([]*Model, error) {
	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		var wrapped seedFile
		if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse seed file: %w", err2)
		}
		raw = wrapped.Models
	}

	models := make([]*Model, 0, len(raw))
	for i, entry := range raw {
		b, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		var m Model
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		models = append(models, &m)
	}
	return models, nil
}

// Seed inserts the models missing from store and returns how many were added.
func Seed(ctx context.Context, store Store, models []*Model) (int, error) {
	added := 0
	for _, m := range models {
		_, err := store.Get(ctx, m.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return added, fmt.Errorf("check model %s: %w", m.ID, err)
		}
		if err := store.Create(ctx, m); err != nil {
			return added, fmt.Errorf("seed model %s: %w", m.ID, err)
		}
		added++
	}
	if added > 0 {
		slog.Info("catalog seeded", "added", added, "total", len(models))
	}
	return added, nil
}
