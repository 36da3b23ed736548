package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lamim/medibill/pkg/models"
)

type seedFile struct {
	Items []models.BillItem `yaml:"items"`
}

// LoadSeedFile reads bill items from a YAML file with a top-level "items" list
func LoadSeedFile(path string) ([]models.BillItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for i, item := range seed.Items {
		if err := validateItem(item); err != nil {
			return nil, fmt.Errorf("seed item %d: %w", i+1, err)
		}
	}
	return seed.Items, nil
}

// Seed inserts every item from the YAML file at path and returns how many were inserted.
// Ids in the file are ignored; the repository assigns them.
func Seed(ctx context.Context, repo Repository, path string) (int, error) {
	items, err := LoadSeedFile(path)
	if err != nil {
		return 0, err
	}

	for i, item := range items {
		item.ID = 0
		if _, err := repo.Insert(ctx, item); err != nil {
			return i, err
		}
	}
	return len(items), nil
}
