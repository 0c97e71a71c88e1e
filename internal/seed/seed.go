// Package seed loads batch fixtures from YAML into a store.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"batchqc/internal/models"
	"batchqc/internal/store"
	"batchqc/internal/validation"
)

//go:embed batches.yaml
var defaultFixtures []byte

type file struct {
	Batches []models.Batch `yaml:"batches"`
}

// Default returns the embedded fixture batches.
func Default() ([]models.Batch, error) {
	return Decode(bytes.NewReader(defaultFixtures))
}

// LoadFile reads fixtures from a YAML file.
func LoadFile(path string) ([]models.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses and validates a fixture document.
func Decode(r io.Reader) ([]models.Batch, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	seen := make(map[int64]bool, len(doc.Batches))
	for _, b := range doc.Batches {
		if b.ID <= 0 {
			return nil, fmt.Errorf("batch %q: id must be positive", b.Identifier)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("batch %d: duplicate id", b.ID)
		}
		seen[b.ID] = true

		ve := &validation.ValidationErrors{}
		validation.RequireField(ve, "identifier", b.Identifier)
		validation.RequireField(ve, "product_name", b.ProductName)
		validation.RequireField(ve, "date", b.CreatedOn)
		validation.ValidateDate(ve, "date", b.CreatedOn)
		validation.ValidateMaxLength(ve, "identifier", b.Identifier, 255)
		validation.ValidateMaxLength(ve, "product_name", b.ProductName, 255)
		if ve.HasErrors() {
			return nil, fmt.Errorf("batch %d: %w", b.ID, ve)
		}
	}
	return doc.Batches, nil
}

// Apply stores batches that do not exist yet and returns how many were added.
func Apply(ctx context.Context, s store.Store, batches []models.Batch) (int, error) {
	added := 0
	for _, b := range batches {
		err := s.CreateBatch(ctx, b)
		if errors.Is(err, store.ErrExists) {
			continue
		}
		if err != nil {
			return added, fmt.Errorf("seed batch %d: %w", b.ID, err)
		}
		added++
	}
	return added, nil
}
