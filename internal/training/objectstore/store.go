// Package objectstore persists training units as JSON documents in an object store.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nlsql/nlsql/internal/storage"
	"github.com/nlsql/nlsql/internal/training"
)

type Store struct {
	objects storage.ObjectStore
}

func NewStore(objects storage.ObjectStore) *Store {
	return &Store{objects: objects}
}

func (s *Store) Put(ctx context.Context, unit training.Unit) error {
	key, err := storage.BuildTrainingUnitPath(unit.ID)
	if err != nil {
		return err
	}
	body, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("encode training unit %s: %w", unit.ID, err)
	}
	if _, err := s.objects.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("put training unit %s: %w", unit.ID, err)
	}
	return nil
}

// List reads every unit document. Objects removed between the listing and the read are
// skipped.
func (s *Store) List(ctx context.Context) ([]training.Unit, error) {
	objects, err := s.objects.List(ctx, storage.TrainingUnitPrefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list training units: %w", err)
	}

	units := make([]training.Unit, 0, len(objects))
	for _, obj := range objects {
		if _, ok := storage.TrainingUnitIDFromPath(obj.Key); !ok {
			continue
		}
		unit, err := s.read(ctx, obj.Key)
		if errors.Is(err, storage.ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	training.SortUnits(units)
	return units, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	key, err := storage.BuildTrainingUnitPath(id)
	if err != nil {
		// Ids that cannot name an object cannot exist.
		return false, nil
	}
	if _, err := s.objects.Stat(ctx, key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("stat training unit %s: %w", id, err)
	}
	if err := s.objects.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("delete training unit %s: %w", id, err)
	}
	return true, nil
}

func (s *Store) read(ctx context.Context, key string) (training.Unit, error) {
	reader, err := s.objects.Get(ctx, key)
	if err != nil {
		return training.Unit{}, err
	}
	defer func() { _ = reader.Close() }()

	body, err := io.ReadAll(reader)
	if err != nil {
		return training.Unit{}, fmt.Errorf("read training unit %s: %w", key, err)
	}
	var unit training.Unit
	if err := json.Unmarshal(body, &unit); err != nil {
		return training.Unit{}, fmt.Errorf("decode training unit %s: %w", key, err)
	}
	return unit, nil
}
