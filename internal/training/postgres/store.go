package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nlsql/nlsql/internal/training"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping training db: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, unit training.Unit) error {
	query := `
INSERT INTO training_unit (unit_id, kind, question, content, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (unit_id) DO UPDATE
SET question = EXCLUDED.question, content = EXCLUDED.content`
	if _, err := s.db.ExecContext(ctx, query, unit.ID, string(unit.Kind), unit.Question, unit.Content, unit.CreatedAt); err != nil {
		return fmt.Errorf("put training unit %s: %w", unit.ID, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]training.Unit, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT unit_id, kind, question, content, created_at
FROM training_unit
ORDER BY created_at ASC, unit_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list training units: %w", err)
	}
	defer func() { _ = rows.Close() }()

	units := make([]training.Unit, 0)
	for rows.Next() {
		var (
			unit training.Unit
			kind string
		)
		if err := rows.Scan(&unit.ID, &kind, &unit.Question, &unit.Content, &unit.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan training unit: %w", err)
		}
		unit.Kind = training.Kind(kind)
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training units: %w", err)
	}
	return units, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM training_unit WHERE unit_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete training unit %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete training unit %s rows affected: %w", id, err)
	}
	return affected > 0, nil
}
