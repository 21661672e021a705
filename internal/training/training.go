// Package training holds the units (DDL, question/SQL examples, documentation) that the
// translation engine retrieves as prompt context, and the stores that persist them.
package training

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindDDL           Kind = "ddl"
	KindSQL           Kind = "sql"
	KindDocumentation Kind = "documentation"
)

var ErrInvalidUnit = errors.New("invalid training unit")

var unitNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("nlsql:training-unit"))

type Unit struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"training_data_type"`
	Question  string    `json:"question,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	// Put inserts the unit or replaces the one with the same ID.
	Put(ctx context.Context, unit Unit) error
	// List returns all units ordered by creation time then ID.
	List(ctx context.Context) ([]Unit, error)
	// Delete reports whether a unit with that ID existed.
	Delete(ctx context.Context, id string) (bool, error)
}

// NewUnit validates the input and derives the unit ID from its content, so training the same
// content twice yields the same ID.
func NewUnit(kind Kind, question, content string, now time.Time) (Unit, error) {
	question = strings.TrimSpace(question)
	content = strings.TrimSpace(content)
	if content == "" {
		return Unit{}, fmt.Errorf("%w: content is required", ErrInvalidUnit)
	}
	switch kind {
	case KindSQL:
		if question == "" {
			return Unit{}, fmt.Errorf("%w: question is required for sql units", ErrInvalidUnit)
		}
	case KindDDL, KindDocumentation:
		question = ""
	default:
		return Unit{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidUnit, kind)
	}
	return Unit{
		ID:        UnitID(kind, question, content),
		Kind:      kind,
		Question:  question,
		Content:   content,
		CreatedAt: now.UTC(),
	}, nil
}

func UnitID(kind Kind, question, content string) string {
	name := string(kind) + "\x00" + question + "\x00" + content
	return uuid.NewSHA1(unitNamespace, []byte(name)).String() + kindSuffix(kind)
}

func kindSuffix(kind Kind) string {
	switch kind {
	case KindDDL:
		return "-ddl"
	case KindSQL:
		return "-sql"
	default:
		return "-doc"
	}
}

func SortUnits(units []Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		if !units[i].CreatedAt.Equal(units[j].CreatedAt) {
			return units[i].CreatedAt.Before(units[j].CreatedAt)
		}
		return units[i].ID < units[j].ID
	})
}
