// Package nl2sql turns natural-language questions into PostgreSQL using an LLM prompted with
// retrieved training context.
package nl2sql

import (
	"context"
	"errors"

	"github.com/nlsql/nlsql/internal/training"
)

type TrainingUnit = training.Unit

// TrainInput is one unit of training material. Exactly the fields relevant to Kind are read.
type TrainInput struct {
	Kind     training.Kind
	Question string
	Content  string
}

type Engine interface {
	GenerateSQL(ctx context.Context, question string) (string, error)
	GenerateQuestions(ctx context.Context) ([]string, error)
	Train(ctx context.Context, input TrainInput) (string, error)
	ListTraining(ctx context.Context) ([]TrainingUnit, error)
	RemoveTraining(ctx context.Context, id string) (bool, error)
}

// Prompt is a single-turn request to a chat model.
type Prompt struct {
	System string
	User   string
}

// Completer sends a prompt to a chat model and returns the text of its reply.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// EngineError is returned for every failure raised inside the engine, whether from the
// model provider or the training store.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

var ErrEmptySQL = errors.New("model returned empty SQL")

func engineError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *EngineError
	if errors.As(err, &existing) {
		return err
	}
	return &EngineError{Op: op, Err: err}
}
