package nl2sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlsql/nlsql/internal/observability"
	"github.com/nlsql/nlsql/internal/training"
)

const defaultSuggestedQuestions = 5

type ServiceConfig struct {
	// ContextItems caps the units of each kind placed in a prompt.
	ContextItems int
	Now          func() time.Time
}

// Service is the Engine backed by a training store and a chat model.
type Service struct {
	store        training.Store
	completer    Completer
	contextItems int
	now          func() time.Time
}

func NewService(store training.Store, completer Completer, cfg ServiceConfig) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("training store is required")
	}
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	items := cfg.ContextItems
	if items <= 0 {
		items = 10
	}
	return &Service{store: store, completer: completer, contextItems: items, now: now}, nil
}

func (s *Service) GenerateSQL(ctx context.Context, question string) (sqlText string, err error) {
	defer observe("generate_sql", time.Now(), &err)

	units, err := s.store.List(ctx)
	if err != nil {
		return "", engineError("generate_sql", fmt.Errorf("load training context: %w", err))
	}
	prompt := Prompt{
		System: sqlSystemPrompt,
		User:   buildSQLPrompt(question, retrieveContext(units, question, s.contextItems)),
	}
	output, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return "", engineError("generate_sql", err)
	}
	sqlText = stripMarkdownSQL(output)
	if sqlText == "" {
		return "", engineError("generate_sql", ErrEmptySQL)
	}
	return sqlText, nil
}

// GenerateQuestions returns the questions of stored question/SQL examples. When there are
// none, the model is asked to suggest questions from the stored DDL and documentation.
func (s *Service) GenerateQuestions(ctx context.Context) (questions []string, err error) {
	defer observe("generate_questions", time.Now(), &err)

	units, err := s.store.List(ctx)
	if err != nil {
		return nil, engineError("generate_questions", fmt.Errorf("load training data: %w", err))
	}

	questions = make([]string, 0)
	seen := map[string]struct{}{}
	for _, unit := range units {
		if unit.Kind != training.KindSQL || unit.Question == "" {
			continue
		}
		if _, ok := seen[unit.Question]; ok {
			continue
		}
		seen[unit.Question] = struct{}{}
		questions = append(questions, unit.Question)
	}
	if len(questions) > 0 {
		return questions, nil
	}

	retrieved := retrieveContext(units, "", s.contextItems)
	if len(retrieved.DDL) == 0 && len(retrieved.Documentation) == 0 {
		return questions, nil
	}
	output, err := s.completer.Complete(ctx, Prompt{
		System: questionSystemPrompt,
		User:   buildQuestionPrompt(retrieved, defaultSuggestedQuestions),
	})
	if err != nil {
		return nil, engineError("generate_questions", err)
	}
	return parseQuestionLines(output, defaultSuggestedQuestions), nil
}

func (s *Service) Train(ctx context.Context, input TrainInput) (id string, err error) {
	defer observe("train", time.Now(), &err)

	unit, err := training.NewUnit(input.Kind, input.Question, input.Content, s.now())
	if err != nil {
		return "", engineError("train", err)
	}
	if err := s.store.Put(ctx, unit); err != nil {
		return "", engineError("train", err)
	}
	return unit.ID, nil
}

func (s *Service) ListTraining(ctx context.Context) (units []TrainingUnit, err error) {
	defer observe("list_training", time.Now(), &err)

	units, err = s.store.List(ctx)
	if err != nil {
		return nil, engineError("list_training", err)
	}
	return units, nil
}

func (s *Service) RemoveTraining(ctx context.Context, id string) (removed bool, err error) {
	defer observe("remove_training", time.Now(), &err)

	id = strings.TrimSpace(id)
	if id == "" {
		return false, engineError("remove_training", fmt.Errorf("training unit id is required"))
	}
	removed, err = s.store.Delete(ctx, id)
	if err != nil {
		return false, engineError("remove_training", err)
	}
	return removed, nil
}

func observe(operation string, start time.Time, err *error) {
	observability.ObserveEngineRequest(operation, time.Since(start), *err)
}
