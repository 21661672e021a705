package nl2sql

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nlsql/nlsql/internal/training"
)

func TestGenerateSQLPromptsWithRelevantContext(t *testing.T) {
	ctx := context.Background()
	store := training.NewMemoryStore()
	completer := &fakeCompleter{reply: "```sql\nSELECT count(*) FROM orders\n```"}
	svc := newTestService(t, store, completer)

	mustTrain(t, svc, TrainInput{Kind: training.KindDDL, Content: "CREATE TABLE orders (id int, total numeric)"})
	mustTrain(t, svc, TrainInput{Kind: training.KindDDL, Content: "CREATE TABLE audit_log (entry text)"})
	mustTrain(t, svc, TrainInput{Kind: training.KindDocumentation, Content: "orders.total is stored in cents"})
	mustTrain(t, svc, TrainInput{Kind: training.KindSQL, Question: "total of orders", Content: "SELECT sum(total) FROM orders"})

	got, err := svc.GenerateSQL(ctx, "How many orders are there?")
	if err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	if got != "SELECT count(*) FROM orders" {
		t.Fatalf("GenerateSQL() = %q", got)
	}

	prompt := completer.last.User
	for _, snippet := range []string{
		"CREATE TABLE orders",
		"orders.total is stored in cents",
		"Question: total of orders\nSQL: SELECT sum(total) FROM orders",
		"===Question\nHow many orders are there?",
	} {
		if !strings.Contains(prompt, snippet) {
			t.Fatalf("prompt missing %q:\n%s", snippet, prompt)
		}
	}
	if strings.Index(prompt, "CREATE TABLE orders") > strings.Index(prompt, "CREATE TABLE audit_log") {
		t.Fatalf("relevant table should be ranked first:\n%s", prompt)
	}
	if completer.last.System != sqlSystemPrompt {
		t.Fatalf("system prompt = %q", completer.last.System)
	}
}

func TestGenerateSQLWrapsFailuresAsEngineError(t *testing.T) {
	upstream := errors.New("quota exceeded")
	svc := newTestService(t, training.NewMemoryStore(), &fakeCompleter{err: upstream})

	_, err := svc.GenerateSQL(context.Background(), "anything")
	var engineErr *EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("error = %T %v, want *EngineError", err, err)
	}
	if engineErr.Op != "generate_sql" || !errors.Is(err, upstream) {
		t.Fatalf("EngineError = %+v", engineErr)
	}
	if err.Error() != "quota exceeded" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestGenerateSQLRejectsEmptyOutput(t *testing.T) {
	svc := newTestService(t, training.NewMemoryStore(), &fakeCompleter{reply: "```sql\n```"})
	if _, err := svc.GenerateSQL(context.Background(), "q"); !errors.Is(err, ErrEmptySQL) {
		t.Fatalf("error = %v, want ErrEmptySQL", err)
	}
}

func TestGenerateQuestionsPrefersStoredExamples(t *testing.T) {
	completer := &fakeCompleter{reply: "should not be used"}
	svc := newTestService(t, training.NewMemoryStore(), completer)
	mustTrain(t, svc, TrainInput{Kind: training.KindSQL, Question: "count orders", Content: "SELECT count(*) FROM orders"})
	mustTrain(t, svc, TrainInput{Kind: training.KindSQL, Question: "count orders", Content: "SELECT count(id) FROM orders"})
	mustTrain(t, svc, TrainInput{Kind: training.KindSQL, Question: "top customers", Content: "SELECT name FROM customers LIMIT 5"})

	got, err := svc.GenerateQuestions(context.Background())
	if err != nil {
		t.Fatalf("GenerateQuestions() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"count orders", "top customers"}) {
		t.Fatalf("questions = %#v", got)
	}
	if completer.calls != 0 {
		t.Fatalf("completer called %d times", completer.calls)
	}
}

func TestGenerateQuestionsAsksModelWhenNoExamples(t *testing.T) {
	completer := &fakeCompleter{reply: "1. How many orders were placed?\n2) What is the average total?\n\n- Which day had most orders?"}
	svc := newTestService(t, training.NewMemoryStore(), completer)
	mustTrain(t, svc, TrainInput{Kind: training.KindDDL, Content: "CREATE TABLE orders (id int)"})

	got, err := svc.GenerateQuestions(context.Background())
	if err != nil {
		t.Fatalf("GenerateQuestions() error = %v", err)
	}
	want := []string{"How many orders were placed?", "What is the average total?", "Which day had most orders?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("questions = %#v", got)
	}
	if !strings.Contains(completer.last.User, "CREATE TABLE orders") {
		t.Fatalf("prompt = %q", completer.last.User)
	}
}

func TestGenerateQuestionsEmptyStore(t *testing.T) {
	completer := &fakeCompleter{}
	svc := newTestService(t, training.NewMemoryStore(), completer)
	got, err := svc.GenerateQuestions(context.Background())
	if err != nil {
		t.Fatalf("GenerateQuestions() error = %v", err)
	}
	if got == nil || len(got) != 0 || completer.calls != 0 {
		t.Fatalf("questions = %#v, calls = %d", got, completer.calls)
	}
}

func TestTrainIsIdempotentAndRemovable(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, training.NewMemoryStore(), &fakeCompleter{})

	first := mustTrain(t, svc, TrainInput{Kind: training.KindDocumentation, Content: "amounts are in cents"})
	second := mustTrain(t, svc, TrainInput{Kind: training.KindDocumentation, Content: "amounts are in cents"})
	if first != second || !strings.HasSuffix(first, "-doc") {
		t.Fatalf("ids = %q, %q", first, second)
	}

	units, err := svc.ListTraining(ctx)
	if err != nil {
		t.Fatalf("ListTraining() error = %v", err)
	}
	if len(units) != 1 || units[0].Kind != training.KindDocumentation {
		t.Fatalf("units = %#v", units)
	}

	removed, err := svc.RemoveTraining(ctx, first)
	if err != nil || !removed {
		t.Fatalf("RemoveTraining() = %v, %v", removed, err)
	}
	removed, err = svc.RemoveTraining(ctx, first)
	if err != nil || removed {
		t.Fatalf("second RemoveTraining() = %v, %v", removed, err)
	}
}

func TestTrainRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t, training.NewMemoryStore(), &fakeCompleter{})
	_, err := svc.Train(context.Background(), TrainInput{Kind: training.KindSQL, Content: "SELECT 1"})
	var engineErr *EngineError
	if !errors.As(err, &engineErr) || !errors.Is(err, training.ErrInvalidUnit) {
		t.Fatalf("error = %v", err)
	}
}

func TestTrainSurfacesStoreFailure(t *testing.T) {
	storeErr := errors.New("disk full")
	svc := newTestService(t, &failingStore{err: storeErr}, &fakeCompleter{})
	_, err := svc.Train(context.Background(), TrainInput{Kind: training.KindDDL, Content: "CREATE TABLE t (id int)"})
	if !errors.Is(err, storeErr) {
		t.Fatalf("error = %v", err)
	}
	if _, err := svc.ListTraining(context.Background()); !errors.Is(err, storeErr) {
		t.Fatalf("ListTraining() error = %v", err)
	}
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	if _, err := NewService(nil, &fakeCompleter{}, ServiceConfig{}); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewService(training.NewMemoryStore(), nil, ServiceConfig{}); err == nil {
		t.Fatal("expected error without completer")
	}
}

func newTestService(t *testing.T, store training.Store, completer Completer) *Service {
	t.Helper()
	clock := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	svc, err := NewService(store, completer, ServiceConfig{
		ContextItems: 5,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func mustTrain(t *testing.T, svc *Service, input TrainInput) string {
	t.Helper()
	id, err := svc.Train(context.Background(), input)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	return id
}

type fakeCompleter struct {
	reply string
	err   error
	last  Prompt
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, prompt Prompt) (string, error) {
	f.calls++
	f.last = prompt
	return f.reply, f.err
}

type failingStore struct {
	err error
}

func (f *failingStore) Put(context.Context, training.Unit) error { return f.err }

func (f *failingStore) List(context.Context) ([]training.Unit, error) { return nil, f.err }

func (f *failingStore) Delete(context.Context, string) (bool, error) { return false, f.err }
