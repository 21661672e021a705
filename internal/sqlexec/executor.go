// Package sqlexec runs arbitrary SQL text on a pooled connection and normalizes the result
// into column-keyed records.
package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nlsql/nlsql/internal/observability"
)

// Pool is the subset of *database.Pool the executor needs.
type Pool interface {
	Acquire(ctx context.Context) (*sql.Conn, error)
	Release(conn *sql.Conn)
}

type Result struct {
	Data     []map[string]any `json:"data"`
	Columns  []string         `json:"columns"`
	RowCount int              `json:"row_count"`
}

// SQLError wraps a failure raised while executing, committing or rolling back a statement.
type SQLError struct {
	Op  string
	Err error
}

func (e *SQLError) Error() string {
	return e.Err.Error()
}

func (e *SQLError) Unwrap() error {
	return e.Err
}

type Executor struct {
	pool Pool
}

func NewExecutor(pool Pool) *Executor {
	return &Executor{pool: pool}
}

// Execute runs sqlText inside a transaction on a connection checked out for the duration of
// the call. The transaction is committed on success whatever the statement kind, read-only
// statements included, and rolled back on any failure. The connection goes back to the pool
// on every path.
func (e *Executor) Execute(ctx context.Context, sqlText string) (result Result, err error) {
	start := time.Now()
	defer func() {
		observability.ObserveSQLExecution(result.RowCount, time.Since(start), err)
	}()

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return Result{}, err
	}
	defer e.pool.Release(conn)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, &SQLError{Op: "begin", Err: err}
	}

	columns, rows, err := runStatement(ctx, tx, sqlText)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return Result{}, &SQLError{Op: "rollback", Err: fmt.Errorf("%w (rollback failed: %v)", err, rbErr)}
		}
		return Result{}, &SQLError{Op: "execute", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return Result{}, &SQLError{Op: "commit", Err: err}
	}

	return buildResult(columns, rows), nil
}

func runStatement(ctx context.Context, tx *sql.Tx, sqlText string) ([]string, [][]any, error) {
	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	values := make([][]any, 0)
	for rows.Next() {
		if len(columns) == 0 {
			continue
		}
		row := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range row {
			targets[i] = &row[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, nil, err
		}
		values = append(values, normalizeValues(row))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, nil, err
	}
	if len(columns) == 0 {
		return []string{}, [][]any{}, nil
	}
	return columns, values, nil
}

func buildResult(columns []string, rows [][]any) Result {
	data := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			record[column] = row[i]
		}
		data = append(data, record)
	}
	return Result{Data: data, Columns: columns, RowCount: len(data)}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
