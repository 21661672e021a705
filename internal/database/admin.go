package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// AdminConnector opens unpooled connections to the administrative database. It exists for
// catalog-wide queries (such as listing databases) that cannot run on the target pool because
// they address a different database.
type AdminConnector struct {
	dsn string
}

func NewAdminConnector(dsn string) *AdminConnector {
	return &AdminConnector{dsn: dsn}
}

// Connect dials a fresh connection. The caller must Close it.
func (c *AdminConnector) Connect(ctx context.Context) (*pgx.Conn, error) {
	if c == nil || c.dsn == "" {
		return nil, fmt.Errorf("admin dsn is required")
	}
	conn, err := pgx.Connect(ctx, c.dsn)
	if err != nil {
		return nil, &ConnectionError{Op: "admin connect", Err: err}
	}
	return conn, nil
}

// ListDatabases returns the names of all non-template databases on the server. The
// connection is closed on every return path.
func (c *AdminConnector) ListDatabases(ctx context.Context) (names []string, err error) {
	conn, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := conn.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = fmt.Errorf("close admin connection: %w", closeErr)
		}
	}()

	rows, err := conn.Query(ctx, `SELECT datname FROM pg_database WHERE datistemplate = false`)
	if err != nil {
		return nil, fmt.Errorf("query databases: %w", err)
	}
	names, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect databases: %w", err)
	}
	return names, nil
}
