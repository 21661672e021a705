// Package schema reads table and column metadata from the PostgreSQL information schema.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const DefaultSchema = "public"

// Pool is the subset of *database.Pool the introspector needs.
type Pool interface {
	Acquire(ctx context.Context) (*sql.Conn, error)
	Release(conn *sql.Conn)
}

// DatabaseLister lists the databases on the server. *database.AdminConnector implements it.
type DatabaseLister interface {
	ListDatabases(ctx context.Context) ([]string, error)
}

// Descriptor maps table name to its kind and columns.
type Descriptor map[string]Table

type Table struct {
	Type    string   `json:"type"`
	Columns []Column `json:"columns"`
}

type Column struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default"`
}

type Introspector struct {
	pool   Pool
	admin  DatabaseLister
	schema string
}

func NewIntrospector(pool Pool, admin DatabaseLister, schemaName string) *Introspector {
	schemaName = strings.TrimSpace(schemaName)
	if schemaName == "" {
		schemaName = DefaultSchema
	}
	return &Introspector{pool: pool, admin: admin, schema: schemaName}
}

func (i *Introspector) Schema() string {
	return i.schema
}

// DescribeSchema reads every table and view of the schema with its columns in ordinal order.
// Columns are fetched with one query per table, which is fine for the small schemas this
// gateway targets.
func (i *Introspector) DescribeSchema(ctx context.Context) (Descriptor, error) {
	conn, err := i.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer i.pool.Release(conn)

	type tableRow struct {
		name string
		kind string
	}
	rows, err := conn.QueryContext(ctx, `
SELECT table_name, table_type
FROM information_schema.tables
WHERE table_schema = $1
ORDER BY table_name`, i.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables := make([]tableRow, 0)
	for rows.Next() {
		var table tableRow
		if err := rows.Scan(&table.name, &table.kind); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	_ = rows.Close()

	descriptor := make(Descriptor, len(tables))
	for _, table := range tables {
		columns, err := describeColumns(ctx, conn, i.schema, table.name)
		if err != nil {
			return nil, err
		}
		descriptor[table.name] = Table{Type: table.kind, Columns: columns}
	}
	return descriptor, nil
}

func describeColumns(ctx context.Context, conn *sql.Conn, schemaName, table string) ([]Column, error) {
	rows, err := conn.QueryContext(ctx, `
SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]Column, 0)
	for rows.Next() {
		var (
			column     Column
			isNullable string
			defaultVal sql.NullString
		)
		if err := rows.Scan(&column.Name, &column.Type, &isNullable, &defaultVal); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		column.Nullable = isNullable == "YES"
		if defaultVal.Valid {
			value := defaultVal.String
			column.Default = &value
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %s: %w", table, err)
	}
	return columns, nil
}

// ListTables returns the names of the tables and views of the schema ordered by name.
func (i *Introspector) ListTables(ctx context.Context) ([]string, error) {
	conn, err := i.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer i.pool.Release(conn)

	rows, err := conn.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1
ORDER BY table_name`, i.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

// SynthesizeDDL renders an approximate CREATE TABLE statement for table. Only column names,
// types and nullability are captured. A table with no visible columns renders an empty body.
func (i *Introspector) SynthesizeDDL(ctx context.Context, table string) (string, error) {
	conn, err := i.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer i.pool.Release(conn)

	columns, err := describeColumns(ctx, conn, i.schema, table)
	if err != nil {
		return "", err
	}
	return BuildCreateTable(table, columns), nil
}

func (i *Introspector) ListDatabases(ctx context.Context) ([]string, error) {
	if i.admin == nil {
		return nil, fmt.Errorf("database listing is not configured")
	}
	return i.admin.ListDatabases(ctx)
}

// BuildCreateTable formats columns as
//
//	CREATE TABLE t (
//	    col type NOT NULL,
//	    ...
//	);
func BuildCreateTable(table string, columns []Column) string {
	lines := make([]string, 0, len(columns))
	for _, column := range columns {
		nullability := "NOT NULL"
		if column.Nullable {
			nullability = "NULL"
		}
		lines = append(lines, fmt.Sprintf("    %s %s %s", column.Name, column.Type, nullability))
	}
	return "CREATE TABLE " + table + " (\n" + strings.Join(lines, ",\n") + "\n);"
}
