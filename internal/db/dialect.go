package db

import (
	"fmt"
	"strings"
)

// Dialect abstracts the SQL differences between the supported engines.
// SQLite (modernc, pure Go) is the default for local workspaces;
// Postgres serves shared deployments.
type Dialect interface {
	// Name returns the dialect identifier ("sqlite" or "postgres").
	Name() string

	// Placeholder returns the parameter placeholder for position idx
	// (1-based). SQLite ignores idx and returns "?".
	Placeholder(idx int) string

	// CreateTableSQL renders a CREATE TABLE IF NOT EXISTS statement.
	CreateTableSQL(table string, columns []ColumnDef) string

	// CreateIndexSQL renders a CREATE INDEX IF NOT EXISTS statement.
	CreateIndexSQL(table, indexName string, columns []string, unique bool) string

	// UpsertSQL renders an INSERT ... ON CONFLICT statement.
	// If updateColumns is nil, all non-conflict columns are updated.
	UpsertSQL(table string, columns, conflictColumns, updateColumns []string) string

	// InitStatements returns statements run once per connection.
	InitStatements() []string
}

// ColumnDef describes one column of a table for CreateTableSQL.
type ColumnDef struct {
	Name        string
	Type        string // portable type name: TEXT, INTEGER, REAL, BLOB, TIMESTAMP
	PrimaryKey  bool
	AutoIncr    bool
	NotNull     bool
	Default     string
	References  string // "table(column)" for a foreign key
	OnDeleteCas bool
}

// SQLiteDialect targets modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(int) string { return "?" }

func (d *SQLiteDialect) CreateTableSQL(table string, columns []ColumnDef) string {
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		def := col.Name + " " + col.Type
		if col.PrimaryKey {
			def += " PRIMARY KEY"
			if col.AutoIncr {
				def += " AUTOINCREMENT"
			}
		}
		if col.NotNull {
			def += " NOT NULL"
		}
		if col.Default != "" {
			def += " DEFAULT " + col.Default
		}
		if col.References != "" {
			def += " REFERENCES " + col.References
			if col.OnDeleteCas {
				def += " ON DELETE CASCADE"
			}
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
}

func (d *SQLiteDialect) CreateIndexSQL(table, indexName string, columns []string, unique bool) string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, indexName, table, strings.Join(columns, ", "))
}

func (d *SQLiteDialect) UpsertSQL(table string, columns, conflictColumns, updateColumns []string) string {
	return upsertSQL(d, table, columns, conflictColumns, updateColumns)
}

func (d *SQLiteDialect) InitStatements() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA synchronous = NORMAL",
	}
}

// PostgresDialect targets lib/pq.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) Placeholder(idx int) string { return fmt.Sprintf("$%d", idx) }

func (d *PostgresDialect) CreateTableSQL(table string, columns []ColumnDef) string {
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		colType := col.Type
		if col.PrimaryKey && col.AutoIncr {
			colType = "BIGSERIAL"
		}
		def := col.Name + " " + colType
		if col.PrimaryKey {
			def += " PRIMARY KEY"
		}
		if col.NotNull {
			def += " NOT NULL"
		}
		if col.Default != "" {
			def += " DEFAULT " + col.Default
		}
		if col.References != "" {
			def += " REFERENCES " + col.References
			if col.OnDeleteCas {
				def += " ON DELETE CASCADE"
			}
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
}

func (d *PostgresDialect) CreateIndexSQL(table, indexName string, columns []string, unique bool) string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, indexName, table, strings.Join(columns, ", "))
}

func (d *PostgresDialect) UpsertSQL(table string, columns, conflictColumns, updateColumns []string) string {
	return upsertSQL(d, table, columns, conflictColumns, updateColumns)
}

func (d *PostgresDialect) InitStatements() []string { return nil }

// upsertSQL renders INSERT ... ON CONFLICT ... DO UPDATE. Both engines
// share the syntax; only placeholders differ.
func upsertSQL(d Dialect, table string, columns, conflictColumns, updateColumns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = d.Placeholder(i + 1)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if len(conflictColumns) == 0 {
		return sql
	}

	if updateColumns == nil {
		conflict := make(map[string]bool, len(conflictColumns))
		for _, c := range conflictColumns {
			conflict[c] = true
		}
		for _, c := range columns {
			if !conflict[c] {
				updateColumns = append(updateColumns, c)
			}
		}
	}

	sql += fmt.Sprintf(" ON CONFLICT (%s)", strings.Join(conflictColumns, ", "))
	if len(updateColumns) == 0 {
		return sql + " DO NOTHING"
	}

	sets := make([]string, len(updateColumns))
	for i, c := range updateColumns {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return sql + " DO UPDATE SET " + strings.Join(sets, ", ")
}
