// Package graphstore persists symbols, relationships, and type
// information in SQLite or Postgres and answers the navigation
// queries built on them.
package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"codegraph/internal/db"
	"codegraph/internal/logging"
)

// Store owns one database connection. Writes are serialized through
// mergeMu so concurrent extraction workers cannot interleave merges.
type Store struct {
	schema *db.SchemaBuilder
	log    *slog.Logger

	// mergeMu serializes merge transactions. locked() recovers panics
	// so a failed merge cannot leave the store unusable.
	mergeMu sync.Mutex
}

// Open connects per the config and creates the schema.
func Open(ctx context.Context, cfg db.Config) (*Store, error) {
	database, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}
	store := New(database, cfg.Dialect())
	if err := store.Init(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection. Call Init before use.
func New(database db.DB, dialect db.Dialect) *Store {
	return &Store{
		schema: db.NewSchemaBuilder(database, dialect),
		log:    logging.Default("graphstore"),
	}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.schema.DB().Close()
}

// Init runs dialect init statements and creates all tables and
// indexes. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	if err := s.schema.RunInitStatements(ctx); err != nil {
		return fmt.Errorf("init statements: %w", err)
	}

	tables := []struct {
		name    string
		columns []db.ColumnDef
	}{
		{"workspaces", []db.ColumnDef{
			{Name: "id", Type: "TEXT", PrimaryKey: true},
			{Name: "root", Type: "TEXT", NotNull: true},
			{Name: "is_reference", Type: "INTEGER", NotNull: true, Default: "0"},
			{Name: "root_hash", Type: "TEXT", NotNull: true, Default: "''"},
			{Name: "updated_at", Type: "TIMESTAMP"},
		}},
		{"files", []db.ColumnDef{
			{Name: "id", Type: "TEXT", PrimaryKey: true},
			{Name: "workspace_id", Type: "TEXT", NotNull: true, References: "workspaces(id)", OnDeleteCas: true},
			{Name: "path", Type: "TEXT", NotNull: true},
			{Name: "language", Type: "TEXT", NotNull: true},
			{Name: "content_hash", Type: "TEXT", NotNull: true},
			{Name: "mtime_ns", Type: "INTEGER", NotNull: true, Default: "0"},
			{Name: "size", Type: "INTEGER", NotNull: true, Default: "0"},
			{Name: "indexed_at", Type: "TIMESTAMP"},
		}},
		{"symbols", []db.ColumnDef{
			{Name: "id", Type: "TEXT", NotNull: true},
			{Name: "workspace_id", Type: "TEXT", NotNull: true, References: "workspaces(id)", OnDeleteCas: true},
			{Name: "file_id", Type: "TEXT", NotNull: true, References: "files(id)", OnDeleteCas: true},
			{Name: "name", Type: "TEXT", NotNull: true},
			{Name: "qualified_name", Type: "TEXT", NotNull: true},
			{Name: "kind", Type: "TEXT", NotNull: true},
			{Name: "path", Type: "TEXT", NotNull: true},
			{Name: "start_line", Type: "INTEGER", NotNull: true},
			{Name: "start_col", Type: "INTEGER", NotNull: true},
			{Name: "end_line", Type: "INTEGER", NotNull: true},
			{Name: "end_col", Type: "INTEGER", NotNull: true},
			{Name: "signature", Type: "TEXT", NotNull: true, Default: "''"},
			{Name: "parent_id", Type: "TEXT", NotNull: true, Default: "''"},
			{Name: "visibility", Type: "TEXT", NotNull: true, Default: "''"},
			{Name: "doc", Type: "TEXT", NotNull: true, Default: "''"},
			{Name: "language", Type: "TEXT", NotNull: true},
			{Name: "metadata", Type: "TEXT", NotNull: true, Default: "'{}'"},
		}},
		{"relationships", []db.ColumnDef{
			{Name: "id", Type: "INTEGER", PrimaryKey: true, AutoIncr: true},
			{Name: "workspace_id", Type: "TEXT", NotNull: true, References: "workspaces(id)", OnDeleteCas: true},
			{Name: "kind", Type: "TEXT", NotNull: true},
			{Name: "source_id", Type: "TEXT", NotNull: true},
			{Name: "target_id", Type: "TEXT", NotNull: true, Default: "''"},
			{Name: "target_name", Type: "TEXT", NotNull: true, Default: "''"},
			{Name: "path", Type: "TEXT", NotNull: true},
			{Name: "line", Type: "INTEGER", NotNull: true, Default: "0"},
			{Name: "confidence", Type: "REAL", NotNull: true, Default: "1.0"},
			{Name: "pending_batches", Type: "INTEGER", NotNull: true, Default: "0"},
			{Name: "metadata", Type: "TEXT", NotNull: true, Default: "'{}'"},
		}},
		{"type_info", []db.ColumnDef{
			{Name: "workspace_id", Type: "TEXT", NotNull: true, References: "workspaces(id)", OnDeleteCas: true},
			{Name: "symbol_id", Type: "TEXT", NotNull: true},
			{Name: "resolved_type", Type: "TEXT", NotNull: true},
			{Name: "language", Type: "TEXT", NotNull: true},
			{Name: "declared", Type: "INTEGER", NotNull: true, Default: "1"},
		}},
	}
	for _, table := range tables {
		if err := s.schema.CreateTable(ctx, table.name, table.columns); err != nil {
			return fmt.Errorf("create table %s: %w", table.name, err)
		}
	}

	indexes := []struct {
		table   string
		name    string
		columns []string
		unique  bool
	}{
		{"workspaces", "idx_workspaces_root", []string{"root"}, true},
		{"files", "idx_files_ws_path", []string{"workspace_id", "path"}, true},
		{"symbols", "idx_symbols_ws_id", []string{"workspace_id", "id"}, true},
		{"symbols", "idx_symbols_name", []string{"workspace_id", "name"}, false},
		{"symbols", "idx_symbols_file", []string{"file_id"}, false},
		{"symbols", "idx_symbols_kind", []string{"workspace_id", "kind"}, false},
		{"relationships", "idx_rels_source", []string{"workspace_id", "source_id"}, false},
		{"relationships", "idx_rels_target", []string{"workspace_id", "target_id"}, false},
		{"relationships", "idx_rels_path", []string{"workspace_id", "path"}, false},
		{"type_info", "idx_types_symbol", []string{"workspace_id", "symbol_id"}, true},
	}
	for _, idx := range indexes {
		if err := s.schema.CreateIndex(ctx, idx.table, idx.name, idx.columns, idx.unique); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// EnsureWorkspace finds or creates the workspace row for a root path.
func (s *Store) EnsureWorkspace(ctx context.Context, root string, isReference bool) (Workspace, error) {
	ws := Workspace{Root: root, IsReference: isReference}

	var isRef int
	row := s.schema.Query("workspaces").
		Select("id", "is_reference", "root_hash").
		Where("root = ?", root).
		ExecRow(ctx)
	err := row.Scan(&ws.ID, &isRef, &ws.RootHash)
	if err == nil {
		ws.IsReference = isRef != 0
		return ws, nil
	}

	ws.ID = uuid.NewString()
	ws.UpdatedAt = time.Now().UTC()
	refFlag := 0
	if isReference {
		refFlag = 1
	}
	_, err = s.schema.Upsert(ctx, "workspaces",
		[]string{"id", "root", "is_reference", "root_hash", "updated_at"},
		[]string{"id"}, nil,
		ws.ID, root, refFlag, "", ws.UpdatedAt)
	if err != nil {
		return Workspace{}, &TxError{Op: "ensure workspace", Err: err}
	}
	s.log.Info("workspace created",
		slog.String("workspace_id", ws.ID),
		slog.String("root", root),
		slog.Bool("reference", isReference))
	return ws, nil
}

// SetRootHash records the workspace snapshot root hash after a
// completed pass. A matching hash on the next pass skips the diff.
func (s *Store) SetRootHash(ctx context.Context, workspaceID, rootHash string) error {
	_, err := s.schema.DB().ExecContext(ctx,
		s.schema.SubstitutePlaceholders("UPDATE workspaces SET root_hash = ?, updated_at = ? WHERE id = ?"),
		rootHash, time.Now().UTC(), workspaceID)
	if err != nil {
		return &TxError{Op: "set root hash", Err: err}
	}
	return nil
}

// RootHash returns the stored snapshot hash for the workspace.
func (s *Store) RootHash(ctx context.Context, workspaceID string) (string, error) {
	var hash string
	err := s.schema.Query("workspaces").
		Select("root_hash").
		Where("id = ?", workspaceID).
		ExecRow(ctx).Scan(&hash)
	if err != nil {
		return "", err
	}
	return hash, nil
}

// Workspaces lists every indexed workspace, primary workspaces
// before reference ones.
func (s *Store) Workspaces(ctx context.Context) ([]Workspace, error) {
	rows, err := s.schema.Query("workspaces").
		Select("id", "root", "is_reference", "root_hash", "updated_at").
		OrderBy("is_reference ASC, root ASC").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		var ws Workspace
		var isRef int
		if err := rows.Scan(&ws.ID, &ws.Root, &isRef, &ws.RootHash, &ws.UpdatedAt); err != nil {
			return nil, err
		}
		ws.IsReference = isRef != 0
		out = append(out, ws)
	}
	return out, rows.Err()
}

// DeleteWorkspace removes a workspace and, via cascade, everything
// indexed under it.
func (s *Store) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if _, err := s.schema.DeleteWhere(ctx, "workspaces", "id = ?", workspaceID); err != nil {
		return &TxError{Op: "delete workspace", Err: err}
	}
	return nil
}

// locked runs fn holding the merge lock, converting panics into
// TxError so a poisoned merge never deadlocks subsequent batches.
func (s *Store) locked(op string, fn func() error) (err error) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("merge panic recovered", slog.String("op", op), slog.Any("panic", r))
			err = &TxError{Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn()
}
