package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"

	"codegraph/internal/db"
	"codegraph/internal/extract"
)

const symbolColumns = "id, name, qualified_name, kind, path, start_line, start_col, end_line, end_col, signature, parent_id, visibility, doc, language, metadata"

func scanSymbol(scan func(dest ...any) error) (extract.Symbol, error) {
	var sym extract.Symbol
	var kind, visibility, metadata string
	err := scan(&sym.ID, &sym.Name, &sym.QualifiedName, &kind, &sym.Path,
		&sym.StartLine, &sym.StartCol, &sym.EndLine, &sym.EndCol,
		&sym.Signature, &sym.ParentID, &visibility, &sym.Doc, &sym.Language, &metadata)
	if err != nil {
		return sym, err
	}
	sym.Kind = extract.SymbolKind(kind)
	sym.Visibility = extract.Visibility(visibility)
	if metadata != "" && metadata != "{}" {
		_ = json.Unmarshal([]byte(metadata), &sym.Metadata)
	}
	return sym, nil
}

func (s *Store) collectSymbols(rows db.Rows) ([]extract.Symbol, error) {
	defer rows.Close()
	var symbols []extract.Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows.Scan)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// ForEachSymbol streams every symbol in the workspace to fn in
// (path, line) order. Non-nil errors from fn stop the walk. Intended
// for external consumers rebuilding their own structures over the
// full symbol set.
func (s *Store) ForEachSymbol(ctx context.Context, workspaceID string, fn func(extract.Symbol) error) error {
	rows, err := s.schema.Query("symbols").
		Select(symbolColumns).
		Where("workspace_id = ?", workspaceID).
		OrderBy("path ASC, start_line ASC").
		Exec(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		sym, err := scanSymbol(rows.Scan)
		if err != nil {
			return err
		}
		if err := fn(sym); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SymbolsByName returns symbols whose bare or qualified name matches
// exactly, ordered by (path, line) so results are deterministic.
func (s *Store) SymbolsByName(ctx context.Context, workspaceID, name string) ([]extract.Symbol, error) {
	rows, err := s.schema.Query("symbols").
		Select(symbolColumns).
		Where("workspace_id = ?", workspaceID).
		Where("(name = ? OR qualified_name = ?)", name, name).
		OrderBy("path ASC, start_line ASC").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return s.collectSymbols(rows)
}

// SymbolByID fetches one symbol.
func (s *Store) SymbolByID(ctx context.Context, workspaceID, id string) (extract.Symbol, error) {
	row := s.schema.Query("symbols").
		Select(symbolColumns).
		Where("workspace_id = ?", workspaceID).
		Where("id = ?", id).
		ExecRow(ctx)
	return scanSymbol(row.Scan)
}

// SymbolsInFile returns every symbol extracted from one path.
func (s *Store) SymbolsInFile(ctx context.Context, workspaceID, path string) ([]extract.Symbol, error) {
	rows, err := s.schema.Query("symbols").
		Select(symbolColumns).
		Where("workspace_id = ?", workspaceID).
		Where("path = ?", path).
		OrderBy("start_line ASC").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return s.collectSymbols(rows)
}

// SymbolsByKind returns symbols of one kind, for the stats and
// navigation surfaces.
func (s *Store) SymbolsByKind(ctx context.Context, workspaceID string, kind extract.SymbolKind, limit int) ([]extract.Symbol, error) {
	q := s.schema.Query("symbols").
		Select(symbolColumns).
		Where("workspace_id = ?", workspaceID).
		Where("kind = ?", string(kind)).
		OrderBy("path ASC, start_line ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}
	return s.collectSymbols(rows)
}

// SymbolNames returns the distinct bare names in a workspace. The
// resolver's fuzzy tier scans these.
func (s *Store) SymbolNames(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := s.schema.DB().QueryContext(ctx, s.schema.SubstitutePlaceholders(
		"SELECT DISTINCT name FROM symbols WHERE workspace_id = ?"), workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) relationships(ctx context.Context, workspaceID, column, symbolID string) ([]extract.Relationship, error) {
	rows, err := s.schema.Query("relationships").
		Select("kind, source_id, target_id, target_name, path, line, confidence, metadata").
		Where("workspace_id = ?", workspaceID).
		Where(column+" = ?", symbolID).
		OrderBy("path ASC, line ASC").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []extract.Relationship
	for rows.Next() {
		var rel extract.Relationship
		var kind, metadata string
		if err := rows.Scan(&kind, &rel.SourceID, &rel.TargetID, &rel.TargetName,
			&rel.Path, &rel.Line, &rel.Confidence, &metadata); err != nil {
			return nil, err
		}
		rel.Kind = extract.RelationshipKind(kind)
		if metadata != "" && metadata != "{}" {
			_ = json.Unmarshal([]byte(metadata), &rel.Metadata)
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

// RelationshipsFrom returns resolved edges leaving a symbol.
func (s *Store) RelationshipsFrom(ctx context.Context, workspaceID, symbolID string) ([]extract.Relationship, error) {
	return s.relationships(ctx, workspaceID, "source_id", symbolID)
}

// RelationshipsTo returns resolved edges pointing at a symbol.
func (s *Store) RelationshipsTo(ctx context.Context, workspaceID, symbolID string) ([]extract.Relationship, error) {
	return s.relationships(ctx, workspaceID, "target_id", symbolID)
}

// TypeOf returns the recorded type information for a symbol, if any.
func (s *Store) TypeOf(ctx context.Context, workspaceID, symbolID string) (extract.TypeInfo, bool, error) {
	var info extract.TypeInfo
	var declared int
	err := s.schema.Query("type_info").
		Select("symbol_id", "resolved_type", "language", "declared").
		Where("workspace_id = ?", workspaceID).
		Where("symbol_id = ?", symbolID).
		ExecRow(ctx).
		Scan(&info.SymbolID, &info.ResolvedType, &info.Language, &declared)
	if errors.Is(err, sql.ErrNoRows) {
		return extract.TypeInfo{}, false, nil
	}
	if err != nil {
		return extract.TypeInfo{}, false, fmt.Errorf("type of %s: %w", symbolID, err)
	}
	info.Declared = declared != 0
	return info, true, nil
}

// WorkspaceStats aggregates counts for the stats command.
func (s *Store) WorkspaceStats(ctx context.Context, workspaceID string) (Stats, error) {
	stats := Stats{
		ByLanguage: map[string]int{},
		ByKind:     map[string]int{},
	}
	sub := s.schema.SubstitutePlaceholders
	database := s.schema.DB()

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM files WHERE workspace_id = ?", &stats.Files},
		{"SELECT COUNT(*) FROM symbols WHERE workspace_id = ?", &stats.Symbols},
		{"SELECT COUNT(*) FROM relationships WHERE workspace_id = ?", &stats.Relationships},
		{"SELECT COUNT(*) FROM relationships WHERE workspace_id = ? AND target_id = '' AND target_name != '' AND kind != 'imports'", &stats.Pending},
	}
	for _, c := range counts {
		if err := database.QueryRowContext(ctx, sub(c.query), workspaceID).Scan(c.dest); err != nil {
			return stats, fmt.Errorf("workspace stats: %w", err)
		}
	}

	groups := []struct {
		query string
		into  map[string]int
	}{
		{"SELECT language, COUNT(*) FROM symbols WHERE workspace_id = ? GROUP BY language", stats.ByLanguage},
		{"SELECT kind, COUNT(*) FROM symbols WHERE workspace_id = ? GROUP BY kind", stats.ByKind},
	}
	for _, g := range groups {
		rows, err := database.QueryContext(ctx, sub(g.query), workspaceID)
		if err != nil {
			return stats, fmt.Errorf("workspace stats: %w", err)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return stats, err
			}
			g.into[key] = n
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return stats, err
		}
		rows.Close()
	}
	return stats, nil
}

// DependencyGraph materializes the resolved relationships as a
// directed graph for traversal queries.
func (s *Store) DependencyGraph(ctx context.Context, workspaceID string) (graph.Graph[string, string], error) {
	g := graph.New(graph.StringHash, graph.Directed())

	rows, err := s.schema.DB().QueryContext(ctx, s.schema.SubstitutePlaceholders(
		"SELECT source_id, target_id FROM relationships WHERE workspace_id = ? AND target_id != ''"),
		workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, err
		}
		_ = g.AddVertex(source)
		_ = g.AddVertex(target)
		if err := g.AddEdge(source, target); err != nil && err != graph.ErrEdgeAlreadyExists {
			return nil, err
		}
	}
	return g, rows.Err()
}

// Dependencies walks the graph from a symbol and returns every symbol
// id reachable through resolved edges.
func (s *Store) Dependencies(ctx context.Context, workspaceID, symbolID string) ([]string, error) {
	g, err := s.DependencyGraph(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if _, err := g.Vertex(symbolID); err != nil {
		return nil, nil // symbol has no resolved edges
	}
	var reachable []string
	err = graph.BFS(g, symbolID, func(id string) bool {
		if id != symbolID {
			reachable = append(reachable, id)
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	return reachable, nil
}
