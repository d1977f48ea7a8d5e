package graphstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"codegraph/internal/extract"
)

// fileID derives a stable file row id from workspace and path.
func fileID(workspaceID, path string) string {
	sum := sha256.Sum256([]byte(workspaceID + "\x00" + path))
	return hex.EncodeToString(sum[:16])
}

func marshalMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// UpsertFileResults merges one file's extraction output: the file
// fingerprint is upserted and the file's previous symbols, edges, and
// types are replaced in a single transaction.
func (s *Store) UpsertFileResults(ctx context.Context, ws Workspace, rec FileRecord, results *extract.ExtractionResults) error {
	return s.locked("upsert file", func() error {
		fid := fileID(ws.ID, rec.Path)

		tx, err := s.schema.DB().BeginTx(ctx, nil)
		if err != nil {
			return &TxError{Op: "upsert file", Err: err}
		}
		defer tx.Rollback() //nolint:errcheck

		sub := s.schema.SubstitutePlaceholders

		_, err = tx.ExecContext(ctx, s.schema.Dialect().UpsertSQL("files",
			[]string{"id", "workspace_id", "path", "language", "content_hash", "mtime_ns", "size", "indexed_at"},
			[]string{"id"}, nil),
			fid, ws.ID, rec.Path, rec.Language, rec.ContentHash, rec.MTimeNanos, rec.Size, time.Now().UTC())
		if err != nil {
			return &TxError{Op: "upsert file row", Err: err}
		}

		// Clear the file's previous contribution before re-inserting.
		if _, err := tx.ExecContext(ctx, sub(
			"DELETE FROM type_info WHERE workspace_id = ? AND symbol_id IN (SELECT id FROM symbols WHERE file_id = ?)"),
			ws.ID, fid); err != nil {
			return &TxError{Op: "clear types", Err: err}
		}
		if _, err := tx.ExecContext(ctx, sub("DELETE FROM symbols WHERE file_id = ?"), fid); err != nil {
			return &TxError{Op: "clear symbols", Err: err}
		}
		if _, err := tx.ExecContext(ctx, sub(
			"DELETE FROM relationships WHERE workspace_id = ? AND path = ?"), ws.ID, rec.Path); err != nil {
			return &TxError{Op: "clear relationships", Err: err}
		}

		symStmt, err := tx.Prepare(s.schema.Dialect().UpsertSQL("symbols",
			[]string{"id", "workspace_id", "file_id", "name", "qualified_name", "kind", "path",
				"start_line", "start_col", "end_line", "end_col",
				"signature", "parent_id", "visibility", "doc", "language", "metadata"},
			[]string{"workspace_id", "id"}, nil))
		if err != nil {
			return &TxError{Op: "prepare symbols", Err: err}
		}
		defer symStmt.Close()

		for _, sym := range results.Symbols {
			qualified := sym.QualifiedName
			if qualified == "" {
				qualified = sym.Name
			}
			if _, err := symStmt.Exec(
				sym.ID, ws.ID, fid, sym.Name, qualified, string(sym.Kind), sym.Path,
				sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol,
				sym.Signature, sym.ParentID, string(sym.Visibility), sym.Doc, sym.Language,
				marshalMetadata(sym.Metadata)); err != nil {
				return &TxError{Op: fmt.Sprintf("insert symbol %s", sym.Name), Err: err}
			}
		}

		relStmt, err := tx.Prepare(sub(
			"INSERT INTO relationships (workspace_id, kind, source_id, target_id, target_name, path, line, confidence, pending_batches, metadata) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)"))
		if err != nil {
			return &TxError{Op: "prepare relationships", Err: err}
		}
		defer relStmt.Close()

		for _, rel := range results.Relationships {
			if _, err := relStmt.Exec(
				ws.ID, string(rel.Kind), rel.SourceID, rel.TargetID, rel.TargetName,
				rel.Path, rel.Line, rel.Confidence, marshalMetadata(rel.Metadata)); err != nil {
				return &TxError{Op: "insert relationship", Err: err}
			}
		}

		typeStmt, err := tx.Prepare(s.schema.Dialect().UpsertSQL("type_info",
			[]string{"workspace_id", "symbol_id", "resolved_type", "language", "declared"},
			[]string{"workspace_id", "symbol_id"}, nil))
		if err != nil {
			return &TxError{Op: "prepare types", Err: err}
		}
		defer typeStmt.Close()

		for _, info := range results.Types {
			declared := 0
			if info.Declared {
				declared = 1
			}
			if _, err := typeStmt.Exec(ws.ID, info.SymbolID, info.ResolvedType, info.Language, declared); err != nil {
				return &TxError{Op: "insert type", Err: err}
			}
		}

		if err := tx.Commit(); err != nil {
			return &TxError{Op: "commit file", Err: err}
		}
		return nil
	})
}

// RefreshFileFingerprint updates a stored file's mtime and size after
// a touch that left the content identical, keeping the cheap
// size+mtime match valid for later passes.
func (s *Store) RefreshFileFingerprint(ctx context.Context, workspaceID string, rec FileRecord) error {
	return s.locked("refresh fingerprint", func() error {
		_, err := s.schema.DB().ExecContext(ctx, s.schema.SubstitutePlaceholders(
			"UPDATE files SET mtime_ns = ?, size = ?, indexed_at = ? WHERE id = ?"),
			rec.MTimeNanos, rec.Size, time.Now().UTC(), fileID(workspaceID, rec.Path))
		if err != nil {
			return &TxError{Op: "refresh fingerprint", Err: err}
		}
		return nil
	})
}

// RemoveFile deletes a file row and everything extracted from it,
// including relationships from other files that pointed at its
// symbols. Those edges are re-deferred rather than kept stale: the
// target id is cleared so the next resolution batch can re-bind them.
func (s *Store) RemoveFile(ctx context.Context, workspaceID, path string) error {
	return s.locked("remove file", func() error {
		fid := fileID(workspaceID, path)
		sub := s.schema.SubstitutePlaceholders

		tx, err := s.schema.DB().BeginTx(ctx, nil)
		if err != nil {
			return &TxError{Op: "remove file", Err: err}
		}
		defer tx.Rollback() //nolint:errcheck

		// Edges into the removed file's symbols go back to deferred,
		// keyed by the symbol name they used to point at.
		if _, err := tx.ExecContext(ctx, sub(
			"UPDATE relationships SET target_id = '', pending_batches = 0, "+
				"target_name = (SELECT name FROM symbols WHERE symbols.id = relationships.target_id AND symbols.file_id = ?) "+
				"WHERE workspace_id = ? AND target_id IN (SELECT id FROM symbols WHERE file_id = ?)"),
			fid, workspaceID, fid); err != nil {
			return &TxError{Op: "defer inbound edges", Err: err}
		}

		if _, err := tx.ExecContext(ctx, sub(
			"DELETE FROM relationships WHERE workspace_id = ? AND (path = ? OR source_id IN (SELECT id FROM symbols WHERE file_id = ?))"),
			workspaceID, path, fid); err != nil {
			return &TxError{Op: "remove relationships", Err: err}
		}
		if _, err := tx.ExecContext(ctx, sub(
			"DELETE FROM type_info WHERE workspace_id = ? AND symbol_id IN (SELECT id FROM symbols WHERE file_id = ?)"),
			workspaceID, fid); err != nil {
			return &TxError{Op: "remove types", Err: err}
		}
		if _, err := tx.ExecContext(ctx, sub("DELETE FROM symbols WHERE file_id = ?"), fid); err != nil {
			return &TxError{Op: "remove symbols", Err: err}
		}
		if _, err := tx.ExecContext(ctx, sub("DELETE FROM files WHERE id = ?"), fid); err != nil {
			return &TxError{Op: "remove file row", Err: err}
		}

		if err := tx.Commit(); err != nil {
			return &TxError{Op: "commit remove", Err: err}
		}
		return nil
	})
}

// ListFiles returns the stored fingerprints for the workspace, keyed
// by normalized path.
func (s *Store) ListFiles(ctx context.Context, workspaceID string) (map[string]FileRecord, error) {
	rows, err := s.schema.Query("files").
		Select("id", "path", "language", "content_hash", "mtime_ns", "size").
		Where("workspace_id = ?", workspaceID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make(map[string]FileRecord)
	for rows.Next() {
		rec := FileRecord{WorkspaceID: workspaceID}
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Language, &rec.ContentHash, &rec.MTimeNanos, &rec.Size); err != nil {
			return nil, err
		}
		files[rec.Path] = rec
	}
	return files, rows.Err()
}

// pendingEdge is a deferred relationship awaiting target resolution.
type pendingEdge struct {
	id         int64
	targetName string
	path       string
	batches    int
}

// ResolveDeferred runs one resolution batch: every relationship whose
// target is still a name is matched against the symbol table. Edges
// that stay unresolved for maxPendingBatches batches are dropped.
// Import edges are skipped: their targets are module paths, not
// workspace symbols, and the raw path stays queryable as the name.
// Runs once per merge batch, after all files have been committed.
func (s *Store) ResolveDeferred(ctx context.Context, workspaceID string) (resolved, dropped int, err error) {
	err = s.locked("resolve deferred", func() error {
		sub := s.schema.SubstitutePlaceholders

		rows, err := s.schema.Query("relationships").
			Select("id", "target_name", "path", "pending_batches").
			Where("workspace_id = ?", workspaceID).
			Where("target_id = ''").
			Where("target_name != ''").
			Where("kind != ?", string(extract.RelImports)).
			Exec(ctx)
		if err != nil {
			return &TxError{Op: "load deferred", Err: err}
		}
		var pending []pendingEdge
		for rows.Next() {
			var edge pendingEdge
			if err := rows.Scan(&edge.id, &edge.targetName, &edge.path, &edge.batches); err != nil {
				rows.Close()
				return &TxError{Op: "scan deferred", Err: err}
			}
			pending = append(pending, edge)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return &TxError{Op: "load deferred", Err: err}
		}
		rows.Close()

		if len(pending) == 0 {
			return nil
		}

		// Match every edge before opening the transaction. The sqlite
		// store runs on a single connection, so a pooled query issued
		// while a transaction holds that connection would block forever.
		type decision struct {
			edge       pendingEdge
			targetID   string
			confidence float64
			found      bool
		}
		decisions := make([]decision, 0, len(pending))
		for _, edge := range pending {
			targetID, confidence, found, err := s.matchTarget(ctx, workspaceID, edge)
			if err != nil {
				return err
			}
			decisions = append(decisions, decision{edge, targetID, confidence, found})
		}

		tx, err := s.schema.DB().BeginTx(ctx, nil)
		if err != nil {
			return &TxError{Op: "resolve deferred", Err: err}
		}
		defer tx.Rollback() //nolint:errcheck

		for _, d := range decisions {
			edge := d.edge
			switch {
			case d.found:
				if _, err := tx.ExecContext(ctx, sub(
					"UPDATE relationships SET target_id = ?, confidence = ? WHERE id = ?"),
					d.targetID, d.confidence, edge.id); err != nil {
					return &TxError{Op: "bind edge", Err: err}
				}
				resolved++
			case edge.batches+1 >= maxPendingBatches:
				if _, err := tx.ExecContext(ctx, sub("DELETE FROM relationships WHERE id = ?"), edge.id); err != nil {
					return &TxError{Op: "drop edge", Err: err}
				}
				s.log.Warn("unresolved relationship dropped",
					slog.String("target", edge.targetName),
					slog.String("path", edge.path))
				dropped++
			default:
				if _, err := tx.ExecContext(ctx, sub(
					"UPDATE relationships SET pending_batches = ? WHERE id = ?"),
					edge.batches+1, edge.id); err != nil {
					return &TxError{Op: "age edge", Err: err}
				}
			}
		}

		if err := tx.Commit(); err != nil {
			return &TxError{Op: "commit resolution", Err: err}
		}
		return nil
	})
	return resolved, dropped, err
}

// matchTarget finds the best symbol for a deferred target name.
// Matches on a real qualified name beat bare-name matches; among
// equals the edge's own file wins, then the lexically first
// (path, line). Symbols without a qualifier store their bare name as
// qualified_name, so a qualified match only counts when the candidate
// carries a distinct qualified name.
func (s *Store) matchTarget(ctx context.Context, workspaceID string, edge pendingEdge) (id string, confidence float64, found bool, err error) {
	rows, err := s.schema.Query("symbols").
		Select("id", "name", "qualified_name", "path").
		Where("workspace_id = ?", workspaceID).
		Where("(name = ? OR qualified_name = ?)", edge.targetName, edge.targetName).
		OrderBy("path ASC, start_line ASC").
		Exec(ctx)
	if err != nil {
		return "", 0, false, &TxError{Op: "match target", Err: err}
	}
	defer rows.Close()

	var firstID, samePathID, qualifiedID string
	for rows.Next() {
		var symID, name, qualified, path string
		if err := rows.Scan(&symID, &name, &qualified, &path); err != nil {
			return "", 0, false, &TxError{Op: "scan candidates", Err: err}
		}
		if firstID == "" {
			firstID = symID
		}
		if qualifiedID == "" && qualified == edge.targetName && qualified != name {
			qualifiedID = symID
		}
		if samePathID == "" && path == edge.path {
			samePathID = symID
		}
	}
	if err := rows.Err(); err != nil {
		return "", 0, false, &TxError{Op: "match target", Err: err}
	}

	switch {
	case qualifiedID != "":
		return qualifiedID, 0.95, true, nil
	case samePathID != "":
		return samePathID, 0.9, true, nil
	case firstID != "":
		return firstID, 0.85, true, nil
	}
	return "", 0, false, nil
}
