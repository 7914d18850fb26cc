package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

// priorEntity is the slice of an existing row the diff needs
type priorEntity struct {
	signature string
	docstring string
	startLine int
	endLine   int
	updatedAt int64
}

// ApplyDelta atomically replaces every entity and edge attributed to
// filePath with the supplied extraction result. Entities whose
// signature and docstring are unchanged keep their stored embedding
// and version; changed entities get a new version and a cleared
// vector. Edges referencing removed entities are cascade-deleted from
// other files too. Pseudo entities referenced by the new edges are
// created if absent and never removed here.
func (s *SQLiteStore) ApplyDelta(ctx context.Context, filePath string, entities []*types.Entity, edges []types.Edge) (*types.Delta, error) {
	lock := s.fileLock(filePath)
	lock.Lock()
	defer lock.Unlock()

	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("invalid entity in delta for %s: %w", filePath, err)
		}
	}
	for i := range edges {
		if err := edges[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid edge in delta for %s: %w", filePath, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	prior, err := s.loadPriorEntities(ctx, tx, filePath)
	if err != nil {
		return nil, err
	}

	version := time.Now().UnixNano()
	delta := &types.Delta{FilePath: filePath}
	seen := make(map[string]bool, len(entities))

	for _, e := range entities {
		if e.Kind.IsPseudo() {
			if err := s.upsertPseudoWithQuerier(ctx, tx, e, version); err != nil {
				return nil, err
			}
			continue
		}
		seen[e.ID] = true

		old, exists := prior[e.ID]
		switch {
		case !exists:
			delta.Added = append(delta.Added, e.ID)
			if err := s.upsertEntityWithQuerier(ctx, tx, e, version); err != nil {
				return nil, err
			}
		case old.signature != e.Signature || old.docstring != e.Docstring:
			delta.Modified = append(delta.Modified, e.ID)
			e.Embedding = nil // vector no longer matches the content
			if err := s.upsertEntityWithQuerier(ctx, tx, e, version); err != nil {
				return nil, err
			}
		case old.startLine != e.StartLine || old.endLine != e.EndLine:
			// Only the location moved. Update the span in place and
			// keep both the embedding and the version so in-flight
			// vector writes still land.
			if err := s.moveEntity(ctx, tx, e.ID, e.StartLine, e.EndLine); err != nil {
				return nil, err
			}
			e.UpdatedAt = old.updatedAt
		default:
			e.UpdatedAt = old.updatedAt
		}
	}

	for id := range prior {
		if !seen[id] {
			delta.Removed = append(delta.Removed, id)
		}
	}

	if len(delta.Removed) > 0 {
		if err := s.deleteEntities(ctx, tx, delta.Removed); err != nil {
			return nil, err
		}
		// Cascade: edges from other files may reference a removed
		// entity as their target.
		if err := s.deleteEdgesReferencing(ctx, tx, delta.Removed); err != nil {
			return nil, err
		}
	}

	// Replace the file's edge set wholesale. Every edge the new parse
	// produced is re-inserted below.
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE file_path = ?`, filePath); err != nil {
		return nil, fmt.Errorf("failed to clear edges for %s: %w", filePath, err)
	}
	for i := range edges {
		e := &edges[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO edges (source_id, relation, target_id, context, file_path)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(source_id, relation, target_id) DO UPDATE SET
				context = excluded.context,
				file_path = excluded.file_path
		`, e.SourceID, string(e.Relation), e.TargetID, e.Context, filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to insert edge %s -%s-> %s: %w", e.SourceID, e.Relation, e.TargetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delta for %s: %w", filePath, err)
	}
	return delta, nil
}

// loadPriorEntities reads the code entities currently attributed to the file
func (s *SQLiteStore) loadPriorEntities(ctx context.Context, q querier, filePath string) (map[string]priorEntity, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, signature, docstring, start_line, end_line, updated_at
		FROM entities
		WHERE file_path = ?
		  AND kind IN ('function', 'method', 'class', 'module')
	`, filePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	prior := make(map[string]priorEntity)
	for rows.Next() {
		var id string
		var p priorEntity
		if err := rows.Scan(&id, &p.signature, &p.docstring, &p.startLine, &p.endLine, &p.updatedAt); err != nil {
			return nil, err
		}
		prior[id] = p
	}
	return prior, rows.Err()
}

func (s *SQLiteStore) moveEntity(ctx context.Context, q querier, id string, startLine, endLine int) error {
	_, err := q.ExecContext(ctx,
		`UPDATE entities SET start_line = ?, end_line = ? WHERE id = ?`,
		startLine, endLine, id)
	if err != nil {
		return fmt.Errorf("failed to move entity %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) deleteEntities(ctx context.Context, q querier, ids []string) error {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := `DELETE FROM entities WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete entities: %w", err)
	}
	return nil
}

func (s *SQLiteStore) deleteEdgesReferencing(ctx context.Context, q querier, ids []string) error {
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, 0, len(ids)*2)
	for _, id := range ids {
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}
	query := `DELETE FROM edges WHERE source_id IN (` + placeholders + `) OR target_id IN (` + placeholders + `)`
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to cascade edge deletion: %w", err)
	}
	return nil
}
