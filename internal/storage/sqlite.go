package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrStaleEmbedding is returned when an embedding write carries a
	// version that no longer matches the stored entity
	ErrStaleEmbedding = errors.New("stale embedding")
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB

	// fileLocks serializes ApplyDelta per file path
	mu        sync.Mutex
	fileLocks map[string]*sync.Mutex
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{
		db:        db,
		fileLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// fileLock returns the mutex serializing writes for one file path
func (s *SQLiteStore) fileLock(filePath string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.fileLocks[filePath]
	if !ok {
		lock = &sync.Mutex{}
		s.fileLocks[filePath] = lock
	}
	return lock
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStore) querier() querier {
	return s.db
}

const entityColumns = `id, kind, name, file_path, start_line, end_line, signature, docstring, embedding, updated_at`

// scanEntity reads one entity row from a row scanner
func scanEntity(scan func(dest ...interface{}) error) (*types.Entity, error) {
	var e types.Entity
	var kind string
	var blob []byte
	err := scan(
		&e.ID, &kind, &e.Name, &e.FilePath,
		&e.StartLine, &e.EndLine, &e.Signature, &e.Docstring,
		&blob, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Kind = types.EntityKind(kind)
	if len(blob) > 0 {
		e.Embedding = deserializeVector(blob)
	}
	return &e, nil
}

// Entity operations

// getEntityWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getEntityWithQuerier(ctx context.Context, q querier, id string) (*types.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = ?`
	e, err := scanEntity(q.QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	return s.getEntityWithQuerier(ctx, s.querier(), id)
}

// entitiesByFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) entitiesByFileWithQuerier(ctx context.Context, q querier, filePath string) ([]*types.Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM entities
		WHERE file_path = ?
		ORDER BY start_line, id
	`
	rows, err := q.QueryContext(ctx, query, filePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entities := make([]*types.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *SQLiteStore) EntitiesByFile(ctx context.Context, filePath string) ([]*types.Entity, error) {
	return s.entitiesByFileWithQuerier(ctx, s.querier(), filePath)
}

func (s *SQLiteStore) QueryEntities(ctx context.Context, filter EntityFilter) ([]*types.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE 1=1`
	args := make([]interface{}, 0, 4)

	if len(filter.Kinds) > 0 {
		placeholders := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		query += " AND kind IN (" + strings.Join(placeholders, ",") + ")"
	}
	if filter.FilePath != "" {
		query += " AND file_path = ?"
		args = append(args, filter.FilePath)
	}
	if filter.Name != "" {
		query += " AND name = ?"
		args = append(args, filter.Name)
	}
	query += " ORDER BY file_path, start_line, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entities := make([]*types.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// upsertEntityWithQuerier writes one code entity row, bumping the
// version only when the embedding text changed
func (s *SQLiteStore) upsertEntityWithQuerier(ctx context.Context, q querier, e *types.Entity, version int64) error {
	var blob []byte
	if len(e.Embedding) > 0 {
		blob = serializeVector(e.Embedding)
	}
	query := `
		INSERT INTO entities (id, kind, name, file_path, start_line, end_line, signature, docstring, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			file_path = excluded.file_path,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			signature = excluded.signature,
			docstring = excluded.docstring,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		e.ID, string(e.Kind), e.Name, e.FilePath,
		e.StartLine, e.EndLine, e.Signature, e.Docstring,
		blob, version)
	if err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", e.ID, err)
	}
	e.UpdatedAt = version
	return nil
}

// upsertPseudoWithQuerier inserts a pseudo entity if absent. Existing
// pseudo rows are left untouched so concurrent deltas converge.
func (s *SQLiteStore) upsertPseudoWithQuerier(ctx context.Context, q querier, e *types.Entity, version int64) error {
	query := `
		INSERT INTO entities (id, kind, name, file_path, start_line, end_line, signature, docstring, embedding, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, '', '', NULL, ?)
		ON CONFLICT(id) DO NOTHING
	`
	_, err := q.ExecContext(ctx, query, e.ID, string(e.Kind), e.Name, e.FilePath, version)
	if err != nil {
		return fmt.Errorf("failed to upsert pseudo entity %s: %w", e.ID, err)
	}
	return nil
}

// Edge operations

func (s *SQLiteStore) GetEdges(ctx context.Context, nodeID string, relations []types.Relation, direction types.Direction) ([]types.Edge, error) {
	return s.getEdgesWithQuerier(ctx, s.querier(), nodeID, relations, direction)
}

// getEdgesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getEdgesWithQuerier(ctx context.Context, q querier, nodeID string, relations []types.Relation, direction types.Direction) ([]types.Edge, error) {
	col := "source_id"
	if direction == types.Upstream {
		col = "target_id"
	}
	query := `SELECT source_id, relation, target_id, context FROM edges WHERE ` + col + ` = ?`
	args := []interface{}{nodeID}

	if len(relations) > 0 {
		placeholders := make([]string, len(relations))
		for i, r := range relations {
			placeholders[i] = "?"
			args = append(args, string(r))
		}
		query += " AND relation IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY relation, target_id, source_id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	edges := make([]types.Edge, 0)
	for rows.Next() {
		var e types.Edge
		var rel string
		if err := rows.Scan(&e.SourceID, &rel, &e.TargetID, &e.Context); err != nil {
			return nil, err
		}
		e.Relation = types.Relation(rel)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Embedding operations

// SetEmbedding stores a vector for an entity. The write is rejected
// when expectVersion no longer matches the stored row, meaning the
// entity changed after the vector was computed.
func (s *SQLiteStore) SetEmbedding(ctx context.Context, entityID string, vector []float32, expectVersion int64) error {
	query := `UPDATE entities SET embedding = ? WHERE id = ? AND updated_at = ?`
	result, err := s.db.ExecContext(ctx, query, serializeVector(vector), entityID, expectVersion)
	if err != nil {
		return fmt.Errorf("failed to set embedding for %s: %w", entityID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE id = ?`, entityID).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrStaleEmbedding
	}
	return nil
}

// PendingEmbeddings lists code entities that have no stored vector yet
func (s *SQLiteStore) PendingEmbeddings(ctx context.Context, limit int) ([]*types.Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM entities
		WHERE embedding IS NULL
		  AND kind IN ('function', 'method', 'class', 'module')
		ORDER BY updated_at, id
	`
	args := make([]interface{}, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entities := make([]*types.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *SQLiteStore) SemanticSearch(ctx context.Context, vector []float32, limit int) ([]VectorResult, error) {
	return searchVector(ctx, s.db, vector, limit)
}

// Skeleton cache operations

func (s *SQLiteStore) GetSkeleton(ctx context.Context, filePath string) (*types.SkeletonEntry, error) {
	query := `SELECT file_path, content, source_version FROM skeletons WHERE file_path = ?`
	var entry types.SkeletonEntry
	err := s.db.QueryRowContext(ctx, query, filePath).Scan(
		&entry.FilePath, &entry.Content, &entry.SourceVersion,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *SQLiteStore) PutSkeleton(ctx context.Context, entry *types.SkeletonEntry) error {
	query := `
		INSERT INTO skeletons (file_path, content, source_version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			content = excluded.content,
			source_version = excluded.source_version,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.FilePath, entry.Content, entry.SourceVersion, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to put skeleton for %s: %w", entry.FilePath, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSkeleton(ctx context.Context, filePath string) error {
	return s.deleteSkeletonWithQuerier(ctx, s.querier(), filePath)
}

// deleteSkeletonWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) deleteSkeletonWithQuerier(ctx context.Context, q querier, filePath string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM skeletons WHERE file_path = ?`, filePath)
	return err
}

// Maintenance operations

// PruneOrphanPseudos removes pseudo entities no edge references.
// Pseudo rows survive file deltas, so repeated config renames can
// leave unreferenced nodes behind.
func (s *SQLiteStore) PruneOrphanPseudos(ctx context.Context) (int, error) {
	query := `
		DELETE FROM entities
		WHERE kind IN ('attribute', 'variable', 'config', 'error')
		  AND id NOT IN (SELECT target_id FROM edges)
		  AND id NOT IN (SELECT source_id FROM edges)
	`
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{DatabaseDriver: DriverName}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entities
		WHERE kind IN ('function', 'method', 'class', 'module')
	`).Scan(&stats.EntityCount)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entities
		WHERE kind IN ('attribute', 'variable', 'config', 'error')
	`).Scan(&stats.PseudoCount)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges").Scan(&stats.EdgeCount)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM skeletons").Scan(&stats.SkeletonCount)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE embedding IS NOT NULL").Scan(&stats.EmbeddedCount)
	if err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return stats, nil
}
