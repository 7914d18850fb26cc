// Package storage provides SQLite-based persistence for the code graph.
//
// The storage layer manages:
//   - Entities (functions, methods, classes, modules, pseudo nodes)
//   - Typed edges between entities
//   - Vector embeddings stored inline on entity rows
//   - The skeleton cache
//
// # Database Schema
//
// Tables:
//   - entities: one row per entity; pseudo entities have no file attribution
//   - edges: (source_id, relation, target_id) triples with provenance
//   - skeletons: compressed file outlines keyed by file path
//
// # Delta Writes
//
// All indexing writes go through ApplyDelta, which replaces every
// entity and edge attributed to one file in a single transaction and
// reports what changed:
//
//	delta, err := store.ApplyDelta(ctx, "app/db.py", entities, edges)
//	if err != nil {
//	    return err
//	}
//	for _, id := range delta.Added {
//	    queue.Enqueue(id)
//	}
//
// Deltas for the same file are serialized internally; deltas for
// different files proceed independently. Readers never observe a
// half-applied file.
//
// # Embeddings
//
// Vectors are written back asynchronously. Each write carries the
// entity version it was computed against and is rejected with
// ErrStaleEmbedding if the entity changed in the meantime:
//
//	err := store.SetEmbedding(ctx, id, vec, entity.UpdatedAt)
//	if errors.Is(err, storage.ErrStaleEmbedding) {
//	    // a newer delta re-enqueued the entity, drop this vector
//	}
//
// # Vector Search
//
// SemanticSearch ranks embedded entities by cosine similarity. The
// sqlite_vec build computes distances in SQL via the sqlite-vec
// extension; the purego build deserializes vectors and ranks in Go.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Includes sqlite-vec extension for fast vector operations
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - Pure Go vector operations (slower)
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build
package storage
