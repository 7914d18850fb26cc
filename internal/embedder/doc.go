// Package embedder generates vector embeddings for code entities.
//
// Three providers implement the Embedder interface:
//
//   - openai: the OpenAI embeddings API via the official-compatible
//     client, endpoint overridable for compatible servers
//   - ollama: a local Ollama instance over HTTP
//   - hash: a deterministic feature-hash embedder requiring no model,
//     used in tests and as the offline fallback
//
// Provider selection is explicit through Config or environment-driven
// through NewFromEnv. All providers share an LRU cache keyed by the
// SHA-256 of the input text and retry transient failures with
// exponential backoff.
//
// Queue is the asynchronous consumer: entity ids are enqueued by the
// update coordinator, embedded in batches by a single worker, and the
// vectors written back with the entity version captured at read time.
// The store rejects vectors whose entity changed in the meantime; the
// queue drops those and moves on.
package embedder
