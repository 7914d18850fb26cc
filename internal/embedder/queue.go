package embedder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/itstanner5216/codegraph-mcp/internal/storage"
)

// QueueOptions tunes the async embedding consumer.
type QueueOptions struct {
	BatchSize  int           // ids embedded per provider call; 0 means DefaultBatchSize
	Dimension  int           // truncate vectors to this width; 0 keeps the native width
	MaxTextLen int           // skip texts longer than this many bytes; 0 means no limit
	RetryDelay time.Duration // pause before retrying after a provider failure
	Logger     *slog.Logger
}

// Queue consumes entity ids and writes embeddings back to the store
// from a single background worker. Enqueue never blocks; the ids live
// in an unbounded deduplicated backlog until the worker gets to them.
// A failed provider call leaves its ids in the backlog for retry, so
// indexing and queries are never held up by a slow or absent model.
type Queue struct {
	store  storage.Store
	emb    Embedder
	opts   QueueOptions
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	backlog []string
	queued  map[string]bool
	busy    bool
	closed  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewQueue creates and starts the embedding consumer.
func NewQueue(store storage.Store, emb Embedder, opts QueueOptions) *Queue {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		store:  store,
		emb:    emb,
		opts:   opts,
		logger: logger,
		queued: make(map[string]bool),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue schedules entities for embedding. Ids already in the backlog
// are not duplicated. Safe to call from any goroutine; never blocks.
func (q *Queue) Enqueue(ids ...string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	for _, id := range ids {
		if !q.queued[id] {
			q.queued[id] = true
			q.backlog = append(q.backlog, id)
		}
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Backlog reports how many ids are waiting.
func (q *Queue) Backlog() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Flush blocks until the backlog is empty and the worker is idle, or
// the context is canceled. Intended for tests and initial indexing.
func (q *Queue) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for (len(q.backlog) > 0 || q.busy) && !q.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return ctx.Err()
}

// Close stops the worker. Ids still in the backlog are dropped; they
// surface again through PendingEmbeddings on the next run.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
	return nil
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}

		for {
			batch := q.takeBatch()
			if len(batch) == 0 {
				break
			}
			if retry := q.process(batch); retry {
				// Provider trouble. Put the batch back and pause
				// instead of spinning against a dead endpoint.
				q.requeue(batch)
				select {
				case <-q.done:
					return
				case <-time.After(q.opts.RetryDelay):
				}
			}
			select {
			case <-q.done:
				return
			default:
			}
		}
	}
}

func (q *Queue) takeBatch() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.opts.BatchSize
	if n > len(q.backlog) {
		n = len(q.backlog)
	}
	if n == 0 {
		return nil
	}
	batch := make([]string, n)
	copy(batch, q.backlog[:n])
	q.backlog = q.backlog[n:]
	for _, id := range batch {
		delete(q.queued, id)
	}
	q.busy = true
	return batch
}

func (q *Queue) requeue(ids []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	for _, id := range ids {
		if !q.queued[id] {
			q.queued[id] = true
			q.backlog = append(q.backlog, id)
		}
	}
}

// process embeds one batch. Returns true when the batch should be
// retried after a delay.
func (q *Queue) process(ids []string) (retry bool) {
	defer func() {
		q.mu.Lock()
		q.busy = false
		q.cond.Broadcast()
		q.mu.Unlock()
	}()

	ctx := context.Background()

	type job struct {
		id      string
		text    string
		version int64
	}
	jobs := make([]job, 0, len(ids))
	for _, id := range ids {
		entity, err := q.store.GetEntity(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue // removed since it was enqueued
		}
		if err != nil {
			q.logger.Warn("embed queue: loading entity failed", "id", id, "error", err)
			continue
		}
		text := entity.EmbeddingText()
		if text == "" {
			continue
		}
		if q.opts.MaxTextLen > 0 && len(text) > q.opts.MaxTextLen {
			q.logger.Debug("embed queue: text over size threshold, skipping", "id", id, "bytes", len(text))
			continue
		}
		jobs = append(jobs, job{id: id, text: text, version: entity.UpdatedAt})
	}
	if len(jobs) == 0 {
		return false
	}

	texts := make([]string, len(jobs))
	for i, j := range jobs {
		texts[i] = j.text
	}

	resp, err := q.emb.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		q.logger.Warn("embed queue: provider call failed", "batch", len(texts), "error", err)
		return true
	}
	if len(resp.Embeddings) != len(jobs) {
		q.logger.Warn("embed queue: provider returned wrong count",
			"want", len(jobs), "got", len(resp.Embeddings))
		return true
	}

	for i, j := range jobs {
		vec := resp.Embeddings[i].Vector
		if q.opts.Dimension > 0 {
			vec = Truncate(vec, q.opts.Dimension)
		}
		err := q.store.SetEmbedding(ctx, j.id, vec, j.version)
		switch {
		case errors.Is(err, storage.ErrStaleEmbedding):
			// The entity changed after we read it. The delta that
			// changed it re-enqueued the id, so just drop this vector.
			q.logger.Debug("embed queue: stale vector discarded", "id", j.id)
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			q.logger.Warn("embed queue: storing vector failed", "id", j.id, "error", err)
		}
	}
	return false
}
