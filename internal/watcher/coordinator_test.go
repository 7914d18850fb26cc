package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstanner5216/codegraph-mcp/internal/extractor"
	"github.com/itstanner5216/codegraph-mcp/internal/lexical"
	"github.com/itstanner5216/codegraph-mcp/internal/storage"
	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

type recordingEmbedder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingEmbedder) Enqueue(ids ...string) {
	r.mu.Lock()
	r.ids = append(r.ids, ids...)
	r.mu.Unlock()
}

func (r *recordingEmbedder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.ids...)
}

type fixture struct {
	root  string
	store storage.Store
	lex   *lexical.Index
	embed *recordingEmbedder
	coord *Coordinator
}

func setupCoordinator(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	parser := extractor.New(extractor.DefaultRules(), nil)
	t.Cleanup(parser.Close)

	f := &fixture{
		root:  t.TempDir(),
		store: store,
		lex:   lexical.New(),
		embed: &recordingEmbedder{},
	}
	f.coord = NewCoordinator(store, parser, f.lex, f.embed, CoordinatorOptions{
		Debounce: 20 * time.Millisecond,
		Workers:  2,
	})
	t.Cleanup(f.coord.Close)
	return f
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f *fixture) entityCount(t *testing.T, path string) int {
	t.Helper()
	entities, err := f.store.EntitiesByFile(context.Background(), path)
	require.NoError(t, err)
	return len(entities)
}

// count is the non-failing variant for Eventually conditions.
func (f *fixture) count(path string) int {
	entities, err := f.store.EntitiesByFile(context.Background(), path)
	if err != nil {
		return -1
	}
	return len(entities)
}

const moduleSource = `def connect(url):
    """Open a connection."""
    return url

def close(conn):
    pass
`

func TestNotifyIndexesFile(t *testing.T) {
	f := setupCoordinator(t)
	path := f.write(t, "db.py", moduleSource)

	f.coord.Notify(path)
	require.Eventually(t, func() bool {
		return f.count(path) > 0
	}, 5*time.Second, 10*time.Millisecond)

	entities, err := f.store.EntitiesByFile(context.Background(), path)
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, e := range entities {
		names[e.Name] = true
	}
	assert.True(t, names["connect"])
	assert.True(t, names["close"])

	// Added entities reached the embedding queue.
	assert.NotEmpty(t, f.embed.all())

	// And the lexical index.
	matches := f.lex.Search("connection", 10)
	require.NotEmpty(t, matches)
}

func TestNotifyIgnoresNonPython(t *testing.T) {
	f := setupCoordinator(t)
	path := f.write(t, "notes.txt", "connect")

	f.coord.Notify(path)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, f.entityCount(t, path))
}

func TestNotifyDebounces(t *testing.T) {
	f := setupCoordinator(t)
	path := f.write(t, "db.py", moduleSource)

	for i := 0; i < 10; i++ {
		f.coord.Notify(path)
	}
	require.Eventually(t, func() bool {
		return f.count(path) > 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestModificationProducesDelta(t *testing.T) {
	f := setupCoordinator(t)
	path := f.write(t, "db.py", moduleSource)

	f.coord.Notify(path)
	require.Eventually(t, func() bool {
		return f.count(path) > 0
	}, 5*time.Second, 10*time.Millisecond)
	before := f.entityCount(t, path)

	f.write(t, "db.py", moduleSource+"\ndef ping():\n    pass\n")
	f.coord.Notify(path)
	require.Eventually(t, func() bool {
		return f.count(path) == before+1
	}, 5*time.Second, 10*time.Millisecond)

	id := types.EntityID(types.KindFunction, path, "ping")
	_, err := f.store.GetEntity(context.Background(), id)
	assert.NoError(t, err)
}

func TestRemovalClearsEverything(t *testing.T) {
	f := setupCoordinator(t)
	path := f.write(t, "db.py", moduleSource)

	f.coord.Notify(path)
	require.Eventually(t, func() bool {
		return f.count(path) > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	f.coord.Notify(path)
	require.Eventually(t, func() bool {
		return f.count(path) == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Empty(t, f.lex.Search("connection", 10))
	_, err := f.store.GetSkeleton(context.Background(), path)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInitialScan(t *testing.T) {
	f := setupCoordinator(t)
	f.write(t, "a.py", "def fa():\n    pass\n")
	f.write(t, "b.py", "def fb():\n    pass\n")
	f.write(t, "readme.md", "not python")

	sub := filepath.Join(f.root, "__pycache__")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.py"), []byte("def fc():\n    pass\n"), 0o644))

	require.NoError(t, f.coord.InitialScan(context.Background(), f.root, nil))

	assert.Greater(t, f.entityCount(t, filepath.Join(f.root, "a.py")), 0)
	assert.Greater(t, f.entityCount(t, filepath.Join(f.root, "b.py")), 0)
	assert.Equal(t, 0, f.entityCount(t, filepath.Join(sub, "c.py")))
}

func TestRunConsumesChannel(t *testing.T) {
	f := setupCoordinator(t)
	path := f.write(t, "db.py", moduleSource)

	changes := make(chan FileChange, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.coord.Run(ctx, changes)

	changes <- FileChange{Path: path, Op: OpWrite, Time: time.Now()}
	require.Eventually(t, func() bool {
		return f.count(path) > 0
	}, 5*time.Second, 10*time.Millisecond)
}

// gatedStore wraps a real store so a test can hold one delta write
// open while tracking pass counts and overlap across passes.
type gatedStore struct {
	storage.Store

	entered chan struct{}
	release chan struct{}

	mu       sync.Mutex
	passes   int
	inFlight int
	overlap  bool
}

func (g *gatedStore) ApplyDelta(ctx context.Context, filePath string, entities []*types.Entity, edges []types.Edge) (*types.Delta, error) {
	g.mu.Lock()
	g.passes++
	g.inFlight++
	if g.inFlight > 1 {
		g.overlap = true
	}
	first := g.passes == 1
	g.mu.Unlock()

	if first {
		g.entered <- struct{}{}
		<-g.release
	}

	delta, err := g.Store.ApplyDelta(ctx, filePath, entities, edges)

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return delta, err
}

func (g *gatedStore) passCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.passes
}

func (g *gatedStore) overlapped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.overlap
}

func TestRerunWhileProcessingCoalesces(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	gate := &gatedStore{
		Store:   store,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	parser := extractor.New(extractor.DefaultRules(), nil)
	t.Cleanup(parser.Close)

	coord := NewCoordinator(gate, parser, lexical.New(), &recordingEmbedder{}, CoordinatorOptions{
		Debounce: 5 * time.Millisecond,
		Workers:  2,
	})
	t.Cleanup(coord.Close)

	root := t.TempDir()
	path := filepath.Join(root, "db.py")
	require.NoError(t, os.WriteFile(path, []byte(moduleSource), 0o644))

	coord.Notify(path)
	<-gate.entered // the first pass is inside the store write

	// Changes arriving mid-pass coalesce into exactly one rerun.
	coord.Notify(path)
	coord.Notify(path)
	coord.Notify(path)
	close(gate.release)

	require.Eventually(t, func() bool {
		return gate.passCount() == 2
	}, 5*time.Second, 10*time.Millisecond)

	// No third pass follows, and the two passes never overlapped.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, gate.passCount())
	assert.False(t, gate.overlapped())

	entities, err := store.EntitiesByFile(context.Background(), path)
	require.NoError(t, err)
	assert.NotEmpty(t, entities)
}
