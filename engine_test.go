package codegraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

const dbSource = `import os

MAX_RETRIES = 3

def connect(url):
    """Open a database connection with retries."""
    retries = MAX_RETRIES
    token = os.getenv("DB_TOKEN")
    return Driver(url, retries, token)

class Driver:
    """Database driver."""

    def __init__(self, url, retries, token):
        self.url = url

    def close(self):
        """Shut the driver down."""
        self.url = None
`

func setupEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "db.py"), []byte(dbSource), 0o644))

	e, err := New(Config{
		Root:              root,
		DBPath:            ":memory:",
		EmbeddingProvider: "hash",
		EmbeddingDim:      32,
		DebounceInterval:  20 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	require.NoError(t, e.Index(context.Background()))
	return e, root
}

func TestEngineSearch(t *testing.T) {
	e, root := setupEngine(t)

	hits, err := e.Search(context.Background(), "database connection", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, types.EntityID(types.KindFunction, filepath.Join(root, "db.py"), "connect"), hits[0].EntityID)
	assert.Contains(t, hits[0].Signature, "def connect")
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestEngineSearchEmptyQuery(t *testing.T) {
	e, _ := setupEngine(t)
	_, err := e.Search(context.Background(), "  ", 10)
	assert.Error(t, err)
}

func TestEngineEmbedsInBackground(t *testing.T) {
	e, _ := setupEngine(t)

	require.Eventually(t, func() bool {
		stats, err := e.Stats(context.Background())
		return err == nil && stats.EmbeddedCount > 0
	}, 10*time.Second, 50*time.Millisecond)
}

func TestEngineLexicalOnlyWhenEmbeddingDisabled(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "db.py"), []byte(dbSource), 0o644))

	e, err := New(Config{
		Root:              root,
		DBPath:            ":memory:",
		EmbeddingDisabled: true,
	})
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Index(context.Background()))

	hits, err := e.Search(context.Background(), "connection", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestEngineSkeleton(t *testing.T) {
	e, root := setupEngine(t)

	out, err := e.Skeleton(context.Background(), filepath.Join(root, "db.py"))
	require.NoError(t, err)

	assert.Contains(t, out, "import os")
	assert.Contains(t, out, "def connect(url):")
	assert.Contains(t, out, "Open a database connection with retries.")
	assert.Contains(t, out, "class Driver:")
	assert.NotContains(t, out, "self.url = url")
}

func TestEngineTraverse(t *testing.T) {
	e, root := setupEngine(t)
	path := filepath.Join(root, "db.py")
	connectID := types.EntityID(types.KindFunction, path, "connect")

	sub, err := e.Traverse(context.Background(), connectID, nil, types.Downstream, 1)
	require.NoError(t, err)

	targets := make(map[string]bool)
	for _, edge := range sub.Adjacency[connectID] {
		targets[edge.TargetID] = true
	}
	assert.True(t, targets[types.EntityID(types.KindClass, path, "Driver")], "constructor call edge")
	assert.True(t, targets[types.ConfigID("env", "DB_TOKEN")], "env read edge")
	assert.True(t, targets[types.ConfigID("const", "MAX_RETRIES")], "constant read edge")
}

func TestEngineTraverseClampsDepth(t *testing.T) {
	e, root := setupEngine(t)
	connectID := types.EntityID(types.KindFunction, filepath.Join(root, "db.py"), "connect")

	sub, err := e.Traverse(context.Background(), connectID, nil, types.Downstream, 99)
	require.NoError(t, err)
	assert.Equal(t, defaultMaxDepth, sub.MaxDepth)
}

func TestEngineTraverseUnknownRoot(t *testing.T) {
	e, _ := setupEngine(t)
	_, err := e.Traverse(context.Background(), "function:none.py:f", nil, types.Downstream, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngineReadWindow(t *testing.T) {
	e, root := setupEngine(t)
	path := filepath.Join(root, "db.py")
	connectID := types.EntityID(types.KindFunction, path, "connect")

	window, err := e.ReadWindow(context.Background(), connectID, 2)
	require.NoError(t, err)

	assert.Equal(t, path, window.FilePath)
	assert.LessOrEqual(t, window.StartLine, 5)
	joined := ""
	for _, line := range window.Lines {
		joined += line + "\n"
	}
	assert.Contains(t, joined, "def connect(url):")
	assert.Contains(t, joined, "return Driver(url, retries, token)")
}

func TestEngineReadWindowPseudo(t *testing.T) {
	e, _ := setupEngine(t)
	_, err := e.ReadWindow(context.Background(), types.ConfigID("env", "DB_TOKEN"), 0)
	assert.Error(t, err)
}

func TestEngineWatch(t *testing.T) {
	e, root := setupEngine(t)
	require.NoError(t, e.Watch(context.Background()))

	path := filepath.Join(root, "api.py")
	require.NoError(t, os.WriteFile(path, []byte("def handle_request(req):\n    \"\"\"Route an incoming request.\"\"\"\n    pass\n"), 0o644))

	require.Eventually(t, func() bool {
		hits, err := e.Search(context.Background(), "handle_request", 10)
		return err == nil && len(hits) > 0
	}, 10*time.Second, 50*time.Millisecond)
}

func TestConfigValidate(t *testing.T) {
	_, err := New(Config{DBPath: ":memory:"})
	assert.Error(t, err, "missing root")

	_, err = New(Config{Root: "/tmp"})
	assert.Error(t, err, "missing db path")

	_, err = New(Config{Root: "/tmp", DBPath: ":memory:", MaxDepth: -1})
	assert.Error(t, err, "negative depth")

	// Validate is a post-defaults check: a zero fusion constant is
	// rejected there, and withDefaults is what fills it for New.
	err = Config{Root: "/tmp", DBPath: ":memory:"}.Validate()
	assert.Error(t, err, "zero rrf k")
	assert.NoError(t, Config{Root: "/tmp", DBPath: ":memory:"}.withDefaults().Validate())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Root: "/tmp", DBPath: ":memory:"}.withDefaults()
	assert.Equal(t, defaultRRFK, cfg.RRFK)
	assert.Equal(t, defaultMaxDepth, cfg.MaxDepth)
	assert.Equal(t, defaultDebounce, cfg.DebounceInterval)
	assert.Equal(t, defaultWorkers, cfg.Workers)
	assert.NotNil(t, cfg.Logger)
}
