package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0600))
}

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_DefaultDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	store, err := NewConfigStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".evbench", "config.toml"), store.Path())
}

func TestNewConfigStore_WithNestedDirectory(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "nested", "deep")

	store, err := NewConfigStore(nestedPath)

	require.NoError(t, err)
	info, err := os.Stat(nestedPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	assert.Equal(t, filepath.Join(nestedPath, "config.toml"), store.Path())
}

func TestConfigStore_FlattensTables(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
[retrieval]
top_k = 5
threshold = 0.3
embedder = "remote"

[embedding]
requests_per_second = 2

[ingest]
force = true
`)

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 5, store.GetInt("retrieval.top_k"))
	assert.InDelta(t, 0.3, store.GetFloat("retrieval.threshold"), 1e-9)
	assert.Equal(t, "remote", store.GetString("retrieval.embedder"))
	assert.InDelta(t, 2.0, store.GetFloat("embedding.requests_per_second"), 1e-9)
	assert.True(t, store.GetBool("ingest.force"))

	_, ok := store.Get("retrieval")
	assert.False(t, ok, "tables are not exposed as values")
}

func TestConfigStore_TypedGettersOnMismatch(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("s", "text"))
	require.NoError(t, store.Set("n", 7))

	assert.Equal(t, "", store.GetString("n"))
	assert.Equal(t, 0, store.GetInt("s"))
	assert.Equal(t, 0.0, store.GetFloat("s"))
	assert.False(t, store.GetBool("s"))
	assert.Equal(t, 7.0, store.GetFloat("n"))
	assert.Equal(t, "", store.GetString("missing"))
}

func TestConfigStore_SetPersists(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("retrieval.cap", 10))
	require.NoError(t, store.Set("paths.index_dir", "/tmp/index"))
	require.NoError(t, store.Set("retrieval.threshold", 0.25))

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.GetInt("retrieval.cap"))
	assert.Equal(t, "/tmp/index", reloaded.GetString("paths.index_dir"))
	assert.InDelta(t, 0.25, reloaded.GetFloat("retrieval.threshold"), 1e-9)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_SetWithUnmarshallableValue(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Set("channel", make(chan int)))
}

func TestNewConfigStore_LoadCorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "this is [ not toml")

	store, err := NewConfigStore(tmpDir)

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestConfigStore_Load_CommentOnly(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "# Just a comment\n\n")

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	_, ok := store.Get("any_key")
	assert.False(t, ok)
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Set("retrieval.top_k", i)
			_ = store.GetInt("retrieval.top_k")
		}(i)
	}
	wg.Wait()

	v := store.GetInt("retrieval.top_k")
	assert.GreaterOrEqual(t, v, 0)
	assert.Less(t, v, 10)
}

func TestFlattenMap(t *testing.T) {
	got := flattenMap(map[string]any{
		"a": map[string]any{"b": 1, "c": map[string]any{"d": "x"}},
		"e": true,
	}, "")

	assert.Equal(t, map[string]any{"a.b": 1, "a.c.d": "x", "e": true}, got)
}

func TestEnvOverrides(t *testing.T) {
	got := envOverrides([]string{
		"EVBENCH_RETRIEVAL_TOP_K=4",
		"EVBENCH_PATHS_INDEX_DIR=/data/index",
		"EVBENCH_NOSECTION=1",
		"HOME=/root",
		"EVBENCH_EMBEDDING_MODEL",
	})

	assert.Equal(t, map[string]string{
		"retrieval.top_k": "4",
		"paths.index_dir": "/data/index",
	}, got)
}

func TestConfigStore_EnvironmentShadowsFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "[retrieval]\ncap = 10\nthreshold = 0.2\n")
	t.Setenv("EVBENCH_RETRIEVAL_CAP", "4")
	t.Setenv("EVBENCH_RETRIEVAL_THRESHOLD", "0.5")
	t.Setenv("EVBENCH_INGEST_FORCE", "true")

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 4, store.GetInt("retrieval.cap"))
	assert.InDelta(t, 0.5, store.GetFloat("retrieval.threshold"), 1e-9)
	assert.True(t, store.GetBool("ingest.force"))
	assert.True(t, store.Overridden("retrieval.cap"))
	assert.Contains(t, store.Keys(), "ingest.force")

	require.NoError(t, store.Set("retrieval.top_k", 2))
	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "force")
}

func TestConfigStore_SavesNestedTables(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("retrieval.cap", 10))
	require.NoError(t, store.Set("paths.chunk_dir", "chunks"))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[retrieval]")
	assert.Contains(t, string(data), "[paths]")
	assert.NotContains(t, string(data), `"retrieval.cap"`)
}

func TestConfigStore_Unset(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Set("retrieval.cap", 10))
	require.NoError(t, store.Set("retrieval.top_k", 3))

	require.NoError(t, store.Unset("retrieval.cap"))
	require.NoError(t, store.Unset("retrieval.missing"))

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	_, ok := reloaded.Get("retrieval.cap")
	assert.False(t, ok)
	assert.Equal(t, []string{"retrieval.top_k"}, reloaded.Keys())
}

func TestUnflattenMap(t *testing.T) {
	got, err := unflattenMap(map[string]any{"a.b": 1, "a.c.d": "x", "e": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": map[string]any{"b": 1, "c": map[string]any{"d": "x"}},
		"e": true,
	}, got)

	_, err = unflattenMap(map[string]any{"a": 1, "a.b": 2})
	assert.Error(t, err)
}
