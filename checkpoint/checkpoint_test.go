package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-catalog/config"
)

const startURL = "https://shop.example.test/collections/new-in?page=1"

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	fileStore, err := OpenFileStore(filepath.Join(dir, "job"))
	require.NoError(t, err)
	sqliteStore, err := OpenSQLiteStore(ctx, filepath.Join(dir, "job.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = fileStore.Close()
		_ = sqliteStore.Close()
	})
	return map[string]Store{"file": fileStore, "sqlite": sqliteStore}
}

func TestResumeLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			job, visited, resumed, err := Resume(ctx, store, startURL)
			require.NoError(t, err)
			assert.False(t, resumed)
			assert.Empty(t, visited)
			assert.NotEmpty(t, job.ID)
			assert.Equal(t, 1, job.Runs)

			require.NoError(t, store.Append(ctx, "https://shop.example.test/products/a"))
			require.NoError(t, store.Append(ctx, "https://shop.example.test/products/b"))

			again, visited, resumed, err := Resume(ctx, store, startURL)
			require.NoError(t, err)
			assert.True(t, resumed)
			assert.Equal(t, job.ID, again.ID)
			assert.Equal(t, 2, again.Runs)
			assert.ElementsMatch(t, []string{
				"https://shop.example.test/products/a",
				"https://shop.example.test/products/b",
			}, visited)

			require.NoError(t, Finish(ctx, store, again, 7))
			loaded, err := store.LoadJob(ctx)
			require.NoError(t, err)
			assert.True(t, loaded.Finished())
			assert.Equal(t, 7, loaded.Items)

			fresh, visited, resumed, err := Resume(ctx, store, startURL)
			require.NoError(t, err)
			assert.False(t, resumed)
			assert.Empty(t, visited)
			assert.NotEqual(t, job.ID, fresh.ID)

			remaining, err := store.Visited(ctx)
			require.NoError(t, err)
			assert.Empty(t, remaining)
		})
	}
}

func TestResumeDifferentStartURL(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := Resume(ctx, store, startURL)
			require.NoError(t, err)
			require.NoError(t, store.Append(ctx, "https://shop.example.test/products/a"))

			_, visited, resumed, err := Resume(ctx, store, "https://shop.example.test/collections/sale")
			require.NoError(t, err)
			assert.False(t, resumed)
			assert.Empty(t, visited)
		})
	}
}

func TestLoadJobMissing(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.LoadJob(ctx)
			assert.ErrorIs(t, err, ErrNoJob)
		})
	}
}

func TestFileStoreSkipsTornLine(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := OpenFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "https://shop.example.test/products/a"))
	require.NoError(t, store.Close())

	f, err := os.OpenFile(filepath.Join(dir, visitedFileName), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"url":"https://shop.exa`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := OpenFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	urls, err := reopened.Visited(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example.test/products/a"}, urls)
}

func TestJobName(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "derived from start url",
			cfg:  config.Config{StartURL: "https://styleunion.in/collections/new-in-women?page=1"},
			want: "styleunion-in-collections-new-in-women",
		},
		{
			name: "explicit job id",
			cfg:  config.Config{StartURL: startURL, JobID: "Nightly Run"},
			want: "nightly-run",
		},
		{
			name: "unparseable url",
			cfg:  config.Config{StartURL: "::"},
			want: "crawl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JobName(&tt.cfg))
		})
	}
}

func TestOpenDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CheckpointBackend = config.CheckpointNone

	store, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestOpenFileBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CheckpointBackend = config.CheckpointFile
	cfg.CheckpointDir = t.TempDir()

	store, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	fs, ok := store.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(cfg.CheckpointDir, JobName(cfg)), fs.Dir())
}

func TestRedisKeys(t *testing.T) {
	store := NewRedisStore(nil, "styleunion-in")
	assert.Equal(t, "catalogscrape:styleunion-in:job", store.jobKey())
	assert.Equal(t, "catalogscrape:styleunion-in:visited", store.visitedKey())
}
