package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srinipal/filesearch/internal/corpus"
	"github.com/srinipal/filesearch/internal/corpus/segment"
	"github.com/srinipal/filesearch/internal/searcher/executor"
	"github.com/srinipal/filesearch/internal/searcher/ranker"
	"github.com/srinipal/filesearch/pkg/config"
	"github.com/srinipal/filesearch/pkg/metrics"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func corpusConfig(t *testing.T) config.CorpusConfig {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pets.txt"), "cat dog cat")
	writeFile(t, filepath.Join(root, "walks.txt"), "dog park")
	return config.CorpusConfig{
		Root:            root,
		Extensions:      []string{".txt"},
		SnapshotPath:    filepath.Join(t.TempDir(), "corpus.fsx"),
		ReadConcurrency: 2,
	}
}

func TestLoadCrawlsAndWritesSnapshot(t *testing.T) {
	cfg := corpusConfig(t)

	idx, err := Load(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.TotalDocs())

	fromSnapshot, err := segment.Read(cfg.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, idx.Stats(), fromSnapshot.Stats())
}

func TestLoadPrefersSnapshot(t *testing.T) {
	cfg := corpusConfig(t)
	_, err := Load(context.Background(), cfg)
	require.NoError(t, err)

	writeFile(t, filepath.Join(cfg.Root, "birds.txt"), "bird song")
	idx, err := Load(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.TotalDocs(), "snapshot wins over the changed tree")
}

func TestLoadRebuildsCorruptSnapshot(t *testing.T) {
	cfg := corpusConfig(t)
	writeFile(t, cfg.SnapshotPath, "not a snapshot")

	idx, err := Load(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.TotalDocs())
}

func TestReloaderSwapsCorpus(t *testing.T) {
	cfg := corpusConfig(t)
	idx, err := Load(context.Background(), cfg)
	require.NoError(t, err)
	exec, err := executor.New(idx, executor.WithWorkers(2))
	require.NoError(t, err)
	live := executor.NewLive(exec)
	m := metrics.New(prometheus.NewRegistry())

	r := NewReloader(live, func(ctx context.Context) (*corpus.Index, error) {
		return Rebuild(ctx, cfg)
	}, nil, nil, m)

	before, err := live.Load().Execute(context.Background(), "bird", ranker.Params{})
	require.NoError(t, err)
	assert.Equal(t, executor.OutcomeNoOverlap, before.Outcome)

	writeFile(t, filepath.Join(cfg.Root, "birds.txt"), "bird song")
	require.NoError(t, r.Reload(context.Background()))

	assert.Equal(t, 2, live.Load().Workers(), "settings survive the swap")
	after, err := live.Load().Execute(context.Background(), "bird", ranker.Params{})
	require.NoError(t, err)
	assert.Equal(t, executor.OutcomeMatched, after.Outcome)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CorpusDocuments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorpusReloadsTotal.WithLabelValues("ok")))
}

func TestReloaderKeepsCorpusOnFailure(t *testing.T) {
	cfg := corpusConfig(t)
	idx, err := Load(context.Background(), cfg)
	require.NoError(t, err)
	exec, err := executor.New(idx)
	require.NoError(t, err)
	live := executor.NewLive(exec)
	m := metrics.New(prometheus.NewRegistry())

	boom := errors.New("disk unplugged")
	r := NewReloader(live, func(context.Context) (*corpus.Index, error) { return nil, boom }, nil, nil, m)

	err = r.Reload(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Same(t, exec, live.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorpusReloadsTotal.WithLabelValues("error")))
}
