package kv

import (
	"context"
	"path/filepath"
	"testing"

	"chatstore/pkg/store/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func openTestPebble(t *testing.T, path string, ms *metrics.Store) *Pebble {
	t.Helper()
	p, err := OpenPebble(path, PebbleOptions{Sync: true, Metrics: ms})
	require.NoError(t, err)
	return p
}

func TestPebbleReadWriteAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store")
	p := openTestPebble(t, path, nil)

	_, found, err := p.Read(ctx, []byte("absent"))
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, p.Write(ctx, []byte("a"), []byte("1")))
	require.NoError(t, p.Write(ctx, []byte("empty"), nil))
	require.NoError(t, p.ForceSync())
	require.NoError(t, p.Close())
	require.False(t, p.Ready())

	p = openTestPebble(t, path, nil)
	defer p.Close()

	v, found, err := p.Read(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("1"), v)

	// a written empty value is present, not absent
	v, found, err = p.Read(ctx, []byte("empty"))
	require.NoError(t, err)
	require.True(t, found)
	require.Empty(t, v)
}

func TestPebbleClosedStore(t *testing.T) {
	ctx := context.Background()
	p := openTestPebble(t, filepath.Join(t.TempDir(), "store"), nil)
	require.NoError(t, p.Close())
	require.Error(t, p.Write(ctx, []byte("k"), []byte("v")))
	_, _, err := p.Read(ctx, []byte("k"))
	require.Error(t, err)
}

func TestPebbleMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	ms, err := metrics.New(reg)
	require.NoError(t, err)

	p := openTestPebble(t, filepath.Join(t.TempDir(), "store"), ms)
	defer p.Close()
	require.NoError(t, reg.Register(p.Collector()))

	require.NoError(t, p.Write(ctx, []byte("k"), []byte("v")))
	_, _, err = p.Read(ctx, []byte("k"))
	require.NoError(t, err)
	_, _, err = p.Read(ctx, []byte("nope"))
	require.NoError(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(ms.KVOps.WithLabelValues("write", metrics.ResultOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(ms.KVOps.WithLabelValues("read", metrics.ResultOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(ms.KVOps.WithLabelValues("read", metrics.ResultMiss)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["pebble_wal_files"])
	require.True(t, names["chatstore_kv_operations_total"])
}
