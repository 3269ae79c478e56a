package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilStoreRecordsNothing(t *testing.T) {
	var s *Store
	s.KV("read", ResultOK)
	s.CacheHit()
	s.CacheMiss()
	s.CacheFlush()
	s.CacheSize(3)
	s.Doc("write", ResultOK)
	s.Tree("t", "insert", ResultOK, 4)
}

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := New(reg)
	require.NoError(t, err)

	s.KV("read", ResultMiss)
	s.KV("read", ResultMiss)
	s.CacheHit()
	s.CacheSize(7)
	s.Tree("channels_by_members", "insert", ResultOK, 3)

	require.Equal(t, 2.0, testutil.ToFloat64(s.KVOps.WithLabelValues("read", ResultMiss)))
	require.Equal(t, 1.0, testutil.ToFloat64(s.CacheHits))
	require.Equal(t, 7.0, testutil.ToFloat64(s.CacheEntries))
	require.Equal(t, 1.0, testutil.ToFloat64(s.TreeOps.WithLabelValues("channels_by_members", "insert", ResultOK)))

	// a second registration on the same registry collides
	_, err = New(reg)
	require.Error(t, err)
}

func TestResult(t *testing.T) {
	require.Equal(t, ResultOK, Result(nil))
	require.Equal(t, ResultError, Result(errors.New("x")))
}
