package avltree

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"chatstore/pkg/store/cache"
	"chatstore/pkg/store/keys"
	"chatstore/pkg/store/kv"
	"chatstore/pkg/store/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T, store kv.Store) *Tree {
	t.Helper()
	tr, err := New(store, "test_tree")
	require.NoError(t, err)
	return tr
}

func TestTopKScenario(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, kv.NewMemory())

	require.NoError(t, tr.Insert(ctx, Key{1, 0}, "A"))
	require.NoError(t, tr.Insert(ctx, Key{3, 0}, "B"))
	require.NoError(t, tr.Insert(ctx, Key{3, 1}, "C"))

	top, err := tr.TopK(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C", "A"}, top)

	top, err = tr.TopK(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C"}, top)

	top, err = tr.TopK(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, top)
}

func TestEmptyTree(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, kv.NewMemory())

	top, err := tr.TopK(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, top)

	_, found, err := tr.Search(ctx, Key{1, 1})
	require.NoError(t, err)
	require.False(t, found)

	h, err := tr.Height(ctx)
	require.NoError(t, err)
	require.Equal(t, -1, h)

	require.NoError(t, tr.Delete(ctx, Key{1, 1}))
	require.NoError(t, tr.Check(ctx))
}

func TestDeleteMissingWritesNothing(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	tr := newTestTree(t, mem)
	require.NoError(t, tr.Insert(ctx, Key{5, 0}, "x"))
	writes := mem.Writes()
	require.NoError(t, tr.Delete(ctx, Key{6, 0}))
	require.Equal(t, writes, mem.Writes())
}

func TestInsertOverwritesValue(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, kv.NewMemory())
	require.NoError(t, tr.Insert(ctx, Key{2, 2}, "old"))
	require.NoError(t, tr.Insert(ctx, Key{2, 2}, "new"))
	v, found, err := tr.Search(ctx, Key{2, 2})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "new", v)
	n, err := tr.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSequentialInsertStaysBalanced(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, kv.NewMemory())
	for i := 0; i < 127; i++ {
		require.NoError(t, tr.Insert(ctx, Key{int64(i), 0}, fmt.Sprint(i)))
		require.NoError(t, tr.Check(ctx))
	}
	h, err := tr.Height(ctx)
	require.NoError(t, err)
	// a perfectly balanced tree of 127 nodes has height 6
	require.LessOrEqual(t, h, 8)

	top, err := tr.TopK(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"126", "125", "124"}, top)
}

func TestRotationCases(t *testing.T) {
	// each sequence triggers one of the four single/double rotations at
	// the root
	cases := map[string][]int64{
		"right-right": {1, 2, 3},
		"left-left":   {3, 2, 1},
		"left-right":  {3, 1, 2},
		"right-left":  {1, 3, 2},
	}
	for name, seq := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tr := newTestTree(t, kv.NewMemory())
			for _, p := range seq {
				require.NoError(t, tr.Insert(ctx, Key{p, 0}, fmt.Sprint(p)))
			}
			require.NoError(t, tr.Check(ctx))
			h, err := tr.Height(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, h)
			top, err := tr.TopK(ctx, 10)
			require.NoError(t, err)
			require.Equal(t, []string{"3", "2", "1"}, top)
		})
	}
}

func TestDeleteCases(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, kv.NewMemory())
	for _, p := range []int64{50, 30, 70, 20, 40, 60, 80, 35, 45, 65} {
		require.NoError(t, tr.Insert(ctx, Key{p, 0}, fmt.Sprint(p)))
	}
	require.NoError(t, tr.Check(ctx))

	// leaf, one child, two children, root
	for _, p := range []int64{20, 60, 40, 50} {
		require.NoError(t, tr.Delete(ctx, Key{p, 0}))
		require.NoError(t, tr.Check(ctx), "after deleting %d", p)
		_, found, err := tr.Search(ctx, Key{p, 0})
		require.NoError(t, err)
		require.False(t, found, "%d still found", p)
	}
	top, err := tr.TopK(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"80", "70", "65", "45", "35", "30"}, top)
}

func TestDeletedRecordsAreNotReclaimed(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	tr := newTestTree(t, mem)
	for _, p := range []int64{20, 10, 30} {
		require.NoError(t, tr.Insert(ctx, Key{p, 0}, fmt.Sprint(p)))
	}
	require.Equal(t, 4, mem.Len(), "three nodes and the root slot")

	// the root has two children and takes over its successor's key
	require.NoError(t, tr.Delete(ctx, Key{20, 0}))
	require.NoError(t, tr.Check(ctx))
	_, found, err := tr.Search(ctx, Key{20, 0})
	require.NoError(t, err)
	require.False(t, found)
	n, err := tr.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Equal(t, 4, mem.Len())
	_, found, err = mem.Read(ctx, []byte(keys.GenTreeNodeKey("test_tree", Key{20, 0}.String())))
	require.NoError(t, err)
	require.True(t, found, "old record stays in the store")
}

func TestRandomOperationsMatchModel(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	tr := newTestTree(t, kv.NewMemory())
	model := map[Key]string{}

	for i := 0; i < 600; i++ {
		k := Key{Primary: int64(rng.Intn(25)), Secondary: int64(rng.Intn(6))}
		if rng.Intn(3) == 0 {
			require.NoError(t, tr.Delete(ctx, k))
			delete(model, k)
		} else {
			v := fmt.Sprintf("v%d", i)
			require.NoError(t, tr.Insert(ctx, k, v))
			model[k] = v
		}
		if i%25 == 0 {
			require.NoError(t, tr.Check(ctx), "step %d", i)
		}
	}
	require.NoError(t, tr.Check(ctx))

	for k, v := range model {
		got, found, err := tr.Search(ctx, k)
		require.NoError(t, err)
		require.True(t, found, "missing %s", k)
		require.Equal(t, v, got)
	}

	want := make([]Key, 0, len(model))
	for k := range model {
		want = append(want, k)
	}
	sort.Slice(want, func(i, j int) bool { return Compare(want[i], want[j]) > 0 })

	entries, err := tr.TopKEntries(ctx, len(model)+5)
	require.NoError(t, err)
	require.Len(t, entries, len(model))
	for i, e := range entries {
		require.Equal(t, want[i], e.Key)
		require.Equal(t, model[e.Key], e.Value)
		if i > 0 {
			require.Equal(t, 1, Compare(entries[i-1].Key, e.Key), "not strictly descending at %d", i)
		}
	}

	for _, k := range []int{1, 5, len(model) / 2} {
		top, err := tr.TopKEntries(ctx, k)
		require.NoError(t, err)
		require.Equal(t, entries[:k], top)
	}

	n, err := tr.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, len(model), n)
}

func TestDeleteEverything(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, kv.NewMemory())
	for i := 0; i < 40; i++ {
		require.NoError(t, tr.Insert(ctx, Key{int64(i % 7), int64(i)}, fmt.Sprint(i)))
	}
	for i := 39; i >= 0; i-- {
		require.NoError(t, tr.Delete(ctx, Key{int64(i % 7), int64(i)}))
		require.NoError(t, tr.Check(ctx))
	}
	top, err := tr.TopK(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, top)
}

func TestTreesAreIsolatedByName(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	a, err := New(mem, "a")
	require.NoError(t, err)
	b, err := New(mem, "b")
	require.NoError(t, err)

	require.NoError(t, a.Insert(ctx, Key{1, 0}, "in-a"))
	top, err := b.TopK(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, top)

	// a second handle on the same name sees the same tree
	a2, err := New(mem, "a")
	require.NoError(t, err)
	top, err = a2.TopK(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"in-a"}, top)
}

func TestInvalidTreeName(t *testing.T) {
	_, err := New(kv.NewMemory(), "bad name")
	require.Error(t, err)
}

func TestPersistsAcrossPebbleReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store")
	p, err := kv.OpenPebble(path, kv.PebbleOptions{Sync: true})
	require.NoError(t, err)
	tr := newTestTree(t, p)
	for i := 0; i < 20; i++ {
		require.NoError(t, tr.Insert(ctx, Key{int64(i), 0}, fmt.Sprint(i)))
	}
	require.NoError(t, tr.Delete(ctx, Key{19, 0}))
	require.NoError(t, p.Close())

	p, err = kv.OpenPebble(path, kv.PebbleOptions{Sync: true})
	require.NoError(t, err)
	defer p.Close()
	tr = newTestTree(t, p)
	require.NoError(t, tr.Check(ctx))
	top, err := tr.TopK(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"18", "17", "16"}, top)
}

func TestCorruptNode(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	tr := newTestTree(t, mem)
	require.NoError(t, tr.Insert(ctx, Key{1, 0}, "a"))

	require.NoError(t, mem.Write(ctx, []byte(keys.GenTreeNodeKey("test_tree", "1/0")), []byte("{not json")))
	_, err := tr.TopK(ctx, 1)
	require.ErrorIs(t, err, ErrCorrupt)
	require.ErrorIs(t, tr.Insert(ctx, Key{2, 0}, "b"), ErrCorrupt)

	require.NoError(t, mem.Write(ctx, []byte(keys.GenTreeRootKey("test_tree")), []byte("9/9")))
	_, _, err = tr.Search(ctx, Key{9, 9})
	require.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, mem.Write(ctx, []byte(keys.GenTreeRootKey("test_tree")), []byte("garbage")))
	_, err = tr.TopK(ctx, 1)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestCheckDetectsImbalance(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	tr := newTestTree(t, mem)

	// hand-build a degenerate chain 1 -> 2 -> 3 with correct heights
	write := func(n *Node) {
		raw, err := encodeNode(n)
		require.NoError(t, err)
		require.NoError(t, mem.Write(ctx, []byte(keys.GenTreeNodeKey("test_tree", n.Key)), raw))
	}
	write(&Node{Key: "3/0", Value: "3", Height: 0})
	write(&Node{Key: "2/0", Value: "2", Right: "3/0", Height: 1})
	write(&Node{Key: "1/0", Value: "1", Right: "2/0", Height: 2})
	require.NoError(t, mem.Write(ctx, []byte(keys.GenTreeRootKey("test_tree")), []byte("1/0")))

	require.ErrorIs(t, tr.Check(ctx), ErrInvariant)
}

func TestBackendFailurePropagates(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	tr := newTestTree(t, mem)
	boom := errors.New("io error")
	mem.FailWrites(boom)
	require.ErrorIs(t, tr.Insert(ctx, Key{1, 0}, "a"), boom)
	mem.FailWrites(nil)
	mem.FailReads(boom)
	_, err := tr.TopK(ctx, 1)
	require.ErrorIs(t, err, boom)
}

func TestConcurrentInsertsThroughOneHandle(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, kv.NewMemory())
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := tr.Insert(ctx, Key{int64(i), int64(g)}, fmt.Sprintf("%d-%d", g, i)); err != nil {
					t.Error(err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, tr.Check(ctx))
	n, err := tr.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 100, n)
}

func TestUnlockedReadersThroughCacheDuringMutations(t *testing.T) {
	ctx := context.Background()
	// a small limit keeps the cache clearing while readers miss
	tr := newTestTree(t, cache.New(kv.NewMemory(), 16))
	model := map[Key]string{}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := tr.TopK(ctx, 5); err != nil {
					t.Error(err)
					return
				}
				if _, _, err := tr.Search(ctx, Key{Primary: 3, Secondary: 1}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 800; i++ {
		k := Key{Primary: int64(rng.Intn(30)), Secondary: int64(rng.Intn(5))}
		if rng.Intn(3) == 0 {
			require.NoError(t, tr.Delete(ctx, k))
			delete(model, k)
		} else {
			v := fmt.Sprintf("v%d", i)
			require.NoError(t, tr.Insert(ctx, k, v))
			model[k] = v
		}
	}
	close(stop)
	readers.Wait()

	require.NoError(t, tr.Check(ctx))
	n, err := tr.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, len(model), n)
	for k, v := range model {
		got, found, err := tr.Search(ctx, k)
		require.NoError(t, err)
		require.True(t, found, "missing %s", k)
		require.Equal(t, v, got)
	}
	entries, err := tr.TopKEntries(ctx, len(model))
	require.NoError(t, err)
	for i := 1; i < len(entries); i++ {
		require.Equal(t, 1, Compare(entries[i-1].Key, entries[i].Key), "not strictly descending at %d", i)
	}
}

func TestMetricsRecorded(t *testing.T) {
	ctx := context.Background()
	ms, err := metrics.New(nil)
	require.NoError(t, err)
	tr, err := New(kv.NewMemory(), "m", WithMetrics(ms))
	require.NoError(t, err)
	require.NoError(t, tr.Insert(ctx, Key{1, 0}, "a"))
	_, err = tr.TopK(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1.0, testutil.ToFloat64(ms.TreeOps.WithLabelValues("m", "insert", metrics.ResultOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(ms.TreeOps.WithLabelValues("m", "topk", metrics.ResultOK)))
}
