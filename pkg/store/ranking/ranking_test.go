package ranking

import (
	"context"
	"errors"
	"testing"

	"chatstore/pkg/store/kv"

	"github.com/stretchr/testify/require"
)

func rank(v int64) *int64 { return &v }

func TestUpdateMovesEntity(t *testing.T) {
	ctx := context.Background()
	r, err := Open(kv.NewMemory(), "by_members")
	require.NoError(t, err)

	require.NoError(t, r.Add(ctx, "alpha", 1, 1))
	require.NoError(t, r.Add(ctx, "beta", 2, 1))
	require.NoError(t, r.Add(ctx, "gamma", 3, 1))

	// equal ranks: the older entity (lower tiebreak) ranks higher
	top, err := r.Top(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, top)

	require.NoError(t, r.Update(ctx, "gamma", 3, 1, 5))
	top, err = r.Top(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"gamma", "alpha", "beta"}, top)

	n, err := r.Tree().Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestStaleOldRankLeavesDuplicate(t *testing.T) {
	ctx := context.Background()
	r, err := Open(kv.NewMemory(), "stale")
	require.NoError(t, err)
	require.NoError(t, r.Add(ctx, "alpha", 1, 2))
	// the index holds rank 2, the caller claims 1
	require.NoError(t, r.Update(ctx, "alpha", 1, 1, 3))
	top, err := r.Top(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "alpha"}, top)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	r, err := Open(kv.NewMemory(), "apply")
	require.NoError(t, err)

	require.NoError(t, r.Apply(ctx, Change{Value: "a", Tiebreak: 1}))
	top, err := r.Top(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, top)

	require.NoError(t, r.Apply(ctx, Change{Value: "a", Tiebreak: 1, New: rank(1)}))
	require.NoError(t, r.Apply(ctx, Change{Value: "b", Tiebreak: 2, New: rank(4)}))
	require.NoError(t, r.Apply(ctx, Change{Value: "a", Tiebreak: 1, Old: rank(1), New: rank(7)}))
	top, err = r.Top(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, top)

	require.NoError(t, r.Apply(ctx, Change{Value: "a", Tiebreak: 1, Old: rank(7)}))
	top, err = r.Top(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, top)
	require.NoError(t, r.Tree().Check(ctx))
}

func TestRemoveMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	r, err := Open(kv.NewMemory(), "rm")
	require.NoError(t, err)
	require.NoError(t, r.Remove(ctx, 9, 9))
}

func TestErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	r, err := Open(mem, "fail")
	require.NoError(t, err)
	boom := errors.New("disk gone")
	mem.FailWrites(boom)
	require.ErrorIs(t, r.Add(ctx, "a", 1, 1), boom)
	mem.FailWrites(nil)
	require.NoError(t, r.Add(ctx, "a", 1, 1))
	mem.FailReads(boom)
	require.ErrorIs(t, r.Update(ctx, "a", 1, 1, 2), boom)
	_, err = r.Top(ctx, 1)
	require.ErrorIs(t, err, boom)
}

func TestOpenRejectsBadName(t *testing.T) {
	_, err := Open(kv.NewMemory(), "")
	require.Error(t, err)
}
