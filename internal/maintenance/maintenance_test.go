package maintenance

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLeaseExclusion(t *testing.T) {
	dir := t.TempDir()
	a := NewFileLease(dir, "check")
	b := NewFileLease(dir, "check")

	ok, err := a.Acquire("a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire("b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, b.Release("b"), ErrNotOwner)
	require.ErrorIs(t, b.Renew("b", time.Minute), ErrNotOwner)
	require.NoError(t, a.Renew("a", time.Minute))
	require.NoError(t, a.Release("a"))

	ok, err = b.Acquire("b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExpiredLeaseIsTakenOver(t *testing.T) {
	dir := t.TempDir()
	a := NewFileLease(dir, "check")
	b := NewFileLease(dir, "check")
	base := time.Now()
	a.now = func() time.Time { return base }
	b.now = func() time.Time { return base.Add(2 * time.Minute) }

	ok, err := a.Acquire("a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = b.Acquire("b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.ErrorIs(t, a.Release("a"), ErrNotOwner)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestRunOnce(t *testing.T) {
	dir := t.TempDir()
	calls := 0
	s, err := New("check", "* * * * *", time.Minute, dir, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.RunOnce(context.Background()))
	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, 2, calls)
	require.Equal(t, 2, s.Runs())

	// another holder blocks the run
	other := NewFileLease(dir, "check")
	ok, err := other.Acquire("someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, 2, calls)
}

func TestRunOnceReturnsJobError(t *testing.T) {
	boom := errors.New("tree corrupt")
	s, err := New("check", "0 0 * * *", time.Minute, t.TempDir(), func(context.Context) error { return boom })
	require.NoError(t, err)
	require.ErrorIs(t, s.RunOnce(context.Background()), boom)
	// the lease is released even on failure
	require.ErrorIs(t, s.RunOnce(context.Background()), boom)
}

func TestInvalidCron(t *testing.T) {
	_, err := New("check", "whenever", time.Minute, t.TempDir(), func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestStartStops(t *testing.T) {
	s, err := New("check", "0 0 1 1 *", time.Minute, t.TempDir(), func(context.Context) error { return nil })
	require.NoError(t, err)
	stop := s.Start(context.Background())
	stop()
	require.Equal(t, 0, s.Runs())
}
