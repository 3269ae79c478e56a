// Package ranking keeps a ranked index in step with the entities it ranks.
// A rank change is always a delete of the old composite key followed by an
// insert of the new one; the tiebreak stays fixed for the entity's life.
package ranking

import (
	"context"
	"fmt"

	"chatstore/pkg/state/logger"
	"chatstore/pkg/store/avltree"
	"chatstore/pkg/store/kv"
)

type Ranking struct {
	tree *avltree.Tree
}

func New(tree *avltree.Tree) *Ranking {
	return &Ranking{tree: tree}
}

// Open returns the ranking backed by the tree called name.
func Open(store kv.Store, name string, opts ...avltree.Option) (*Ranking, error) {
	tree, err := avltree.New(store, name, opts...)
	if err != nil {
		return nil, err
	}
	return New(tree), nil
}

func (r *Ranking) Name() string { return r.tree.Name() }

// Tree exposes the underlying index for diagnostics.
func (r *Ranking) Tree() *avltree.Tree { return r.tree }

// Update moves value from (oldRank, tiebreak) to (newRank, tiebreak). The
// caller must hold the entity's lock and pass the rank the index holds.
func (r *Ranking) Update(ctx context.Context, value string, tiebreak, oldRank, newRank int64) error {
	if err := r.tree.Delete(ctx, avltree.Key{Primary: oldRank, Secondary: tiebreak}); err != nil {
		return fmt.Errorf("ranking %s: remove %d/%d: %w", r.Name(), oldRank, tiebreak, err)
	}
	if err := r.tree.Insert(ctx, avltree.Key{Primary: newRank, Secondary: tiebreak}, value); err != nil {
		return fmt.Errorf("ranking %s: insert %d/%d: %w", r.Name(), newRank, tiebreak, err)
	}
	logger.Debug("ranking_updated", "ranking", r.Name(), "value", value, "old", oldRank, "new", newRank)
	return nil
}

func (r *Ranking) Add(ctx context.Context, value string, tiebreak, rank int64) error {
	if err := r.tree.Insert(ctx, avltree.Key{Primary: rank, Secondary: tiebreak}, value); err != nil {
		return fmt.Errorf("ranking %s: insert %d/%d: %w", r.Name(), rank, tiebreak, err)
	}
	return nil
}

func (r *Ranking) Remove(ctx context.Context, tiebreak, rank int64) error {
	if err := r.tree.Delete(ctx, avltree.Key{Primary: rank, Secondary: tiebreak}); err != nil {
		return fmt.Errorf("ranking %s: remove %d/%d: %w", r.Name(), rank, tiebreak, err)
	}
	return nil
}

// Top returns the k highest ranked values.
func (r *Ranking) Top(ctx context.Context, k int) ([]string, error) {
	return r.tree.TopK(ctx, k)
}

// Change describes one entity's move in the index. A nil Old is a fresh
// insertion, a nil New a removal.
type Change struct {
	Value    string
	Tiebreak int64
	Old      *int64
	New      *int64
}

func (r *Ranking) Apply(ctx context.Context, c Change) error {
	switch {
	case c.Old == nil && c.New == nil:
		return nil
	case c.Old == nil:
		return r.Add(ctx, c.Value, c.Tiebreak, *c.New)
	case c.New == nil:
		return r.Remove(ctx, c.Tiebreak, *c.Old)
	default:
		return r.Update(ctx, c.Value, c.Tiebreak, *c.Old, *c.New)
	}
}
