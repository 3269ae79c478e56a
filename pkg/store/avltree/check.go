package avltree

import (
	"context"
	"fmt"
)

// Walk visits every node in ascending key order. Returning an error from
// fn stops the walk with that error.
func (t *Tree) Walk(ctx context.Context, fn func(n Node) error) error {
	o := t.newOp(ctx)
	root, err := o.root()
	if err != nil {
		return err
	}
	return o.walk(root, fn)
}

func (o *op) walk(ref string, fn func(n Node) error) error {
	if ref == "" {
		return nil
	}
	n, err := o.load(ref)
	if err != nil {
		return err
	}
	if err := o.walk(n.Left, fn); err != nil {
		return err
	}
	if err := fn(*n); err != nil {
		return err
	}
	return o.walk(n.Right, fn)
}

// Len counts the reachable nodes. It reads the whole tree.
func (t *Tree) Len(ctx context.Context) (int, error) {
	count := 0
	err := t.Walk(ctx, func(Node) error {
		count++
		return nil
	})
	return count, err
}

// Height is the stored height of the root, -1 for an empty tree.
func (t *Tree) Height(ctx context.Context) (int, error) {
	o := t.newOp(ctx)
	root, err := o.root()
	if err != nil {
		return 0, err
	}
	return o.height(root)
}

// Check reads the whole tree and verifies key order, stored heights and
// AVL balance for every reachable node.
func (t *Tree) Check(ctx context.Context) error {
	o := t.newOp(ctx)
	root, err := o.root()
	if err != nil {
		return err
	}
	_, err = o.check(root, nil, nil)
	return err
}

// check returns the computed height of the subtree at ref. Every key in it
// must rank strictly between below and above.
func (o *op) check(ref string, below, above *Key) (int, error) {
	if ref == "" {
		return -1, nil
	}
	n, err := o.load(ref)
	if err != nil {
		return 0, err
	}
	if below != nil && Compare(n.key, *below) <= 0 {
		return 0, fmt.Errorf("%w: %s: node %s does not rank above %s", ErrInvariant, o.t.name, n.Key, below)
	}
	if above != nil && Compare(n.key, *above) >= 0 {
		return 0, fmt.Errorf("%w: %s: node %s does not rank below %s", ErrInvariant, o.t.name, n.Key, above)
	}
	k := n.key
	lh, err := o.check(n.Left, below, &k)
	if err != nil {
		return 0, err
	}
	rh, err := o.check(n.Right, &k, above)
	if err != nil {
		return 0, err
	}
	if h := 1 + max(lh, rh); h != n.Height {
		return 0, fmt.Errorf("%w: %s: node %s stores height %d, computed %d", ErrInvariant, o.t.name, n.Key, n.Height, h)
	}
	if bf := lh - rh; bf > 1 || bf < -1 {
		return 0, fmt.Errorf("%w: %s: node %s has balance factor %d", ErrInvariant, o.t.name, n.Key, bf)
	}
	return n.Height, nil
}
