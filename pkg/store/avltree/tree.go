// Package avltree is an order-statistics index persisted in a kv.Store.
// Every node lives under its own composite key; child links are composite
// keys too, and a single root slot names the current root. Nothing is kept
// in memory between operations: each traversal step is a fresh read.
//
// Nodes touched by an insert or delete are written back one by one as the
// recursion unwinds, so a failed write can leave a partially applied
// mutation behind. Callers serialize mutations per tree; the Tree handle
// itself serializes Insert and Delete issued through it.
//
// Every mutation rewrites each node on its search path, so one insert or
// delete costs O(log n) node writes plus the root slot. The store has no
// delete, and node records are never reclaimed: removing a node leaves its
// record behind, and a node with two children takes its successor's key,
// which leaves the record under the old key unreachable. Storage grows
// with the number of distinct keys ever inserted, not with Len.
package avltree

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chatstore/pkg/state/logger"
	"chatstore/pkg/store/keys"
	"chatstore/pkg/store/kv"
	"chatstore/pkg/store/metrics"
)

var (
	ErrCorrupt   = errors.New("avltree: corrupt tree")
	ErrInvariant = errors.New("avltree: invariant violated")
)

// Tree is a handle on one named ranking tree.
type Tree struct {
	store   kv.Store
	name    string
	rootKey []byte

	mu      sync.Mutex
	metrics *metrics.Store
}

type Option func(*Tree)

func WithMetrics(ms *metrics.Store) Option {
	return func(t *Tree) { t.metrics = ms }
}

// New returns a handle on the tree called name. Two handles with the same
// name over the same store see the same tree.
func New(store kv.Store, name string, opts ...Option) (*Tree, error) {
	if err := keys.ValidateTreeName(name); err != nil {
		return nil, err
	}
	t := &Tree{
		store:   store,
		name:    name,
		rootKey: []byte(keys.GenTreeRootKey(name)),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

func (t *Tree) Name() string { return t.name }

// Insert stores value under key, overwriting the value if key is already
// present, and rebalances the path back to the root.
func (t *Tree) Insert(ctx context.Context, key Key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	o := t.newOp(ctx)
	err := o.insertRoot(key, value)
	t.metrics.Tree(t.name, "insert", metrics.Result(err), o.reads)
	if err != nil {
		logger.Error("tree_insert_failed", "tree", t.name, "key", key.String(), "error", err)
	}
	return err
}

func (o *op) insertRoot(key Key, value string) error {
	root, err := o.root()
	if err != nil {
		return err
	}
	newRoot, err := o.insert(root, key, value)
	if err != nil {
		return err
	}
	return o.setRoot(newRoot)
}

func (o *op) insert(ref string, key Key, value string) (string, error) {
	if ref == "" {
		n := newNode(key, value)
		if err := o.save(n); err != nil {
			return "", err
		}
		return n.Key, nil
	}
	n, err := o.load(ref)
	if err != nil {
		return "", err
	}
	switch c := Compare(key, n.key); {
	case c == 0:
		n.Value = value
		if err := o.save(n); err != nil {
			return "", err
		}
		return n.Key, nil
	case c > 0:
		n.Right, err = o.insert(n.Right, key, value)
	default:
		n.Left, err = o.insert(n.Left, key, value)
	}
	if err != nil {
		return "", err
	}
	return o.rebalance(n)
}

// Delete removes key. A missing key is a no-op and writes nothing.
func (t *Tree) Delete(ctx context.Context, key Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	o := t.newOp(ctx)
	err := o.deleteRoot(key)
	t.metrics.Tree(t.name, "delete", metrics.Result(err), o.reads)
	if err != nil {
		logger.Error("tree_delete_failed", "tree", t.name, "key", key.String(), "error", err)
	}
	return err
}

func (o *op) deleteRoot(key Key) error {
	root, err := o.root()
	if err != nil {
		return err
	}
	_, found, err := o.search(root, key)
	if err != nil || !found {
		return err
	}
	newRoot, err := o.delete(root, key)
	if err != nil {
		return err
	}
	return o.setRoot(newRoot)
}

func (o *op) delete(ref string, key Key) (string, error) {
	if ref == "" {
		return "", nil
	}
	n, err := o.load(ref)
	if err != nil {
		return "", err
	}
	switch c := Compare(key, n.key); {
	case c > 0:
		if n.Right, err = o.delete(n.Right, key); err != nil {
			return "", err
		}
	case c < 0:
		if n.Left, err = o.delete(n.Left, key); err != nil {
			return "", err
		}
	default:
		if n.Left == "" {
			return n.Right, nil
		}
		if n.Right == "" {
			return n.Left, nil
		}
		succ, err := o.leftmost(n.Right)
		if err != nil {
			return "", err
		}
		// the node takes over the successor's identity; its old record
		// becomes unreachable garbage
		o.forget(n.Key)
		n.setKey(succ.key)
		n.Value = succ.Value
		if n.Right, err = o.delete(n.Right, succ.key); err != nil {
			return "", err
		}
	}
	return o.rebalance(n)
}

// Search returns the value stored under key.
func (t *Tree) Search(ctx context.Context, key Key) (string, bool, error) {
	o := t.newOp(ctx)
	root, err := o.root()
	if err != nil {
		return "", false, err
	}
	n, found, err := o.search(root, key)
	t.metrics.Tree(t.name, "search", metrics.Result(err), o.reads)
	if err != nil || !found {
		return "", false, err
	}
	return n.Value, true, nil
}

func (o *op) search(ref string, key Key) (*Node, bool, error) {
	for ref != "" {
		n, err := o.load(ref)
		if err != nil {
			return nil, false, err
		}
		switch c := Compare(key, n.key); {
		case c == 0:
			return n, true, nil
		case c > 0:
			ref = n.Right
		default:
			ref = n.Left
		}
	}
	return nil, false, nil
}

// TopK returns at most k values in descending key order.
func (t *Tree) TopK(ctx context.Context, k int) ([]string, error) {
	entries, err := t.TopKEntries(ctx, k)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out, nil
}

// TopKEntries is TopK with the keys attached.
func (t *Tree) TopKEntries(ctx context.Context, k int) ([]Entry, error) {
	o := t.newOp(ctx)
	out, err := o.topK(k)
	t.metrics.Tree(t.name, "topk", metrics.Result(err), o.reads)
	return out, err
}

// topK walks right subtree, node, left subtree with an explicit stack so
// it can stop as soon as k entries are collected.
func (o *op) topK(k int) ([]Entry, error) {
	out := []Entry{}
	if k <= 0 {
		return out, nil
	}
	cur, err := o.root()
	if err != nil {
		return nil, err
	}
	var stack []*Node
	for (cur != "" || len(stack) > 0) && len(out) < k {
		for cur != "" {
			n, err := o.load(cur)
			if err != nil {
				return nil, err
			}
			stack = append(stack, n)
			cur = n.Right
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n.entry())
		cur = n.Left
	}
	return out, nil
}

func (o *op) leftmost(ref string) (*Node, error) {
	n, err := o.load(ref)
	if err != nil {
		return nil, err
	}
	for n.Left != "" {
		if n, err = o.load(n.Left); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// rebalance recomputes n's height, applies whichever of the four AVL
// rotations the balance factors call for, persists every node it changed
// and returns the key of the subtree's new root.
func (o *op) rebalance(n *Node) (string, error) {
	if err := o.fixHeight(n); err != nil {
		return "", err
	}
	bf, err := o.balance(n)
	if err != nil {
		return "", err
	}
	switch {
	case bf > 1:
		l, err := o.load(n.Left)
		if err != nil {
			return "", err
		}
		lbf, err := o.balance(l)
		if err != nil {
			return "", err
		}
		if lbf < 0 {
			// left-right
			if n.Left, err = o.rotateLeft(l); err != nil {
				return "", err
			}
		}
		return o.rotateRight(n)
	case bf < -1:
		r, err := o.load(n.Right)
		if err != nil {
			return "", err
		}
		rbf, err := o.balance(r)
		if err != nil {
			return "", err
		}
		if rbf > 0 {
			// right-left
			if n.Right, err = o.rotateRight(r); err != nil {
				return "", err
			}
		}
		return o.rotateLeft(n)
	default:
		if err := o.save(n); err != nil {
			return "", err
		}
		return n.Key, nil
	}
}

// rotateRight lifts n's left child into n's place. The child's right
// subtree becomes n's left subtree.
func (o *op) rotateRight(n *Node) (string, error) {
	l, err := o.load(n.Left)
	if err != nil {
		return "", err
	}
	n.Left = l.Right
	if err := o.fixHeight(n); err != nil {
		return "", err
	}
	if err := o.save(n); err != nil {
		return "", err
	}
	l.Right = n.Key
	if err := o.fixHeight(l); err != nil {
		return "", err
	}
	if err := o.save(l); err != nil {
		return "", err
	}
	return l.Key, nil
}

func (o *op) rotateLeft(n *Node) (string, error) {
	r, err := o.load(n.Right)
	if err != nil {
		return "", err
	}
	n.Right = r.Left
	if err := o.fixHeight(n); err != nil {
		return "", err
	}
	if err := o.save(n); err != nil {
		return "", err
	}
	r.Left = n.Key
	if err := o.fixHeight(r); err != nil {
		return "", err
	}
	if err := o.save(r); err != nil {
		return "", err
	}
	return r.Key, nil
}

func (o *op) fixHeight(n *Node) error {
	lh, err := o.height(n.Left)
	if err != nil {
		return err
	}
	rh, err := o.height(n.Right)
	if err != nil {
		return err
	}
	n.Height = 1 + max(lh, rh)
	return nil
}

func (o *op) balance(n *Node) (int, error) {
	lh, err := o.height(n.Left)
	if err != nil {
		return 0, err
	}
	rh, err := o.height(n.Right)
	if err != nil {
		return 0, err
	}
	return lh - rh, nil
}

func (o *op) height(ref string) (int, error) {
	if ref == "" {
		return -1, nil
	}
	n, err := o.load(ref)
	if err != nil {
		return 0, err
	}
	return n.Height, nil
}

// op carries the per-call state of one tree operation: the nodes already
// read or written during the call, and a read counter for metrics.
type op struct {
	t     *Tree
	ctx   context.Context
	nodes map[string]*Node
	reads int
}

func (t *Tree) newOp(ctx context.Context) *op {
	return &op{t: t, ctx: ctx, nodes: make(map[string]*Node)}
}

func (o *op) root() (string, error) {
	raw, found, err := o.t.store.Read(o.ctx, o.t.rootKey)
	if err != nil {
		return "", fmt.Errorf("avltree %s: read root: %w", o.t.name, err)
	}
	if !found || len(raw) == 0 {
		return "", nil
	}
	ref := string(raw)
	if _, err := ParseKey(ref); err != nil {
		return "", fmt.Errorf("%w: root slot of %s: %v", ErrCorrupt, o.t.name, err)
	}
	return ref, nil
}

func (o *op) setRoot(ref string) error {
	if err := o.t.store.Write(o.ctx, o.t.rootKey, []byte(ref)); err != nil {
		return fmt.Errorf("avltree %s: write root: %w", o.t.name, err)
	}
	return nil
}

func (o *op) load(ref string) (*Node, error) {
	if n, ok := o.nodes[ref]; ok {
		return n, nil
	}
	o.reads++
	raw, found, err := o.t.store.Read(o.ctx, []byte(keys.GenTreeNodeKey(o.t.name, ref)))
	if err != nil {
		return nil, fmt.Errorf("avltree %s: read node %s: %w", o.t.name, ref, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s references missing node %s", ErrCorrupt, o.t.name, ref)
	}
	n, err := decodeNode(ref, raw)
	if err != nil {
		return nil, err
	}
	o.nodes[ref] = n
	return n, nil
}

func (o *op) save(n *Node) error {
	raw, err := encodeNode(n)
	if err != nil {
		return err
	}
	if err := o.t.store.Write(o.ctx, []byte(keys.GenTreeNodeKey(o.t.name, n.Key)), raw); err != nil {
		return fmt.Errorf("avltree %s: write node %s: %w", o.t.name, n.Key, err)
	}
	o.nodes[n.Key] = n
	return nil
}

func (o *op) forget(ref string) {
	delete(o.nodes, ref)
}
