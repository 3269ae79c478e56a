package avltree

import (
	"encoding/json"
	"fmt"
)

// Node is one persisted tree node. Left and Right hold the composite keys
// of the children, empty when absent. Keys ranking higher live to the
// right, so a right-first traversal yields descending order.
type Node struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Left   string `json:"left,omitempty"`
	Right  string `json:"right,omitempty"`
	Height int    `json:"height"`

	key Key
}

func newNode(k Key, value string) *Node {
	return &Node{Key: k.String(), Value: value, Height: 0, key: k}
}

// Entry is a key/value pair returned by ranked queries.
type Entry struct {
	Key   Key
	Value string
}

func (n *Node) entry() Entry {
	return Entry{Key: n.key, Value: n.Value}
}

func (n *Node) setKey(k Key) {
	n.key = k
	n.Key = k.String()
}

func encodeNode(n *Node) ([]byte, error) {
	return json.Marshal(n)
}

func decodeNode(ref string, raw []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("%w: node %s: %v", ErrCorrupt, ref, err)
	}
	if n.Key != ref {
		return nil, fmt.Errorf("%w: node stored under %s carries key %q", ErrCorrupt, ref, n.Key)
	}
	k, err := ParseKey(n.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	n.key = k
	return &n, nil
}
