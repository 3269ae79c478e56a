// Package kv defines the byte store every other storage layer is built on:
// point reads and point writes of byte values keyed by bytes. There is no
// delete, no batch and no scan.
package kv

import (
	"context"
	"errors"
)

var ErrEmptyKey = errors.New("kv: empty key")

// Store is the backing store contract. Read reports absence with
// found=false and a nil error. Returned slices belong to the caller.
type Store interface {
	Read(ctx context.Context, key []byte) (value []byte, found bool, err error)
	Write(ctx context.Context, key, value []byte) error
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
