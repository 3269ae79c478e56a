// Package docs emulates a hierarchical collection/document store on top of
// a flat kv.Store. Names are hashed into fixed-width tokens to build keys,
// and deletion is logical: every stored value carries a one-byte status
// tag, and "deleting" writes the inactive tag.
//
// Document handles stage field assignments locally. Write, Update, Read,
// Delete and Exists talk to the backing store immediately. A handle is not
// safe for concurrent use; callers serialize mutations per document.
package docs

import (
	"errors"
	"strings"

	"chatstore/pkg/store/keys"
	"chatstore/pkg/store/kv"
	"chatstore/pkg/store/metrics"
)

var (
	ErrAlreadyExists = errors.New("docs: document already exists")
	ErrEmptyWrite    = errors.New("docs: no fields staged")
	ErrCorrupt       = errors.New("docs: corrupt record")
	ErrInvalidName   = errors.New("docs: invalid name")
)

// DB is the entry point to the document store.
type DB struct {
	store   kv.Store
	hasher  *keys.Hasher
	metrics *metrics.Store
}

type Option func(*DB)

// WithHasher replaces the package default token hasher.
func WithHasher(h *keys.Hasher) Option {
	return func(db *DB) { db.hasher = h }
}

func WithMetrics(ms *metrics.Store) Option {
	return func(db *DB) { db.metrics = ms }
}

func New(store kv.Store, opts ...Option) *DB {
	db := &DB{store: store}
	for _, o := range opts {
		o(db)
	}
	if db.hasher == nil {
		db.hasher = keys.NewHasher(keys.DefaultTokenCacheSize)
	}
	return db
}

// Collection returns a handle on a top-level collection.
func (db *DB) Collection(name string) *Collection {
	return &Collection{db: db, name: name}
}

// Segment is one collection/document step of a path.
type Segment struct {
	Collection string
	Document   string
}

// Path locates a document. It is only used for logging and inspection;
// storage keys are built from hashed tokens.
type Path []Segment

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(s.Collection)
		b.WriteByte('/')
		b.WriteString(s.Document)
	}
	return b.String()
}

// Collection is a set of documents under a parent document, or at the
// root when parent is empty.
type Collection struct {
	db           *DB
	parent       Path
	parentTokens []string
	name         string
	err          error
}

func (c *Collection) Name() string { return c.name }

// Parent is the path of the document owning this collection.
func (c *Collection) Parent() Path { return c.parent }

// Document returns a handle on the named document. No I/O happens.
func (c *Collection) Document(name string) *Document {
	path := make(Path, len(c.parent), len(c.parent)+1)
	copy(path, c.parent)
	path = append(path, Segment{Collection: c.name, Document: name})

	d := &Document{
		db:     c.db,
		path:   path,
		staged: make(map[string][]byte),
		known:  make(map[string]struct{}),
	}
	if c.err != nil {
		d.err = c.err
		return d
	}
	if c.name == "" || name == "" {
		d.err = ErrInvalidName
		return d
	}
	tokens := make([]string, len(c.parentTokens), len(c.parentTokens)+2)
	copy(tokens, c.parentTokens)
	tokens = append(tokens, c.db.hasher.Token(c.name), c.db.hasher.Token(name))
	d.tokens = tokens
	d.key = keys.GenDocKey(tokens)
	return d
}
