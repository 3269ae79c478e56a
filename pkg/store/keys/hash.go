package keys

import (
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
)

const DefaultTokenCacheSize = 4096

// Hasher turns segment and field names into fixed-width tokens. Tokens are
// the hex form of a 128-bit BLAKE2b digest, memoized in a bounded LRU.
type Hasher struct {
	memo *lru.Cache[string, string]
}

// NewHasher returns a hasher memoizing up to size names. size <= 0
// disables the memo.
func NewHasher(size int) *Hasher {
	h := &Hasher{}
	if size > 0 {
		// lru.New only fails on a non-positive size
		h.memo, _ = lru.New[string, string](size)
	}
	return h
}

// Token returns the hex token for name.
func (h *Hasher) Token(name string) string {
	if h.memo != nil {
		if tok, ok := h.memo.Get(name); ok {
			return tok
		}
	}
	tok := token(name)
	if h.memo != nil {
		h.memo.Add(name, tok)
	}
	return tok
}

func token(name string) string {
	d, err := blake2b.New(TokenBytes, nil)
	if err != nil {
		// unreachable: the size is a valid constant and no key is used
		panic(err)
	}
	d.Write([]byte(name))
	return hex.EncodeToString(d.Sum(nil))
}

var defaultHasher = NewHasher(DefaultTokenCacheSize)

// Token hashes name with the package default hasher.
func Token(name string) string {
	return defaultHasher.Token(name)
}
