package avltree

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is the composite ranking key. A key ranks above another when its
// primary is higher, or when primaries tie and its secondary is lower:
// highest count first, earliest tiebreak first among equal counts.
type Key struct {
	Primary   int64
	Secondary int64
}

// String renders the key as "<primary>/<secondary>" in base 10. This is
// also the node's storage identity.
func (k Key) String() string {
	return strconv.FormatInt(k.Primary, 10) + "/" + strconv.FormatInt(k.Secondary, 10)
}

func ParseKey(s string) (Key, error) {
	p, sec, ok := strings.Cut(s, "/")
	if !ok {
		return Key{}, fmt.Errorf("avltree: key %q: missing separator", s)
	}
	primary, err := strconv.ParseInt(p, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("avltree: key %q: primary: %w", s, err)
	}
	secondary, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("avltree: key %q: secondary: %w", s, err)
	}
	return Key{Primary: primary, Secondary: secondary}, nil
}

// Compare returns +1 when a ranks above b, -1 when it ranks below, and 0
// only when both fields match.
func Compare(a, b Key) int {
	switch {
	case a.Primary > b.Primary:
		return 1
	case a.Primary < b.Primary:
		return -1
	case a.Secondary < b.Secondary:
		return 1
	case a.Secondary > b.Secondary:
		return -1
	default:
		return 0
	}
}
