package avltree

import "testing"

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b Key
		want int
	}{
		{Key{3, 0}, Key{1, 0}, 1},
		{Key{1, 0}, Key{3, 0}, -1},
		{Key{3, 0}, Key{3, 1}, 1},
		{Key{3, 1}, Key{3, 0}, -1},
		{Key{3, 1}, Key{3, 1}, 0},
		{Key{-1, 5}, Key{-2, 0}, 1},
	}
	for _, c := range cases {
		if got := Compare(c.a, c.b); got != c.want {
			t.Fatalf("Compare(%s, %s) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestKeyStringParse(t *testing.T) {
	cases := []struct {
		key  Key
		text string
	}{
		{Key{0, 0}, "0/0"},
		{Key{12, 3}, "12/3"},
		{Key{-4, 9000000000}, "-4/9000000000"},
	}
	for _, c := range cases {
		if got := c.key.String(); got != c.text {
			t.Fatalf("String() = %q, want %q", got, c.text)
		}
		parsed, err := ParseKey(c.text)
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", c.text, err)
		}
		if parsed != c.key {
			t.Fatalf("ParseKey(%q) = %v, want %v", c.text, parsed, c.key)
		}
	}
	for _, bad := range []string{"", "1", "a/1", "1/b", "1/2/3", "1 /2"} {
		if _, err := ParseKey(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
