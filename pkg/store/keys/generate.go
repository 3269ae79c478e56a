package keys

import (
	"fmt"
	"strings"
)

// documents

// GenDocKey builds the status key of a document from its path tokens,
// given as alternating collection and document tokens.
func GenDocKey(tokens []string) string {
	return DocPrefix + strings.Join(tokens, SegmentSep)
}

// GenDocPrefixes returns the status key of every document along a path,
// root first. tokens must hold an even number of entries.
func GenDocPrefixes(tokens []string) []string {
	out := make([]string, 0, len(tokens)/2)
	for i := 2; i <= len(tokens); i += 2 {
		out = append(out, GenDocKey(tokens[:i]))
	}
	return out
}

func GenFieldKey(docKey, fieldToken string) string {
	return fmt.Sprintf(FieldKey, docKey, fieldToken)
}

func GenManifestKey(docKey string) string {
	return fmt.Sprintf(ManifestKey, docKey)
}

// trees

func GenTreeRootKey(tree string) string {
	return fmt.Sprintf(TreeRootKey, tree)
}

func GenTreeNodeKey(tree, composite string) string {
	return fmt.Sprintf(TreeNodeKey, tree, composite)
}

func GenTreePrefix(tree string) string {
	return fmt.Sprintf(TreePrefix, tree)
}
