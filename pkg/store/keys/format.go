package keys

const (
	// notation dictionary for key formats:
	// d   = document path (status block)
	// f   = document field
	// m   = document field manifest
	// t   = ranking tree
	// n   = tree node
	// Path segments are fixed-width hex tokens joined by "/".
	// <...> = variable segment (e.g. <ctok>, <composite_key>)

	// document storage key formats
	DocPrefix   = "d:"   // d:<ctok>/<dtok>[/<ctok>/<dtok>...]
	SegmentSep  = "/"    // between path tokens
	FieldInfix  = "#f:"  // <doc_key>#f:<ftok>
	ManifestKey = "%s#m" // <doc_key>#m
	FieldKey    = "%s#f:%s"

	// ranking tree formats
	TreeRootKey = "t:%s:root" // t:<tree>:root
	TreeNodeKey = "t:%s:n:%s" // t:<tree>:n:<primary>/<secondary>
	TreePrefix  = "t:%s:"     // t:<tree>:

	// token width in hex characters (blake2b-128)
	TokenBytes = 16
	TokenWidth = TokenBytes * 2

	// status tags
	StatusInactive byte = 0
	StatusActive   byte = 1
)
