package objstore

import "fmt"

// Kind tags the three object shapes darkwiki stores, diffs and transmits.
// The numeric values double as the wire protocol's object_type byte, so
// they must not be renumbered once peers rely on them.
type Kind uint8

const (
	KindBlob Kind = iota
	KindTree
	KindCommit
)

// String names a Kind for storage headers and log output ("BLOB", "TREE",
// "COMMIT"), matching the tagged-string framing the original store used.
func (k Kind) String() string {
	switch k {
	case KindBlob:
		return "BLOB"
	case KindTree:
		return "TREE"
	case KindCommit:
		return "COMMIT"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// ParseKind recovers a Kind from its storage header name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "BLOB":
		return KindBlob, nil
	case "TREE":
		return KindTree, nil
	case "COMMIT":
		return KindCommit, nil
	default:
		return 0, fmt.Errorf("unknown object kind %q", s)
	}
}
