package docs

import (
	"encoding/json"
	"fmt"

	"chatstore/pkg/store/keys"
)

// encodeField frames an already-marshaled payload as an active field.
func encodeField(payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = keys.StatusActive
	copy(out[1:], payload)
	return out
}

var inactiveBlock = []byte{keys.StatusInactive}
var activeBlock = []byte{keys.StatusActive}

// decodeField splits a stored field into its status and payload.
func decodeField(raw []byte) (active bool, payload []byte, err error) {
	if len(raw) == 0 {
		return false, nil, fmt.Errorf("%w: empty field record", ErrCorrupt)
	}
	switch raw[0] {
	case keys.StatusActive:
		return true, raw[1:], nil
	case keys.StatusInactive:
		return false, nil, nil
	default:
		return false, nil, fmt.Errorf("%w: unknown status tag %d", ErrCorrupt, raw[0])
	}
}

// decodeStatus reads a path status block.
func decodeStatus(raw []byte) (bool, error) {
	if len(raw) != 1 {
		return false, fmt.Errorf("%w: status block of %d bytes", ErrCorrupt, len(raw))
	}
	switch raw[0] {
	case keys.StatusActive:
		return true, nil
	case keys.StatusInactive:
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown status tag %d", ErrCorrupt, raw[0])
	}
}

func encodeManifest(fields []string) ([]byte, error) {
	return json.Marshal(fields)
}

func decodeManifest(raw []byte) ([]string, error) {
	var fields []string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: field manifest: %v", ErrCorrupt, err)
	}
	return fields, nil
}
