package keys

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// tree names end up verbatim in storage keys, so keep them to a
	// conservative alphabet
	treeNameRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)
	docKeyRegexp   = regexp.MustCompile(`^d:[0-9a-f]{32}/[0-9a-f]{32}(/[0-9a-f]{32}/[0-9a-f]{32})*$`)
	fieldKeyRegexp = regexp.MustCompile(`^d:[0-9a-f/]+#f:[0-9a-f]{32}$`)
)

func ValidateTreeName(name string) error {
	if name == "" {
		return errors.New("tree name empty")
	}
	if !treeNameRegexp.MatchString(name) {
		return fmt.Errorf("invalid tree name: %q", name)
	}
	return nil
}

func ValidateDocKey(key string) error {
	if !docKeyRegexp.MatchString(key) {
		return fmt.Errorf("invalid document key format: %q", key)
	}
	return nil
}

func ValidateFieldKey(key string) error {
	if !fieldKeyRegexp.MatchString(key) {
		return fmt.Errorf("invalid field key format: %q", key)
	}
	return nil
}
