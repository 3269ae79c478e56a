package models

import "testing"

func TestIsMember(t *testing.T) {
	c := Channel{Members: []string{"ann", "bo"}}
	if !c.IsMember("bo") {
		t.Fatalf("expected bo to be a member")
	}
	if c.IsMember("cy") {
		t.Fatalf("cy is not a member")
	}
}
