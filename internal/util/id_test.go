package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	a := NewID("v_")
	b := NewID("v_")
	if !strings.HasPrefix(a, "v_") {
		t.Errorf("missing prefix: %q", a)
	}
	if a == b {
		t.Error("consecutive IDs must differ")
	}
	if len(a) != 2+32 {
		t.Errorf("unexpected length %d for %q", len(a), a)
	}
}
