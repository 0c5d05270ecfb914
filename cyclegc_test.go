// ABOUTME: Tests for the root cyclegc package
// ABOUTME: Checks the version constant is a usable semantic version

package cyclegc_test

import (
	"strings"
	"testing"

	"github.com/prateek/cyclegc"
)

func TestVersion(t *testing.T) {
	if cyclegc.Version == "" {
		t.Error("Version constant should not be empty")
	}
	if !strings.HasPrefix(cyclegc.Version, "0.") {
		t.Errorf("Version should start with %q, got %q", "0.", cyclegc.Version)
	}
}
