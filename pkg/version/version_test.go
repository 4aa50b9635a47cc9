package version

import (
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Fatal("Version must not be empty")
	}
	if strings.TrimSpace(Version) != Version {
		t.Errorf("Version %q has surrounding whitespace", Version)
	}
}
