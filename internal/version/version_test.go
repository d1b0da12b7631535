package version

import (
	"strings"
	"testing"
)

func TestStringCarriesAllFields(t *testing.T) {
	s := String()
	for _, part := range []string{Version, GitSHA, BuildTime} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, missing %q", s, part)
		}
	}
}
