package version

import (
	"strings"
	"testing"
)

func TestFull(t *testing.T) {
	full := Full()
	if !strings.Contains(full, Version) || !strings.Contains(full, Commit) {
		t.Errorf("Full() = %q, want version and commit", full)
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "mypv/"+Version) {
		t.Errorf("UserAgent() = %q, want prefix mypv/%s", ua, Version)
	}
}
