package version

import (
	"strings"
	"testing"
)

func withBuildVars(t *testing.T, v, dirty string) {
	t.Helper()
	oldVersion, oldDirty := Version, Dirty
	Version, Dirty = v, dirty
	t.Cleanup(func() {
		Version, Dirty = oldVersion, oldDirty
	})
}

func TestString(t *testing.T) {
	tests := []struct {
		version string
		dirty   string
		want    string
	}{
		{"1.2.0", "false", "1.2.0"},
		{"1.2.0", "true", "1.2.0-dirty"},
		{"dev", "", "dev"},
	}

	for _, tt := range tests {
		withBuildVars(t, tt.version, tt.dirty)
		if got := String(); got != tt.want {
			t.Errorf("String() with version=%q dirty=%q = %q, want %q", tt.version, tt.dirty, got, tt.want)
		}
	}
}

func TestUserAgent(t *testing.T) {
	withBuildVars(t, "0.3.1", "false")

	if got := UserAgent(); got != "harvest/0.3.1" {
		t.Errorf("UserAgent() = %q, want harvest/0.3.1", got)
	}
}

func TestFull(t *testing.T) {
	withBuildVars(t, "0.3.1", "true")

	full := Full()
	for _, want := range []string{"harvest 0.3.1-dirty", "Dirty:      yes", "Go version:", "OS/Arch:"} {
		if !strings.Contains(full, want) {
			t.Errorf("Full() missing %q:\n%s", want, full)
		}
	}
}
