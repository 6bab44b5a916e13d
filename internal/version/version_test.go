package version

import (
	"testing"

	"github.com/fatih/color"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		in                  string
		major, minor, patch string
	}{
		{"0.4.0", "0", "4", "0"},
		{"1.2.3-dev", "1", "2", "3-dev"},
		{"2", "2", "0", "0"},
	}
	for _, tt := range tests {
		ma, mi, pa := split(tt.in)
		if ma != tt.major || mi != tt.minor || pa != tt.patch {
			t.Errorf("split(%q) = %s,%s,%s", tt.in, ma, mi, pa)
		}
	}
}

func TestPrettyWithoutColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()
	if got := Pretty(); got != Version {
		t.Errorf("Pretty() = %q, want %q", got, Version)
	}
}
