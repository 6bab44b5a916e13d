package version

import (
	"strings"

	"github.com/fatih/color"
)

// These can be overridden at build time via -ldflags.
var (
	// Version is the plain semantic version, used for config constraints and cache keys.
	Version = "0.4.0"

	GitCommit = ""
	BuildDate = ""
)

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
)

// Pretty returns Version with each component coloured (when colour is enabled).
func Pretty() string {
	major, minor, patch := split(Version)
	return majorColor.Sprint(major) + "." + minorColor.Sprint(minor) + "." + patchColor.Sprint(patch)
}

func split(v string) (major, minor, patch string) {
	parts := append(strings.SplitN(v, ".", 3), "0", "0")
	return parts[0], parts[1], parts[2]
}
