// Package diagfmt renders diagnostics for people and tools: a pretty
// form with source excerpts, JSON and SARIF 2.1.0.
package diagfmt

import (
	"path/filepath"
)

// PathMode specifies how file paths are displayed.
type PathMode uint8

const (
	// PathModeAuto uses the relative path when the file lives under the
	// working directory.
	PathModeAuto PathMode = iota
	// PathModeAbsolute always uses absolute paths.
	PathModeAbsolute
	PathModeRelative
	PathModeBasename
)

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color     bool
	Context   int8 // lines shown around the primary line
	PathMode  PathMode
	BaseDir   string // for PathModeRelative; empty means the working directory
	Width     uint8  // max excerpt width, 0 is unlimited
	ShowNotes bool
}

// JSONOpts configures JSON output of diagnostics.
type JSONOpts struct {
	IncludePositions bool
	PathMode         PathMode
	BaseDir          string
	Max              int // truncates output only, not the Bag
	IncludeNotes     bool
}

// SarifRunMeta provides metadata for SARIF output.
type SarifRunMeta struct {
	ToolName       string
	ToolVersion    string
	InvocationArgs []string
}

func formatPath(path string, mode PathMode, base string) string {
	switch mode {
	case PathModeBasename:
		return filepath.Base(path)
	case PathModeAbsolute:
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if base == "" {
		if base, err = filepath.Abs("."); err != nil {
			return path
		}
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return path
	}
	if mode == PathModeAuto && len(rel) >= 2 && rel[:2] == ".." {
		return abs
	}
	return filepath.ToSlash(rel)
}
