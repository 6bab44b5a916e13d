package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"decant/internal/diag"
	"decant/internal/diagfmt"
	"decant/internal/driver"
	"decant/internal/version"
)

type diagFormat string

const (
	diagPretty diagFormat = "pretty"
	diagShort  diagFormat = "short"
	diagJSON   diagFormat = "json"
	diagSarif  diagFormat = "sarif"
)

func readDiagFormat(value string) (diagFormat, error) {
	switch f := diagFormat(strings.ToLower(value)); f {
	case diagPretty, diagShort, diagJSON, diagSarif:
		return f, nil
	default:
		return "", fmt.Errorf("invalid --diagnostics value %q (expected pretty|short|json|sarif)", value)
	}
}

func readMinSeverity(value string) (diag.Severity, error) {
	sev, ok := diag.ParseSeverity(value)
	if !ok {
		return diag.SevInfo, fmt.Errorf("invalid --min-severity value %q (expected info|warning|error)", value)
	}
	return sev, nil
}

// atLeast returns copies of results whose diagnostics are below min removed.
func atLeast(results []*driver.Result, min diag.Severity) []*driver.Result {
	if min == diag.SevInfo {
		return results
	}
	out := make([]*driver.Result, 0, len(results))
	for _, r := range results {
		kept := make([]diag.Diagnostic, 0, len(r.Diagnostics))
		for _, d := range r.Diagnostics {
			if d.Severity >= min {
				kept = append(kept, d)
			}
		}
		c := *r
		c.Diagnostics = kept
		out = append(out, &c)
	}
	return out
}

// printDiagnostics renders the diagnostics of every result at or above min.
func printDiagnostics(w io.Writer, results []*driver.Result, format diagFormat, min diag.Severity, args []string) error {
	results = atLeast(results, min)
	switch format {
	case diagSarif:
		units := make([]diagfmt.Unit, 0, len(results))
		for _, r := range results {
			units = append(units, diagfmt.Unit{Items: r.Diagnostics, Files: r.Files})
		}
		return diagfmt.Sarif(w, units, diagfmt.SarifRunMeta{
			ToolName:       "decant",
			ToolVersion:    version.Version,
			InvocationArgs: args,
		})
	case diagJSON:
		var all diagfmt.DiagnosticsOutput
		for _, r := range results {
			out := diagfmt.BuildDiagnosticsOutput(r.Diagnostics, r.Files, diagfmt.JSONOpts{IncludePositions: true, IncludeNotes: true})
			all.Diagnostics = append(all.Diagnostics, out.Diagnostics...)
		}
		all.Count = len(all.Diagnostics)
		return writeJSON(w, all)
	case diagShort:
		for _, r := range results {
			if _, err := io.WriteString(w, diag.FormatShort(r.Diagnostics, r.Files, false)); err != nil {
				return err
			}
		}
		return nil
	default:
		opts := diagfmt.PrettyOpts{
			Color:     !color.NoColor,
			Context:   0,
			PathMode:  diagfmt.PathModeAuto,
			ShowNotes: true,
		}
		for _, r := range results {
			if len(r.Diagnostics) == 0 {
				continue
			}
			diagfmt.PrettyItems(w, r.Diagnostics, r.Files, opts)
			fmt.Fprintln(w)
		}
		return nil
	}
}

// outputPath maps input.c to input.rs, inside dir when given.
func outputPath(input, dir, ext string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ext
	if dir == "" {
		return filepath.Join(filepath.Dir(input), base)
	}
	return filepath.Join(dir, base)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
