package main

import (
	"encoding/json"
	"fmt"
	"io"

	"decant/internal/driver"
)

func printTimings(out io.Writer, results []*driver.Result, asJSON bool) error {
	if asJSON {
		payloads := make([]driver.TimingPayload, 0, len(results))
		for _, r := range results {
			payloads = append(payloads, driver.Timings("translate", r.Path, r.Timing))
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payloads)
	}
	for _, r := range results {
		tag := ""
		if r.Cached {
			tag = " (cached)"
		}
		if _, err := fmt.Fprintf(out, "%s%s: %.1f ms\n", r.Path, tag, r.Timing.TotalMS); err != nil {
			return err
		}
		for _, p := range r.Timing.Phases {
			line := fmt.Sprintf("  %-10s %8.2f ms", p.Name, p.DurationMS)
			if p.Note != "" {
				line += "  // " + p.Note
			}
			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
		}
	}
	return nil
}
