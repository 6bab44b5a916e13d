package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"decant/internal/driver"
	"decant/internal/report"
)

var translateCmd = &cobra.Command{
	Use:   "translate [flags] <file.c|dir>...",
	Short: "Translate C files into Rust",
	Long: `Translate each C file into a Rust file next to it (or into --out-dir).
Directories are searched recursively for *.c files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTranslate,
}

func init() {
	translateCmd.Flags().StringP("out-dir", "o", "", "directory for the generated .rs files")
	translateCmd.Flags().Bool("stdout", false, "print the Rust source instead of writing files")
	translateCmd.Flags().Bool("report", false, "write <name>.report.json next to each output")
	translateCmd.Flags().Bool("report-comments", false, "annotate the Rust output with report comments")
	translateCmd.Flags().String("diagnostics", "pretty", "diagnostics format (pretty|short|json|sarif)")
	translateCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out-dir")
	toStdout, _ := cmd.Flags().GetBool("stdout")
	withReport, _ := cmd.Flags().GetBool("report")
	comments, _ := cmd.Flags().GetBool("report-comments")
	timings, _ := cmd.Root().PersistentFlags().GetBool("timings")
	format, err := readDiagFormat(mustString(cmd, "diagnostics"))
	if err != nil {
		return err
	}
	mode, err := readUIMode(mustString(cmd, "ui"))
	if err != nil {
		return err
	}
	minName, _ := cmd.Root().PersistentFlags().GetString("min-severity")
	minSev, err := readMinSeverity(minName)
	if err != nil {
		return err
	}

	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if comments {
		opts.Config.Codegen.EmitReportComments = true
	}
	files, err := driver.ExpandPaths(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no C files in %v", args)
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	results, err := translateAll(cmd.Context(), "translating", files, opts, mode)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil && len(r.Diagnostics) == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.Path, r.Err)
		}
		if r.HasErrors() {
			failed++
		}
		if r.Rust == "" {
			continue
		}
		if toStdout {
			fmt.Fprint(cmd.OutOrStdout(), r.Rust)
			continue
		}
		if err := os.WriteFile(outputPath(r.Path, outDir, ".rs"), []byte(r.Rust), 0o644); err != nil {
			return fmt.Errorf("failed to write output for %s: %w", r.Path, err)
		}
		if withReport && r.Report != nil {
			if err := writeReport(outputPath(r.Path, outDir, ".report.json"), r.Report); err != nil {
				return err
			}
		}
	}

	if err := printDiagnostics(cmd.ErrOrStderr(), results, format, minSev, os.Args[1:]); err != nil {
		return err
	}
	if timings {
		if err := printTimings(cmd.ErrOrStderr(), results, format == diagJSON); err != nil {
			return err
		}
	}
	if failed > 0 {
		return exitError{code: 1}
	}
	return nil
}

func writeReport(path string, r *report.AnalysisReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := report.WriteJSON(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func mustString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag %s: %v", name, err))
	}
	return v
}
