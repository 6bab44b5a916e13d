package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"decant/internal/driver"
	"decant/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] <file.c|dir>...",
	Short: "Print the analysis report and the unsafe audit",
	Long: `Analyze C files without writing Rust. The report lists ownership
decisions, lifetimes, lock bindings and detected patterns per function;
the audit lists every construct that stays unsafe.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().Bool("json", false, "print the reports as JSON")
	analyzeCmd.Flags().Bool("reasoning", false, "include the reasoning of every ownership decision")
	analyzeCmd.Flags().Bool("audit-only", false, "print only the unsafe audit")
	analyzeCmd.Flags().Bool("fail-on-fallback", false, "exit with status 2 when any fallback was emitted")
	analyzeCmd.Flags().String("diagnostics", "pretty", "diagnostics format (pretty|short|json|sarif)")
	analyzeCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	reasoning, _ := cmd.Flags().GetBool("reasoning")
	auditOnly, _ := cmd.Flags().GetBool("audit-only")
	failOnFallback, _ := cmd.Flags().GetBool("fail-on-fallback")
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
	files, err := driver.ExpandPaths(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no C files in %v", args)
	}

	results, err := translateAll(cmd.Context(), "analyzing", files, opts, mode)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	reports := make([]*report.AnalysisReport, 0, len(results))
	failed, fallbacks := 0, 0
	for _, r := range results {
		if r.HasErrors() {
			failed++
		}
		if r.Err != nil && len(r.Diagnostics) == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.Path, r.Err)
		}
		if r.Report == nil {
			continue
		}
		reports = append(reports, r.Report)
		fallbacks += r.Fallbacks()
	}

	switch {
	case asJSON:
		if err := report.WriteJSON(out, reports); err != nil {
			return err
		}
	default:
		if !auditOnly {
			for _, r := range reports {
				if err := report.WriteText(out, r, report.TextOpts{Reasoning: reasoning}); err != nil {
					return err
				}
				fmt.Fprintln(out)
			}
		}
		if err := report.WriteAudit(out, reports); err != nil {
			return err
		}
	}

	if err := printDiagnostics(cmd.ErrOrStderr(), results, format, minSev, os.Args[1:]); err != nil {
		return err
	}
	if timings {
		if err := printTimings(cmd.ErrOrStderr(), results, asJSON); err != nil {
			return err
		}
	}
	if failed > 0 {
		return exitError{code: 1}
	}
	if failOnFallback && fallbacks > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d fallbacks emitted\n", fallbacks)
		return exitError{code: 2}
	}
	return nil
}
