package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"decant/internal/diag"
	"decant/internal/driver"
	"decant/internal/hir"
)

var hirCmd = &cobra.Command{
	Use:   "hir <file.c>",
	Short: "Dump the lowered HIR of a C file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		// the module is only available from a fresh run
		opts.Cache = nil
		res, err := driver.TranslateFile(cmd.Context(), args[0], opts)
		if res != nil {
			if perr := printDiagnostics(cmd.ErrOrStderr(), []*driver.Result{res}, diagPretty, diag.SevInfo, os.Args[1:]); perr != nil {
				return perr
			}
		}
		if err != nil {
			if res != nil {
				return exitError{code: 1}
			}
			return err
		}
		if res.Module == nil {
			return fmt.Errorf("%s: no module produced", args[0])
		}
		return hir.Dump(cmd.OutOrStdout(), res.Module)
	},
}
