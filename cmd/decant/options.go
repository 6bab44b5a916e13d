package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"decant/internal/config"
	"decant/internal/driver"
)

// loadOptions reads decant.toml (from --config or the nearest one above
// the working directory) and applies the persistent flag overrides.
func loadOptions(cmd *cobra.Command) (driver.Options, error) {
	flags := cmd.Root().PersistentFlags()
	var (
		cfg config.Config
		err error
	)
	path, _ := flags.GetString("config")
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		var wd string
		if wd, err = os.Getwd(); err == nil {
			cfg, err = config.Discover(wd)
		}
	}
	if err != nil {
		return driver.Options{}, fmt.Errorf("%s: %w", config.ErrorCode(err).ID(), err)
	}

	if jobs, _ := flags.GetInt("jobs"); jobs > 0 {
		cfg.Driver.Jobs = jobs
	}
	if noCache, _ := flags.GetBool("no-cache"); noCache {
		cfg.Driver.Cache = false
	}
	maxDiags, _ := flags.GetInt("max-diagnostics")

	opts := driver.Options{Config: cfg, MaxDiagnostics: maxDiags}
	if cfg.Driver.Cache {
		cache, err := driver.OpenCache("decant")
		if err != nil {
			// a broken cache directory only costs speed
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: cache disabled: %v\n", err)
		} else {
			opts.Cache = cache
		}
	}
	return opts, nil
}
