package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"decant/internal/driver"
	"decant/internal/ui"
)

type translateOutcome struct {
	results []*driver.Result
	err     error
}

// runWithUI translates files while a progress model renders on stderr.
func runWithUI(ctx context.Context, title string, files []string, opts driver.Options) ([]*driver.Result, error) {
	events := make(chan driver.Event, 256)
	outcomeCh := make(chan translateOutcome, 1)

	go func() {
		o := opts
		prev := opts.Observer
		o.Observer = func(ev driver.Event) {
			if prev != nil {
				prev(ev)
			}
			events <- ev
		}
		res, err := driver.TranslateFiles(ctx, files, o)
		outcomeCh <- translateOutcome{results: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, files, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	_, uiErr := program.Run()
	if uiErr != nil {
		// keep draining so the workers never block on a full channel
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}

// translateAll runs the driver with or without the progress UI.
func translateAll(ctx context.Context, title string, files []string, opts driver.Options, mode uiMode) ([]*driver.Result, error) {
	if shouldUseTUI(mode, len(files)) {
		return runWithUI(ctx, title, files, opts)
	}
	return driver.TranslateFiles(ctx, files, opts)
}
