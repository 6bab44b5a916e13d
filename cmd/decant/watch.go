package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"decant/internal/driver"
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] <dir|file.c>...",
	Short: "Re-translate C files whenever they change",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringP("out-dir", "o", "", "directory for the generated .rs files")
	watchCmd.Flags().Duration("debounce", 200*time.Millisecond, "quiet period before a changed file is translated")
}

var watchLog = commonlog.GetLogger("decant.watch")

// pending collects changed files until they have been quiet for the
// debounce period.
type pending struct {
	debounce time.Duration
	seen     map[string]time.Time
}

func newPending(d time.Duration) *pending {
	return &pending{debounce: d, seen: make(map[string]time.Time)}
}

func (p *pending) touch(path string, now time.Time) { p.seen[path] = now }

// due removes and returns, sorted, the files quiet since now-debounce.
func (p *pending) due(now time.Time) []string {
	var out []string
	for path, t := range p.seen {
		if now.Sub(t) >= p.debounce {
			out = append(out, path)
			delete(p.seen, path)
		}
	}
	sort.Strings(out)
	return out
}

// relevant reports whether ev may change the translation of a C file.
func relevant(ev fsnotify.Event) bool {
	if !strings.HasSuffix(ev.Name, ".c") {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func runWatch(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out-dir")
	debounce, _ := cmd.Flags().GetDuration("debounce")
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	files, err := driver.ExpandPaths(args)
	if err != nil {
		return err
	}
	dirs := make(map[string]bool)
	for _, a := range args {
		if info, err := os.Stat(a); err == nil && info.IsDir() {
			if err := addTree(w, a, dirs); err != nil {
				return err
			}
		}
	}
	for _, f := range files {
		if d := filepath.Dir(f); !dirs[d] {
			if err := w.Add(d); err != nil {
				return fmt.Errorf("failed to watch %s: %w", d, err)
			}
			dirs[d] = true
		}
	}

	ctx := cmd.Context()
	translateChanged(ctx, cmd.ErrOrStderr(), files, outDir, opts)
	watchLog.Infof("watching %d directories", len(dirs))
	fmt.Fprintf(cmd.ErrOrStderr(), "watching %d files, press Ctrl+C to stop\n", len(files))

	queue := newPending(debounce)
	tick := time.NewTicker(max(debounce/2, 10*time.Millisecond))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(w, ev.Name, dirs); err != nil {
						watchLog.Warningf("failed to watch %s: %v", ev.Name, err)
					}
					continue
				}
			}
			if relevant(ev) {
				watchLog.Debugf("%s %s", ev.Op, ev.Name)
				queue.touch(ev.Name, time.Now())
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			watchLog.Errorf("watcher: %v", err)
		case now := <-tick.C:
			if changed := queue.due(now); len(changed) > 0 {
				translateChanged(ctx, cmd.ErrOrStderr(), changed, outDir, opts)
			}
		}
	}
}

func addTree(w *fsnotify.Watcher, root string, dirs map[string]bool) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || dirs[path] {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		dirs[path] = true
		return nil
	})
}

// translateChanged writes one status line per file to w; failures go to
// the log.
func translateChanged(ctx context.Context, w io.Writer, files []string, outDir string, opts driver.Options) {
	results, err := driver.TranslateFiles(ctx, files, opts)
	if err != nil {
		watchLog.Errorf("translation canceled: %v", err)
		return
	}
	for _, r := range results {
		if r.Err != nil {
			watchLog.Errorf("%s: %v", r.Path, r.Err)
			continue
		}
		out := outputPath(r.Path, outDir, ".rs")
		if err := os.WriteFile(out, []byte(r.Rust), 0o644); err != nil {
			watchLog.Errorf("failed to write %s: %v", out, err)
			continue
		}
		state := "translated"
		if r.Cached {
			state = "unchanged"
		}
		fmt.Fprintf(w, "%s %s %s -> %s (%d fallbacks, %.1f ms)\n",
			time.Now().Format("15:04:05"), state, r.Path, out, r.Fallbacks(), r.Timing.TotalMS)
		for _, d := range r.Diagnostics {
			watchLog.Debugf("%s: %s %s", r.Path, d.Code.ID(), d.Message)
		}
	}
}
