package driver

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// forEach runs fn for every index below n on at most jobs goroutines.
// Callers write results into per-index slots, so no mutex is needed.
func forEach(ctx context.Context, jobs, n int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, n))
	for i := range n {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

// ListCFiles returns the sorted *.c files under dir.
func ListCFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".c") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ExpandPaths replaces directories with the C files they contain.
func ExpandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		files, err := ListCFiles(p)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", p, err)
		}
		out = append(out, files...)
	}
	return out, nil
}

// TranslateFiles translates every path in parallel. A file that fails
// to read or parse is reported in its Result and does not stop the
// others; the returned error is reserved for cancellation.
func TranslateFiles(ctx context.Context, paths []string, opts Options) ([]*Result, error) {
	results := make([]*Result, len(paths))
	for _, p := range paths {
		opts.Observer.emit(Event{File: p, Stage: StageQueued})
	}
	err := forEach(ctx, opts.Config.Driver.Jobs, len(paths), func(ctx context.Context, i int) error {
		res, err := TranslateFile(ctx, paths[i], opts)
		if res == nil {
			res = &Result{Path: paths[i]}
		}
		res.Err = err
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
