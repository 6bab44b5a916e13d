package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decant/internal/cparse"
	"decant/internal/diag"
	"decant/internal/testkit"
)

func translate(t *testing.T, opts Options, lines ...string) *Result {
	t.Helper()
	res, err := TranslateSource(context.Background(), "unit.c", []byte(testkit.Lines(lines...)), opts)
	require.NoError(t, err)
	return res
}

func hasCode(diags []diag.Diagnostic, code diag.Code) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

var boxed = []string{
	"#include <stdlib.h>",
	"int area(int w, int h) {",
	"    int *p = malloc(sizeof(int));",
	"    *p = w * h;",
	"    int r = *p;",
	"    free(p);",
	"    return r;",
	"}",
}

func TestTranslateSource(t *testing.T) {
	res := translate(t, DefaultOptions(), boxed...)
	assert.Contains(t, res.Rust, "pub fn area(")
	assert.Contains(t, res.Rust, "Box::new(")
	assert.NotContains(t, res.Rust, "free(")
	assert.Zero(t, res.Fallbacks())
	require.NotNil(t, res.Report)
	require.Len(t, res.Report.Functions, 1)
	fr := res.Report.Functions[0]
	require.Len(t, fr.Decisions, 1)
	assert.Equal(t, "Box", fr.Decisions[0].Kind)
	assert.NotEmpty(t, res.Timing.Phases)
	assert.False(t, res.Cached)
}

func TestDiagnosticsFromAnalyses(t *testing.T) {
	res := translate(t, DefaultOptions(),
		"#include <stdlib.h>",
		"void twice(int n) {",
		"    char *p = malloc(n);",
		"    free(p);",
		"    free(p);",
		"}",
		"int bad(int x) {",
		"    if (x) goto out;",
		"    return 0;",
		"out:",
		"    return 1;",
		"}",
	)
	assert.True(t, hasCode(res.Diagnostics, diag.OwnDoubleFree))
	assert.True(t, hasCode(res.Diagnostics, diag.GenFallback))
	assert.True(t, hasCode(res.Diagnostics, diag.BldGoto))
	assert.True(t, res.HasErrors())
	require.Len(t, res.Report.Skipped, 1)
	assert.Equal(t, "bad", res.Report.Skipped[0].Name)
	assert.Equal(t, "BLD2003", res.Report.Skipped[0].Code)

	short := diag.FormatShort(res.Diagnostics, res.Files, false)
	assert.Contains(t, short, "unit.c:")
	assert.Contains(t, short, "OWN3001")
}

func TestSyntaxError(t *testing.T) {
	res, err := TranslateSource(context.Background(), "broken.c", []byte("int main( {\n"), DefaultOptions())
	var pe *cparse.Error
	require.True(t, errors.As(err, &pe), "err = %v", err)
	assert.Equal(t, 1, pe.Line)
	require.NotNil(t, res)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, diag.ParSyntax, res.Diagnostics[0].Code)
	assert.Empty(t, res.Rust)
}

func TestCacheRoundTrip(t *testing.T) {
	cache, err := OpenCacheAt(t.TempDir())
	require.NoError(t, err)
	opts := DefaultOptions()
	opts.Cache = cache

	first := translate(t, opts, boxed...)
	require.False(t, first.Cached)
	second := translate(t, opts, boxed...)
	require.True(t, second.Cached)
	assert.Equal(t, first.Rust, second.Rust)
	assert.Equal(t, first.Report.Summary.Functions, second.Report.Summary.Functions)
	assert.Equal(t, first.Report.Functions[0].Decisions[0].Kind, second.Report.Functions[0].Decisions[0].Kind)
	assert.Equal(t, len(first.Diagnostics), len(second.Diagnostics))
	assert.Nil(t, second.Module)

	opts.Config.Ownership.MinConfidence = 0.9
	third := translate(t, opts, boxed...)
	assert.False(t, third.Cached, "a config change must miss the cache")

	require.NoError(t, cache.DropAll())
	opts = DefaultOptions()
	opts.Cache = cache
	fourth := translate(t, opts, boxed...)
	assert.False(t, fourth.Cached, "DropAll must empty the cache")
}

func TestCacheKey(t *testing.T) {
	a := CacheKey([]byte("int x;"), "f1")
	assert.Equal(t, a, CacheKey([]byte("int x;"), "f1"))
	assert.NotEqual(t, a, CacheKey([]byte("int y;"), "f1"))
	assert.NotEqual(t, a, CacheKey([]byte("int x;"), "f2"))
	assert.Len(t, a.String(), 64)
}

func TestDeterministicAcrossJobs(t *testing.T) {
	src := []string{
		"#include <stdlib.h>",
		"#include <stdio.h>",
		"struct item { int key; struct item *next; };",
		"int total(struct item *it) {",
		"    int s = 0;",
		"    while (it) { s += it->key; it = it->next; }",
		"    return s;",
		"}",
		"int *make(int n) {",
		"    int *p = malloc(n * sizeof(int));",
		"    return p;",
		"}",
		"void twice(int n) { char *p = malloc(n); free(p); free(p); }",
		"int main(void) {",
		"    printf(\"%d\\n\", total(NULL));",
		"    return 0;",
		"}",
	}
	serial := DefaultOptions()
	serial.Config.Driver.Jobs = 1
	parallel := DefaultOptions()
	parallel.Config.Driver.Jobs = 8

	want := translate(t, serial, src...)
	for range 3 {
		got := translate(t, parallel, src...)
		require.Equal(t, want.Rust, got.Rust)
		require.Equal(t, want.Diagnostics, got.Diagnostics)
	}
}

func TestTranslateFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
		return p
	}
	write("a.c", "int add(int a, int b) { return a + b; }\n")
	write("b.c", "int broken( {\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	write(filepath.Join("sub", "c.c"), "int neg(int a) { return -a; }\n")
	write("notes.txt", "not C")

	paths, err := ExpandPaths([]string{dir})
	require.NoError(t, err)
	require.Len(t, paths, 3)

	var mu sync.Mutex
	done := make(map[string]Status)
	opts := DefaultOptions()
	opts.Observer = func(ev Event) {
		if ev.Stage == StageDone {
			mu.Lock()
			done[filepath.Base(ev.File)] = ev.Status
			mu.Unlock()
		}
	}
	results, err := TranslateFiles(context.Background(), paths, opts)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, paths[i], r.Path)
	}
	assert.NoError(t, results[0].Err)
	assert.Contains(t, results[0].Rust, "fn add(")
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.True(t, strings.HasSuffix(results[2].Path, "c.c"))

	assert.Equal(t, StatusOK, done["a.c"])
	assert.Equal(t, StatusFailed, done["b.c"])
	assert.Equal(t, StatusOK, done["c.c"])
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := TranslateFiles(ctx, []string{"a.c", "b.c"}, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}
