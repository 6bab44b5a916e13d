package fuzztests

import (
	"context"
	"errors"
	"testing"
	"time"

	"decant/internal/bridge"
	"decant/internal/cparse"
	"decant/internal/driver"
	"decant/internal/source"
	"decant/internal/stdlib"
)

// translateTimeout bounds one input; exceeding it means a hang.
const translateTimeout = 5 * time.Second

func FuzzParserBuildsHIR(f *testing.F) {
	addCorpusSeeds(f)
	prov := stdlib.Builtin()
	f.Fuzz(func(t *testing.T, input []byte) {
		input = clampInput(input)
		unit, err := cparse.Parse("fuzz.c", string(input), cparse.WithTypeNames(stdlib.TypeNames(prov)...))
		if err != nil {
			var pe *cparse.Error
			if !errors.As(err, &pe) {
				t.Fatalf("parse error of type %T: %v", err, err)
			}
			return
		}
		fs := source.NewFileSet()
		id := fs.AddVirtual("fuzz.c", input)
		mod, _ := bridge.Build(unit, bridge.Options{Path: "fuzz.c", File: id, Provider: prov})
		if mod == nil {
			t.Fatal("bridge returned no module")
		}
	})
}

// FuzzTranslateNoHang runs the whole pipeline and fails on panics and on
// inputs that take longer than translateTimeout.
func FuzzTranslateNoHang(f *testing.F) {
	addCorpusSeeds(f)
	f.Add([]byte("int f(int n) { while (1) { if (n) break; } for (;;) {} }"))
	f.Add([]byte("int f(int a) { return a ? a ? a : 1 : 2; }"))
	f.Add([]byte("void f(void) { { { { { } } } } }"))

	f.Fuzz(func(t *testing.T, input []byte) {
		input = clampInput(input)
		ctx, cancel := context.WithTimeout(context.Background(), translateTimeout)
		defer cancel()

		opts := driver.DefaultOptions()
		opts.Config.Driver.Jobs = 2
		done := make(chan struct{})
		go func() {
			defer close(done)
			res, err := driver.TranslateSource(ctx, "fuzz.c", input, opts)
			if err == nil && res.Report == nil {
				t.Error("translation without a report")
			}
		}()
		select {
		case <-done:
		case <-ctx.Done():
			t.Fatalf("translation did not finish within %v for input: %q", translateTimeout, input)
		}
	})
}
