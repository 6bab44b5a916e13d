package fuzztests

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

const (
	maxSeedBytes = 64 << 10
	maxFuzzInput = 16 << 10
)

// builtinSeeds covers every construct family the translator recognises.
var builtinSeeds = []string{
	"",
	"int main(void) { return 0; }\n",
	"#include <stdlib.h>\nint f(void) { int *p = malloc(sizeof(int)); *p = 1; int r = *p; free(p); return r; }\n",
	"#include <stdlib.h>\nvoid g(int n) { char *p = malloc(n); free(p); free(p); }\n",
	"int find(int *arr, int len, int key) { for (int i = 0; i < len; i++) if (arr[i] == key) return i; return -1; }\n",
	"struct node { int v; struct node *next; };\nint sum(struct node *n) { int s = 0; while (n) { s += n->v; n = n->next; } return s; }\n",
	"#include <pthread.h>\npthread_mutex_t m; int x;\nvoid inc(void) { pthread_mutex_lock(&m); x++; pthread_mutex_unlock(&m); }\n",
	"#include <stdio.h>\nint main(void) { printf(\"%5.2f %-3d %s %%\\n\", 1.5, 2, \"x\"); return 0; }\n",
	"int div(int a, int b, int *out) { if (b == 0) return -1; *out = a / b; return 0; }\n",
	"#define N 16\ntypedef struct { int a[N]; } box;\nint first(box *b) { return b->a[0]; }\n",
	"int bad(int x) { if (x) goto out; return 0; out: return 1; }\n",
	"enum color { RED, GREEN = 4, BLUE };\nint f(enum color c) { switch (c) { case RED: return 1; default: break; } return 0; }\n",
	"int f(void) { int a[3] = {1, 2, 3}; struct { int x, y; } p = { .x = 1, .y = 2 }; return a[1] + p.y; }\n",
	"const char *pick(const char *a, const char *b, int c) { return c ? a : b; }\n",
}

func addCorpusSeeds(f *testing.F) {
	for _, s := range builtinSeeds {
		f.Add([]byte(s))
	}
	addTestdataSeeds(f)
}

// addTestdataSeeds adds every *.c file under the repository testdata
// directory when there is one.
func addTestdataSeeds(f *testing.F) {
	root := filepath.Join("..", "..", "testdata")
	if _, err := os.Stat(root); err != nil {
		return
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || filepath.Ext(path) != ".c" {
			return nil
		}
		// #nosec G304 -- path comes from repository testdata walk
		src, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		f.Add(clampSeed(src))
		return nil
	})
}

func clampSeed(src []byte) []byte {
	if len(src) <= maxSeedBytes {
		return append([]byte(nil), src...)
	}
	return append([]byte(nil), src[:maxSeedBytes]...)
}

func clampInput(input []byte) []byte {
	if len(input) > maxFuzzInput {
		input = input[:maxFuzzInput]
	}
	return append([]byte(nil), input...)
}
