package stdlib

import (
	"testing"
)

func TestBuiltinClasses(t *testing.T) {
	p := Builtin()
	tests := []struct {
		name string
		want Class
	}{
		{"malloc", ClassAlloc},
		{"calloc", ClassCalloc},
		{"realloc", ClassRealloc},
		{"free", ClassFree},
		{"printf", ClassFormat},
		{"pthread_mutex_lock", ClassLock},
		{"mtx_unlock", ClassUnlock},
		{"fork", ClassFork},
		{"execvp", ClassExec},
		{"waitpid", ClassWait},
		{"strlen", ClassNonEscaping},
		{"no_such_function", ClassUnknown},
	}
	for _, tt := range tests {
		if got := p.Class(tt.name); got != tt.want {
			t.Errorf("Class(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestHeaderLookup(t *testing.T) {
	p := Builtin()
	protos := p.Header("sys/wait.h")
	if len(protos) != 2 {
		t.Fatalf("expected 2 prototypes in sys/wait.h, got %d", len(protos))
	}
	printf, ok := p.Lookup("printf")
	if !ok || !printf.Variadic || printf.Header != "stdio.h" {
		t.Errorf("unexpected printf prototype: %+v", printf)
	}
	if sig := printf.Signature(); sig.Kind.String() != "fnptr" {
		t.Errorf("expected a function pointer signature, got %s", sig)
	}
}

func TestTypeNamesIncludeSizeT(t *testing.T) {
	names := TypeNames(Builtin())
	found := false
	for _, n := range names {
		if n == "size_t" {
			found = true
		}
	}
	if !found {
		t.Error("size_t missing from builtin typedef names")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("typedef names not sorted: %q before %q", names[i-1], names[i])
		}
	}
}

func TestNonEscaping(t *testing.T) {
	if ClassUnknown.NonEscaping() || ClassFree.NonEscaping() {
		t.Error("unknown and free calls must not be treated as non-escaping")
	}
	if !ClassFormat.NonEscaping() || !ClassLock.NonEscaping() {
		t.Error("format and lock calls are non-escaping")
	}
}
