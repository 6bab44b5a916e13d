package stdlib

import (
	"sync"

	"decant/internal/hir"
)

var (
	tVoid    = hir.Void
	tInt     = hir.Int
	tLong    = hir.Long
	tDouble  = hir.Double
	tVoidP   = hir.PointerTo(hir.Void)
	tCVoidP  = hir.PointerTo(hir.Void.WithConst())
	tCharP   = hir.PointerTo(hir.Char)
	tCCharP  = hir.PointerTo(hir.Char.WithConst())
	tCharPP  = hir.PointerTo(tCharP)
	tIntP    = hir.PointerTo(hir.Int)
	tSize    = typedef("size_t")
	tSSize   = typedef("ssize_t")
	tPid     = typedef("pid_t")
	tFile    = hir.PointerTo(typedef("FILE"))
	tMutexP  = hir.PointerTo(typedef("pthread_mutex_t"))
	tRwlockP = hir.PointerTo(typedef("pthread_rwlock_t"))
	tSpinP   = hir.PointerTo(typedef("pthread_spinlock_t"))
	tMtxP    = hir.PointerTo(typedef("mtx_t"))
	tThreadP = hir.PointerTo(typedef("pthread_t"))
)

func typedef(name string) *hir.Type { return hir.Named(hir.TTypedef, name) }

func fn(header, name string, class Class, result *hir.Type, params ...*hir.Type) Prototype {
	return Prototype{Name: name, Header: header, Params: params, Result: result, Class: class}
}

func vfn(header, name string, class Class, result *hir.Type, params ...*hir.Type) Prototype {
	p := fn(header, name, class, result, params...)
	p.Variadic = true
	return p
}

func builtinPrototypes() []Prototype {
	const (
		stdio   = "stdio.h"
		stdlib  = "stdlib.h"
		str     = "string.h"
		pthread = "pthread.h"
		unistd  = "unistd.h"
		wait    = "sys/wait.h"
		threads = "threads.h"
		ctype   = "ctype.h"
		math    = "math.h"
	)
	return []Prototype{
		vfn(stdio, "printf", ClassFormat, tInt, tCCharP),
		vfn(stdio, "fprintf", ClassFormat, tInt, tFile, tCCharP),
		vfn(stdio, "sprintf", ClassFormat, tInt, tCharP, tCCharP),
		vfn(stdio, "snprintf", ClassFormat, tInt, tCharP, tSize, tCCharP),
		vfn(stdio, "scanf", ClassIO, tInt, tCCharP),
		vfn(stdio, "sscanf", ClassIO, tInt, tCCharP, tCCharP),
		fn(stdio, "puts", ClassIO, tInt, tCCharP),
		fn(stdio, "putchar", ClassIO, tInt, tInt),
		fn(stdio, "getchar", ClassIO, tInt),
		fn(stdio, "fputs", ClassIO, tInt, tCCharP, tFile),
		fn(stdio, "fputc", ClassIO, tInt, tInt, tFile),
		fn(stdio, "fgets", ClassIO, tCharP, tCharP, tInt, tFile),
		fn(stdio, "fopen", ClassUnknown, tFile, tCCharP, tCCharP),
		fn(stdio, "fclose", ClassIO, tInt, tFile),
		fn(stdio, "fread", ClassIO, tSize, tVoidP, tSize, tSize, tFile),
		fn(stdio, "fwrite", ClassIO, tSize, tCVoidP, tSize, tSize, tFile),
		fn(stdio, "fflush", ClassIO, tInt, tFile),
		fn(stdio, "perror", ClassIO, tVoid, tCCharP),

		fn(stdlib, "malloc", ClassAlloc, tVoidP, tSize),
		fn(stdlib, "calloc", ClassCalloc, tVoidP, tSize, tSize),
		fn(stdlib, "realloc", ClassRealloc, tVoidP, tVoidP, tSize),
		fn(stdlib, "free", ClassFree, tVoid, tVoidP),
		fn(stdlib, "exit", ClassNonEscaping, tVoid, tInt),
		fn(stdlib, "abort", ClassNonEscaping, tVoid),
		fn(stdlib, "atoi", ClassNonEscaping, tInt, tCCharP),
		fn(stdlib, "atol", ClassNonEscaping, tLong, tCCharP),
		fn(stdlib, "atof", ClassNonEscaping, tDouble, tCCharP),
		fn(stdlib, "strtol", ClassNonEscaping, tLong, tCCharP, tCharPP, tInt),
		fn(stdlib, "abs", ClassNonEscaping, tInt, tInt),
		fn(stdlib, "rand", ClassNonEscaping, tInt),
		fn(stdlib, "srand", ClassNonEscaping, tVoid, hir.UInt),
		fn(stdlib, "getenv", ClassNonEscaping, tCharP, tCCharP),
		fn(stdlib, "system", ClassExec, tInt, tCCharP),
		fn(stdlib, "qsort", ClassUnknown, tVoid, tVoidP, tSize, tSize, hir.PointerTo(&hir.Type{Kind: hir.TFuncPtr, Result: tInt, Params: []*hir.Type{tCVoidP, tCVoidP}})),

		fn(str, "strlen", ClassNonEscaping, tSize, tCCharP),
		fn(str, "strcmp", ClassNonEscaping, tInt, tCCharP, tCCharP),
		fn(str, "strncmp", ClassNonEscaping, tInt, tCCharP, tCCharP, tSize),
		fn(str, "strcpy", ClassNonEscaping, tCharP, tCharP, tCCharP),
		fn(str, "strncpy", ClassNonEscaping, tCharP, tCharP, tCCharP, tSize),
		fn(str, "strcat", ClassNonEscaping, tCharP, tCharP, tCCharP),
		fn(str, "strchr", ClassNonEscaping, tCharP, tCCharP, tInt),
		fn(str, "strstr", ClassNonEscaping, tCharP, tCCharP, tCCharP),
		fn(str, "strdup", ClassAlloc, tCharP, tCCharP),
		fn(str, "memcpy", ClassNonEscaping, tVoidP, tVoidP, tCVoidP, tSize),
		fn(str, "memmove", ClassNonEscaping, tVoidP, tVoidP, tCVoidP, tSize),
		fn(str, "memset", ClassNonEscaping, tVoidP, tVoidP, tInt, tSize),
		fn(str, "memcmp", ClassNonEscaping, tInt, tCVoidP, tCVoidP, tSize),

		fn(pthread, "pthread_mutex_init", ClassNonEscaping, tInt, tMutexP, tCVoidP),
		fn(pthread, "pthread_mutex_destroy", ClassNonEscaping, tInt, tMutexP),
		fn(pthread, "pthread_mutex_lock", ClassLock, tInt, tMutexP),
		fn(pthread, "pthread_mutex_trylock", ClassLock, tInt, tMutexP),
		fn(pthread, "pthread_mutex_unlock", ClassUnlock, tInt, tMutexP),
		fn(pthread, "pthread_rwlock_rdlock", ClassLock, tInt, tRwlockP),
		fn(pthread, "pthread_rwlock_wrlock", ClassLock, tInt, tRwlockP),
		fn(pthread, "pthread_rwlock_unlock", ClassUnlock, tInt, tRwlockP),
		fn(pthread, "pthread_spin_lock", ClassLock, tInt, tSpinP),
		fn(pthread, "pthread_spin_unlock", ClassUnlock, tInt, tSpinP),
		fn(pthread, "pthread_create", ClassUnknown, tInt, tThreadP, tCVoidP, tVoidP, tVoidP),
		fn(pthread, "pthread_join", ClassNonEscaping, tInt, typedef("pthread_t"), hir.PointerTo(tVoidP)),

		fn(threads, "mtx_init", ClassNonEscaping, tInt, tMtxP, tInt),
		fn(threads, "mtx_lock", ClassLock, tInt, tMtxP),
		fn(threads, "mtx_unlock", ClassUnlock, tInt, tMtxP),
		fn(threads, "mtx_destroy", ClassNonEscaping, tVoid, tMtxP),

		fn(unistd, "fork", ClassFork, tPid),
		vfn(unistd, "execl", ClassExec, tInt, tCCharP, tCCharP),
		vfn(unistd, "execlp", ClassExec, tInt, tCCharP, tCCharP),
		fn(unistd, "execv", ClassExec, tInt, tCCharP, tCharPP),
		fn(unistd, "execvp", ClassExec, tInt, tCCharP, tCharPP),
		fn(unistd, "execve", ClassExec, tInt, tCCharP, tCharPP, tCharPP),
		fn(unistd, "_exit", ClassNonEscaping, tVoid, tInt),
		fn(unistd, "getpid", ClassNonEscaping, tPid),
		fn(unistd, "sleep", ClassNonEscaping, hir.UInt, hir.UInt),
		fn(unistd, "read", ClassIO, tSSize, tInt, tVoidP, tSize),
		fn(unistd, "write", ClassIO, tSSize, tInt, tCVoidP, tSize),
		fn(unistd, "close", ClassIO, tInt, tInt),

		fn(wait, "wait", ClassWait, tPid, tIntP),
		fn(wait, "waitpid", ClassWait, tPid, tPid, tIntP, tInt),

		fn(ctype, "isdigit", ClassNonEscaping, tInt, tInt),
		fn(ctype, "isalpha", ClassNonEscaping, tInt, tInt),
		fn(ctype, "isalnum", ClassNonEscaping, tInt, tInt),
		fn(ctype, "isspace", ClassNonEscaping, tInt, tInt),
		fn(ctype, "isupper", ClassNonEscaping, tInt, tInt),
		fn(ctype, "islower", ClassNonEscaping, tInt, tInt),
		fn(ctype, "toupper", ClassNonEscaping, tInt, tInt),
		fn(ctype, "tolower", ClassNonEscaping, tInt, tInt),

		fn(math, "sqrt", ClassNonEscaping, tDouble, tDouble),
		fn(math, "pow", ClassNonEscaping, tDouble, tDouble, tDouble),
		fn(math, "fabs", ClassNonEscaping, tDouble, tDouble),
		fn(math, "floor", ClassNonEscaping, tDouble, tDouble),
		fn(math, "ceil", ClassNonEscaping, tDouble, tDouble),
		fn(math, "sin", ClassNonEscaping, tDouble, tDouble),
		fn(math, "cos", ClassNonEscaping, tDouble, tDouble),
		fn(math, "exp", ClassNonEscaping, tDouble, tDouble),
		fn(math, "log", ClassNonEscaping, tDouble, tDouble),
	}
}

func builtinTypedefs() []Typedef {
	opaque := func(name string) *hir.Type { return hir.Named(hir.TStruct, name) }
	td := func(header, name string, t *hir.Type) Typedef { return Typedef{Name: name, Header: header, Type: t} }
	i := func(k hir.TypeKind, unsigned bool) *hir.Type { return &hir.Type{Kind: k, Unsigned: unsigned} }
	return []Typedef{
		td("stddef.h", "size_t", hir.ULong),
		td("stddef.h", "ptrdiff_t", hir.Long),
		td("unistd.h", "ssize_t", hir.Long),
		td("unistd.h", "pid_t", hir.Int),
		td("stdint.h", "int8_t", i(hir.TChar, false)),
		td("stdint.h", "int16_t", i(hir.TShort, false)),
		td("stdint.h", "int32_t", hir.Int),
		td("stdint.h", "int64_t", i(hir.TLongLong, false)),
		td("stdint.h", "uint8_t", i(hir.TChar, true)),
		td("stdint.h", "uint16_t", i(hir.TShort, true)),
		td("stdint.h", "uint32_t", hir.UInt),
		td("stdint.h", "uint64_t", i(hir.TLongLong, true)),
		td("stdint.h", "intptr_t", hir.Long),
		td("stdint.h", "uintptr_t", hir.ULong),
		td("stdio.h", "FILE", opaque("_IO_FILE")),
		td("pthread.h", "pthread_t", hir.ULong),
		td("pthread.h", "pthread_mutex_t", opaque("pthread_mutex_t")),
		td("pthread.h", "pthread_rwlock_t", opaque("pthread_rwlock_t")),
		td("pthread.h", "pthread_spinlock_t", hir.Int),
		td("threads.h", "mtx_t", opaque("mtx_t")),
	}
}

// Builtin returns the shared libc table.
var Builtin = sync.OnceValue(func() *Table {
	return NewTable(builtinPrototypes(), builtinTypedefs())
})
