// Package fuzztests houses Go fuzz harnesses for the translation
// pipeline (source -> cparse -> bridge -> analyses -> codegen). They guard
// against panics and hangs on arbitrary inputs.
package fuzztests
