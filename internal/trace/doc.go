// Package trace records what the translator did and how long it took.
//
// Enable it from the CLI:
//
//	decant translate --trace=- --trace-level=detail list.c
//
// Tracer implementations:
//
//   - Nop: used when tracing is off
//   - StreamTracer: writes each event immediately (text or NDJSON)
//   - RingTracer: keeps the last N events for a post-mortem dump
//   - MultiTracer: fans out to several tracers
//
// Scopes, coarse to fine: Driver (CLI command), Pass (parse, bridge, codegen),
// Func (one analysis of one function), Node (individual ownership decisions).
// The level decides which scopes are emitted.
//
// Tracers travel in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	sp := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "bridge", 0)
//	defer sp.End("")
package trace
