// Package diag defines the diagnostic model shared by every translation stage.
//
// Stages never print. They emit through a Reporter (usually a BagReporter),
// and the driver or CLI decides how to render the collected Bag. Codes are
// grouped by stage:
//
//   - PAR1xxx  parse errors from the C front end
//   - BLD2xxx  construction errors (the offending function is skipped)
//   - OWN3xxx  ownership defects found on some path
//   - LCK4xxx  lock discipline violations
//   - LFT5xxx  lifetime problems (dangling candidates, explicit annotations)
//   - GEN6xxx  code generator fallbacks
//   - CFG7xxx  configuration problems
//
// Everything here is data only; rendering lives in internal/report.
package diag
