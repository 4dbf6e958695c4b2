// Package harness executes conformance cases against an engine under
// test and classifies each outcome.
//
// A Runner drives one engine session through the bridge: for each case
// it compiles the template, renders it against the case environment,
// and compares the result to the expectation. Outcomes are one of four
// statuses:
//
//   - pass: output matched, or an expected parse error matched
//   - fail: the engine produced a different output or error
//   - skip: the suite configuration excluded the case
//   - error: the harness or engine malfunctioned (protocol violation,
//     crash, timeout) - the case could not be judged either way
//
// The fail/error distinction matters for scoring: a fail counts
// against the engine's conformance, an error counts against the run.
package harness
