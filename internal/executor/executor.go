// Package executor defines the boundary to the statistical model engine.
// The engine is an opaque long-running computation keyed by an input
// workbook and a cohort; the worker treats it as a black box that returns
// per-model results or fails.
package executor

import "context"

// ModelResult reports the outcome of one model within a batch run.
type ModelResult struct {
	Model    string   `json:"model"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// Succeeded reports whether this model produced valid results.
func (r ModelResult) Succeeded() bool {
	return len(r.Errors) == 0
}

// AnySucceeded reports whether at least one model in the batch produced
// valid results. Drives the overall success flag in the results email.
func AnySucceeded(results []ModelResult) bool {
	for _, r := range results {
		if r.Succeeded() {
			return true
		}
	}
	return false
}

// Runner executes a batch of models against a staged input workbook.
// Implementations must tolerate duplicate invocations for the same job:
// at-least-once queue delivery means a run may be repeated.
type Runner interface {
	// RunBatchModels processes the input workbook for the given cohort,
	// writing all produced files into outputDir, and returns one result
	// per model. A returned error means the batch as a whole failed.
	RunBatchModels(ctx context.Context, inputPath, outputDir, cohort string) ([]ModelResult, error)
}
