package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/comets-analytics/comets-batch/internal/config"
)

// resultsFile is where the R entry point writes its per-model summary.
const resultsFile = "model_results.json"

// RscriptRunner drives the R model engine through its command-line entry
// point: Rscript <script> run_batch_models <input> <outputDir> <cohort>.
// The script writes model_results.json into outputDir alongside the result
// files themselves.
type RscriptRunner struct {
	rscript string
	script  string
	timeout time.Duration
}

// NewRscriptRunner builds a runner from executor configuration.
func NewRscriptRunner(cfg config.ExecutorConfig) *RscriptRunner {
	return &RscriptRunner{
		rscript: cfg.RscriptPath,
		script:  cfg.ScriptFile,
		timeout: cfg.Timeout,
	}
}

func (r *RscriptRunner) RunBatchModels(ctx context.Context, inputPath, outputDir, cohort string) ([]ModelResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.rscript, "--vanilla", r.script,
		"run_batch_models", inputPath, outputDir, cohort)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run batch models: %w\n%s", err, output.String())
	}

	data, err := os.ReadFile(filepath.Join(outputDir, resultsFile))
	if err != nil {
		return nil, fmt.Errorf("read model results: %w", err)
	}

	var results []ModelResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("parse model results: %w", err)
	}

	// The summary is engine bookkeeping, not a deliverable; keep it out of
	// the archive handed to the user.
	if err := os.Remove(filepath.Join(outputDir, resultsFile)); err != nil {
		return nil, fmt.Errorf("remove model results summary: %w", err)
	}

	return results, nil
}
