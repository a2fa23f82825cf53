package consumer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/internal/config"
)

// Request describes one search tool invocation: nhmmer against one target
// database, or cmscan over the covariance model library for infernal work.
type Request struct {
	JobID    uuid.UUID
	Database string // empty for infernal requests
	Sequence string
	Infernal bool
}

// Outcome classifies how a tool run ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
	OutcomeTimeout
)

// RunResult reports a finished tool run. OutputPath points at the raw
// tabular output for the parser.
type RunResult struct {
	Outcome    Outcome
	OutputPath string
	Stderr     string
}

// Runner executes one search. Implementations must respect ctx and the
// configured maximum run time.
type Runner interface {
	Run(ctx context.Context, req Request) (*RunResult, error)
}

// ExecRunner invokes the external search binaries as child processes.
type ExecRunner struct {
	cfg config.ToolConfig
}

// NewExecRunner creates a runner over the configured tool binaries.
func NewExecRunner(cfg config.ToolConfig) *ExecRunner {
	return &ExecRunner{cfg: cfg}
}

// Run writes the query to a scratch FASTA file, invokes the tool with the
// run-time budget and classifies the exit. A deadline hit maps to
// OutcomeTimeout, any other non-zero exit to OutcomeError; only failures
// to even start the run are returned as errors.
func (r *ExecRunner) Run(ctx context.Context, req Request) (*RunResult, error) {
	dir, err := os.MkdirTemp(r.cfg.WorkDir, "seqd-"+req.JobID.String()+"-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	queryPath := filepath.Join(dir, "query.fasta")
	fasta := fmt.Sprintf(">%s\n%s\n", req.JobID, req.Sequence)
	if err := os.WriteFile(queryPath, []byte(fasta), 0o600); err != nil {
		return nil, fmt.Errorf("write query file: %w", err)
	}
	outPath := filepath.Join(dir, "output.tbl")

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.MaxRunTime)
	defer cancel()

	var cmd *exec.Cmd
	if req.Infernal {
		cmd = exec.CommandContext(runCtx, r.cfg.CmscanBin,
			"--tblout", outPath, r.cfg.CMFile, queryPath)
	} else {
		dbPath := filepath.Join(r.cfg.SequenceDir, req.Database+".fasta")
		cmd = exec.CommandContext(runCtx, r.cfg.NhmmerBin,
			"--tblout", outPath, queryPath, dbPath)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	res := &RunResult{OutputPath: outPath, Stderr: stderr.String()}
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Outcome = OutcomeTimeout
	case runErr != nil:
		res.Outcome = OutcomeError
	default:
		res.Outcome = OutcomeSuccess
	}
	return res, nil
}

var _ Runner = (*ExecRunner)(nil)
