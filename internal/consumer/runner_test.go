package consumer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func runnerConfig(t *testing.T, bin string, maxRunTime time.Duration) config.ToolConfig {
	t.Helper()
	return config.ToolConfig{
		NhmmerBin:   bin,
		CmscanBin:   bin,
		SequenceDir: t.TempDir(),
		CMFile:      "rfam.cm",
		WorkDir:     t.TempDir(),
		MaxRunTime:  maxRunTime,
	}
}

func TestExecRunner_Success(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "nhmmer", "exit 0\n")
	r := NewExecRunner(runnerConfig(t, bin, time.Minute))

	res, err := r.Run(context.Background(), Request{
		JobID:    uuid.New(),
		Database: "ena",
		Sequence: "ACGTACGTACGT",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "nhmmer", "echo 'bad input' >&2\nexit 1\n")
	r := NewExecRunner(runnerConfig(t, bin, time.Minute))

	res, err := r.Run(context.Background(), Request{
		JobID:    uuid.New(),
		Database: "ena",
		Sequence: "ACGTACGTACGT",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Contains(t, res.Stderr, "bad input")
}

func TestExecRunner_Timeout(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "nhmmer", "sleep 10\n")
	r := NewExecRunner(runnerConfig(t, bin, 100*time.Millisecond))

	res, err := r.Run(context.Background(), Request{
		JobID:    uuid.New(),
		Database: "ena",
		Sequence: "ACGTACGTACGT",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, res.Outcome)
}

func TestExecRunner_WritesQueryFasta(t *testing.T) {
	dir := t.TempDir()
	// Copy the query file next to the output so the test can read it back.
	bin := writeScript(t, dir, "nhmmer", `cp "$3" "$2.query"`+"\nexit 0\n")
	cfg := runnerConfig(t, bin, time.Minute)
	r := NewExecRunner(cfg)

	jobID := uuid.New()
	res, err := r.Run(context.Background(), Request{
		JobID:    jobID,
		Database: "ena",
		Sequence: "ACGTACGTACGT",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(res.OutputPath + ".query")
	require.NoError(t, err)
	assert.Equal(t, ">"+jobID.String()+"\nACGTACGTACGT\n", string(data))
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewExecRunner(runnerConfig(t, "/nonexistent/nhmmer", time.Minute))

	res, err := r.Run(context.Background(), Request{
		JobID:    uuid.New(),
		Database: "ena",
		Sequence: "ACGTACGTACGT",
	})
	// Failure to start still yields a classified result, not an error: the
	// command runs and exits through cmd.Run's start failure.
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, res.Outcome)
}
