package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// RunResult is what a finished process left behind.
type RunResult struct {
	Stdout    []byte
	Stderr    []byte
	ExitCode  int
	Truncated bool // stdout exceeded the capture limit

	StderrTruncated bool // stderr exceeded its capture limit
}

// Runner starts a process and waits for it.
// A non-zero exit is reported through ExitCode, not as an error.
type Runner interface {
	Run(ctx context.Context, name string, args []string) (RunResult, error)
}

// ExecRunner runs commands on the host.
type ExecRunner struct {
	// CaptureLimit bounds the bytes kept from stdout; the rest is discarded.
	CaptureLimit int
	// StderrLimit bounds the bytes kept from stderr (default: 1MB).
	StderrLimit int
}

// Run executes name with args and collects bounded output.
func (r ExecRunner) Run(ctx context.Context, name string, args []string) (RunResult, error) {
	limit := r.CaptureLimit
	if limit <= 0 {
		limit = 1 << 20
	}
	errLimit := r.StderrLimit
	if errLimit <= 0 {
		errLimit = 1 << 20
	}

	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: errLimit}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Do not hang on pipes held open by a killed client's children
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()

	result := RunResult{
		Stdout:    stdout.buf.Bytes(),
		Stderr:    stderr.buf.Bytes(),
		Truncated: stdout.dropped,

		StderrTruncated: stderr.dropped,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}
	return result, nil
}

// cappedBuffer keeps the first limit bytes written and silently drops the rest.
type cappedBuffer struct {
	buf     bytes.Buffer
	limit   int
	dropped bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.dropped = b.dropped || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.dropped = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}
