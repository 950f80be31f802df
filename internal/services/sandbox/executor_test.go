package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type fakeRunner struct {
	result RunResult
	err    error
	block  bool

	calls  [][]string
	script string
	data   string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string) (RunResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if len(args) > 0 && args[0] == "rm" {
		return RunResult{}, nil
	}

	// Capture the mounted workspace while it still exists
	for i, a := range args {
		if a == "-v" && i+1 < len(args) {
			dir := strings.TrimSuffix(args[i+1], ":"+mountPoint+":ro")
			script, _ := os.ReadFile(filepath.Join(dir, scriptName))
			data, _ := os.ReadFile(filepath.Join(dir, dataName))
			f.script, f.data = string(script), string(data)
		}
	}

	if f.block {
		<-ctx.Done()
		return RunResult{}, ctx.Err()
	}
	return f.result, f.err
}

func newTestExecutor(r Runner) *Executor {
	return NewExecutor(Config{
		Image:          "stock-analyzer-sandbox",
		Timeout:        15 * time.Second,
		MaxOutputBytes: 100,
		PidsLimit:      64,
	}, r, arbor.NewLogger())
}

func TestExecuteReturnsStdout(t *testing.T) {
	r := &fakeRunner{result: RunResult{Stdout: []byte("hello\n")}}
	result := newTestExecutor(r).Execute(context.Background(), "print('hello')", "")

	assert.Equal(t, "hello\n", result.Output)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.Failed())

	require.Len(t, r.calls, 1)
	args := strings.Join(r.calls[0], " ")
	assert.True(t, strings.HasPrefix(args, "docker run --rm --name sandbox-"))
	assert.Contains(t, args, "--network none --memory 128m --memory-swap 128m --cpus 0.5 --pids-limit 64")
	assert.True(t, strings.HasSuffix(args, ":/sandbox:ro stock-analyzer-sandbox python /sandbox/run.py"))

	assert.True(t, strings.HasPrefix(r.script, "data = None\n"))
	assert.Contains(t, r.script, "print('hello')")
}

func TestExecuteBindsData(t *testing.T) {
	r := &fakeRunner{result: RunResult{Stdout: []byte("3\n")}}
	payload := `{"symbol":"ABCD","data":{"2024-03-05":{"close":11}}}`

	result := newTestExecutor(r).Execute(context.Background(), "import json\nprint(len(json.loads(data)))", payload)
	assert.Equal(t, "3\n", result.Output)
	assert.Equal(t, payload, r.data)
	assert.Contains(t, r.script, `open("/sandbox/data.json", encoding="utf-8")`)
}

func TestExecuteEmptyOutputSentinel(t *testing.T) {
	for _, stdout := range []string{"", "  \n"} {
		r := &fakeRunner{result: RunResult{Stdout: []byte(stdout)}}
		result := newTestExecutor(r).Execute(context.Background(), "x = 1", "")
		assert.Equal(t, NoOutput, result.Output)
		assert.False(t, result.Failed())
	}
}

func TestExecuteTruncatesOutput(t *testing.T) {
	r := &fakeRunner{result: RunResult{Stdout: []byte(strings.Repeat("x", 150))}}
	result := newTestExecutor(r).Execute(context.Background(), "print('x' * 150)", "")

	assert.True(t, strings.HasSuffix(result.Output, TruncationMarker))
	assert.LessOrEqual(t, len(result.Output), 100+len(TruncationMarker))
	assert.Equal(t, strings.Repeat("x", 100)+TruncationMarker, result.Output)
}

func TestExecuteTruncationKeepsRunesWhole(t *testing.T) {
	// 99 ASCII bytes then a 3-byte rune straddling the ceiling
	r := &fakeRunner{result: RunResult{Stdout: []byte(strings.Repeat("a", 99) + "€tail")}}
	result := newTestExecutor(r).Execute(context.Background(), "print()", "")

	assert.Equal(t, strings.Repeat("a", 99)+TruncationMarker, result.Output)
}

func TestExecuteTruncatedByCapture(t *testing.T) {
	r := &fakeRunner{result: RunResult{Stdout: []byte("short"), Truncated: true}}
	result := newTestExecutor(r).Execute(context.Background(), "print()", "")
	assert.Equal(t, "short"+TruncationMarker, result.Output)
}

func TestExecuteWarningsOnSuccess(t *testing.T) {
	r := &fakeRunner{result: RunResult{
		Stdout: []byte("42\n"),
		Stderr: []byte("FutureWarning: something is deprecated\n"),
	}}
	result := newTestExecutor(r).Execute(context.Background(), "print(42)", "")

	assert.Equal(t, "42\n", result.Output)
	assert.Equal(t, "FutureWarning: something is deprecated", result.Warnings)
	assert.Empty(t, result.Error)
}

func TestExecuteNonZeroExit(t *testing.T) {
	stderr := "Traceback (most recent call last):\n  File \"/sandbox/run.py\", line 3\nSyntaxError: invalid syntax\n"
	r := &fakeRunner{result: RunResult{Stderr: []byte(stderr), ExitCode: 1}}
	result := newTestExecutor(r).Execute(context.Background(), "def bad(", "")

	assert.Equal(t, stderr, result.Error, "diagnostics are surfaced verbatim")
	assert.Empty(t, result.Output)

	r = &fakeRunner{result: RunResult{ExitCode: 137}}
	result = newTestExecutor(r).Execute(context.Background(), "print(1)", "")
	assert.Equal(t, "sandbox exited with code 137", result.Error)
}

func TestExecuteRejectsBadDataWithoutLaunching(t *testing.T) {
	tests := []struct {
		data string
		want string
	}{
		{`[1, 2, 3]`, "invalid input data: expected a JSON object"},
		{`"text"`, "invalid input data: expected a JSON object"},
		{`42`, "invalid input data: expected a JSON object"},
		{`{"open": `, "invalid input data: "},
	}
	for _, tt := range tests {
		r := &fakeRunner{}
		result := newTestExecutor(r).Execute(context.Background(), "print(data)", tt.data)
		assert.True(t, strings.HasPrefix(result.Error, tt.want), "%s -> %s", tt.data, result.Error)
		assert.Empty(t, r.calls, "no process for %s", tt.data)
	}

	r := &fakeRunner{}
	result := newTestExecutor(r).Execute(context.Background(), "  ", "")
	assert.True(t, result.Failed())
	assert.Empty(t, r.calls)
}

func TestExecuteTimeout(t *testing.T) {
	r := &fakeRunner{block: true}
	e := NewExecutor(Config{Timeout: 50 * time.Millisecond}, r, arbor.NewLogger())

	result := e.Execute(context.Background(), "import time; time.sleep(999)", "")
	assert.Equal(t, "code execution timed out after 50ms", result.Error)

	// The client was killed, so the container is removed by name
	require.Len(t, r.calls, 2)
	assert.Equal(t, []string{"docker", "rm", "-f"}, r.calls[1][:3])
	assert.True(t, strings.HasPrefix(r.calls[1][3], "sandbox-"))
}

func TestExecuteEngineMissing(t *testing.T) {
	r := &fakeRunner{err: &exec.Error{Name: "docker", Err: exec.ErrNotFound}}
	result := newTestExecutor(r).Execute(context.Background(), "print(1)", "")
	assert.Equal(t, "docker is not installed or not in PATH", result.Error)
}

func TestExecuteLaunchFailure(t *testing.T) {
	r := &fakeRunner{err: errors.New("permission denied while trying to connect to the Docker daemon socket")}
	result := newTestExecutor(r).Execute(context.Background(), "print(1)", "")
	assert.Equal(t, fmt.Sprintf("failed to launch sandbox: %v", r.err), result.Error)
}

func TestWorkspaceRemovedAfterRun(t *testing.T) {
	var dir string
	r := &fakeRunner{result: RunResult{Stdout: []byte("ok")}}
	e := newTestExecutor(r)
	e.Execute(context.Background(), "print('ok')", "")

	for i, a := range r.calls[0] {
		if a == "-v" {
			dir = strings.TrimSuffix(r.calls[0][i+1], ":"+mountPoint+":ro")
		}
	}
	require.NotEmpty(t, dir)
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 5}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, _ = b.Write([]byte("defgh"))
	assert.Equal(t, 5, n)
	assert.Equal(t, "abcde", b.buf.String())
	assert.True(t, b.dropped)
}

func TestExecuteMarksTruncatedTraceback(t *testing.T) {
	stderr := strings.Repeat("  File \"/sandbox/run.py\", line 1\n", 10)
	r := &fakeRunner{result: RunResult{Stderr: []byte(stderr), ExitCode: 1, StderrTruncated: true}}
	result := newTestExecutor(r).Execute(context.Background(), "raise ValueError()", "")
	assert.Equal(t, stderr+StderrTruncationMarker, result.Error)
}

func TestDefaultRunnerKeepsStderrBeyondOutputCeiling(t *testing.T) {
	e := NewExecutor(Config{MaxOutputBytes: 100}, nil, arbor.NewLogger())
	runner, ok := e.runner.(ExecRunner)
	require.True(t, ok)
	assert.Equal(t, 101, runner.CaptureLimit)
	assert.Greater(t, runner.StderrLimit, runner.CaptureLimit)
}

func TestExecRunnerCapsStreamsSeparately(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := ExecRunner{CaptureLimit: 5, StderrLimit: 50}
	result, err := r.Run(context.Background(), "sh", []string{"-c", "printf 1234567890; printf 1234567890 >&2; exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "12345", string(result.Stdout))
	assert.True(t, result.Truncated)
	assert.Equal(t, "1234567890", string(result.Stderr))
	assert.False(t, result.StderrTruncated)
}
