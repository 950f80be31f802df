package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/models"
)

const (
	// NoOutput replaces empty stdout so a silent run is distinguishable from one that never ran.
	NoOutput = "(no output: code ran successfully but printed nothing)"

	// TruncationMarker is appended to stdout cut at the byte ceiling.
	TruncationMarker = "\n... [output truncated]"

	// StderrTruncationMarker is appended to stderr cut at the capture limit.
	StderrTruncationMarker = "\n... [stderr truncated]"

	// stderrLimit bounds the captured traceback, kept apart from the stdout ceiling
	stderrLimit = 1 << 20

	mountPoint = "/sandbox"
	scriptName = "run.py"
	dataName   = "data.json"
)

// Config describes the container the analysis code runs in.
type Config struct {
	Engine         string
	Image          string
	Timeout        time.Duration
	Memory         string
	CPUs           string
	PidsLimit      int
	MaxOutputBytes int
}

// Executor runs generated Python against a JSON payload inside a locked-down container.
type Executor struct {
	config Config
	runner Runner
	logger arbor.ILogger
}

// NewExecutor creates an executor. A nil runner runs the container engine on the host.
func NewExecutor(config Config, runner Runner, logger arbor.ILogger) *Executor {
	if config.Engine == "" {
		config.Engine = "docker"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.Memory == "" {
		config.Memory = "128m"
	}
	if config.CPUs == "" {
		config.CPUs = "0.5"
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = 20000
	}
	if runner == nil {
		// Keep one byte past the ceiling so truncation is detectable
		runner = ExecRunner{CaptureLimit: config.MaxOutputBytes + 1, StderrLimit: stderrLimit}
	}
	return &Executor{
		config: config,
		runner: runner,
		logger: logger,
	}
}

// Execute runs code with data (a JSON object, or empty for none) bound to the variable data.
// It never returns a Go error; every failure is carried in the result.
func (e *Executor) Execute(ctx context.Context, code, data string) models.ExecResult {
	if strings.TrimSpace(code) == "" {
		return models.ExecResult{Error: "invalid input: code is required"}
	}
	if msg := checkData(data); msg != "" {
		return models.ExecResult{Error: msg}
	}

	dir, err := e.writeWorkspace(code, data)
	if err != nil {
		return models.ExecResult{Error: fmt.Sprintf("failed to launch sandbox: %v", err)}
	}
	defer os.RemoveAll(dir)

	name := "sandbox-" + uuid.New().String()
	runCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	result, err := e.runner.Run(runCtx, e.config.Engine, e.runArgs(name, dir))
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case errors.Is(err, exec.ErrNotFound):
			return models.ExecResult{Error: fmt.Sprintf("%s is not installed or not in PATH", e.config.Engine)}
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			e.removeContainer(name)
			e.logger.Warn().
				Str("container", name).
				Dur("timeout", e.config.Timeout).
				Msg("Sandbox run timed out")
			return models.ExecResult{Error: fmt.Sprintf("code execution timed out after %s", e.config.Timeout)}
		default:
			e.removeContainer(name)
			return models.ExecResult{Error: fmt.Sprintf("failed to launch sandbox: %v", err)}
		}
	}

	e.logger.Debug().
		Str("container", name).
		Int("exit_code", result.ExitCode).
		Int("stdout_bytes", len(result.Stdout)).
		Int("stderr_bytes", len(result.Stderr)).
		Dur("elapsed", elapsed).
		Msg("Sandbox run finished")

	if result.ExitCode != 0 {
		if strings.TrimSpace(string(result.Stderr)) == "" {
			return models.ExecResult{Error: fmt.Sprintf("sandbox exited with code %d", result.ExitCode)}
		}
		if result.StderrTruncated {
			return models.ExecResult{Error: string(result.Stderr) + StderrTruncationMarker}
		}
		return models.ExecResult{Error: string(result.Stderr)}
	}

	return models.ExecResult{
		Output:   e.formatOutput(result.Stdout, result.Truncated),
		Warnings: strings.TrimSpace(string(result.Stderr)),
	}
}

// checkData returns an error message when data is present but not a JSON object.
func checkData(data string) string {
	if strings.TrimSpace(data) == "" {
		return ""
	}
	var v interface{}
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return fmt.Sprintf("invalid input data: %v", err)
	}
	if _, ok := v.(map[string]interface{}); !ok {
		return "invalid input data: expected a JSON object"
	}
	return ""
}

// writeWorkspace lays out the read-only mount: the script with its data preamble and the payload.
func (e *Executor) writeWorkspace(code, data string) (string, error) {
	dir, err := os.MkdirTemp("", "moverwatch-sandbox-*")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	// The container user is not the host user
	if err := os.Chmod(dir, 0o755); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("chmod workspace: %w", err)
	}

	preamble := "data = None\n"
	if strings.TrimSpace(data) != "" {
		if err := os.WriteFile(filepath.Join(dir, dataName), []byte(data), 0o644); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("write data: %w", err)
		}
		preamble = fmt.Sprintf("with open(%q, encoding=\"utf-8\") as _f:\n    data = _f.read()\n", mountPoint+"/"+dataName)
	}

	script := preamble + "\n" + code + "\n"
	if err := os.WriteFile(filepath.Join(dir, scriptName), []byte(script), 0o644); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("write script: %w", err)
	}
	return dir, nil
}

func (e *Executor) runArgs(name, dir string) []string {
	args := []string{
		"run", "--rm",
		"--name", name,
		"--network", "none",
		"--memory", e.config.Memory,
		"--memory-swap", e.config.Memory,
		"--cpus", e.config.CPUs,
	}
	if e.config.PidsLimit > 0 {
		args = append(args, "--pids-limit", fmt.Sprintf("%d", e.config.PidsLimit))
	}
	return append(args,
		"-v", dir+":"+mountPoint+":ro",
		e.config.Image,
		"python", mountPoint+"/"+scriptName,
	)
}

// removeContainer force-removes a container the killed client left running.
func (e *Executor) removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := e.runner.Run(ctx, e.config.Engine, []string{"rm", "-f", name}); err != nil {
		e.logger.Debug().Err(err).Str("container", name).Msg("Container cleanup failed")
	}
}

// formatOutput applies the byte ceiling and the empty-output sentinel.
func (e *Executor) formatOutput(stdout []byte, truncated bool) string {
	limit := e.config.MaxOutputBytes
	if len(stdout) > limit || truncated {
		cut := stdout
		if len(cut) > limit {
			cut = cut[:limit]
		}
		// Do not leave half a rune before the marker
		for i := 0; i < utf8.UTFMax-1 && len(cut) > 0; i++ {
			if r, size := utf8.DecodeLastRune(cut); r != utf8.RuneError || size > 1 {
				break
			}
			cut = cut[:len(cut)-1]
		}
		return string(cut) + TruncationMarker
	}

	out := string(stdout)
	if strings.TrimSpace(out) == "" {
		return NoOutput
	}
	return out
}
