// Package gphoto wraps the gphoto2 command-line tool: subprocess execution
// with timeout and retry, error classification from captured stderr, output
// parsers for auto-detect / list-files / get-config, and generic-to-concrete
// configuration key resolution.
package gphoto

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tethercam/tethercam/internal/env"
)

const (
	// EnvBinary overrides the gphoto2 binary path.
	EnvBinary = "TETHERCAM_GPHOTO_BIN"
	// EnvCmdTimeout overrides the default per-command timeout.
	EnvCmdTimeout = "TETHERCAM_CMD_TIMEOUT"

	// TimeoutStderr is the stderr sentinel set when a command exceeds its
	// deadline; Classify treats it as transient.
	TimeoutStderr = "command timed out"

	defaultBinary  = "gphoto2"
	defaultTimeout = 45 * time.Second
)

// Request describes one tool invocation. Port, when non-empty, is passed as
// `--port <port>` ahead of Args. Retries is the number of extra attempts
// granted to transient failures; RetryDelay is slept between attempts.
type Request struct {
	Args       []string
	Port       string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// Result captures one invocation attempt. Succeeded reflects the tool's exit
// code adjusted for critical stderr markers; callers performing captures or
// downloads must still confirm via ConfirmSaved, because gphoto2's exit code
// alone is not a reliable success signal.
type Result struct {
	Succeeded bool
	Stdout    string
	Stderr    string
	ExitCode  int
}

// Runner executes gphoto2 requests. ExecRunner talks to the real tool;
// ScriptRunner and SimRunner provide scripted and simulated devices.
type Runner interface {
	Run(ctx context.Context, req Request) Result
}

// ExecRunner invokes the gphoto2 binary as a subprocess.
type ExecRunner struct {
	Binary string

	// invoke performs a single attempt; tests replace it to script outcomes
	// without spawning processes.
	invoke func(ctx context.Context, req Request, timeout time.Duration) Result
}

// NewExecRunner builds a runner for the configured binary
// (TETHERCAM_GPHOTO_BIN, default "gphoto2").
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Binary: env.String(EnvBinary, defaultBinary)}
}

// Run executes the request, retrying transient failures up to req.Retries
// extra times. The result of the last attempt is returned. Sleeps between
// attempts abort early when ctx is done.
func (r *ExecRunner) Run(ctx context.Context, req Request) Result {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = env.Duration(EnvCmdTimeout, defaultTimeout)
	}

	invoke := r.invoke
	if invoke == nil {
		invoke = r.runOnce
	}

	var res Result
	for attempt := 0; attempt <= req.Retries; attempt++ {
		res = invoke(ctx, req, timeout)
		if res.Succeeded {
			return res
		}
		class := Classify(res.ExitCode, res.Stderr)
		if class != ClassTransient || attempt == req.Retries {
			if attempt > 0 {
				log.Error().
					Str("port", req.Port).
					Strs("args", req.Args).
					Int("attempts", attempt+1).
					Str("stderr", res.Stderr).
					Msg("gphoto command failed after retries")
			}
			return res
		}
		log.Warn().
			Str("port", req.Port).
			Strs("args", req.Args).
			Int("attempt", attempt+1).
			Str("stderr", res.Stderr).
			Msg("transient gphoto error, retrying")
		if !sleepCtx(ctx, req.RetryDelay) {
			return res
		}
	}
	return res
}

func (r *ExecRunner) runOnce(ctx context.Context, req Request, timeout time.Duration) Result {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := r.Binary
	if binary == "" {
		binary = defaultBinary
	}
	argv := make([]string, 0, len(req.Args)+2)
	if req.Port != "" {
		argv = append(argv, "--port", req.Port)
	}
	argv = append(argv, req.Args...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, binary, argv...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("port", req.Port).Strs("args", req.Args).Msg("running gphoto command")
	err := cmd.Run()

	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if runCtx.Err() == context.DeadlineExceeded {
		res.Stderr = TimeoutStderr
		res.ExitCode = -1
		return res
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
		}
	}
	res.Succeeded = Classify(res.ExitCode, res.Stderr) == ClassOK
	return res
}

// sleepCtx sleeps for d, returning false when ctx fires first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
