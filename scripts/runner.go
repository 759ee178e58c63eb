package scripts

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the current environment
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Diagnostic is the text a failure report should carry.
func (r Result) Diagnostic() string {
	if s := strings.TrimSpace(string(r.Stderr)); s != "" {
		return s
	}
	return strings.TrimSpace(string(r.Stdout))
}

// Runner executes external tools. Every stage that shells out (ffmpeg,
// yt-dlp, the transcription helper) takes one so tests can inject a fake.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}

type ExecRunner struct {
	logger *logrus.Logger
}

func NewExecRunner(logger *logrus.Logger) *ExecRunner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ExecRunner{logger: logger}
}

// Run starts cmd and waits for it. A non-zero exit is returned as a
// *ScriptError whose Output carries the captured diagnostic; the Result is
// populated in both cases.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	const op = "ExecRunner.Run"

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.WithFields(logrus.Fields{
		"command": c.Name,
		"args":    c.Args,
		"dir":     c.Dir,
	}).Debug("Executing command")

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	scriptErr := newScriptError(op, err, "command failed: "+c.Name)
	scriptErr.Output = res.Diagnostic()
	scriptErr.ExitCode = res.ExitCode

	var execErr *exec.Error
	if stderrors.As(err, &execErr) {
		scriptErr.Message = "command not found: " + c.Name
	} else if ctx.Err() != nil {
		scriptErr.Message = "command interrupted: " + c.Name
		scriptErr.Err = ctx.Err()
	}

	r.logger.WithError(err).WithFields(logrus.Fields{
		"command":  c.Name,
		"exitCode": res.ExitCode,
		"stderr":   truncate(scriptErr.Output, 2000),
	}).Debug("Command failed")

	return res, scriptErr
}

// OutputOf returns the diagnostic carried by a runner error, if any.
func OutputOf(err error) string {
	var scriptErr *ScriptError
	if stderrors.As(err, &scriptErr) {
		return scriptErr.Output
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
