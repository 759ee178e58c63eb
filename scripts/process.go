package scripts

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	maxLineSize = 16 << 20
	stderrTail  = 8 << 10
	closeGrace  = 5 * time.Second
)

// Process is a long-lived helper speaking a line protocol: one request line
// on stdin, one reply line on stdout.
type Process interface {
	Send(line []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Starter launches long-lived helpers. The process outlives the context of
// the request that started it, so Start takes none.
type Starter interface {
	Start(cmd Command) (Process, error)
}

// StarterFunc adapts a function to Starter.
type StarterFunc func(cmd Command) (Process, error)

func (f StarterFunc) Start(cmd Command) (Process, error) {
	return f(cmd)
}

type execProcess struct {
	name   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	lines  chan []byte
	closed chan struct{}
	done   chan struct{}

	waitErr   error
	closeOnce sync.Once
	logger    *logrus.Logger
}

// Start launches c with piped stdin and stdout. Stderr is kept as a bounded
// tail for diagnostics.
func (r *ExecRunner) Start(c Command) (Process, error) {
	const op = "ExecRunner.Start"

	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, newScriptError(op, err, "failed to open stdin: "+c.Name)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, newScriptError(op, err, "failed to open stdout: "+c.Name)
	}
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stderr = stderr

	r.logger.WithFields(logrus.Fields{
		"command": c.Name,
		"args":    c.Args,
		"dir":     c.Dir,
	}).Debug("Starting helper")

	if err := cmd.Start(); err != nil {
		scriptErr := newScriptError(op, err, "failed to start: "+c.Name)
		var execErr *exec.Error
		if stderrors.As(err, &execErr) {
			scriptErr.Message = "command not found: " + c.Name
		}
		return nil, scriptErr
	}

	p := &execProcess{
		name:   c.Name,
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		lines:  make(chan []byte),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
		logger: r.logger,
	}
	go p.read(stdout)
	return p, nil
}

func (p *execProcess) read(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64<<10), maxLineSize)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case p.lines <- line:
		case <-p.closed:
			// drain so the helper never blocks on a full pipe
			for scanner.Scan() {
			}
		}
	}
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

func (p *execProcess) Send(line []byte) error {
	select {
	case <-p.done:
		return p.exitError()
	default:
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')
	if _, err := p.stdin.Write(buf); err != nil {
		return newScriptError("execProcess.Send", err, "failed to write to "+p.name)
	}
	return nil
}

func (p *execProcess) Receive(ctx context.Context) ([]byte, error) {
	select {
	case line := <-p.lines:
		return line, nil
	case <-p.done:
		return nil, p.exitError()
	case <-ctx.Done():
		return nil, newScriptError("execProcess.Receive", ctx.Err(), "command interrupted: "+p.name)
	}
}

// Close ends stdin and waits for the helper to exit, killing it after a
// grace period.
func (p *execProcess) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.stdin.Close()
		select {
		case <-p.done:
		case <-time.After(closeGrace):
			p.logger.WithField("command", p.name).Warn("Helper did not exit, killing it")
			p.cmd.Process.Kill()
			<-p.done
		}
	})
	return nil
}

func (p *execProcess) exitError() error {
	scriptErr := newScriptError("execProcess", p.waitErr, "helper exited: "+p.name)
	scriptErr.Output = p.stderr.String()
	if p.cmd.ProcessState != nil {
		scriptErr.ExitCode = p.cmd.ProcessState.ExitCode()
	}
	return scriptErr
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
