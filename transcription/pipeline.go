package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-clip/scripts"
)

const transcribeScript = "transcribe.py"

type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// ModelSpec names the model a pipeline runs and where.
type ModelSpec struct {
	Name   string
	Device Device
}

// Options controls a single transcription call.
type Options struct {
	Language Language
	Task     string
}

// Pipeline turns an audio file into a raw model result.
type Pipeline interface {
	Model() ModelSpec
	Transcribe(ctx context.Context, audioPath string, opts Options) (RawResult, error)
}

// ScriptConfig locates the python helper.
type ScriptConfig struct {
	Runner      string // "uv" runs the helper with `uv run`; anything else is used as the interpreter
	ScriptsPath string
	Environment []string
}

// helperRequest is one line sent to a serving helper.
type helperRequest struct {
	Audio    string `json:"audio"`
	Task     string `json:"task"`
	Language string `json:"language,omitempty"`
}

// helperReply is one line read back. The first line after start is the
// ready handshake; every later line answers one request.
type helperReply struct {
	Ready  *bool           `json:"ready,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// scriptPipeline keeps one Whisper helper running in serve mode so the model
// is loaded once per process instead of once per request.
type scriptPipeline struct {
	starter scripts.Starter
	cfg     ScriptConfig
	model   ModelSpec

	mu   sync.Mutex
	proc scripts.Process
}

// NewScriptPipeline starts the helper and waits until it reports the model
// loaded. A helper that cannot import its dependencies or load the model
// fails here.
func NewScriptPipeline(ctx context.Context, starter scripts.Starter, cfg ScriptConfig, model ModelSpec) (Pipeline, error) {
	scriptPath := filepath.Join(cfg.ScriptsPath, transcribeScript)
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, errors.Wrapf(err, "transcription helper not found: %s", scriptPath)
	}
	if starter == nil {
		return nil, errors.New("no process starter configured")
	}
	if cfg.Runner == "" {
		cfg.Runner = "uv"
	}

	p := &scriptPipeline{starter: starter, cfg: cfg, model: model}
	if err := p.start(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *scriptPipeline) Model() ModelSpec { return p.model }

func (p *scriptPipeline) command() scripts.Command {
	args := []string{filepath.Join(p.cfg.ScriptsPath, transcribeScript),
		"--serve",
		"--model", p.model.Name,
		"--device", string(p.model.Device),
	}

	name := p.cfg.Runner
	if name == "uv" {
		args = append([]string{"run"}, args...)
	}
	return scripts.Command{
		Name: name,
		Args: args,
		Env: append([]string{
			"PYTORCH_CUDA_ALLOC_CONF=max_split_size_mb:512",
		}, p.cfg.Environment...),
	}
}

// start must be called with mu held or before p is shared.
func (p *scriptPipeline) start(ctx context.Context) error {
	proc, err := p.starter.Start(p.command())
	if err != nil {
		return errors.Wrap(err, "failed to start transcription helper")
	}

	reply, err := receiveReply(ctx, proc)
	if err != nil {
		proc.Close()
		if out := scripts.OutputOf(err); out != "" {
			return errors.Wrapf(err, "transcription helper failed to load: %s", out)
		}
		return errors.Wrap(err, "transcription helper failed to load")
	}
	if reply.Ready == nil || !*reply.Ready {
		proc.Close()
		return fmt.Errorf("transcription helper failed to load: %s", reply.Error)
	}
	p.proc = proc
	return nil
}

// reset drops a helper whose stream position is no longer known.
func (p *scriptPipeline) reset() {
	if p.proc != nil {
		p.proc.Close()
		p.proc = nil
	}
}

func (p *scriptPipeline) Transcribe(ctx context.Context, audioPath string, opts Options) (RawResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.proc == nil {
		logrus.WithField("model", p.model.Name).Warn("Transcription helper exited, restarting")
		if err := p.start(ctx); err != nil {
			return RawResult{}, err
		}
	}

	req := helperRequest{Audio: audioPath, Task: opts.Task}
	if req.Task == "" {
		req.Task = "transcribe"
	}
	if opts.Language.explicit() {
		req.Language = string(opts.Language)
	}
	line, err := json.Marshal(req)
	if err != nil {
		return RawResult{}, errors.Wrap(err, "failed to encode helper request")
	}

	if err := p.proc.Send(line); err != nil {
		p.reset()
		return RawResult{}, errors.Wrap(err, "transcription helper failed")
	}
	reply, err := receiveReply(ctx, p.proc)
	if err != nil {
		p.reset()
		return RawResult{}, errors.Wrap(err, "transcription helper failed")
	}
	if reply.Error != "" {
		return RawResult{}, fmt.Errorf("transcription helper: %s", reply.Error)
	}
	return DecodeResult(reply.Result)
}

// Close stops the helper.
func (p *scriptPipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// receiveReply skips stray non-JSON lines a library may print to stdout.
func receiveReply(ctx context.Context, proc scripts.Process) (helperReply, error) {
	for {
		line, err := proc.Receive(ctx)
		if err != nil {
			return helperReply{}, err
		}
		var reply helperReply
		if err := json.Unmarshal(line, &reply); err != nil {
			logrus.WithField("line", string(line)).Debug("Ignoring helper output")
			continue
		}
		return reply, nil
	}
}
