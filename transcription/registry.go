package transcription

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-clip/scripts"
)

// modelLoadTimeout bounds the first load, which may download weights.
const modelLoadTimeout = 10 * time.Minute

// Loader builds a pipeline for the chosen model.
type Loader func(ctx context.Context, model ModelSpec) (Pipeline, error)

// DeviceProbe reports whether a CUDA device is usable.
type DeviceProbe func(ctx context.Context) bool

// Registry owns the process-wide speech pipeline. The hardware probe and the
// load run once; the outcome, including a failure, is cached.
type Registry struct {
	cpuModel string
	gpuModel string
	probe    DeviceProbe
	loader   Loader

	once     sync.Once
	pipeline Pipeline
	err      error
}

type RegistryOption func(*Registry)

func WithDeviceProbe(probe DeviceProbe) RegistryOption {
	return func(r *Registry) { r.probe = probe }
}

func WithLoader(loader Loader) RegistryOption {
	return func(r *Registry) { r.loader = loader }
}

func WithModels(cpuModel, gpuModel string) RegistryOption {
	return func(r *Registry) {
		if cpuModel != "" {
			r.cpuModel = cpuModel
		}
		if gpuModel != "" {
			r.gpuModel = gpuModel
		}
	}
}

// NewRegistry returns a registry that probes the GPU through runner and
// keeps the python helper running through starter. Options replace the probe
// or loader.
func NewRegistry(runner scripts.Runner, starter scripts.Starter, cfg ScriptConfig, opts ...RegistryOption) *Registry {
	r := &Registry{
		cpuModel: "openai/whisper-tiny",
		gpuModel: "openai/whisper-base",
		probe:    NvidiaProbe(runner),
		loader: func(ctx context.Context, model ModelSpec) (Pipeline, error) {
			return NewScriptPipeline(ctx, starter, cfg, model)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NvidiaProbe treats a successful `nvidia-smi -L` as a usable GPU.
func NvidiaProbe(runner scripts.Runner) DeviceProbe {
	return func(ctx context.Context) bool {
		res, err := runner.Run(ctx, scripts.Command{Name: "nvidia-smi", Args: []string{"-L"}})
		return err == nil && len(res.Stdout) > 0
	}
}

// Pipeline returns the loaded pipeline or the cached load error.
func (r *Registry) Pipeline(ctx context.Context) (Pipeline, error) {
	r.once.Do(func() {
		model := ModelSpec{Name: r.cpuModel, Device: DeviceCPU}
		if r.probe != nil && r.probe(ctx) {
			model = ModelSpec{Name: r.gpuModel, Device: DeviceCUDA}
		}

		logger := logrus.WithFields(logrus.Fields{
			"model":  model.Name,
			"device": model.Device,
		})
		// a cancelled request must not poison the cached outcome
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), modelLoadTimeout)
		defer cancel()
		r.pipeline, r.err = r.loader(loadCtx, model)
		if r.err != nil {
			logger.WithError(r.err).Warn("Speech model unavailable, transcripts will use sample data")
			return
		}
		logger.Info("Speech model loaded")
	})
	return r.pipeline, r.err
}

// Close stops the loaded helper, if any. It waits for a load in progress and
// prevents later ones.
func (r *Registry) Close() error {
	r.once.Do(func() { r.err = errors.New("speech model registry closed") })
	if c, ok := r.pipeline.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
