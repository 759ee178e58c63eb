package main

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-clip/config"
	"github.com/nijaru/yt-clip/db"
	"github.com/nijaru/yt-clip/janitor"
	"github.com/nijaru/yt-clip/logger"
	"github.com/nijaru/yt-clip/media"
	"github.com/nijaru/yt-clip/pipeline"
	"github.com/nijaru/yt-clip/scripts"
	"github.com/nijaru/yt-clip/session"
	"github.com/nijaru/yt-clip/storage"
	"github.com/nijaru/yt-clip/transcription"
	"github.com/nijaru/yt-clip/youtube"
)

// application holds the wired components shared by the commands.
type application struct {
	cfg      *config.Config
	runner   scripts.Runner
	store    *db.Store
	sessions *session.Manager
	service  *pipeline.Service
	janitor  *janitor.Janitor
	closers  []io.Closer
}

func setupLogging(cfg *config.Config, level string) (io.Closer, error) {
	opts := logger.Options{
		Dir:    cfg.Log.Dir,
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}
	if level != "" {
		opts.Level = level
	}
	return logger.Setup(opts)
}

func newFetcher(cfg *config.Config, runner scripts.Runner) *youtube.Fetcher {
	return youtube.NewFetcher(
		youtube.NewPrimaryBackend(),
		youtube.NewFallbackBackend(runner, cfg.Tools.YtDlpPath),
	)
}

func newTranscriber(cfg *config.Config, runner *scripts.ExecRunner) *transcription.TranscriptionService {
	registry := transcription.NewRegistry(runner, runner,
		transcription.ScriptConfig{
			Runner:      cfg.Tools.PythonRunner,
			ScriptsPath: cfg.Tools.ScriptsPath,
			Environment: cfg.Transcription.Environment,
		},
		transcription.WithModels(cfg.Transcription.CPUModel, cfg.Transcription.GPUModel),
	)
	return transcription.NewTranscriptionService(registry, cfg.Transcription.Timeout)
}

func openStore(cfg *config.Config) (*db.Store, error) {
	dbCfg := db.DefaultConfig()
	if cfg.Database.MaxConnections > 0 {
		dbCfg.MaxConnections = cfg.Database.MaxConnections
	}
	return db.Open(cfg.Database.Path, dbCfg)
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	runner := scripts.NewExecRunner(logrus.StandardLogger())

	store, err := openStore(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open artifact store")
	}
	sessions := session.NewManager(cfg.TempDir)
	app := &application{
		cfg:      cfg,
		runner:   runner,
		store:    store,
		sessions: sessions,
		janitor:  janitor.New(store, cfg.TempDir, cfg.Retention.TTL, janitor.WithSessions(sessions)),
		closers:  []io.Closer{store},
	}

	transcriber := newTranscriber(cfg, runner)
	app.closers = append(app.closers, transcriber)

	deps := pipeline.Deps{
		Source:      newFetcher(cfg, runner),
		Clipper:     media.NewClipper(runner, cfg.Tools.FFmpegPath, media.WithProbe(media.FFprobe(runner, cfg.Tools.FFprobePath))),
		Audio:       media.NewAudioExtractor(runner, cfg.Tools.FFmpegPath),
		Transcriber: transcriber,
		Embedder:    media.NewEmbedder(runner, cfg.Tools.FFmpegPath),
		Store:       store,
	}

	if cfg.Publish.Enabled {
		publisher, err := storage.NewSpacesClient(ctx, storage.SpacesConfig{
			AccessKey:     cfg.Publish.AccessKey,
			SecretKey:     cfg.Publish.SecretKey,
			Region:        cfg.Publish.Region,
			Endpoint:      cfg.Publish.Endpoint,
			Bucket:        cfg.Publish.Bucket,
			PublicBaseURL: cfg.Publish.PublicBaseURL,
		})
		if err != nil {
			app.Close()
			return nil, errors.Wrap(err, "failed to create publisher")
		}
		deps.Publisher = publisher
	}

	app.service = pipeline.NewService(deps)
	return app, nil
}

// Close releases session locks and closes the store.
func (a *application) Close() {
	a.janitor.Stop()
	a.sessions.CloseAll()
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close resource")
		}
	}
}
