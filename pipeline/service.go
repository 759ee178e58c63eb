// Package pipeline runs the clip stages for a session: fetch, download and
// clip, transcribe to subtitles, and burn subtitles in.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-clip/db"
	"github.com/nijaru/yt-clip/errors"
	"github.com/nijaru/yt-clip/media"
	"github.com/nijaru/yt-clip/session"
	"github.com/nijaru/yt-clip/subtitles"
	"github.com/nijaru/yt-clip/transcription"
	"github.com/nijaru/yt-clip/validation"
	"github.com/nijaru/yt-clip/youtube"
)

type VideoSource interface {
	FetchMetadata(ctx context.Context, url string) (*youtube.Metadata, error)
	Download(ctx context.Context, md *youtube.Metadata, dir string) (string, error)
}

type Clipper interface {
	Clip(ctx context.Context, req media.ClipRequest) (*media.Artifact, error)
}

type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, lang string) (*transcription.Transcript, error)
}

type Embedder interface {
	Embed(ctx context.Context, req media.EmbedRequest) (*media.Artifact, error)
}

type ArtifactStore interface {
	SaveSession(ctx context.Context, rec db.SessionRecord) error
	RecordArtifact(ctx context.Context, rec db.ArtifactRecord) error
}

type Publisher interface {
	Publish(ctx context.Context, sessionID, path string) (string, error)
}

// Artifact kinds as recorded in the store and used in download routes.
const (
	KindSource    = "source"
	KindClip      = "clip"
	KindSubtitles = "subtitles"
	KindSubtitled = "subtitled"
)

// Deps are the stage implementations. Store and Publisher are optional.
type Deps struct {
	Source      VideoSource
	Clipper     Clipper
	Audio       AudioExtractor
	Transcriber Transcriber
	Embedder    Embedder
	Store       ArtifactStore
	Publisher   Publisher
}

type Service struct {
	deps Deps
	now  func() time.Time
}

func NewService(deps Deps) *Service {
	return &Service{deps: deps, now: time.Now}
}

// ClipOptions selects a range in whole seconds plus output settings.
type ClipOptions struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Format  string `json:"format"`
	Quality string `json:"quality"`
}

type SubtitleResult struct {
	Path       string                    `json:"path"`
	Transcript *transcription.Transcript `json:"transcript"`
}

func stageLogger(sess *session.Session, stage string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"session": sess.ID,
		"stage":   stage,
	})
}

// fail logs a stage failure once, with its classification and diagnostic.
func fail(logger *logrus.Entry, err error) error {
	entry := logger.WithError(err).WithField("kind", errors.KindOf(err))
	if appErr, ok := errors.As(err); ok && appErr.Diagnostic != "" {
		entry = entry.WithField("diagnostic", appErr.Diagnostic)
	}
	if errors.KindOf(err) == errors.KindValidation || errors.KindOf(err) == errors.KindConflict {
		entry.Warn("Stage rejected")
	} else {
		entry.Error("Stage failed")
	}
	return err
}

// FetchMetadata validates url, fetches its metadata and resets the session
// to it.
func (s *Service) FetchMetadata(ctx context.Context, sess *session.Session, url string) (*youtube.Metadata, error) {
	logger := stageLogger(sess, "metadata").WithField("url", url)

	if err := validation.ValidateURL(url); err != nil {
		return nil, fail(logger, err)
	}

	md, err := s.deps.Source.FetchMetadata(ctx, url)
	if err != nil {
		return nil, fail(logger, err)
	}
	if err := sess.SetMetadata(md); err != nil {
		return nil, fail(logger, err)
	}
	s.saveSession(ctx, sess)
	return md, nil
}

// CreateClip downloads the video once per URL and cuts the requested range.
func (s *Service) CreateClip(ctx context.Context, sess *session.Session, opts ClipOptions) (*media.Artifact, error) {
	const op = "Service.CreateClip"
	logger := stageLogger(sess, "clip").WithFields(logrus.Fields{
		"start": opts.Start,
		"end":   opts.End,
	})

	md := sess.Metadata()
	if md == nil {
		return nil, fail(logger, errors.Conflict(op, session.ErrInvalidTransition, "Fetch video information first"))
	}

	format, err := media.ParseFormat(defaultString(opts.Format, string(media.FormatMP4)))
	if err != nil {
		return nil, fail(logger, errors.InvalidInput(op, err, "Unsupported output format"))
	}
	quality, err := media.ParseQuality(defaultString(opts.Quality, string(media.QualityHigh)))
	if err != nil {
		return nil, fail(logger, errors.InvalidInput(op, err, "Unsupported quality"))
	}
	if err := validation.ValidateClipRange(opts.Start, opts.End, md.LengthSeconds); err != nil {
		return nil, fail(logger, err)
	}

	source, err := s.ensureSource(ctx, sess, md)
	if err != nil {
		return nil, fail(logger, err)
	}

	outPath := filepath.Join(sess.Dir, youtube.TimestampedName(md.Title, s.now(), format.Extension()))
	clip, err := s.deps.Clipper.Clip(ctx, media.ClipRequest{
		SourcePath: source,
		OutputPath: outPath,
		Start:      media.Timecode(opts.Start),
		End:        media.Timecode(opts.End),
		Format:     format,
		Quality:    quality,
	})
	if err != nil {
		return nil, fail(logger, err)
	}

	if err := sess.SetClip(clip); err != nil {
		return nil, fail(logger, err)
	}
	s.recordArtifact(ctx, sess, KindClip, clip.Path, string(clip.Format), clip.Size)
	s.publish(ctx, sess, KindClip, clip.Path)
	return clip, nil
}

func (s *Service) ensureSource(ctx context.Context, sess *session.Session, md *youtube.Metadata) (string, error) {
	if existing := sess.SourcePath(); existing != "" {
		if _, err := os.Stat(existing); err == nil {
			return existing, nil
		}
	}

	path, err := s.deps.Source.Download(ctx, md, sess.Dir)
	if err != nil {
		return "", err
	}
	if err := sess.SetSource(path); err != nil {
		return "", err
	}
	s.recordArtifact(ctx, sess, KindSource, path, "", fileSize(path))
	return path, nil
}

// GenerateSubtitles transcribes the current clip and writes <clip base>.srt
// next to it.
func (s *Service) GenerateSubtitles(ctx context.Context, sess *session.Session, lang string) (*SubtitleResult, error) {
	const op = "Service.GenerateSubtitles"
	logger := stageLogger(sess, "subtitles").WithField("language", lang)

	clip := sess.Clip()
	if clip == nil {
		return nil, fail(logger, errors.Conflict(op, session.ErrInvalidTransition, "Create a clip first"))
	}
	language, err := transcription.ParseLanguage(lang)
	if err != nil {
		return nil, fail(logger, err)
	}

	audioPath, err := s.deps.Audio.ExtractAudio(ctx, clip.Path, sess.Dir)
	if err != nil {
		return nil, fail(logger, err)
	}
	defer os.Remove(audioPath)

	transcript, err := s.deps.Transcriber.Transcribe(ctx, audioPath, string(language))
	if err != nil {
		return nil, fail(logger, err)
	}

	path, err := subtitles.Write(transcript.Segments, sess.Dir, baseName(clip.Path))
	if err != nil {
		return nil, fail(logger, err)
	}
	if err := sess.SetSubtitles(path, string(language)); err != nil {
		return nil, fail(logger, err)
	}

	logger.WithFields(logrus.Fields{
		"source":   transcript.Source,
		"segments": len(transcript.Segments),
		"path":     path,
	}).Info("Subtitles generated")

	s.recordArtifact(ctx, sess, KindSubtitles, path, "srt", fileSize(path))
	return &SubtitleResult{Path: path, Transcript: transcript}, nil
}

// EmbedSubtitles burns the generated subtitles into the clip.
func (s *Service) EmbedSubtitles(ctx context.Context, sess *session.Session) (*media.Artifact, error) {
	const op = "Service.EmbedSubtitles"
	logger := stageLogger(sess, "embed")

	clip := sess.Clip()
	subtitlePath := sess.SubtitlePath()
	if clip == nil || subtitlePath == "" {
		return nil, fail(logger, errors.Conflict(op, session.ErrInvalidTransition, "Generate subtitles first"))
	}

	artifact, err := s.deps.Embedder.Embed(ctx, media.EmbedRequest{
		ClipPath:     clip.Path,
		SubtitlePath: subtitlePath,
		Format:       clip.Format,
	})
	if err != nil {
		return nil, fail(logger, err)
	}
	if err := sess.SetSubtitledClip(artifact); err != nil {
		return nil, fail(logger, err)
	}

	s.recordArtifact(ctx, sess, KindSubtitled, artifact.Path, string(artifact.Format), artifact.Size)
	s.publish(ctx, sess, KindSubtitled, artifact.Path)
	return artifact, nil
}

func (s *Service) saveSession(ctx context.Context, sess *session.Session) {
	if s.deps.Store == nil {
		return
	}
	rec := db.SessionRecord{
		ID:        sess.ID,
		Dir:       sess.Dir,
		State:     string(sess.State()),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt(),
	}
	if md := sess.Metadata(); md != nil {
		rec.URL, rec.Title = md.URL, md.Title
	}
	if err := s.deps.Store.SaveSession(ctx, rec); err != nil {
		logrus.WithError(err).WithField("session", sess.ID).Warn("Failed to save session record")
	}
}

// RegisterSession records a new session so the retention sweep knows about
// its directory even if no stage ever succeeds.
func (s *Service) RegisterSession(ctx context.Context, sess *session.Session) {
	s.saveSession(ctx, sess)
}

func (s *Service) recordArtifact(ctx context.Context, sess *session.Session, kind, path, format string, size int64) {
	s.saveSession(ctx, sess)
	if s.deps.Store == nil {
		return
	}
	err := s.deps.Store.RecordArtifact(ctx, db.ArtifactRecord{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Kind:      kind,
		Path:      path,
		Format:    format,
		Size:      size,
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"session": sess.ID,
			"kind":    kind,
		}).Warn("Failed to record artifact")
	}
}

func (s *Service) publish(ctx context.Context, sess *session.Session, kind, path string) {
	if s.deps.Publisher == nil {
		return
	}
	url, err := s.deps.Publisher.Publish(ctx, sess.ID, path)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"session": sess.ID,
			"kind":    kind,
		}).Warn("Failed to publish artifact")
		return
	}
	sess.SetPublishedURL(kind, url)
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
