package transcription

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-clip/errors"
	"github.com/nijaru/yt-clip/subtitles"
)

type Source string

const (
	SourceModel Source = "model"
	SourceMock  Source = "mock"
)

// Transcript is a normalized transcription ready for the subtitle writer.
type Transcript struct {
	Segments subtitles.Track `json:"segments"`
	Language Language        `json:"language"`
	Source   Source          `json:"source"`
	Model    string          `json:"model,omitempty"`
	Kind     string          `json:"kind,omitempty"`
	// Reason explains why sample data was used.
	Reason string `json:"reason,omitempty"`
}

type TranscriptionService struct {
	registry *Registry
	timeout  time.Duration
}

func NewTranscriptionService(registry *Registry, timeout time.Duration) *TranscriptionService {
	return &TranscriptionService{registry: registry, timeout: timeout}
}

// Close stops the speech model helper.
func (s *TranscriptionService) Close() error {
	return s.registry.Close()
}

// Transcribe runs the speech model on audioPath. A missing model or failed
// inference degrades to MockTranscript; only an unsupported language is
// returned as an error.
func (s *TranscriptionService) Transcribe(ctx context.Context, audioPath string, lang string) (*Transcript, error) {
	language, err := ParseLanguage(lang)
	if err != nil {
		return nil, err
	}

	logger := logrus.WithFields(logrus.Fields{
		"audio":    audioPath,
		"language": language,
	})

	pipe, err := s.registry.Pipeline(ctx)
	if err != nil {
		return mockTranscript(language, errors.Inference("TranscriptionService.Transcribe", err, "speech model unavailable")), nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := pipe.Transcribe(ctx, audioPath, Options{Language: language, Task: "transcribe"})
	if err != nil {
		logger.WithError(err).Warn("Transcription failed, using sample subtitles")
		return mockTranscript(language, errors.Inference("TranscriptionService.Transcribe", err, "transcription failed")), nil
	}

	segments := Normalize(raw)
	if len(segments) == 0 {
		logger.Warn("Model returned no segments, using sample subtitles")
		return mockTranscript(language, errors.Inference("TranscriptionService.Transcribe", nil, "model returned no segments")), nil
	}

	logger.WithFields(logrus.Fields{
		"model":    pipe.Model().Name,
		"kind":     raw.Kind.String(),
		"segments": len(segments),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Transcription completed")

	return &Transcript{
		Segments: segments,
		Language: language,
		Source:   SourceModel,
		Model:    pipe.Model().Name,
		Kind:     raw.Kind.String(),
	}, nil
}

func mockTranscript(lang Language, cause *errors.AppError) *Transcript {
	return &Transcript{
		Segments: MockTranscript(lang),
		Language: lang,
		Source:   SourceMock,
		Reason:   cause.Error(),
	}
}
