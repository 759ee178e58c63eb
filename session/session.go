// Package session tracks one user's progress through the clip pipeline and
// owns the working directory that progress lives in.
package session

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/nijaru/yt-clip/errors"
	"github.com/nijaru/yt-clip/media"
	"github.com/nijaru/yt-clip/youtube"
)

type State string

const (
	StateIdle               State = "idle"
	StateMetadataFetched    State = "metadata_fetched"
	StateClipped            State = "clipped"
	StateSubtitlesGenerated State = "subtitles_generated"
	StateSubtitlesEmbedded  State = "subtitles_embedded"
)

// LockFileName marks a directory as owned by a live session.
const LockFileName = ".session.lock"

var ErrInvalidTransition = stderrors.New("invalid session state transition")

var stateOrder = map[State]int{
	StateIdle:               0,
	StateMetadataFetched:    1,
	StateClipped:            2,
	StateSubtitlesGenerated: 3,
	StateSubtitlesEmbedded:  4,
}

// Session is the state of one pipeline run. All mutating methods are safe
// for concurrent use, but pipeline stages are expected to run one at a time.
type Session struct {
	ID        string
	Dir       string
	CreatedAt time.Time

	mu            sync.RWMutex
	state         State
	metadata      *youtube.Metadata
	sourcePath    string
	clip          *media.Artifact
	subtitlePath  string
	language      string
	subtitled     *media.Artifact
	publishedURLs map[string]string
	updatedAt     time.Time

	lock *flock.Flock
}

// Open creates dir if needed and takes the exclusive lock on it.
func Open(id, dir string) (*Session, error) {
	const op = "session.Open"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Write(op, err, "Error creating session directory")
	}

	lock := flock.New(filepath.Join(dir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Internal(op, err, "Error locking session directory")
	}
	if !locked {
		return nil, errors.Conflict(op, nil, "Session directory is in use")
	}

	now := time.Now()
	return &Session{
		ID:            id,
		Dir:           dir,
		CreatedAt:     now,
		state:         StateIdle,
		publishedURLs: map[string]string{},
		updatedAt:     now,
		lock:          lock,
	}, nil
}

func (s *Session) transitionError(op string, want string) error {
	return errors.Conflict(op, ErrInvalidTransition,
		fmt.Sprintf("%s (current state: %s)", want, s.state))
}

// SetMetadata is legal from any state; a new URL discards everything
// derived from the previous one.
func (s *Session) SetMetadata(md *youtube.Metadata) error {
	if md == nil {
		return errors.InvalidInput("Session.SetMetadata", nil, "metadata is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metadata = md
	s.sourcePath = ""
	s.clip = nil
	s.clearSubtitlesLocked()
	s.publishedURLs = map[string]string{}
	s.setStateLocked(StateMetadataFetched)
	return nil
}

// SetSource records the downloaded full video for the current metadata.
func (s *Session) SetSource(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stateOrder[s.state] < stateOrder[StateMetadataFetched] {
		return s.transitionError("Session.SetSource", "Fetch video information first")
	}
	s.sourcePath = path
	s.updatedAt = time.Now()
	return nil
}

// SetClip is legal once metadata exists. A new clip invalidates subtitles.
func (s *Session) SetClip(clip *media.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stateOrder[s.state] < stateOrder[StateMetadataFetched] {
		return s.transitionError("Session.SetClip", "Fetch video information first")
	}
	s.clip = clip
	s.clearSubtitlesLocked()
	s.setStateLocked(StateClipped)
	return nil
}

// SetSubtitles is legal once a clip exists. Regenerating replaces any
// previously embedded clip.
func (s *Session) SetSubtitles(path, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stateOrder[s.state] < stateOrder[StateClipped] {
		return s.transitionError("Session.SetSubtitles", "Create a clip first")
	}
	s.subtitlePath = path
	s.language = language
	s.subtitled = nil
	s.setStateLocked(StateSubtitlesGenerated)
	return nil
}

// SetSubtitledClip requires generated subtitles.
func (s *Session) SetSubtitledClip(artifact *media.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stateOrder[s.state] < stateOrder[StateSubtitlesGenerated] {
		return s.transitionError("Session.SetSubtitledClip", "Generate subtitles first")
	}
	s.subtitled = artifact
	s.setStateLocked(StateSubtitlesEmbedded)
	return nil
}

// SetPublishedURL records where an artifact kind was uploaded.
func (s *Session) SetPublishedURL(kind, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishedURLs[kind] = url
}

func (s *Session) clearSubtitlesLocked() {
	s.subtitlePath = ""
	s.language = ""
	s.subtitled = nil
}

func (s *Session) setStateLocked(state State) {
	s.state = state
	s.updatedAt = time.Now()
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Metadata() *youtube.Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

func (s *Session) SourcePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sourcePath
}

func (s *Session) Clip() *media.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clip
}

func (s *Session) SubtitlePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subtitlePath
}

func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

func (s *Session) SubtitledClip() *media.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subtitled
}

func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Snapshot is a point-in-time copy for serialization.
type Snapshot struct {
	ID            string            `json:"id"`
	State         State             `json:"state"`
	Metadata      *youtube.Metadata `json:"metadata,omitempty"`
	Clip          *media.Artifact   `json:"clip,omitempty"`
	SubtitlePath  string            `json:"subtitle_path,omitempty"`
	Language      string            `json:"language,omitempty"`
	SubtitledClip *media.Artifact   `json:"subtitled_clip,omitempty"`
	PublishedURLs map[string]string `json:"published_urls,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	urls := make(map[string]string, len(s.publishedURLs))
	for k, v := range s.publishedURLs {
		urls[k] = v
	}
	return Snapshot{
		ID:            s.ID,
		State:         s.state,
		Metadata:      s.metadata,
		Clip:          s.clip,
		SubtitlePath:  s.subtitlePath,
		Language:      s.language,
		SubtitledClip: s.subtitled,
		PublishedURLs: urls,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.updatedAt,
	}
}

// Close releases the directory lock. The directory itself is kept.
func (s *Session) Close() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

// Remove releases the lock and deletes the session directory.
func (s *Session) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	return os.RemoveAll(s.Dir)
}
