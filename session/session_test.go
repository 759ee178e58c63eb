package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/nijaru/yt-clip/errors"
	"github.com/nijaru/yt-clip/media"
	"github.com/nijaru/yt-clip/youtube"
)

func openTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := Open("test", filepath.Join(t.TempDir(), "test"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTransitions(t *testing.T) {
	s := openTestSession(t)
	clip := &media.Artifact{Path: "clip.mp4", Format: media.FormatMP4}

	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %s", s.State())
	}

	steps := []struct {
		name    string
		apply   func() error
		wantErr bool
		state   State
	}{
		{"clip before metadata", func() error { return s.SetClip(clip) }, true, StateIdle},
		{"subtitles before clip", func() error { return s.SetSubtitles("a.srt", "en") }, true, StateIdle},
		{"metadata", func() error { return s.SetMetadata(&youtube.Metadata{Title: "t"}) }, false, StateMetadataFetched},
		{"embed before subtitles", func() error { return s.SetSubtitledClip(clip) }, true, StateMetadataFetched},
		{"clip", func() error { return s.SetClip(clip) }, false, StateClipped},
		{"subtitles", func() error { return s.SetSubtitles("a.srt", "es") }, false, StateSubtitlesGenerated},
		{"embed", func() error { return s.SetSubtitledClip(clip) }, false, StateSubtitlesEmbedded},
		{"regenerate subtitles", func() error { return s.SetSubtitles("b.srt", "en") }, false, StateSubtitlesGenerated},
		{"new clip resets subtitles", func() error { return s.SetClip(clip) }, false, StateClipped},
		{"new url resets everything", func() error { return s.SetMetadata(&youtube.Metadata{Title: "u"}) }, false, StateMetadataFetched},
	}

	for _, step := range steps {
		err := step.apply()
		if (err != nil) != step.wantErr {
			t.Fatalf("%s: error = %v, wantErr %v", step.name, err, step.wantErr)
		}
		if err != nil {
			if !errors.Is(err, ErrInvalidTransition) || errors.KindOf(err) != errors.KindConflict {
				t.Errorf("%s: expected invalid transition conflict, got %v", step.name, err)
			}
		}
		if s.State() != step.state {
			t.Fatalf("%s: state = %s, want %s", step.name, s.State(), step.state)
		}
	}

	if s.Clip() != nil || s.SubtitlePath() != "" || s.SubtitledClip() != nil {
		t.Error("expected derived state cleared after new metadata")
	}
}

func TestSetClipClearsSubtitleState(t *testing.T) {
	s := openTestSession(t)
	clip := &media.Artifact{Path: "clip.mp4"}

	s.SetMetadata(&youtube.Metadata{Title: "t"})
	s.SetClip(clip)
	s.SetSubtitles("clip.srt", "en")
	s.SetSubtitledClip(&media.Artifact{Path: "clip_subtitled.mp4"})

	if err := s.SetClip(&media.Artifact{Path: "clip2.mp4"}); err != nil {
		t.Fatal(err)
	}
	if s.SubtitlePath() != "" || s.Language() != "" || s.SubtitledClip() != nil {
		t.Errorf("subtitle state not cleared: %+v", s.Snapshot())
	}
	if s.Clip().Path != "clip2.mp4" {
		t.Errorf("unexpected clip %s", s.Clip().Path)
	}
}

func TestDirectoryLockIsExclusive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "owned")
	first, err := Open("a", dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Open("b", dir); errors.KindOf(err) != errors.KindConflict {
		t.Fatalf("expected conflict for second owner, got %v", err)
	}

	if err := first.Close(); err != nil {
		t.Fatal(err)
	}
	second, err := Open("b", dir)
	if err != nil {
		t.Fatalf("expected lock to be free after Close, got %v", err)
	}
	if err := second.Remove(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("expected directory to be removed")
	}
}

func TestManager(t *testing.T) {
	m := NewManager(t.TempDir())

	s, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if filepath.Dir(s.Dir) != m.BaseDir() {
		t.Errorf("session dir %s not under %s", s.Dir, m.BaseDir())
	}

	got, err := m.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if _, err := m.Get("missing"); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}

	if err := m.Close(s.ID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.Dir); !os.IsNotExist(err) {
		t.Error("expected session directory removed")
	}
	if err := m.Close(s.ID, false); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("expected not found on second close, got %v", err)
	}

	kept, _ := m.Create()
	m.CloseAll()
	if m.Len() != 0 {
		t.Errorf("expected no live sessions, got %d", m.Len())
	}
	if _, err := os.Stat(kept.Dir); err != nil {
		t.Errorf("CloseAll should keep directories: %v", err)
	}
}

func TestSnapshotCopiesPublishedURLs(t *testing.T) {
	s := openTestSession(t)
	s.SetPublishedURL("clip", "https://cdn/clip.mp4")

	snap := s.Snapshot()
	snap.PublishedURLs["clip"] = "changed"

	if s.Snapshot().PublishedURLs["clip"] != "https://cdn/clip.mp4" {
		t.Error("snapshot must not alias session state")
	}
}

func TestManagerAcquire(t *testing.T) {
	m := NewManager(t.TempDir())
	s, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}

	got, release, err := m.Acquire(s.ID)
	if err != nil || got != s {
		t.Fatalf("Acquire() = %v, %v", got, err)
	}
	if !m.Busy(s.ID) {
		t.Error("expected session busy")
	}
	if _, _, err := m.Acquire(s.ID); errors.KindOf(err) != errors.KindConflict {
		t.Errorf("expected conflict on second acquire, got %v", err)
	}
	if err := m.Close(s.ID, true); errors.KindOf(err) != errors.KindConflict {
		t.Errorf("expected conflict closing busy session, got %v", err)
	}

	release()
	release()
	if m.Busy(s.ID) {
		t.Error("expected session idle after release")
	}
	if _, _, err := m.Acquire("missing"); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestManagerExpire(t *testing.T) {
	m := NewManager(t.TempDir())
	idle, _ := m.Create()
	busy, _ := m.Create()
	_, release, err := m.Acquire(busy.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if ids := m.Expire(time.Now().Add(-time.Hour)); len(ids) != 0 {
		t.Errorf("fresh sessions expired: %v", ids)
	}

	ids := m.Expire(time.Now().Add(time.Hour))
	if len(ids) != 1 || ids[0] != idle.ID {
		t.Fatalf("Expire() = %v, want [%s]", ids, idle.ID)
	}
	if _, err := m.Get(idle.ID); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("expired session still live: %v", err)
	}
	if _, err := m.Get(busy.ID); err != nil {
		t.Errorf("busy session expired: %v", err)
	}

	// the directory stays and its lock is free for the retention sweep
	if _, err := os.Stat(idle.Dir); err != nil {
		t.Fatalf("expired session directory missing: %v", err)
	}
	lock := flock.New(filepath.Join(idle.Dir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("expected lock released, got %v, %v", locked, err)
	}
	lock.Unlock()
}
