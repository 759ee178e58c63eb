package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"), DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGetSession(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	rec := SessionRecord{ID: "s1", Dir: "/tmp/s1", State: "idle"}
	if err := store.SaveSession(ctx, rec); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	rec.URL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	rec.Title = "Title"
	rec.State = "clipped"
	if err := store.SaveSession(ctx, rec); err != nil {
		t.Fatalf("Failed to update session: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.State != "clipped" || got.Title != "Title" || got.Dir != "/tmp/s1" {
		t.Errorf("unexpected session %+v", got)
	}

	missing, err := store.GetSession(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil for missing session, got %+v, %v", missing, err)
	}
}

func TestArtifacts(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	old := time.Now().Add(-48 * time.Hour)
	if err := store.SaveSession(ctx, SessionRecord{ID: "s1", Dir: "/tmp/s1", State: "clipped", CreatedAt: old, UpdatedAt: old}); err != nil {
		t.Fatal(err)
	}

	artifacts := []ArtifactRecord{
		{ID: "a1", SessionID: "s1", Kind: "clip", Path: "/tmp/s1/clip.mp4", Format: "MP4", Size: 1024},
		{ID: "a2", SessionID: "s1", Kind: "subtitles", Path: "/tmp/s1/clip.srt", Size: 64},
	}
	for _, a := range artifacts {
		if err := store.RecordArtifact(ctx, a); err != nil {
			t.Fatalf("Failed to record artifact: %v", err)
		}
	}

	list, err := store.ListArtifacts(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Kind != "clip" || list[1].Size != 64 {
		t.Errorf("unexpected artifacts %+v", list)
	}

	got, _ := store.GetSession(ctx, "s1")
	if !got.UpdatedAt.After(old) {
		t.Error("recording an artifact should touch the session")
	}
}

func TestExpiredAndDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	now := time.Now()
	sessions := []SessionRecord{
		{ID: "old", Dir: "/tmp/old", State: "clipped", UpdatedAt: now.Add(-25 * time.Hour)},
		{ID: "fresh", Dir: "/tmp/fresh", State: "idle", UpdatedAt: now},
	}
	for _, s := range sessions {
		if err := store.SaveSession(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.RecordArtifact(ctx, ArtifactRecord{ID: "a", SessionID: "fresh", Kind: "clip", Path: "/tmp/fresh/c.mp4", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}

	expired, err := store.ExpiredSessions(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].ID != "old" {
		t.Fatalf("unexpected expired sessions %+v", expired)
	}

	if err := store.DeleteSession(ctx, "fresh"); err != nil {
		t.Fatalf("Failed to delete session: %v", err)
	}
	list, _ := store.ListArtifacts(ctx, "fresh")
	if len(list) != 0 {
		t.Errorf("expected artifacts deleted with session, got %d", len(list))
	}
}
