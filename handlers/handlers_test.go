package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nijaru/yt-clip/config"
	"github.com/nijaru/yt-clip/errors"
	"github.com/nijaru/yt-clip/media"
	"github.com/nijaru/yt-clip/pipeline"
	"github.com/nijaru/yt-clip/session"
	"github.com/nijaru/yt-clip/subtitles"
	"github.com/nijaru/yt-clip/transcription"
	"github.com/nijaru/yt-clip/youtube"
)

type fakePipeline struct {
	clipSize   int64
	registered int
}

func (f *fakePipeline) RegisterSession(ctx context.Context, sess *session.Session) {
	f.registered++
}

func (f *fakePipeline) FetchMetadata(ctx context.Context, sess *session.Session, url string) (*youtube.Metadata, error) {
	if !strings.Contains(url, "youtube.com") {
		return nil, errors.InvalidInput("fake", nil, "Please enter a valid YouTube URL")
	}
	md := &youtube.Metadata{URL: url, Title: "Test Video", LengthSeconds: 3725, ViewCount: 1234567}
	return md, sess.SetMetadata(md)
}

func (f *fakePipeline) CreateClip(ctx context.Context, sess *session.Session, opts pipeline.ClipOptions) (*media.Artifact, error) {
	if sess.Metadata() == nil {
		return nil, errors.Conflict("fake", session.ErrInvalidTransition, "Fetch video information first")
	}
	if opts.End <= opts.Start {
		return nil, errors.InvalidInput("fake", nil, "End time must be after start time")
	}
	path := filepath.Join(sess.Dir, "Test_Video_1.mp4")
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	file.Truncate(f.clipSize)
	file.Close()

	clip := &media.Artifact{Path: path, Format: media.FormatMP4, Size: f.clipSize}
	return clip, sess.SetClip(clip)
}

func (f *fakePipeline) GenerateSubtitles(ctx context.Context, sess *session.Session, lang string) (*pipeline.SubtitleResult, error) {
	language, err := transcription.ParseLanguage(lang)
	if err != nil {
		return nil, err
	}
	if sess.Clip() == nil {
		return nil, errors.Conflict("fake", session.ErrInvalidTransition, "Create a clip first")
	}
	track := subtitles.Track{{Start: 0, End: 2, Text: "Hello there. General Kenobi!"}}
	path, err := subtitles.Write(track, sess.Dir, "Test_Video_1")
	if err != nil {
		return nil, err
	}
	if err := sess.SetSubtitles(path, string(language)); err != nil {
		return nil, err
	}
	return &pipeline.SubtitleResult{
		Path: path,
		Transcript: &transcription.Transcript{
			Segments: track,
			Language: language,
			Source:   transcription.SourceModel,
		},
	}, nil
}

func (f *fakePipeline) EmbedSubtitles(ctx context.Context, sess *session.Session) (*media.Artifact, error) {
	if sess.SubtitlePath() == "" {
		return nil, errors.Conflict("fake", session.ErrInvalidTransition, "Generate subtitles first")
	}
	path := media.SubtitledPath(sess.Clip().Path, media.FormatMP4)
	if err := os.WriteFile(path, []byte("burned"), 0o644); err != nil {
		return nil, err
	}
	artifact := &media.Artifact{Path: path, Format: media.FormatMP4, Size: 6}
	return artifact, sess.SetSubtitledClip(artifact)
}

type fakeStore struct {
	deleted []string
}

func (f *fakeStore) DeleteSession(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type testServer struct {
	handler  http.Handler
	pipeline *fakePipeline
	store    *fakeStore
	sessions *session.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		ServerPort: "0",
		TempDir:    t.TempDir(),
		Version:    "test",
	}
	ts := &testServer{
		pipeline: &fakePipeline{clipSize: 1024},
		store:    &fakeStore{},
		sessions: session.NewManager(cfg.TempDir),
	}
	t.Cleanup(ts.sessions.CloseAll)

	s := NewServer(cfg,
		WithPipeline(ts.pipeline),
		WithSessions(ts.sessions),
		WithStore(ts.store),
	)
	ts.handler = s.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", rr.Body.String(), err)
	}
	return out
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/sessions", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session status = %d: %s", rr.Code, rr.Body.String())
	}
	id, _ := decode(t, rr)["id"].(string)
	if id == "" {
		t.Fatal("session id missing")
	}
	return id
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decode(t, rr)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestSessionFlow(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)
	base := "/api/sessions/" + id

	if ts.pipeline.registered != 1 {
		t.Errorf("registered = %d, want 1", ts.pipeline.registered)
	}

	rr := ts.do(t, http.MethodPost, base+"/metadata", `{"url":"https://www.youtube.com/watch?v=abc"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("metadata status = %d: %s", rr.Code, rr.Body.String())
	}
	md := decode(t, rr)
	if md["duration"] != "1:02:05" || md["views"] != "1,234,567" {
		t.Errorf("metadata response = %v", md)
	}

	rr = ts.do(t, http.MethodPost, base+"/clip", `{"start":10,"end":20,"format":"mp4","quality":"low"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("clip status = %d: %s", rr.Code, rr.Body.String())
	}
	clip := decode(t, rr)
	if clip["preview_available"] != true || clip["name"] != "Test_Video_1.mp4" {
		t.Errorf("clip response = %v", clip)
	}
	if clip["download_url"] != base+"/files/clip" {
		t.Errorf("download_url = %v", clip["download_url"])
	}

	rr = ts.do(t, http.MethodPost, base+"/subtitles", `{"language":"es"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("subtitles status = %d: %s", rr.Code, rr.Body.String())
	}
	subs := decode(t, rr)
	if subs["language"] != "es" || subs["text"] != "Hello there.\n General Kenobi!\n" {
		t.Errorf("subtitles response = %v", subs)
	}

	rr = ts.do(t, http.MethodPost, base+"/embed", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("embed status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, http.MethodGet, base, "")
	if state := decode(t, rr)["state"]; state != string(session.StateSubtitlesEmbedded) {
		t.Errorf("state = %v", state)
	}

	rr = ts.do(t, http.MethodGet, base+"/files/subtitles", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("download status = %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="Test_Video_1.srt"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.Contains(rr.Body.String(), "00:00:00,000 --> 00:00:02,000") {
		t.Errorf("srt body = %q", rr.Body.String())
	}

	rr = ts.do(t, http.MethodGet, base+"/files/subtitled?inline=1", "")
	if got := rr.Header().Get("Content-Disposition"); !strings.HasPrefix(got, "inline;") {
		t.Errorf("Content-Disposition = %q", got)
	}

	rr = ts.do(t, http.MethodDelete, base, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if len(ts.store.deleted) != 1 || ts.store.deleted[0] != id {
		t.Errorf("store deletions = %v", ts.store.deleted)
	}
	if rr := ts.do(t, http.MethodGet, base, ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rr.Code)
	}
}

func TestLargeClipNotPreviewable(t *testing.T) {
	ts := newTestServer(t)
	ts.pipeline.clipSize = PreviewLimit + 1
	base := "/api/sessions/" + ts.createSession(t)

	ts.do(t, http.MethodPost, base+"/metadata", `{"url":"https://www.youtube.com/watch?v=abc"}`)
	rr := ts.do(t, http.MethodPost, base+"/clip", `{"start":0,"end":5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("clip status = %d: %s", rr.Code, rr.Body.String())
	}
	if decode(t, rr)["preview_available"] != false {
		t.Error("clip over the preview limit should not be previewable")
	}
}

func TestErrorResponses(t *testing.T) {
	ts := newTestServer(t)
	base := "/api/sessions/" + ts.createSession(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"unknown session", http.MethodGet, "/api/sessions/missing", "", http.StatusNotFound, "Session not found"},
		{"invalid url", http.MethodPost, base + "/metadata", `{"url":"https://vimeo.com/1"}`, http.StatusBadRequest, "Please enter a valid YouTube URL"},
		{"malformed body", http.MethodPost, base + "/metadata", `{"url":`, http.StatusBadRequest, "Invalid request body"},
		{"clip before metadata", http.MethodPost, base + "/clip", `{"start":0,"end":5}`, http.StatusConflict, "Fetch video information first"},
		{"embed before subtitles", http.MethodPost, base + "/embed", "", http.StatusConflict, "Generate subtitles first"},
		{"unknown file kind", http.MethodGet, base + "/files/audio", "", http.StatusBadRequest, `Unknown file kind "audio"`},
		{"file not ready", http.MethodGet, base + "/files/clip", "", http.StatusNotFound, "File not available yet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, tt.method, tt.path, tt.body)
			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (%s)", rr.Code, tt.wantCode, rr.Body.String())
			}
			if got := decode(t, rr)["error"]; got != tt.wantErr {
				t.Errorf("error = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	ts := newTestServer(t)
	base := "/api/sessions/" + ts.createSession(t)

	ts.do(t, http.MethodPost, base+"/metadata", `{"url":"https://www.youtube.com/watch?v=abc"}`)
	ts.do(t, http.MethodPost, base+"/clip", `{"start":0,"end":5}`)

	rr := ts.do(t, http.MethodPost, base+"/subtitles", `{"language":"de"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}

	rr = ts.do(t, http.MethodPost, base+"/subtitles", "")
	if rr.Code != http.StatusOK {
		t.Errorf("default language status = %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode(t, rr)["language"]; got != "en" {
		t.Errorf("language = %v, want en", got)
	}
}

func TestBusySession(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	_, release, err := ts.sessions.Acquire(id)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	rr := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/embed", "")
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}

	rr = ts.do(t, http.MethodDelete, "/api/sessions/"+id, "")
	if rr.Code != http.StatusConflict {
		t.Errorf("delete busy status = %d, want 409", rr.Code)
	}
}
