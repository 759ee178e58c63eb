package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-clip/errors"
	"github.com/nijaru/yt-clip/media"
	"github.com/nijaru/yt-clip/middleware"
	"github.com/nijaru/yt-clip/pipeline"
	"github.com/nijaru/yt-clip/session"
	"github.com/nijaru/yt-clip/storage"
	"github.com/nijaru/yt-clip/subtitles"
	"github.com/nijaru/yt-clip/utils"
)

// PreviewLimit is the largest clip the UI is told it can preview inline.
const PreviewLimit = 50 * 1024 * 1024

const maxBodyBytes = 1 << 20

type metadataRequest struct {
	URL string `json:"url"`
}

type subtitlesRequest struct {
	Language string `json:"language"`
}

type artifactResponse struct {
	*media.Artifact
	Name             string `json:"name"`
	HumanSize        string `json:"human_size"`
	PreviewAvailable bool   `json:"preview_available"`
	DownloadURL      string `json:"download_url"`
	PublishedURL     string `json:"published_url,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create()
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	if s.pipeline != nil {
		s.pipeline.RegisterSession(r.Context(), sess)
	}
	utils.RespondWithJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Close(id, true); err != nil {
		utils.RespondWithError(w, err)
		return
	}
	if s.store != nil {
		if err := s.store.DeleteSession(r.Context(), id); err != nil {
			middleware.GetLogger(r.Context()).WithError(err).Warn("Failed to delete session record")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFetchMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataRequest
	sess, release, ok := s.begin(w, r, &req)
	if !ok {
		return
	}
	defer release()

	md, err := s.pipeline.FetchMetadata(r.Context(), sess, req.URL)
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"metadata": md,
		"duration": utils.FormatDuration(md.LengthSeconds),
		"views":    utils.HumanCount(md.ViewCount),
	})
}

func (s *Server) handleCreateClip(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ClipOptions
	sess, release, ok := s.begin(w, r, &req)
	if !ok {
		return
	}
	defer release()

	clip, err := s.pipeline.CreateClip(r.Context(), sess, req)
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, newArtifactResponse(sess, pipeline.KindClip, clip))
}

func (s *Server) handleGenerateSubtitles(w http.ResponseWriter, r *http.Request) {
	req := subtitlesRequest{Language: "en"}
	sess, release, ok := s.begin(w, r, &req)
	if !ok {
		return
	}
	defer release()

	result, err := s.pipeline.GenerateSubtitles(r.Context(), sess, req.Language)
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}

	t := result.Transcript
	track := t.Segments
	if data, err := os.ReadFile(result.Path); err == nil {
		if written, err := subtitles.ParseSRT(data); err == nil {
			track = written
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"path":         result.Path,
		"name":         filepath.Base(result.Path),
		"language":     t.Language,
		"source":       t.Source,
		"model":        t.Model,
		"reason":       t.Reason,
		"segments":     len(track),
		"text":         utils.FormatText(track.Text()),
		"download_url": downloadURL(sess, pipeline.KindSubtitles),
	})
}

func (s *Server) handleEmbedSubtitles(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := s.begin(w, r, nil)
	if !ok {
		return
	}
	defer release()

	artifact, err := s.pipeline.EmbedSubtitles(r.Context(), sess)
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, newArtifactResponse(sess, pipeline.KindSubtitled, artifact))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	const op = "Server.handleDownload"

	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}

	var path string
	switch kind := chi.URLParam(r, "kind"); kind {
	case pipeline.KindClip:
		if clip := sess.Clip(); clip != nil {
			path = clip.Path
		}
	case pipeline.KindSubtitles:
		path = sess.SubtitlePath()
	case pipeline.KindSubtitled:
		if clip := sess.SubtitledClip(); clip != nil {
			path = clip.Path
		}
	default:
		utils.RespondWithError(w, errors.InvalidInput(op, nil, fmt.Sprintf("Unknown file kind %q", kind)))
		return
	}
	if path == "" {
		utils.RespondWithError(w, errors.NotFound(op, nil, "File not available yet"))
		return
	}

	f, err := os.Open(path)
	if err != nil {
		utils.RespondWithError(w, errors.NotFound(op, err, "File not found"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		utils.RespondWithError(w, errors.Internal(op, err, "Error reading file"))
		return
	}

	disposition := "attachment"
	if r.URL.Query().Get("inline") == "1" {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", storage.ContentType(path))
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

// begin resolves the session, acquires it and decodes the optional JSON
// body into dst. It writes the error response itself when ok is false.
func (s *Server) begin(w http.ResponseWriter, r *http.Request, dst interface{}) (sess *session.Session, release func(), ok bool) {
	const op = "Server.begin"

	if s.pipeline == nil {
		utils.RespondWithError(w, errors.Internal(op, nil, "Pipeline not configured"))
		return nil, nil, false
	}

	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		utils.RespondWithError(w, err)
		return nil, nil, false
	}

	if dst != nil {
		body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(body).Decode(dst); err != nil && err != io.EOF {
			utils.RespondWithError(w, errors.InvalidInput(op, err, "Invalid request body"))
			return nil, nil, false
		}
	}

	sess, release, err := s.sessions.Acquire(id)
	if err != nil {
		utils.RespondWithError(w, err)
		return nil, nil, false
	}

	middleware.GetLogger(r.Context()).WithFields(logrus.Fields{
		"session": id,
		"state":   sess.State(),
	}).Debug("Stage starting")

	return sess, release, true
}

func newArtifactResponse(sess *session.Session, kind string, a *media.Artifact) artifactResponse {
	return artifactResponse{
		Artifact:         a,
		Name:             filepath.Base(a.Path),
		HumanSize:        utils.HumanBytes(a.Size),
		PreviewAvailable: a.Size <= PreviewLimit,
		DownloadURL:      downloadURL(sess, kind),
		PublishedURL:     sess.Snapshot().PublishedURLs[kind],
	}
}

func downloadURL(sess *session.Session, kind string) string {
	return "/api/sessions/" + sess.ID + "/files/" + kind
}
