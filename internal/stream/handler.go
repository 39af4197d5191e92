package stream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"live-streamer/internal/streamer"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"

	// OriginalURIHeader carries the URI the HLS endpoint is about to serve.
	OriginalURIHeader = "X-Original-URI"
)

// Handler exposes the stream HTTP endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler over svc.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts the stream endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/streams", h.StartStream)
	r.Get("/streams/auth", h.Authenticate)
	r.Route("/streams/{stream_id}", func(r chi.Router) {
		r.Get("/", h.GetStream)
		r.Delete("/", h.StopStream)
		r.Post("/end", h.StopStream)
		r.Get("/master.m3u8", h.MasterPlaylist)
	})
}

// StartStream handles POST /streams.
// Body: { "video_id": 3, "source_path": "movies/3.mp4", "resolutions": ["360p", "720p"] }.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid start body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.svc.Start(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("start stream failed", slog.String("error", err.Error()))
		} else {
			h.log.Info("start stream rejected", slog.String("error", err.Error()))
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// GetStream handles GET /streams/{stream_id}.
func (h *Handler) GetStream(w http.ResponseWriter, r *http.Request) {
	id, ok := streamIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get stream failed", id, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// StopStream handles POST /streams/{stream_id}/end and DELETE /streams/{stream_id}.
func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	id, ok := streamIDParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.Stop(r.Context(), id); err != nil {
		h.fail(w, "stop stream failed", id, err)
		return
	}
	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// MasterPlaylist handles GET /streams/{stream_id}/master.m3u8.
func (h *Handler) MasterPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := streamIDParam(w, r)
	if !ok {
		return
	}
	m3u8, err := h.svc.MasterPlaylist(r.Context(), id)
	if err != nil {
		h.fail(w, "master playlist failed", id, err)
		return
	}
	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(m3u8))
}

// Authenticate handles GET /streams/auth, the subrequest the HLS endpoint
// makes before serving a playlist or segment.
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	uri := r.Header.Get(OriginalURIHeader)
	if uri == "" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := h.svc.Authenticate(r.Context(), uri); err != nil {
		if errors.Is(err, ErrAccessDenied) {
			h.log.Debug("hls access denied", slog.String("uri", uri))
			w.WriteHeader(http.StatusForbidden)
			return
		}
		h.log.Error("hls authentication failed", slog.String("uri", uri), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, id int64, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(msg, slog.Int64("id", id), slog.String("error", err.Error()))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var startErr *streamer.StartError
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, streamer.ErrInvalidDescriptor):
		return http.StatusBadRequest
	case errors.Is(err, ErrSourceNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStreamNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStreamEnded):
		return http.StatusGone
	case errors.As(err, &startErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func streamIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "stream_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid stream id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
