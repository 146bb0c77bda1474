package segmenter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"webm-dash-segmenter/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const (
	manifestContentType = "application/dash+xml"
	fragmentContentType = "video/webm"

	// maxSampleBytes bounds a single ingested sample body.
	maxSampleBytes = 16 << 20
)

// Handler exposes the segmenter over HTTP using go-chi: the encoder-facing
// ingest surface, session control, and the fragment/manifest serving layer.
type Handler struct {
	session *Session
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler for the given Session. Metrics may be nil to
// disable metric recording (e.g. in tests).
func NewHandler(session *Session, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{session: session, log: log, metrics: m}
}

// Routes mounts all segmenter endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/control", func(r chi.Router) {
		r.Post("/start", h.StartRecording)
		r.Post("/stop", h.StopRecording)
		r.Post("/reset", h.ResetSession)
	})
	r.Route("/ingest", func(r chi.Router) {
		r.Post("/tracks", h.RegisterTrack)
		r.Post("/samples/{kind}", h.WriteSample)
	})
	r.Get("/stream.mpd", h.GetManifest)
	r.Get("/media/{name}", h.GetFragment)
	r.Get("/fragments", h.ListFragments)
	return r
}

// StartRecording handles POST /control/start.
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	// The loop must outlive this request.
	if err := h.session.Start(context.Background()); err != nil {
		if err == ErrSessionActive {
			w.WriteHeader(http.StatusConflict)
			return
		}
		h.log.Error("start recording failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// StopRecording handles POST /control/stop.
func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	h.session.Stop()
	w.WriteHeader(http.StatusOK)
}

// ResetSession handles POST /control/reset. A reset failure blocks the next
// session, so it is surfaced as a 500.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Reset(); err != nil {
		h.log.Error("session reset failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RegisterTrack handles POST /ingest/tracks.
// Body: { "kind": "video", "codec": "vp8" }.
func (h *Handler) RegisterTrack(w http.ResponseWriter, r *http.Request) {
	var d TrackDescriptor
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		h.log.Debug("invalid track body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.session.RegisterTrack(d); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.log.Debug("track registered",
		slog.String("kind", string(d.Kind)),
		slog.String("codec", d.Codec))
	// Accepted, not Created: after recording has started the descriptor is
	// deferred to the next session.
	w.WriteHeader(http.StatusAccepted)
}

// WriteSample handles POST /ingest/samples/{kind} with raw sample bytes.
// Always 202 on a well-formed request; dropped samples are invisible to the
// encoder by contract.
func (h *Handler) WriteSample(w http.ResponseWriter, r *http.Request) {
	kind := TrackKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sample, err := io.ReadAll(io.LimitReader(r.Body, maxSampleBytes))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.session.Write(kind, sample)
	w.WriteHeader(http.StatusAccepted)
}

// GetManifest handles GET /stream.mpd.
func (h *Handler) GetManifest(w http.ResponseWriter, r *http.Request) {
	mpd, ok := h.session.Manifest()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", manifestContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(mpd))
}

// GetFragment handles GET /media/{name}. Only names the catalog has
// published resolve; anything else is a 404.
func (h *Handler) GetFragment(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	path, ok := h.session.Catalog().Lookup(name)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", fragmentContentType)
	http.ServeFile(w, r, path)
}

// fragmentListing is the JSON shape returned by ListFragments.
type fragmentListing struct {
	SessionID string         `json:"session_id"`
	Recording bool           `json:"recording"`
	Init      *FragmentInfo  `json:"init,omitempty"`
	Media     []FragmentInfo `json:"media"`
}

// ListFragments handles GET /fragments: the currently-published set.
func (h *Handler) ListFragments(w http.ResponseWriter, r *http.Request) {
	media, init := h.session.Catalog().Snapshot()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(fragmentListing{
		SessionID: h.session.ID(),
		Recording: h.session.Recording(),
		Init:      init,
		Media:     media,
	})
}
