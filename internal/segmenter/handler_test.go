package segmenter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webm-dash-segmenter/internal/platform/logger"

	"github.com/go-chi/chi/v5"
)

func newTestHandler(t *testing.T) (*Handler, *Session) {
	t.Helper()
	session, err := NewSession(Config{
		OutputDir: t.TempDir(),
		Interval:  time.Hour,
	}, logger.Discard(), nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return NewHandler(session, logger.Discard(), nil), session
}

func newTestRouter(h *Handler) chi.Router {
	return h.Routes()
}

func do(t *testing.T, r chi.Router, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RegisterTrack(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	b, _ := json.Marshal(map[string]string{"kind": "video", "codec": "vp8"})
	rec := do(t, r, http.MethodPost, "/ingest/tracks", b)
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
}

func TestHandler_RegisterTrack_bad_request(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	rec := do(t, r, http.MethodPost, "/ingest/tracks", []byte("not json"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}

	b, _ := json.Marshal(map[string]string{"kind": "subtitles", "codec": "x"})
	rec = do(t, r, http.MethodPost, "/ingest/tracks", b)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: expected 400, got %d", rec.Code)
	}
}

func TestHandler_Start_conflict_when_recording(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	b, _ := json.Marshal(map[string]string{"kind": "video", "codec": "vp8"})
	if rec := do(t, r, http.MethodPost, "/ingest/tracks", b); rec.Code != http.StatusAccepted {
		t.Fatalf("setup: track registration got %d", rec.Code)
	}

	if rec := do(t, r, http.MethodPost, "/control/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/control/start", nil); rec.Code != http.StatusConflict {
		t.Errorf("second start: expected 409, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/control/stop", nil); rec.Code != http.StatusOK {
		t.Errorf("stop: expected 200, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/control/start", nil); rec.Code != http.StatusOK {
		t.Errorf("restart after stop: expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetManifest(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	if rec := do(t, r, http.MethodGet, "/stream.mpd", nil); rec.Code != http.StatusNotFound {
		t.Errorf("manifest before start: expected 404, got %d", rec.Code)
	}

	b, _ := json.Marshal(map[string]string{"kind": "video", "codec": "vp8"})
	do(t, r, http.MethodPost, "/ingest/tracks", b)
	do(t, r, http.MethodPost, "/control/start", nil)

	rec := do(t, r, http.MethodGet, "/stream.mpd", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("manifest after start: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/dash+xml" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`startNumber="0"`)) {
		t.Errorf("manifest body missing startNumber:\n%s", rec.Body.String())
	}
}

func TestHandler_WriteSample(t *testing.T) {
	h, session := newTestHandler(t)
	r := newTestRouter(h)

	if rec := do(t, r, http.MethodPost, "/ingest/samples/closed-captions", []byte("x")); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: expected 400, got %d", rec.Code)
	}

	// Dropped samples are invisible: still 202 before recording starts.
	if rec := do(t, r, http.MethodPost, "/ingest/samples/video", []byte("x")); rec.Code != http.StatusAccepted {
		t.Errorf("pre-start sample: expected 202, got %d", rec.Code)
	}

	b, _ := json.Marshal(map[string]string{"kind": "video", "codec": "vp8"})
	do(t, r, http.MethodPost, "/ingest/tracks", b)
	do(t, r, http.MethodPost, "/control/start", nil)

	if rec := do(t, r, http.MethodPost, "/ingest/samples/video", []byte("sample bytes")); rec.Code != http.StatusAccepted {
		t.Errorf("sample: expected 202, got %d", rec.Code)
	}
	if session.stream.Flushed() != int64(len("sample bytes")) {
		t.Errorf("flushed: got %d, want %d", session.stream.Flushed(), len("sample bytes"))
	}
}

func TestHandler_GetFragment(t *testing.T) {
	h, session := newTestHandler(t)
	r := newTestRouter(h)

	if rec := do(t, r, http.MethodGet, "/media/media0.webm", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unpublished fragment: expected 404, got %d", rec.Code)
	}

	b, _ := json.Marshal(map[string]string{"kind": "video", "codec": "vp8"})
	do(t, r, http.MethodPost, "/ingest/tracks", b)
	do(t, r, http.MethodPost, "/control/start", nil)
	do(t, r, http.MethodPost, "/ingest/samples/video", clusterMarker)
	do(t, r, http.MethodPost, "/ingest/samples/video", []byte("payload"))

	// Drive cuts directly instead of waiting out the interval.
	sched := NewScheduler(time.Hour, session.cutter, session.catalog, logger.Discard(), nil)
	if err := sched.Tick(); err != nil {
		t.Fatalf("init tick: %v", err)
	}
	if err := sched.Tick(); err != nil {
		t.Fatalf("media tick: %v", err)
	}

	rec := do(t, r, http.MethodGet, "/media/init.webm", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("init fragment: expected 200, got %d", rec.Code)
	}

	rec = do(t, r, http.MethodGet, "/media/media0.webm", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("media fragment: expected 200, got %d", rec.Code)
	}
	want := append(append([]byte{}, clusterMarker...), []byte("payload")...)
	if !bytes.Equal(rec.Body.Bytes(), want) {
		t.Errorf("fragment body: got %q, want %q", rec.Body.Bytes(), want)
	}
}

func TestHandler_ListFragments(t *testing.T) {
	h, session := newTestHandler(t)
	r := newTestRouter(h)

	b, _ := json.Marshal(map[string]string{"kind": "video", "codec": "vp8"})
	do(t, r, http.MethodPost, "/ingest/tracks", b)
	do(t, r, http.MethodPost, "/control/start", nil)
	do(t, r, http.MethodPost, "/ingest/samples/video", clusterMarker)

	sched := NewScheduler(time.Hour, session.cutter, session.catalog, logger.Discard(), nil)
	if err := sched.Tick(); err != nil {
		t.Fatalf("init tick: %v", err)
	}
	if err := sched.Tick(); err != nil {
		t.Fatalf("media tick: %v", err)
	}

	rec := do(t, r, http.MethodGet, "/fragments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var listing struct {
		SessionID string         `json:"session_id"`
		Recording bool           `json:"recording"`
		Init      *FragmentInfo  `json:"init"`
		Media     []FragmentInfo `json:"media"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if listing.SessionID != session.ID() {
		t.Errorf("session_id: got %q, want %q", listing.SessionID, session.ID())
	}
	if !listing.Recording {
		t.Error("recording should be true")
	}
	if listing.Init == nil || listing.Init.Name != "init.webm" {
		t.Errorf("init entry: %+v", listing.Init)
	}
	if len(listing.Media) != 1 || listing.Media[0].Identity != 0 {
		t.Errorf("media entries: %+v", listing.Media)
	}
}

func TestHandler_Reset(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	b, _ := json.Marshal(map[string]string{"kind": "video", "codec": "vp8"})
	do(t, r, http.MethodPost, "/ingest/tracks", b)
	do(t, r, http.MethodPost, "/control/start", nil)

	if rec := do(t, r, http.MethodPost, "/control/reset", nil); rec.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/stream.mpd", nil); rec.Code != http.StatusNotFound {
		t.Errorf("manifest after reset: expected 404, got %d", rec.Code)
	}
}
