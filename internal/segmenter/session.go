package segmenter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"webm-dash-segmenter/internal/platform/metrics"

	"github.com/google/uuid"
)

// DefaultInterval is used when Config leaves the fragment interval unset.
const DefaultInterval = 2 * time.Second

// Config is the configuration surface the pipeline consumes.
type Config struct {
	// OutputDir holds the container file, the fragments, and nothing else.
	OutputDir string

	// ContainerName is the filename of the growing container inside
	// OutputDir. Default "stream.webm".
	ContainerName string

	// FragmentPrefix prefixes numbered media fragments. Default "media".
	FragmentPrefix string

	// InitFragmentName is the fixed name of the initialization fragment.
	// Default "init.webm".
	InitFragmentName string

	// FragmentExt is the media fragment extension. Default ".webm".
	FragmentExt string

	// Interval is the cut cadence. Default DefaultInterval.
	Interval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ContainerName == "" {
		c.ContainerName = "stream.webm"
	}
	if c.FragmentPrefix == "" {
		c.FragmentPrefix = "media"
	}
	if c.InitFragmentName == "" {
		c.InitFragmentName = "init.webm"
	}
	if c.FragmentExt == "" {
		c.FragmentExt = ".webm"
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return c
}

// Session owns one recording pipeline: the container stream, its cutter,
// the fragment catalog, the scheduler, and the cached manifest. The caller
// starts, stops and resets it; the scheduler holds this session's cutter
// rather than any free-floating shared state.
type Session struct {
	id  string
	cfg Config
	log *slog.Logger
	met *metrics.Metrics

	stream  *ContainerStream
	catalog *Catalog

	mu       sync.Mutex
	cutter   *Cutter
	sched    *Scheduler
	manifest string
}

// NewSession prepares a session writing into cfg.OutputDir, creating the
// directory if needed. Metrics may be nil.
func NewSession(cfg Config, log *slog.Logger, met *metrics.Metrics) (*Session, error) {
	cfg = cfg.withDefaults()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		log:     log,
		met:     met,
		stream:  NewContainerStream(filepath.Join(cfg.OutputDir, cfg.ContainerName)),
		catalog: NewCatalog(cfg.OutputDir, cfg.FragmentPrefix, cfg.InitFragmentName, cfg.FragmentExt),
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Catalog exposes the fragment catalog to the serving layer.
func (s *Session) Catalog() *Catalog { return s.catalog }

// RegisterTrack registers a track with the container. Safe at any time;
// after recording has started for the current session the descriptor only
// takes effect on the next Start.
func (s *Session) RegisterTrack(d TrackDescriptor) error {
	if !d.Kind.Valid() {
		return fmt.Errorf("unknown track kind %q", d.Kind)
	}
	s.stream.RegisterTrack(d)
	return nil
}

// Write delivers sample bytes from the encoder pipeline. Returns false when
// the sample was dropped (cut in progress, track unregistered, or recording
// not started); drops are counted but never surfaced as errors.
func (s *Session) Write(kind TrackKind, sample []byte) bool {
	ok := s.stream.Write(kind, sample)
	if !ok && s.met != nil {
		s.met.IncDroppedWrites()
	}
	return ok
}

// Start transitions Idle → Recording: the container is recreated with its
// known tracks, writing begins, the manifest is rendered and fixed for the
// session, and the scheduler loop starts. ctx bounds the loop's lifetime.
// Returns ErrSessionActive if already recording.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sched != nil && s.sched.Running() {
		return ErrSessionActive
	}

	// A session always begins with a clean catalog. Fragments left over
	// from a stopped session belong to a different container and must not
	// be served under this session's manifest, and numbering must restart
	// at zero.
	if err := s.catalog.Reset(); err != nil {
		return fmt.Errorf("reset catalog: %w", err)
	}
	if err := s.stream.Reset(); err != nil {
		return fmt.Errorf("prepare container: %w", err)
	}

	s.cutter = NewCutter(s.stream)
	s.stream.BeginWriting()

	tracks := make([]TrackDescriptor, 0, 2)
	for _, d := range s.stream.Tracks() {
		tracks = append(tracks, d)
	}
	s.manifest = BuildLiveManifest(ManifestParams{
		AvailabilityStart: time.Now().UTC(),
		FragmentDuration:  s.cfg.Interval,
		InitName:          s.cfg.InitFragmentName,
		MediaPrefix:       s.cfg.FragmentPrefix,
		MediaExt:          s.cfg.FragmentExt,
		Tracks:            tracks,
	})

	s.sched = NewScheduler(s.cfg.Interval, s.cutter, s.catalog, s.log, s.met)
	s.sched.Start(ctx)

	if s.met != nil {
		s.met.SetRecording(true)
	}
	s.log.Info("recording started",
		slog.String("session_id", s.id),
		slog.Duration("interval", s.cfg.Interval),
		slog.String("output_dir", s.cfg.OutputDir))
	return nil
}

// Stop transitions Recording → Idle. Pending ticks are abandoned; an
// in-flight cut completes first. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.sched != nil {
		s.sched.Stop()
	}
	if s.met != nil {
		s.met.SetRecording(false)
	}
}

// Reset stops recording, deletes every published fragment, recreates the
// empty container (reapplying known tracks) and rewinds numbering to zero.
// A failure blocks the next session and is surfaced.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.manifest = ""

	if err := s.catalog.Reset(); err != nil {
		return fmt.Errorf("reset catalog: %w", err)
	}
	if err := s.stream.Reset(); err != nil {
		return fmt.Errorf("reset container: %w", err)
	}
	s.cutter = NewCutter(s.stream)
	s.log.Info("session reset", slog.String("session_id", s.id))
	return nil
}

// Manifest returns the manifest rendered at Start. ok is false before the
// first Start of a session.
func (s *Session) Manifest() (mpd string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifest, s.manifest != ""
}

// Recording reports whether the scheduler loop is active.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched != nil && s.sched.Running()
}

// Close stops the session and releases the container file handle.
func (s *Session) Close() error {
	s.Stop()
	return s.stream.Close()
}
