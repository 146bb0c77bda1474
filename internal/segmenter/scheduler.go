package segmenter

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"webm-dash-segmenter/internal/platform/metrics"
)

// Scheduler drives the Cutter on a fixed wall-clock cadence. It is the only
// caller of cutting operations, so cuts are serialized by the loop itself
// and never overlap. On each tick it produces the initialization fragment
// if that is still pending (retrying until a cluster boundary has been
// flushed), otherwise it cuts and publishes the next media fragment.
//
// A failed tick is logged and skipped; the loop never terminates because of
// one. Stopping is observed within one interval; an in-flight cut completes
// before the loop exits.
type Scheduler struct {
	interval time.Duration
	cutter   *Cutter
	catalog  *Catalog
	log      *slog.Logger
	met      *metrics.Metrics

	mu      sync.Mutex // serializes Start and Stop
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler returns a stopped scheduler. Metrics may be nil to disable
// metric recording (e.g. in tests).
func NewScheduler(interval time.Duration, cutter *Cutter, catalog *Catalog, log *slog.Logger, met *metrics.Metrics) *Scheduler {
	return &Scheduler{
		interval: interval,
		cutter:   cutter,
		catalog:  catalog,
		log:      log,
		met:      met,
	}
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Start launches the tick loop. Idempotent: starting a running scheduler is
// a no-op. The loop stops when ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.run(ctx)
}

// Stop cancels the loop and waits for it to exit. Pending ticks are
// abandoned, not completed. Idempotent, and safe against a concurrent
// Start: cancel and done are published under mu before running is set.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return
	}
	s.cancel()
	<-s.done
	s.running.Store(false)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.running.Store(false)
			return
		case <-ticker.C:
			if err := s.Tick(); err != nil {
				s.log.Error("tick failed", slog.String("error", err.Error()))
				if s.met != nil {
					s.met.IncTickErrors()
				}
			}
		}
	}
}

// Tick performs one cut attempt: the initialization fragment while it is
// still pending, a media fragment afterwards. Exported so tests can drive
// the schedule deterministically without the wall clock.
func (s *Scheduler) Tick() error {
	if !s.cutter.InitCut() {
		return s.cutInit()
	}
	return s.cutMedia()
}

func (s *Scheduler) cutInit() error {
	dst, err := s.catalog.CreateInit()
	if err != nil {
		return err
	}
	return s.cutInitTo(dst)
}

func (s *Scheduler) cutInitTo(dst io.WriteCloser) error {
	n, produced, err := s.cutter.CutInitFragment(dst)
	cerr := dst.Close()
	if err != nil {
		// The cutter did not advance; the attempt file is safe to drop.
		_ = s.catalog.DiscardInit()
		return err
	}
	if !produced {
		// No cluster boundary flushed yet. Retry next tick; the media cut
		// for this tick is skipped too.
		return s.catalog.DiscardInit()
	}

	// The cursor has advanced and the bytes were written unbuffered, so
	// the fragment is committed even if Close failed; the close error is
	// still surfaced as the tick error.
	s.catalog.CommitInit(n)
	s.log.Info("initialization fragment published",
		slog.String("name", s.catalog.InitName()),
		slog.Int64("size", n))
	if s.met != nil {
		s.met.IncInitFragments()
		s.met.AddBytesPublished(n)
	}
	return cerr
}

func (s *Scheduler) cutMedia() error {
	id := s.catalog.NextIdentity()

	dst, err := s.catalog.CreateMedia(id)
	if err != nil {
		s.catalog.release(id)
		return err
	}
	return s.cutMediaTo(id, dst)
}

func (s *Scheduler) cutMediaTo(id int64, dst io.WriteCloser) error {
	n, err := s.cutter.CutMediaFragment(dst)
	cerr := dst.Close()
	if err != nil {
		// Release is only safe here because a failed copy leaves the
		// cursor where it was; the span will be re-cut under the same
		// identity next tick.
		s.catalog.release(id)
		return err
	}

	// As with the init fragment: the cursor advanced, so the fragment must
	// be committed even on a close failure or its bytes would vanish from
	// the published series.
	s.catalog.CommitMedia(id, n)
	s.log.Debug("media fragment published",
		slog.Int64("identity", id),
		slog.Int64("size", n))
	if s.met != nil {
		s.met.IncFragmentsCut()
		s.met.AddBytesPublished(n)
	}
	return cerr
}
