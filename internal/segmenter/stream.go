package segmenter

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// ContainerStream is the append-only WebM container file the muxer writes
// into. It has exactly one writer side (the encoder pipeline, via Write) and
// one reader side (the Cutter, which copies already-flushed byte ranges out
// of it).
//
// Writes and cuts are kept apart by a single atomic writable flag: while a
// cut is copying, the flag is down and any sample delivered by the encoder
// is dropped rather than queued. The encoder never blocks; a sample lost at
// a cut boundary is an accepted trade.
type ContainerStream struct {
	path string

	// writable gates Write. Lowered for the duration of a cut copy,
	// raised again immediately after. Also lowered until BeginWriting.
	writable atomic.Bool

	started atomic.Bool

	// flushed is the number of bytes durably appended so far. A cut never
	// reads past the value observed when the cut began.
	flushed atomic.Int64

	mu     sync.Mutex // guards file, tracks and known across Reset
	file   *os.File
	tracks map[TrackKind]TrackDescriptor

	// known caches every descriptor ever registered so Reset can reapply
	// them to the recreated container.
	known map[TrackKind]TrackDescriptor
}

// NewContainerStream prepares a stream backed by the file at path. The file
// is not created until Reset is called.
func NewContainerStream(path string) *ContainerStream {
	return &ContainerStream{
		path:   path,
		tracks: make(map[TrackKind]TrackDescriptor),
		known:  make(map[TrackKind]TrackDescriptor),
	}
}

// Path returns the location of the backing container file.
func (s *ContainerStream) Path() string { return s.path }

// Reset discards any existing container file, creates a new empty append
// target, reapplies every previously-known track descriptor, and rewinds the
// flushed length to zero. The stream comes back in the not-started,
// not-writable state; BeginWriting must be called before samples take
// effect. A failure here blocks the next session and is surfaced to the
// caller.
func (s *ContainerStream) Reset() error {
	s.writable.Store(false)
	s.started.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove container: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	s.file = f
	s.flushed.Store(0)

	s.tracks = make(map[TrackKind]TrackDescriptor, len(s.known))
	for kind, d := range s.known {
		s.tracks[kind] = d
	}
	return nil
}

// RegisterTrack records a track descriptor. Before BeginWriting it takes
// effect immediately; afterwards the call is accepted but has no effect on
// the current session: the descriptor is cached and reapplied the next
// time the stream is Reset.
func (s *ContainerStream) RegisterTrack(d TrackDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.known[d.Kind] = d
	if !s.started.Load() {
		s.tracks[d.Kind] = d
	}
}

// BeginWriting finalizes track registration for the session and makes the
// stream accept samples. Idempotent.
func (s *ContainerStream) BeginWriting() {
	if s.started.CompareAndSwap(false, true) {
		s.writable.Store(true)
	}
}

// Write appends sample bytes for the given track. The write is silently
// dropped, and false returned, when the track is unregistered, writing
// has not begun, or the stream is currently not writable because a cut is
// copying.
func (s *ContainerStream) Write(kind TrackKind, sample []byte) bool {
	if !s.started.Load() || !s.writable.Load() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tracks[kind]; !ok {
		return false
	}
	if s.file == nil {
		return false
	}

	n, err := s.file.Write(sample)
	if n > 0 {
		s.flushed.Add(int64(n))
	}
	return err == nil && n == len(sample)
}

// Flushed returns the number of bytes appended so far.
func (s *ContainerStream) Flushed() int64 {
	return s.flushed.Load()
}

// Tracks returns the descriptors active for the current session, keyed by
// kind. The returned map is a copy.
func (s *ContainerStream) Tracks() map[TrackKind]TrackDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[TrackKind]TrackDescriptor, len(s.tracks))
	for kind, d := range s.tracks {
		out[kind] = d
	}
	return out
}

// Close releases the backing file handle.
func (s *ContainerStream) Close() error {
	s.writable.Store(false)
	s.started.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// suspendWrites lowers the writable flag for the duration of a cut.
// resumeWrites raises it again, but only if the session has begun writing
// (a stream that was never started stays not-writable).
func (s *ContainerStream) suspendWrites() { s.writable.Store(false) }

func (s *ContainerStream) resumeWrites() {
	if s.started.Load() {
		s.writable.Store(true)
	}
}

// copyRange copies container bytes [from, to) into w. The caller is
// responsible for suspending writes first and for keeping to within the
// flushed length it observed.
func (s *ContainerStream) copyRange(w io.Writer, from, to int64) (int64, error) {
	if to <= from {
		return 0, nil
	}

	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	// A separate read-only handle keeps the append handle's offset alone.
	r, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open container for read: %w", err)
	}
	defer r.Close()

	n, err := io.Copy(w, io.NewSectionReader(r, from, to-from))
	if err != nil {
		return n, fmt.Errorf("copy container range [%d,%d): %w", from, to, err)
	}
	return n, nil
}

// readerAt opens a read-only view of the container for boundary scanning.
func (s *ContainerStream) readerAt() (*os.File, error) {
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()
	return os.Open(path)
}
