package segmenter

import (
	"bytes"
	"fmt"
	"io"
)

// clusterMarker is the EBML element ID that opens a WebM Cluster, the first
// top-level element carrying sample data. Everything before the first
// occurrence is container metadata and forms the initialization fragment.
var clusterMarker = []byte{0x1F, 0x43, 0xB6, 0x75}

const scanChunkSize = 32 * 1024

// Cutter slices the ContainerStream into an initialization fragment followed
// by numbered media fragments. It owns the stream's read cursor and must
// only be driven from a single goroutine (the Scheduler's loop); the
// writable flag on the stream is the only coordination with the writer side.
type Cutter struct {
	stream  *ContainerStream
	cursor  int64
	initCut bool
}

// NewCutter returns a Cutter positioned at the start of the stream.
func NewCutter(stream *ContainerStream) *Cutter {
	return &Cutter{stream: stream}
}

// InitCut reports whether the initialization fragment has been produced for
// the current session.
func (c *Cutter) InitCut() bool { return c.initCut }

// Cursor returns the read-cursor offset: the number of container bytes
// already copied into fragments.
func (c *Cutter) Cursor() int64 { return c.cursor }

// CutInitFragment scans the container from offset zero for the first
// Cluster marker. If none has been flushed yet it returns produced=false
// with no error and writes nothing; the caller retries on its next tick.
// If the marker sits at offset k, container bytes [0, k) are copied to dst,
// the cursor advances to k, and the init fragment is marked produced.
// Writes are suspended for the duration of the copy so the copied region is
// byte-identical to committed writes, never a partial one.
func (c *Cutter) CutInitFragment(dst io.Writer) (n int64, produced bool, err error) {
	if c.initCut {
		return 0, false, ErrInitAlreadyCut
	}

	c.stream.suspendWrites()
	defer c.stream.resumeWrites()

	limit := c.stream.Flushed()
	off, found, err := c.scanBoundary(limit)
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, nil
	}

	n, err = c.stream.copyRange(dst, 0, off)
	if err != nil {
		return n, false, err
	}
	c.cursor = off
	c.initCut = true
	return n, true, nil
}

// CutMediaFragment copies all container bytes between the read cursor and
// the flushed length observed at the start of the call, then advances the
// cursor to that length. An empty span produces an empty fragment, not an
// error. The copied span may end mid-cluster; fragments are not required to
// be independently decodable containers, only a gap-free byte partition of
// the logical stream.
func (c *Cutter) CutMediaFragment(dst io.Writer) (int64, error) {
	if !c.initCut {
		return 0, ErrInitNotCut
	}

	c.stream.suspendWrites()
	defer c.stream.resumeWrites()

	end := c.stream.Flushed()
	n, err := c.stream.copyRange(dst, c.cursor, end)
	if err != nil {
		return n, err
	}
	c.cursor = end
	return n, nil
}

// scanBoundary searches flushed container bytes [0, limit) for the first
// Cluster marker, reading in chunks with a marker-sized overlap so a marker
// straddling a chunk edge is still found.
func (c *Cutter) scanBoundary(limit int64) (int64, bool, error) {
	if limit < int64(len(clusterMarker)) {
		return 0, false, nil
	}

	r, err := c.stream.readerAt()
	if err != nil {
		return 0, false, fmt.Errorf("open container for scan: %w", err)
	}
	defer r.Close()

	overlap := int64(len(clusterMarker) - 1)
	buf := make([]byte, scanChunkSize)

	for base := int64(0); base < limit; base += scanChunkSize - overlap {
		want := limit - base
		if want > scanChunkSize {
			want = scanChunkSize
		}
		n, err := r.ReadAt(buf[:want], base)
		if err != nil && err != io.EOF {
			return 0, false, fmt.Errorf("scan container: %w", err)
		}
		if i := bytes.Index(buf[:n], clusterMarker); i >= 0 {
			return base + int64(i), true, nil
		}
		if int64(n) < want || base+int64(n) >= limit {
			break
		}
	}
	return 0, false, nil
}
