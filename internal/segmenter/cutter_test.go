package segmenter

import (
	"bytes"
	"errors"
	"os"
	"testing"
)

// writeContainer appends raw bytes to a started stream, failing the test on
// a dropped write.
func writeContainer(t *testing.T, s *ContainerStream, b []byte) {
	t.Helper()
	if !s.Write(TrackVideo, b) {
		t.Fatalf("write of %d bytes was dropped", len(b))
	}
}

func TestCutter_CutInitFragment_no_boundary_is_noop(t *testing.T) {
	s := newTestStream(t)
	defer s.Close()
	s.BeginWriting()
	c := NewCutter(s)

	writeContainer(t, s, []byte("ebml header without any cluster"))

	var dst bytes.Buffer
	n, produced, err := c.CutInitFragment(&dst)
	if err != nil {
		t.Fatalf("CutInitFragment: %v", err)
	}
	if produced {
		t.Error("produced should be false with no boundary flushed")
	}
	if n != 0 || dst.Len() != 0 {
		t.Errorf("no bytes should be written, got n=%d len=%d", n, dst.Len())
	}
	if c.InitCut() {
		t.Error("InitCut should remain false")
	}
	if c.Cursor() != 0 {
		t.Errorf("cursor moved to %d on a no-op", c.Cursor())
	}
}

func TestCutter_CutInitFragment_copies_header(t *testing.T) {
	s := newTestStream(t)
	defer s.Close()
	s.BeginWriting()
	c := NewCutter(s)

	header := []byte("ebml header bytes")
	writeContainer(t, s, header)
	writeContainer(t, s, clusterMarker)
	writeContainer(t, s, []byte("cluster payload"))

	var dst bytes.Buffer
	n, produced, err := c.CutInitFragment(&dst)
	if err != nil {
		t.Fatalf("CutInitFragment: %v", err)
	}
	if !produced {
		t.Fatal("expected init fragment to be produced")
	}
	if n != int64(len(header)) {
		t.Errorf("size: got %d, want %d", n, len(header))
	}
	if !bytes.Equal(dst.Bytes(), header) {
		t.Errorf("init fragment: got %q, want %q", dst.Bytes(), header)
	}
	if c.Cursor() != int64(len(header)) {
		t.Errorf("cursor: got %d, want %d", c.Cursor(), len(header))
	}
	if !c.InitCut() {
		t.Error("InitCut should be true")
	}
}

func TestCutter_CutInitFragment_marker_at_offset_zero(t *testing.T) {
	s := newTestStream(t)
	defer s.Close()
	s.BeginWriting()
	c := NewCutter(s)

	writeContainer(t, s, clusterMarker)
	writeContainer(t, s, []byte("payload"))

	var dst bytes.Buffer
	n, produced, err := c.CutInitFragment(&dst)
	if err != nil {
		t.Fatalf("CutInitFragment: %v", err)
	}
	if !produced {
		t.Fatal("expected init fragment to be produced")
	}
	if n != 0 {
		t.Errorf("header before marker at offset 0 should be empty, got %d bytes", n)
	}
}

func TestCutter_CutInitFragment_twice(t *testing.T) {
	s := newTestStream(t)
	defer s.Close()
	s.BeginWriting()
	c := NewCutter(s)

	writeContainer(t, s, append([]byte("hdr"), clusterMarker...))
	if _, produced, err := c.CutInitFragment(new(bytes.Buffer)); err != nil || !produced {
		t.Fatalf("first cut: produced=%v err=%v", produced, err)
	}

	_, _, err := c.CutInitFragment(new(bytes.Buffer))
	if !errors.Is(err, ErrInitAlreadyCut) {
		t.Errorf("expected ErrInitAlreadyCut, got %v", err)
	}
}

func TestCutter_CutMediaFragment_before_init(t *testing.T) {
	s := newTestStream(t)
	defer s.Close()
	s.BeginWriting()
	c := NewCutter(s)

	_, err := c.CutMediaFragment(new(bytes.Buffer))
	if !errors.Is(err, ErrInitNotCut) {
		t.Errorf("expected ErrInitNotCut, got %v", err)
	}
}

func TestCutter_CutMediaFragment_spans(t *testing.T) {
	s := newTestStream(t)
	defer s.Close()
	s.BeginWriting()
	c := NewCutter(s)

	writeContainer(t, s, append([]byte("hdr"), clusterMarker...))
	if _, produced, err := c.CutInitFragment(new(bytes.Buffer)); err != nil || !produced {
		t.Fatalf("init cut: produced=%v err=%v", produced, err)
	}

	// First media fragment: the marker plus payload flushed so far.
	writeContainer(t, s, []byte("0123456789"))
	var frag0 bytes.Buffer
	n, err := c.CutMediaFragment(&frag0)
	if err != nil {
		t.Fatalf("CutMediaFragment: %v", err)
	}
	want := append(append([]byte{}, clusterMarker...), []byte("0123456789")...)
	if n != int64(len(want)) || !bytes.Equal(frag0.Bytes(), want) {
		t.Errorf("fragment 0: got %d bytes %q, want %q", n, frag0.Bytes(), want)
	}

	// Nothing new flushed: empty fragment, cursor unchanged.
	var frag1 bytes.Buffer
	n, err = c.CutMediaFragment(&frag1)
	if err != nil {
		t.Fatalf("empty CutMediaFragment: %v", err)
	}
	if n != 0 || frag1.Len() != 0 {
		t.Errorf("expected empty fragment, got %d bytes", frag1.Len())
	}

	// More payload: next fragment picks up exactly where the cursor is.
	writeContainer(t, s, []byte("tail"))
	var frag2 bytes.Buffer
	n, err = c.CutMediaFragment(&frag2)
	if err != nil {
		t.Fatalf("CutMediaFragment: %v", err)
	}
	if n != 4 || frag2.String() != "tail" {
		t.Errorf("fragment 2: got %q", frag2.String())
	}
}

func TestCutter_fragments_partition_container(t *testing.T) {
	s := newTestStream(t)
	defer s.Close()
	s.BeginWriting()
	c := NewCutter(s)

	writeContainer(t, s, []byte("webm header"))
	writeContainer(t, s, clusterMarker)

	var joined bytes.Buffer
	if _, produced, err := c.CutInitFragment(&joined); err != nil || !produced {
		t.Fatalf("init cut: produced=%v err=%v", produced, err)
	}

	// Interleave writes and cuts; cuts may land mid-cluster by design.
	chunks := [][]byte{
		[]byte("first cluster data"),
		clusterMarker,
		[]byte("second clus"),
		[]byte("ter data"),
	}
	for _, chunk := range chunks {
		writeContainer(t, s, chunk)
		if _, err := c.CutMediaFragment(&joined); err != nil {
			t.Fatalf("CutMediaFragment: %v", err)
		}
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(joined.Bytes(), data) {
		t.Errorf("init + media fragments should reproduce container bytes:\ngot  %q\nwant %q", joined.Bytes(), data)
	}
}

func TestCutter_scan_finds_marker_across_chunks(t *testing.T) {
	s := newTestStream(t)
	defer s.Close()
	s.BeginWriting()
	c := NewCutter(s)

	// Place the marker straddling the scan chunk edge.
	headerLen := scanChunkSize - 2
	writeContainer(t, s, bytes.Repeat([]byte{0x00}, headerLen))
	writeContainer(t, s, clusterMarker)
	writeContainer(t, s, []byte("payload"))

	var dst bytes.Buffer
	n, produced, err := c.CutInitFragment(&dst)
	if err != nil {
		t.Fatalf("CutInitFragment: %v", err)
	}
	if !produced {
		t.Fatal("marker straddling a scan chunk edge should be found")
	}
	if n != int64(headerLen) {
		t.Errorf("size: got %d, want %d", n, headerLen)
	}
}

func TestCutter_writes_resume_after_cut(t *testing.T) {
	s := newTestStream(t)
	defer s.Close()
	s.BeginWriting()
	c := NewCutter(s)

	writeContainer(t, s, append([]byte("hdr"), clusterMarker...))
	if _, produced, err := c.CutInitFragment(new(bytes.Buffer)); err != nil || !produced {
		t.Fatalf("init cut: produced=%v err=%v", produced, err)
	}
	if !s.Write(TrackVideo, []byte("after init cut")) {
		t.Error("writes should resume after an init cut")
	}

	if _, err := c.CutMediaFragment(new(bytes.Buffer)); err != nil {
		t.Fatalf("CutMediaFragment: %v", err)
	}
	if !s.Write(TrackVideo, []byte("after media cut")) {
		t.Error("writes should resume after a media cut")
	}
}
