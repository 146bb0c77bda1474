package segmenter

import (
	"errors"
	"time"
)

// TrackKind identifies the media type of a track ("video" or "audio").
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// Valid reports whether k is a kind the muxer knows about.
func (k TrackKind) Valid() bool {
	return k == TrackVideo || k == TrackAudio
}

// TrackDescriptor describes one track registered with the container: its
// media kind, codec identifier (e.g. "vp8", "vorbis"), and any
// codec-specific initialization bytes.
// This also matches the input JSON payload for registering tracks.
type TrackDescriptor struct {
	Kind     TrackKind `json:"kind"`
	Codec    string    `json:"codec"`
	InitData []byte    `json:"init_data,omitempty"`
}

// FragmentInfo is a catalog entry for one published fragment: its numeric
// identity (-1 for the initialization fragment), filename and size.
// Entries are never mutated after publication.
type FragmentInfo struct {
	Identity int64  `json:"identity"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`

	// PublishedAt is when the fragment was committed to the catalog.
	PublishedAt time.Time `json:"published_at"`
}

// InitIdentity is the Identity value used for the initialization fragment,
// which sits outside the numeric media series.
const InitIdentity int64 = -1

var (
	// ErrInitNotCut is returned when a media cut is attempted before the
	// initialization fragment has been produced for the current session.
	ErrInitNotCut = errors.New("initialization fragment not yet cut")

	// ErrInitAlreadyCut is returned when an initialization cut is attempted
	// after one has already been produced for the current session.
	ErrInitAlreadyCut = errors.New("initialization fragment already cut")

	// ErrSessionActive is returned when starting or resetting a session
	// that is currently recording.
	ErrSessionActive = errors.New("session is recording")
)
