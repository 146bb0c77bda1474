package segmenter

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const manifestTimescale = 1000 // milliseconds

// ManifestParams carries everything the live manifest is parameterized by.
// AvailabilityStart is fixed at the moment of the first render and never
// recomputed; the fragment-name template means the document does not need
// re-rendering as new fragments appear.
type ManifestParams struct {
	AvailabilityStart time.Time
	FragmentDuration  time.Duration
	InitName          string
	MediaPrefix       string
	MediaExt          string
	Tracks            []TrackDescriptor
}

// BuildLiveManifest renders a dynamic DASH MPD for the session. Numbering
// starts at 0 and the client polls for newly numbered fragments; the
// document itself is served verbatim for the life of the session.
func BuildLiveManifest(p ManifestParams) string {
	var b strings.Builder

	durationMS := p.FragmentDuration.Milliseconds()
	isoDur := isoDuration(p.FragmentDuration)
	mediaTemplate := p.MediaPrefix + "$Number$" + p.MediaExt

	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<MPD xmlns=\"urn:mpeg:dash:schema:mpd:2011\"\n")
	b.WriteString("     type=\"dynamic\"\n")
	b.WriteString(fmt.Sprintf("     availabilityStartTime=%q\n", p.AvailabilityStart.Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("     maxSegmentDuration=%q\n", isoDur))
	b.WriteString(fmt.Sprintf("     minBufferTime=%q\n", isoDur))
	b.WriteString("     profiles=\"urn:mpeg:dash:profile:isoff-live:2011\">\n")
	b.WriteString("  <Period id=\"0\" start=\"PT0S\">\n")

	for _, track := range sortedTracks(p.Tracks) {
		mime := "video/webm"
		if track.Kind == TrackAudio {
			mime = "audio/webm"
		}
		b.WriteString(fmt.Sprintf("    <AdaptationSet mimeType=%q contentType=%q>\n", mime, string(track.Kind)))
		b.WriteString(fmt.Sprintf("      <SegmentTemplate timescale=\"%d\" duration=\"%d\" startNumber=\"0\"\n",
			manifestTimescale, durationMS))
		b.WriteString(fmt.Sprintf("                       initialization=%q media=%q/>\n", p.InitName, mediaTemplate))
		b.WriteString(fmt.Sprintf("      <Representation id=%q codecs=%q/>\n", string(track.Kind)+"0", track.Codec))
		b.WriteString("    </AdaptationSet>\n")
	}

	b.WriteString("  </Period>\n")
	b.WriteString("</MPD>\n")

	return b.String()
}

// sortedTracks orders tracks video first, then audio, for a stable render.
func sortedTracks(tracks []TrackDescriptor) []TrackDescriptor {
	out := make([]TrackDescriptor, len(tracks))
	copy(out, tracks)
	sort.SliceStable(out, func(i, j int) bool {
		return trackRank(out[i].Kind) < trackRank(out[j].Kind)
	})
	return out
}

func trackRank(k TrackKind) int {
	if k == TrackVideo {
		return 0
	}
	return 1
}

// isoDuration formats d as an ISO 8601 duration with second resolution,
// keeping fractional seconds when the interval is not whole.
func isoDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs == float64(int64(secs)) {
		return fmt.Sprintf("PT%dS", int64(secs))
	}
	return fmt.Sprintf("PT%.3fS", secs)
}
