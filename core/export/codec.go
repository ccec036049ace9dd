package export

import "fmt"

// Quality selects a coarse bitrate tier for the encoded video stream.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// QualityFromString maps a user-supplied tier name onto a Quality, defaulting
// to medium for anything unrecognized.
func QualityFromString(s string) Quality {
	switch Quality(s) {
	case QualityHigh, QualityMedium, QualityLow:
		return Quality(s)
	default:
		return QualityMedium
	}
}

// VideoBitrate returns the tier's video bitrate in kbit/s.
func (q Quality) VideoBitrate() int {
	switch q {
	case QualityHigh:
		return 8000
	case QualityLow:
		return 1000
	default:
		return 2500
	}
}

// Candidate is one container/codec combination the engine may record with.
type Candidate struct {
	Container  string // file extension: mp4, webm
	VideoCodec string // ffmpeg encoder name
	AudioCodec string
	MimeType   string
}

// preferenceList is the ordered codec preference: H.264/AAC MP4 variants
// first, then VP9 and VP8 WebM fallbacks.
var preferenceList = []Candidate{
	{Container: "mp4", VideoCodec: "libx264", AudioCodec: "aac", MimeType: "video/mp4;codecs=avc1,mp4a"},
	{Container: "webm", VideoCodec: "libvpx-vp9", AudioCodec: "libopus", MimeType: "video/webm;codecs=vp9,opus"},
	{Container: "webm", VideoCodec: "libvpx", AudioCodec: "libopus", MimeType: "video/webm;codecs=vp8,opus"},
}

// Negotiate picks the first candidate the host encoder set fully supports.
// A requested container moves matching candidates to the front, but the
// negotiated result may still differ from the request when the preferred
// encoders are missing; callers must surface the actual container rather
// than silently renaming the file.
func Negotiate(encoders map[string]bool, requestedContainer string) (*Candidate, error) {
	ordered := make([]Candidate, 0, len(preferenceList))
	for _, c := range preferenceList {
		if c.Container == requestedContainer {
			ordered = append(ordered, c)
		}
	}
	for _, c := range preferenceList {
		if c.Container != requestedContainer {
			ordered = append(ordered, c)
		}
	}

	for _, c := range ordered {
		if encoders[c.VideoCodec] && encoders[c.AudioCodec] {
			candidate := c
			return &candidate, nil
		}
	}
	return nil, fmt.Errorf("no supported export codec: tried %d candidates against host encoders", len(ordered))
}

// Candidates exposes the preference list for capability reporting.
func Candidates() []Candidate {
	out := make([]Candidate, len(preferenceList))
	copy(out, preferenceList)
	return out
}
