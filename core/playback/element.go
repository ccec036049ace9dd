package playback

import "Mx1Studio/model"

// MixHeadroom scales every mixed audio source down so several simultaneous
// tracks do not clip the output bus.
const MixHeadroom = 0.8

// MediaElement is a controllable media sink backing one clip: a decoded
// video or audio stream the session can position and gate. Implementations
// wrap whatever the host provides; tests use in-memory fakes.
type MediaElement interface {
	Play() error
	Pause()
	// Seek positions the element at a clip-local time in seconds.
	Seek(localTime float64)
	// CurrentTime reports the element's clip-local position.
	CurrentTime() float64
	SetVolume(v float64)
	SetMuted(muted bool)
	IsPlaying() bool
	// Ready reports whether the element has decoded far enough to present.
	// A stuck element is treated as inactive, never as an error.
	Ready() bool
	// Release frees decoder resources. Idempotent.
	Release()
}

// ElementFactory materializes elements for clips on first use. The session
// caches the result keyed by clip id.
type ElementFactory interface {
	NewElement(clip model.Clip) (MediaElement, error)
}

// EffectiveVolume computes the mixed volume for an audio clip on its track:
// zero when the track is muted, otherwise trackVolume * clipVolume scaled by
// the headroom factor.
func EffectiveVolume(track *model.Track, clipVolume float64) float64 {
	if track.IsMuted {
		return 0
	}
	return track.Volume * clipVolume * MixHeadroom
}
