package export

import (
	"strings"
	"testing"
)

func TestNegotiate_PrefersH264MP4(t *testing.T) {
	c, err := Negotiate(allEncoders(), "mp4")
	if err != nil {
		t.Fatalf("negotiate failed: %v", err)
	}
	if c.VideoCodec != "libx264" || c.Container != "mp4" {
		t.Errorf("negotiated %+v, want libx264 mp4", c)
	}
}

func TestNegotiate_RequestedContainerWins(t *testing.T) {
	c, err := Negotiate(allEncoders(), "webm")
	if err != nil {
		t.Fatalf("negotiate failed: %v", err)
	}
	if c.Container != "webm" || c.VideoCodec != "libvpx-vp9" {
		t.Errorf("negotiated %+v, want vp9 webm", c)
	}
}

func TestNegotiate_FallsBackAcrossContainers(t *testing.T) {
	// Host has no H.264: an mp4 request negotiates down to webm, and the
	// caller surfaces the changed extension.
	encoders := map[string]bool{"libvpx": true, "libopus": true}
	c, err := Negotiate(encoders, "mp4")
	if err != nil {
		t.Fatalf("negotiate failed: %v", err)
	}
	if c.Container != "webm" || c.VideoCodec != "libvpx" {
		t.Errorf("negotiated %+v, want vp8 webm fallback", c)
	}
}

func TestNegotiate_NoCandidateErrors(t *testing.T) {
	if _, err := Negotiate(map[string]bool{}, "mp4"); err == nil {
		t.Error("negotiation succeeded with no encoders")
	}
	// Video codec alone is not enough; the audio encoder must exist too.
	if _, err := Negotiate(map[string]bool{"libx264": true}, "mp4"); err == nil {
		t.Error("negotiation succeeded without an audio encoder")
	}
}

func TestQualityBitrates(t *testing.T) {
	if QualityHigh.VideoBitrate() <= QualityMedium.VideoBitrate() {
		t.Error("high tier not above medium")
	}
	if QualityMedium.VideoBitrate() <= QualityLow.VideoBitrate() {
		t.Error("medium tier not above low")
	}
}

func TestBuildMixArgs(t *testing.T) {
	req := MixRequest{
		Sources: []AudioSource{
			{Path: "/a.mp3", Offset: 2, Duration: 6, Volume: 0.4},
			{Path: "/b.wav", Offset: -1.5, Duration: 4, Volume: 0.8},
		},
		Duration: 10,
		Output:   "/tmp/mix.wav",
	}
	args := buildMixArgs(req)

	joined := ""
	for _, a := range args {
		joined += a + " "
	}
	// Positive offsets delay; negative offsets skip into the source.
	if !contains(args, "-ss", "0.000") {
		t.Errorf("first source not read from 0: %s", joined)
	}
	if !contains(args, "-ss", "1.500") {
		t.Errorf("pre-range source not skipped into: %s", joined)
	}

	var filter string
	for i, a := range args {
		if a == "-filter_complex" {
			filter = args[i+1]
		}
	}
	if filter == "" {
		t.Fatalf("no filter graph in %s", joined)
	}
	for _, want := range []string{"adelay=2000|2000", "volume=0.4000", "volume=0.8000", "amix=inputs=2"} {
		if !strings.Contains(filter, want) {
			t.Errorf("filter graph missing %q: %s", want, filter)
		}
	}
}

func contains(args []string, flag, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}
