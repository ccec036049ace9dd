package export

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"Mx1Studio/logger"
)

// AudioSource is one stem feeding the export mix: a media file placed at an
// offset from the trim start with a pre-computed effective volume (track
// volume x clip volume x headroom, or zero when the track is muted).
type AudioSource struct {
	Path     string
	Offset   float64 // seconds from trim start; negative means the clip began before it
	Duration float64 // portion of the source to keep
	Volume   float64
}

// MixRequest describes the full audio graph for one export.
type MixRequest struct {
	Sources  []AudioSource
	Duration float64 // trim range length; the mix is cut to this
	Output   string  // stem file path (wav)
}

// buildMixArgs assembles the ffmpeg invocation for the mixing graph: each
// source is trimmed, delayed to its timeline offset and scaled, then all
// stems are summed into a single stream.
func buildMixArgs(req MixRequest) []string {
	args := []string{"-y"}
	for _, s := range req.Sources {
		start := 0.0
		if s.Offset < 0 {
			// Clip started before the trim range: skip into the source.
			start = -s.Offset
		}
		args = append(args, "-ss", fmt.Sprintf("%.3f", start), "-i", s.Path)
	}

	var filter strings.Builder
	labels := make([]string, 0, len(req.Sources))
	for i, s := range req.Sources {
		delayMs := 0
		keep := s.Duration
		if s.Offset > 0 {
			delayMs = int(s.Offset * 1000)
		}
		if s.Offset < 0 {
			// Skipped into the source above; only the remainder of the
			// clip's window is still audible inside the range.
			keep = s.Duration + s.Offset
		}
		label := fmt.Sprintf("a%d", i)
		fmt.Fprintf(&filter, "[%d:a]atrim=0:%.3f,volume=%.4f,adelay=%d|%d[%s];",
			i, keep, s.Volume, delayMs, delayMs, label)
		labels = append(labels, "["+label+"]")
	}
	fmt.Fprintf(&filter, "%samix=inputs=%d:duration=longest:normalize=0[mix]",
		strings.Join(labels, ""), len(req.Sources))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[mix]",
		"-t", fmt.Sprintf("%.3f", req.Duration),
		"-c:a", "pcm_s16le",
		req.Output,
	)
	return args
}

// MixAudio renders the audio graph into a single PCM stem.
func MixAudio(ffmpegPath string, req MixRequest) error {
	if len(req.Sources) == 0 {
		return fmt.Errorf("no audio sources to mix")
	}

	args := buildMixArgs(req)
	logger.Debug("mixing audio stems",
		logger.Int("sources", len(req.Sources)),
		logger.String("output", req.Output))

	cmd := exec.Command(ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("audio mix failed: %w\nFFmpeg Error: %s", err, stderr.String())
	}
	return nil
}
