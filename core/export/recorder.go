package export

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"Mx1Studio/logger"

	"github.com/icza/mjpeg"
)

// Recorder consumes composited frames and muxes them (plus an optional
// mixed audio stem) into the output container. Close must be idempotent and
// safe to call after a failed Start, so teardown can run unconditionally.
type Recorder interface {
	Start() error
	WriteFrame(img *image.RGBA) error
	// Finish flushes and finalizes the container.
	Finish() error
	// MimeType reports the negotiated type, which may differ from the one
	// the caller asked for.
	MimeType() string
	Close() error
}

// RecorderSpec carries everything a recorder needs to mux one export.
type RecorderSpec struct {
	OutputPath string
	Width      int
	Height     int
	FPS        int
	BitrateK   int
	Candidate  Candidate
	AudioStem  string // optional mixed stem path; empty means video only
}

// ffmpegRecorder streams raw RGBA frames into an ffmpeg child process that
// encodes and muxes them with the audio stem.
type ffmpegRecorder struct {
	ffmpegPath string
	spec       RecorderSpec

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  bytes.Buffer
	started bool
	closed  bool
}

// NewFFmpegRecorder creates a streaming recorder for the negotiated codec.
func NewFFmpegRecorder(ffmpegPath string, spec RecorderSpec) Recorder {
	return &ffmpegRecorder{ffmpegPath: ffmpegPath, spec: spec}
}

func (r *ffmpegRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", r.spec.Width, r.spec.Height),
		"-r", strconv.Itoa(r.spec.FPS),
		"-i", "pipe:0",
	}
	if r.spec.AudioStem != "" {
		args = append(args, "-i", r.spec.AudioStem)
	}
	args = append(args,
		"-c:v", r.spec.Candidate.VideoCodec,
		"-b:v", fmt.Sprintf("%dk", r.spec.BitrateK),
		"-pix_fmt", "yuv420p",
	)
	if r.spec.AudioStem != "" {
		args = append(args, "-c:a", r.spec.Candidate.AudioCodec, "-shortest")
	}
	if r.spec.Candidate.Container == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, r.spec.OutputPath)

	cmd := exec.Command(r.ffmpegPath, args...)
	cmd.Stderr = &r.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open recorder stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start stream recorder: %w", err)
	}

	logger.Debug("stream recorder started",
		logger.String("codec", r.spec.Candidate.VideoCodec),
		logger.String("output", r.spec.OutputPath))
	r.cmd = cmd
	r.stdin = stdin
	r.started = true
	return nil
}

func (r *ffmpegRecorder) WriteFrame(img *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.closed {
		return fmt.Errorf("recorder is not running")
	}
	if _, err := r.stdin.Write(img.Pix); err != nil {
		return fmt.Errorf("failed to feed frame: %w\nFFmpeg Error: %s", err, r.stderr.String())
	}
	return nil
}

func (r *ffmpegRecorder) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.closed {
		return nil
	}
	r.closed = true
	r.stdin.Close()
	if err := r.cmd.Wait(); err != nil {
		return fmt.Errorf("recorder finalize failed: %w\nFFmpeg Error: %s", err, r.stderr.String())
	}
	return nil
}

func (r *ffmpegRecorder) MimeType() string { return r.spec.Candidate.MimeType }

func (r *ffmpegRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.closed {
		r.closed = true
		return nil
	}
	r.closed = true
	r.stdin.Close()
	if r.cmd.Process != nil {
		r.cmd.Process.Kill()
	}
	r.cmd.Wait()
	return nil
}

// mjpegRecorder is the last-resort fallback when no stream encoder exists:
// a Motion JPEG AVI with no audio track.
type mjpegRecorder struct {
	spec    RecorderSpec
	mu      sync.Mutex
	writer  mjpeg.AviWriter
	started bool
	closed  bool
}

// NewMJPEGRecorder creates the capability fallback recorder.
func NewMJPEGRecorder(spec RecorderSpec) Recorder {
	return &mjpegRecorder{spec: spec}
}

func (r *mjpegRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	w, err := mjpeg.New(r.spec.OutputPath,
		int32(r.spec.Width), int32(r.spec.Height), int32(r.spec.FPS))
	if err != nil {
		return fmt.Errorf("failed to create mjpeg writer: %w", err)
	}
	r.writer = w
	r.started = true
	return nil
}

func (r *mjpegRecorder) WriteFrame(img *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.closed {
		return fmt.Errorf("recorder is not running")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return r.writer.AddFrame(buf.Bytes())
}

func (r *mjpegRecorder) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.closed {
		return nil
	}
	r.closed = true
	return r.writer.Close()
}

func (r *mjpegRecorder) MimeType() string { return "video/avi" }

func (r *mjpegRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.closed {
		r.closed = true
		return nil
	}
	r.closed = true
	return r.writer.Close()
}
