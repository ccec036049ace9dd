package export

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"Mx1Studio/core/compose"
	"Mx1Studio/core/playback"
	"Mx1Studio/logger"
	"Mx1Studio/model"
)

// State is the engine's observable lifecycle phase.
type State string

const (
	StateIdle       State = "idle"
	StatePreparing  State = "preparing"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
)

// DefaultFPS is the capture frame rate.
const DefaultFPS = 30

// progressInterval throttles progress callbacks to roughly 10 per second;
// integer percent changes always go through.
const progressInterval = 100 * time.Millisecond

// ProgressFunc observes progress in [0,100] with a human-readable status.
type ProgressFunc func(progress float64, status string)

// FrameProducer yields decoded source frames in presentation order.
type FrameProducer interface {
	Next() (*image.RGBA, error)
	Close() error
}

// Backend abstracts the host's media capability so the engine's state
// machine is testable without ffmpeg.
type Backend interface {
	Encoders() (map[string]bool, error)
	OpenFrames(path string, start float64, fps, width, height int) (FrameProducer, error)
	MixAudio(req MixRequest) error
	NewRecorder(spec RecorderSpec) Recorder
}

// Options configure one export run.
type Options struct {
	FileName  string // base name without extension
	Container string // requested container: mp4 or webm
	Quality   Quality
	FPS       int
	OutputDir string
	Width     int // capture canvas, source native resolution
	Height    int
	FontPath  string // TTF for text clips; empty uses the builtin face
	// AllowFallback permits a video-only Motion JPEG output when no codec
	// from the preference list is available. Off, the run fails instead.
	AllowFallback bool
}

// Request is everything one export consumes. The engine clones the edit
// state up front, so live edits during the run cannot tear the output.
type Request struct {
	EditState  *model.EditState
	SourcePath string
	// Resolve maps a clip's mediaFileId to a local file path.
	Resolve func(mediaFileID string) (string, error)
	// Overlays supplies stills for timeline video clips layered over the
	// source frame. May be nil.
	Overlays compose.FrameSource
	Options  Options
	OnProgress ProgressFunc
}

// Result describes the finished file. Container reflects the negotiated
// codec, which may differ from the requested one.
type Result struct {
	Path      string
	MimeType  string
	Container string
}

// Engine renders a timeline snapshot through the compositor into a muxed
// output file. One export runs at a time.
type Engine struct {
	backend Backend

	mu       sync.Mutex
	state    State
	progress float64
	status   string
	cancel   context.CancelFunc
}

// NewEngine creates an export engine over a media backend.
func NewEngine(backend Backend) *Engine {
	return &Engine{backend: backend, state: StateIdle, status: "idle"}
}

// Status returns the current phase, progress and status line.
func (e *Engine) Status() (State, float64, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.progress, e.status
}

// Cancel aborts a running export. The run's teardown still executes, and
// cancelling twice (or with nothing running) is harmless.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) setState(st State, progress float64, status string, cb ProgressFunc) {
	e.mu.Lock()
	e.state = st
	e.progress = progress
	e.status = status
	e.mu.Unlock()
	if cb != nil {
		cb(progress, status)
	}
}

// Export runs the full pipeline: negotiate a codec, mix the audio graph,
// pump composited frames into the recorder, finalize the container. All
// helper resources are torn down on success, failure and cancellation alike.
func (e *Engine) Export(ctx context.Context, req Request) (*Result, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return nil, fmt.Errorf("an export is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.state = StatePreparing
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.cancel = nil
		e.state = StateIdle
		e.mu.Unlock()
	}()

	res, err := e.run(ctx, req)
	if err != nil {
		e.setState(StateIdle, e.progressValue(), fmt.Sprintf("Export failed: %v", err), req.OnProgress)
		return nil, err
	}
	return res, nil
}

func (e *Engine) progressValue() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

func (e *Engine) run(ctx context.Context, req Request) (*Result, error) {
	opts := req.Options
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.FileName == "" {
		opts.FileName = "export"
	}
	if opts.Quality == "" {
		opts.Quality = QualityMedium
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid capture resolution %dx%d", opts.Width, opts.Height)
	}

	e.setState(StatePreparing, 0, "Preparing export...", req.OnProgress)

	// Frozen snapshot: the live editor may keep mutating underneath us.
	snapshot := req.EditState.Timeline.Clone()
	trimStart := req.EditState.TrimStart
	trimEnd := req.EditState.TrimEnd
	if trimEnd <= trimStart {
		trimEnd = snapshot.Duration
	}
	trimDur := trimEnd - trimStart
	if trimDur <= 0 {
		return nil, fmt.Errorf("empty trim range")
	}

	encoders, err := e.backend.Encoders()
	if err != nil {
		// No encoding capability at all: fail fast, no partial file.
		return nil, fmt.Errorf("export capability unavailable: %w", err)
	}
	candidate, negErr := Negotiate(encoders, opts.Container)
	if negErr != nil {
		if !opts.AllowFallback {
			return nil, fmt.Errorf("no supported codec for export: %w", negErr)
		}
		// Caller opted into the last resort: video-only Motion JPEG.
		candidate = &Candidate{Container: "avi", VideoCodec: "mjpeg", MimeType: "video/avi"}
		logger.Warn("no preferred codec available, falling back to MJPEG",
			logger.ErrorField(negErr))
	}
	if candidate.Container != opts.Container {
		logger.Info("negotiated container differs from request",
			logger.String("requested", opts.Container),
			logger.String("negotiated", candidate.Container))
	}

	tempDir, err := os.MkdirTemp("", "mx1-export-")
	if err != nil {
		return nil, fmt.Errorf("failed to create export workspace: %w", err)
	}

	// Teardown runs on every exit path and tolerates being invoked again.
	var frames FrameProducer
	var recorder Recorder
	var torn bool
	teardown := func() {
		if torn {
			return
		}
		torn = true
		if frames != nil {
			frames.Close()
		}
		if recorder != nil {
			recorder.Close()
		}
		os.RemoveAll(tempDir)
	}
	defer teardown()

	stem := ""
	if negErr == nil { // MJPEG fallback carries no audio track
		stem = e.mixStems(snapshot, req, trimStart, trimEnd, tempDir)
	}

	outPath := filepath.Join(opts.OutputDir, fmt.Sprintf("%s.%s", opts.FileName, candidate.Container))
	recorder = e.backend.NewRecorder(RecorderSpec{
		OutputPath: outPath,
		Width:      opts.Width,
		Height:     opts.Height,
		FPS:        opts.FPS,
		BitrateK:   opts.Quality.VideoBitrate(),
		Candidate:  *candidate,
		AudioStem:  stem,
	})
	if err := recorder.Start(); err != nil {
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}

	frames, err = e.backend.OpenFrames(req.SourcePath, trimStart, opts.FPS, opts.Width, opts.Height)
	if err != nil {
		return nil, fmt.Errorf("failed to open source stream: %w", err)
	}

	e.setState(StateRecording, 0, "Recording...", req.OnProgress)

	var text *compose.TextRenderer
	if opts.FontPath != "" {
		text, err = compose.NewTextRendererFromFile(opts.FontPath)
		if err != nil {
			logger.Warn("字体加载失败，使用内置字体",
				logger.String("path", opts.FontPath), logger.ErrorField(err))
			text = nil
		}
	}
	comp := compose.NewCompositor(opts.Width, opts.Height, text)
	filters := req.EditState.Filters
	lastReport := time.Now()
	lastPercent := -1
	totalFrames := int(trimDur * float64(opts.FPS))

	for i := 0; i < totalFrames; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		frame, err := frames.Next()
		if err == io.EOF {
			break // source ended naturally before the trim end
		}
		if err != nil {
			return nil, fmt.Errorf("source decode failed: %w", err)
		}

		t := trimStart + float64(i)/float64(opts.FPS)
		compose.ApplyFilters(frame, filters)
		comp.RenderOver(frame, snapshot, t, req.Overlays)

		if err := recorder.WriteFrame(frame); err != nil {
			return nil, fmt.Errorf("recorder rejected frame %d: %w", i, err)
		}

		percent := float64(i+1) / float64(totalFrames) * 100
		if percent > 100 {
			percent = 100
		}
		if int(percent) != lastPercent || time.Since(lastReport) >= progressInterval {
			lastPercent = int(percent)
			lastReport = time.Now()
			e.setState(StateRecording, percent, fmt.Sprintf("Recording... %d%%", int(percent)), req.OnProgress)
		}
	}

	e.setState(StateFinalizing, e.progressValue(), "Finalizing...", req.OnProgress)
	if err := recorder.Finish(); err != nil {
		return nil, err
	}

	e.setState(StateFinalizing, 100, "Export complete", req.OnProgress)
	return &Result{
		Path:      outPath,
		MimeType:  recorder.MimeType(),
		Container: candidate.Container,
	}, nil
}

// mixStems builds the audio graph for the trim range: the source video's own
// soundtrack plus every audio clip active inside the range, each at its
// effective volume. A failed mix degrades to a silent export rather than
// aborting the run.
func (e *Engine) mixStems(snapshot *model.Timeline, req Request, trimStart, trimEnd float64, tempDir string) string {
	trimDur := trimEnd - trimStart
	sources := []AudioSource{{
		Path:     req.SourcePath,
		Offset:   -trimStart,
		Duration: trimDur + trimStart,
		Volume:   playback.MixHeadroom,
	}}

	for _, track := range snapshot.Tracks {
		if track.Type != model.TrackTypeAudio {
			continue
		}
		for _, clip := range track.Clips {
			audio, ok := clip.(*model.AudioClip)
			if !ok {
				continue
			}
			if audio.End() <= trimStart || audio.StartTime >= trimEnd {
				continue // never active inside the range
			}
			if req.Resolve == nil {
				continue
			}
			path, err := req.Resolve(audio.MediaFileID)
			if err != nil {
				logger.Warn("audio clip media unavailable, skipping",
					logger.String("clipId", audio.ID), logger.ErrorField(err))
				continue
			}
			sources = append(sources, AudioSource{
				Path:     path,
				Offset:   audio.StartTime - trimStart,
				Duration: audio.Duration,
				Volume:   playback.EffectiveVolume(track, audio.Volume),
			})
		}
	}

	stem := filepath.Join(tempDir, "mix.wav")
	if err := e.backend.MixAudio(MixRequest{Sources: sources, Duration: trimDur, Output: stem}); err != nil {
		logger.Warn("audio mix failed, exporting without audio", logger.ErrorField(err))
		return ""
	}
	return stem
}
