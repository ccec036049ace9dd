package export

import (
	"context"
	"image"
	"io"
	"strings"
	"sync"
	"testing"

	"Mx1Studio/model"
)

// fakeProducer yields n synthetic frames then EOF, and records Close calls.
type fakeProducer struct {
	mu        sync.Mutex
	remaining int
	width     int
	height    int
	closed    int
	gate      chan struct{} // when set, Next blocks until the gate closes
}

func (p *fakeProducer) Next() (*image.RGBA, error) {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remaining == 0 {
		return nil, io.EOF
	}
	p.remaining--
	return image.NewRGBA(image.Rect(0, 0, p.width, p.height)), nil
}

func (p *fakeProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// fakeRecorder counts frames and records lifecycle calls.
type fakeRecorder struct {
	mu       sync.Mutex
	spec     RecorderSpec
	started  bool
	frames   int
	finished bool
	closed   int
	startErr error
}

func (r *fakeRecorder) Start() error {
	if r.startErr != nil {
		return r.startErr
	}
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) WriteFrame(_ *image.RGBA) error {
	r.mu.Lock()
	r.frames++
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) Finish() error {
	r.mu.Lock()
	r.finished = true
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) MimeType() string { return r.spec.Candidate.MimeType }

func (r *fakeRecorder) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	return nil
}

type fakeBackend struct {
	encoders map[string]bool
	encErr   error
	producer *fakeProducer
	recorder *fakeRecorder
	mixed    []MixRequest
}

func (b *fakeBackend) Encoders() (map[string]bool, error) {
	return b.encoders, b.encErr
}

func (b *fakeBackend) OpenFrames(_ string, _ float64, _, width, height int) (FrameProducer, error) {
	b.producer.width = width
	b.producer.height = height
	return b.producer, nil
}

func (b *fakeBackend) MixAudio(req MixRequest) error {
	b.mixed = append(b.mixed, req)
	return nil
}

func (b *fakeBackend) NewRecorder(spec RecorderSpec) Recorder {
	b.recorder.spec = spec
	return b.recorder
}

func allEncoders() map[string]bool {
	return map[string]bool{
		"libx264": true, "aac": true,
		"libvpx-vp9": true, "libvpx": true, "libopus": true,
	}
}

// exportState builds the §8 end-to-end fixture: 10s video, 10s audio at
// volume 0.5, text over [2,5).
func exportState() *model.EditState {
	tl := model.NewTimeline()
	video := tl.TrackByID("video-1")
	video.Clips = append(video.Clips, &model.VideoClip{
		ClipBase: model.ClipBase{ID: "v1", TrackID: "video-1", StartTime: 0, Duration: 10},
		Volume:   1,
	})
	audio := tl.TrackByID("audio-1")
	audio.Volume = 1
	audio.Clips = append(audio.Clips, &model.AudioClip{
		ClipBase:    model.ClipBase{ID: "a1", TrackID: "audio-1", StartTime: 0, Duration: 10},
		MediaFileID: "asset-a1",
		Volume:      0.5,
	})
	text := tl.TrackByID("text-1")
	text.Clips = append(text.Clips, &model.TextClip{
		ClipBase: model.ClipBase{ID: "t1", TrackID: "text-1", StartTime: 2, Duration: 3},
		Text:     "Title", Color: "#ffffff", Position: model.Position{X: 50, Y: 20}, Opacity: 1,
	})
	tl.RecomputeDuration()
	return &model.EditState{
		Timeline:  tl,
		Filters:   model.DefaultFilters(),
		TrimStart: 0,
		TrimEnd:   10,
	}
}

func baseRequest(state *model.EditState, onProgress ProgressFunc) Request {
	return Request{
		EditState:  state,
		SourcePath: "/media/source.mp4",
		Resolve:    func(id string) (string, error) { return "/media/" + id + ".mp3", nil },
		Options: Options{
			FileName:  "myvideo",
			Container: "mp4",
			Quality:   QualityMedium,
			FPS:       10,
			OutputDir: "/tmp",
			Width:     320,
			Height:    240,
		},
		OnProgress: onProgress,
	}
}

func TestExport_EndToEnd(t *testing.T) {
	backend := &fakeBackend{
		encoders: allEncoders(),
		producer: &fakeProducer{remaining: 100},
		recorder: &fakeRecorder{},
	}
	engine := NewEngine(backend)

	var progress []float64
	res, err := engine.Export(context.Background(), baseRequest(exportState(), func(p float64, _ string) {
		progress = append(progress, p)
	}))
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	if res.Path != "/tmp/myvideo.mp4" {
		t.Errorf("output path = %q", res.Path)
	}
	// The negotiated MIME type must be one of the attempted candidates.
	valid := false
	for _, c := range Candidates() {
		if c.MimeType == res.MimeType {
			valid = true
		}
	}
	if !valid {
		t.Errorf("mime type %q is not a preference-list candidate", res.MimeType)
	}

	// Progress is monotone and ends at exactly 100.
	if len(progress) < 2 {
		t.Fatalf("too few progress reports: %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress regressed at %d: %v", i, progress)
		}
	}
	if progress[len(progress)-1] != 100 {
		t.Errorf("final progress = %v, want exactly 100", progress[len(progress)-1])
	}

	if !backend.recorder.finished {
		t.Error("recorder was never finalized")
	}
	if backend.recorder.frames != 100 {
		t.Errorf("recorded %d frames, want 100", backend.recorder.frames)
	}
	// Teardown released the helpers even on the success path.
	if backend.producer.closed == 0 {
		t.Error("frame producer leaked")
	}
	if backend.recorder.closed == 0 {
		t.Error("recorder leaked")
	}

	if st, _, _ := engine.Status(); st != StateIdle {
		t.Errorf("engine state after export = %q, want idle", st)
	}
}

func TestExport_MixesSourceAndAudioClips(t *testing.T) {
	backend := &fakeBackend{
		encoders: allEncoders(),
		producer: &fakeProducer{remaining: 100},
		recorder: &fakeRecorder{},
	}
	engine := NewEngine(backend)

	if _, err := engine.Export(context.Background(), baseRequest(exportState(), nil)); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	if len(backend.mixed) != 1 {
		t.Fatalf("mix invoked %d times, want 1", len(backend.mixed))
	}
	req := backend.mixed[0]
	if len(req.Sources) != 2 {
		t.Fatalf("mix has %d sources, want source video + 1 audio clip", len(req.Sources))
	}
	clip := req.Sources[1]
	if clip.Path != "/media/asset-a1.mp3" {
		t.Errorf("audio clip path = %q", clip.Path)
	}
	// trackVolume(1) * clipVolume(0.5) * headroom(0.8)
	if got, want := clip.Volume, 0.4; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("clip mix volume = %v, want %v", got, want)
	}
	if req.Duration != 10 {
		t.Errorf("mix duration = %v, want trim length 10", req.Duration)
	}
}

func TestExport_CancelMidRunTearsDown(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{
		encoders: allEncoders(),
		producer: &fakeProducer{remaining: 100, gate: gate},
		recorder: &fakeRecorder{},
	}
	engine := NewEngine(backend)

	errCh := make(chan error, 1)
	go func() {
		_, err := engine.Export(context.Background(), baseRequest(exportState(), nil))
		errCh <- err
	}()

	// Let the run block on the first frame, then cancel.
	for {
		if st, _, _ := engine.Status(); st == StateRecording {
			break
		}
	}
	engine.Cancel()
	close(gate)

	if err := <-errCh; err == nil {
		t.Fatal("cancelled export returned nil error")
	}

	// Cancellation still released every helper resource.
	if backend.producer.closed == 0 {
		t.Error("frame producer leaked after cancel")
	}
	if backend.recorder.closed == 0 {
		t.Error("recorder leaked after cancel")
	}
	if backend.recorder.finished {
		t.Error("cancelled export finalized the container")
	}

	// Cancel after completion must not panic or affect the next run.
	engine.Cancel()
	engine.Cancel()
	if st, _, _ := engine.Status(); st != StateIdle {
		t.Errorf("state after cancel = %q, want idle", st)
	}
}

func TestExport_NoCapabilityFailsFast(t *testing.T) {
	backend := &fakeBackend{
		encErr:   io.ErrUnexpectedEOF,
		producer: &fakeProducer{},
		recorder: &fakeRecorder{},
	}
	engine := NewEngine(backend)

	_, err := engine.Export(context.Background(), baseRequest(exportState(), nil))
	if err == nil {
		t.Fatal("export succeeded with no encoder capability")
	}
	if !strings.Contains(err.Error(), "capability") {
		t.Errorf("error %q does not name the capability failure", err)
	}
	if backend.recorder.started {
		t.Error("recorder started despite capability failure")
	}
	if st, _, _ := engine.Status(); st != StateIdle {
		t.Errorf("state after failure = %q, want idle", st)
	}
}

func TestExport_NoPreferredCodecFailsWithoutFallback(t *testing.T) {
	// Encoders exist, but none from the preference list.
	backend := &fakeBackend{
		encoders: map[string]bool{"mpeg4": true},
		producer: &fakeProducer{},
		recorder: &fakeRecorder{},
	}
	engine := NewEngine(backend)

	_, err := engine.Export(context.Background(), baseRequest(exportState(), nil))
	if err == nil {
		t.Fatal("export succeeded with no supported codec")
	}
	if !strings.Contains(err.Error(), "no supported codec") {
		t.Errorf("error %q does not name the codec failure", err)
	}
	if backend.recorder.started {
		t.Error("recorder started despite codec failure")
	}
}

func TestExport_MJPEGFallbackIsOptIn(t *testing.T) {
	backend := &fakeBackend{
		encoders: map[string]bool{"mpeg4": true},
		producer: &fakeProducer{remaining: 100},
		recorder: &fakeRecorder{},
	}
	engine := NewEngine(backend)

	req := baseRequest(exportState(), nil)
	req.Options.AllowFallback = true
	res, err := engine.Export(context.Background(), req)
	if err != nil {
		t.Fatalf("opted-in fallback export failed: %v", err)
	}
	if res.Container != "avi" {
		t.Errorf("fallback container = %q, want avi", res.Container)
	}
	// The fallback is video-only; no audio graph is mixed.
	if len(backend.mixed) != 0 {
		t.Errorf("fallback export mixed audio %d times", len(backend.mixed))
	}
}

func TestExport_RejectsConcurrentRuns(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{
		encoders: allEncoders(),
		producer: &fakeProducer{remaining: 100, gate: gate},
		recorder: &fakeRecorder{},
	}
	engine := NewEngine(backend)

	done := make(chan struct{})
	go func() {
		engine.Export(context.Background(), baseRequest(exportState(), nil))
		close(done)
	}()
	for {
		if st, _, _ := engine.Status(); st != StateIdle {
			break
		}
	}

	if _, err := engine.Export(context.Background(), baseRequest(exportState(), nil)); err == nil {
		t.Error("second concurrent export was accepted")
	}
	close(gate)
	<-done
}

func TestExport_SnapshotIsolatedFromLiveEdits(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{
		encoders: allEncoders(),
		producer: &fakeProducer{remaining: 100, gate: gate},
		recorder: &fakeRecorder{},
	}
	engine := NewEngine(backend)
	state := exportState()

	done := make(chan struct{})
	go func() {
		engine.Export(context.Background(), baseRequest(state, nil))
		close(done)
	}()
	for {
		if st, _, _ := engine.Status(); st == StateRecording {
			break
		}
	}

	// Mutate the live timeline mid-export; the engine renders its clone.
	state.Timeline.Tracks = nil
	close(gate)
	<-done

	if backend.recorder.frames != 100 {
		t.Errorf("export saw live mutation: %d frames recorded", backend.recorder.frames)
	}
}
