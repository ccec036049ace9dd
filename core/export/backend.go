package export

import "Mx1Studio/core/media"

// FFmpegBackend implements Backend on top of the ffmpeg processor.
type FFmpegBackend struct {
	proc *media.FFmpegProcessor
}

// NewFFmpegBackend wraps a processor as the engine's media backend.
func NewFFmpegBackend(proc *media.FFmpegProcessor) *FFmpegBackend {
	return &FFmpegBackend{proc: proc}
}

func (b *FFmpegBackend) Encoders() (map[string]bool, error) {
	return b.proc.ListEncoders()
}

func (b *FFmpegBackend) OpenFrames(path string, start float64, fps, width, height int) (FrameProducer, error) {
	return b.proc.NewFrameReader(path, start, fps, width, height)
}

func (b *FFmpegBackend) MixAudio(req MixRequest) error {
	return MixAudio(b.proc.FFmpegPath(), req)
}

func (b *FFmpegBackend) NewRecorder(spec RecorderSpec) Recorder {
	if spec.Candidate.VideoCodec == "mjpeg" {
		return NewMJPEGRecorder(spec)
	}
	return NewFFmpegRecorder(b.proc.FFmpegPath(), spec)
}
