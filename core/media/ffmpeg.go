package media

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"Mx1Studio/logger"
)

// FFmpegProcessor drives ffmpeg/ffprobe for probing, thumbnailing, frame
// extraction and encoder capability checks.
type FFmpegProcessor struct {
	ffmpegPath string
}

// NewFFmpegProcessor creates a processor using the given ffmpeg binary path.
func NewFFmpegProcessor(ffmpegPath string) *FFmpegProcessor {
	return &FFmpegProcessor{ffmpegPath: ffmpegPath}
}

// FFmpegPath returns the configured ffmpeg binary path.
func (p *FFmpegProcessor) FFmpegPath() string { return p.ffmpegPath }

func (p *FFmpegProcessor) ffprobePath() string {
	return strings.Replace(p.ffmpegPath, "ffmpeg", "ffprobe", 1)
}

// MediaInfo is the probed shape of a media file.
type MediaInfo struct {
	Duration   float64
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	HasVideo   bool
	HasAudio   bool
}

// Resolution formats the probed dimensions as "WxH".
func (m *MediaInfo) Resolution() string {
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// ffprobeOutput mirrors the ffprobe JSON we request.
type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe inspects a media file with ffprobe.
func (p *FFmpegProcessor) Probe(inputFile string) (*MediaInfo, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-show_entries", "stream=codec_type,codec_name,width,height",
		"-of", "json",
		inputFile,
	}

	cmd := exec.Command(p.ffprobePath(), args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	if probed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	for _, s := range probed.Streams {
		switch s.CodecType {
		case "video":
			info.HasVideo = true
			info.VideoCodec = s.CodecName
			if s.Width > 0 {
				info.Width = s.Width
				info.Height = s.Height
			}
		case "audio":
			info.HasAudio = true
			info.AudioCodec = s.CodecName
		}
	}
	return info, nil
}

// ExtractThumbnail renders a single scaled frame at the given time.
func (p *FFmpegProcessor) ExtractThumbnail(inputFile string, atTime float64, outputFile string, width int) error {
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", atTime),
		"-i", inputFile,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", width),
		outputFile,
	}

	cmd := exec.Command(p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("thumbnail extraction failed for %s: %w\nFFmpeg Error: %s", inputFile, err, stderr.String())
	}
	return nil
}

// ListEncoders probes the host ffmpeg for its compiled-in encoder set.
func (p *FFmpegProcessor) ListEncoders() (map[string]bool, error) {
	cmd := exec.Command(p.ffmpegPath, "-hide_banner", "-encoders")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to list encoders: %w", err)
	}
	return parseEncoders(out.String()), nil
}

// parseEncoders extracts encoder names from `ffmpeg -encoders` output.
// Lines look like " V....D libx264  H.264 / AVC ...". The name is the second
// field after the capability flags; header lines before the "------"
// separator are skipped.
func parseEncoders(output string) map[string]bool {
	encoders := make(map[string]bool)
	inList := false
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !inList {
			if strings.Contains(line, "------") {
				inList = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			encoders[fields[1]] = true
		}
	}
	return encoders
}

// FrameReader pulls decoded RGBA frames sequentially from ffmpeg's natural
// playback of the source, so export never seeks per frame.
type FrameReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte
	width  int
	height int
	closed bool
}

// NewFrameReader starts decoding inputFile from startTime at the given frame
// rate, scaled (letterboxed by the caller) to width x height.
func (p *FFmpegProcessor) NewFrameReader(inputFile string, startTime float64, fps, width, height int) (*FrameReader, error) {
	args := []string{
		"-ss", fmt.Sprintf("%.3f", startTime),
		"-i", inputFile,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.Itoa(fps),
		"-an",
		"pipe:1",
	}

	cmd := exec.Command(p.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start frame decoder: %w", err)
	}
	logger.Debug("frame reader started",
		logger.String("input", inputFile),
		logger.Float64("start", startTime),
		logger.Int("fps", fps))

	return &FrameReader{
		cmd:    cmd,
		stdout: stdout,
		buf:    make([]byte, width*height*4),
		width:  width,
		height: height,
	}, nil
}

// Next returns the next decoded frame, or io.EOF when the stream ends.
func (r *FrameReader) Next() (*image.RGBA, error) {
	if r.closed {
		return nil, io.EOF
	}
	if _, err := io.ReadFull(r.stdout, r.buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	copy(img.Pix, r.buf)
	return img, nil
}

// Close tears down the decoder process. Idempotent.
func (r *FrameReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.stdout.Close()
	if r.cmd.Process != nil {
		r.cmd.Process.Kill()
	}
	return r.cmd.Wait()
}
