package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"vizdirector/logger"
)

// encoderFor maps a codec name in a MIME type to the ffmpeg encoder.
var encoderFor = map[string]string{
	"vp9":  "libvpx-vp9",
	"vp8":  "libvpx",
	"h264": "libx264",
	"opus": "libopus",
}

// FFmpegConfig configures the ffmpeg capture backend.
type FFmpegConfig struct {
	Path string
	// AudioPath is the media file muxed under the video. Empty records silence.
	AudioPath string
	Width     int
	Height    int
}

// FFmpegBackend encodes raw RGBA frames pushed by the host with ffmpeg.
type FFmpegBackend struct {
	cfg FFmpegConfig

	probeOnce sync.Once
	encoders  map[string]bool
	probeErr  error

	mu     sync.Mutex
	active *ffmpegRecorder
}

// NewFFmpegBackend creates a backend. ffmpeg is probed lazily.
func NewFFmpegBackend(cfg FFmpegConfig) *FFmpegBackend {
	if cfg.Path == "" {
		cfg.Path = "ffmpeg"
	}
	return &FFmpegBackend{cfg: cfg}
}

func (b *FFmpegBackend) probe() {
	b.probeOnce.Do(func() {
		path, err := exec.LookPath(b.cfg.Path)
		if err != nil {
			b.probeErr = fmt.Errorf("ffmpeg not found: %w", err)
			return
		}
		cmd := exec.Command(path, "-hide_banner", "-encoders")
		var out, stderr bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			b.probeErr = fmt.Errorf("ffmpeg -encoders failed: %w\nFFmpeg Error: %s", err, stderr.String())
			return
		}
		b.encoders = parseEncoders(out.String())
		logger.Debug("ffmpeg encoders probed", logger.Int("count", len(b.encoders)))
	})
}

// Available reports whether ffmpeg can be run.
func (b *FFmpegBackend) Available() error {
	if b.cfg.Width <= 0 || b.cfg.Height <= 0 {
		return fmt.Errorf("invalid capture size %dx%d", b.cfg.Width, b.cfg.Height)
	}
	b.probe()
	return b.probeErr
}

// Supports reports whether every codec in mimeType has an encoder.
func (b *FFmpegBackend) Supports(mimeType string) bool {
	b.probe()
	if b.probeErr != nil {
		return false
	}
	return supportsMime(b.encoders, mimeType)
}

func supportsMime(encoders map[string]bool, mimeType string) bool {
	video, audio, ok := codecsOf(mimeType)
	if !ok {
		return false
	}
	return encoders[encoderFor[video]] && encoders[encoderFor[audio]]
}

// codecsOf splits "video/webm;codecs=vp9,opus" into its video and audio
// codecs. A bare "video/webm" means vp8 and opus.
func codecsOf(mimeType string) (video, audio string, ok bool) {
	parts := strings.Split(mimeType, ";")
	if strings.TrimSpace(parts[0]) != "video/webm" {
		return "", "", false
	}
	video, audio = "vp8", "opus"
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if !strings.HasPrefix(p, "codecs=") {
			continue
		}
		codecs := strings.Split(strings.Trim(strings.TrimPrefix(p, "codecs="), `"`), ",")
		video = strings.TrimSpace(codecs[0])
		if len(codecs) > 1 {
			audio = strings.TrimSpace(codecs[1])
		}
	}
	if _, known := encoderFor[video]; !known {
		return "", "", false
	}
	if _, known := encoderFor[audio]; !known {
		return "", "", false
	}
	return video, audio, true
}

// parseEncoders reads the table printed by "ffmpeg -encoders".
func parseEncoders(out string) map[string]bool {
	encoders := make(map[string]bool)
	sc := bufio.NewScanner(strings.NewReader(out))
	table := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "------") {
			table = true
			continue
		}
		if !table {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			encoders[fields[1]] = true
		}
	}
	return encoders
}

// buildArgs composes the ffmpeg command line for one recording.
func (b *FFmpegBackend) buildArgs(opts Options) ([]string, error) {
	video, audio, ok := codecsOf(opts.MimeType)
	if !ok {
		return nil, fmt.Errorf("unsupported mime type %q", opts.MimeType)
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = 30
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", b.cfg.Width, b.cfg.Height),
		"-r", strconv.Itoa(fps),
		"-i", "pipe:0",
	}
	if b.cfg.AudioPath != "" {
		args = append(args, "-i", b.cfg.AudioPath)
	} else {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=r=48000:cl=stereo")
	}
	args = append(args,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", encoderFor[video],
	)
	if opts.Bitrate > 0 {
		args = append(args, "-b:v", strconv.Itoa(opts.Bitrate))
	}
	if video == "vp8" || video == "vp9" {
		args = append(args, "-deadline", "realtime", "-cpu-used", "8")
	}
	args = append(args, "-c:a", encoderFor[audio], "-b:a", "128k", "-shortest")

	// the webm muxer only takes vp8/vp9/av1 video
	format := "webm"
	if video == "h264" {
		format = "matroska"
	}
	args = append(args, "-f", format, "pipe:1")
	return args, nil
}

// Open spawns ffmpeg. Frames pushed with PushFrame go to its stdin and its
// stdout is collected into chunks every opts.ChunkInterval.
func (b *FFmpegBackend) Open(_ context.Context, opts Options) (Recorder, error) {
	if err := b.Available(); err != nil {
		return nil, err
	}
	args, err := b.buildArgs(opts)
	if err != nil {
		return nil, err
	}
	interval := opts.ChunkInterval
	if interval <= 0 {
		interval = DefaultChunkInterval
	}

	// the recorder outlives the request that started it, so no CommandContext
	cmd := exec.Command(b.cfg.Path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	r := &ffmpegRecorder{
		backend:   b,
		cmd:       cmd,
		frameSize: b.cfg.Width * b.cfg.Height * 4,
		frames:    make(chan []byte, 8),
		chunks:    make(chan []byte, 16),
		exited:    make(chan struct{}),
	}
	cmd.Stderr = &r.stderr

	logger.Info("starting ffmpeg capture", logger.String("cmd", b.cfg.Path+" "+strings.Join(args, " ")))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}

	go r.writeFrames(stdin)
	readDone := make(chan struct{})
	go r.readOutput(stdout, readDone)
	go r.flush(interval, readDone)
	go func() {
		// Wait closes stdout, so every byte must be read first
		<-readDone
		r.waitErr = cmd.Wait()
		close(r.exited)
	}()

	b.mu.Lock()
	b.active = r
	b.mu.Unlock()
	return r, nil
}

// PushFrame hands one RGBA frame to the running recording. Frames of the
// wrong size, or arriving while the encoder is behind, are dropped.
func (b *FFmpegBackend) PushFrame(frame []byte) bool {
	b.mu.Lock()
	r := b.active
	b.mu.Unlock()
	if r == nil {
		return false
	}
	return r.push(frame)
}

// FrameSize is the byte length of one RGBA frame.
func (b *FFmpegBackend) FrameSize() int {
	return b.cfg.Width * b.cfg.Height * 4
}

func (b *FFmpegBackend) release(r *ffmpegRecorder) {
	b.mu.Lock()
	if b.active == r {
		b.active = nil
	}
	b.mu.Unlock()
}

type ffmpegRecorder struct {
	backend   *FFmpegBackend
	cmd       *exec.Cmd
	frameSize int
	stderr    bytes.Buffer

	mu      sync.Mutex
	stopped bool
	frames  chan []byte

	bufMu sync.Mutex
	buf   bytes.Buffer

	chunks  chan []byte
	exited  chan struct{}
	waitErr error
}

func (r *ffmpegRecorder) Chunks() <-chan []byte { return r.chunks }

func (r *ffmpegRecorder) push(frame []byte) bool {
	if len(frame) != r.frameSize {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	select {
	case r.frames <- frame:
		return true
	default:
		return false
	}
}

func (r *ffmpegRecorder) writeFrames(stdin io.WriteCloser) {
	defer stdin.Close()
	for f := range r.frames {
		if _, err := stdin.Write(f); err != nil {
			logger.Warn("ffmpeg stdin write failed", logger.ErrorField(err))
			// keep draining so push never blocks
			for range r.frames {
			}
			return
		}
	}
}

func (r *ffmpegRecorder) readOutput(stdout io.Reader, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 64*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			r.bufMu.Lock()
			r.buf.Write(buf[:n])
			r.bufMu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				logger.Warn("ffmpeg stdout read failed", logger.ErrorField(err))
			}
			return
		}
	}
}

func (r *ffmpegRecorder) take() []byte {
	r.bufMu.Lock()
	defer r.bufMu.Unlock()
	if r.buf.Len() == 0 {
		return nil
	}
	out := append([]byte(nil), r.buf.Bytes()...)
	r.buf.Reset()
	return out
}

func (r *ffmpegRecorder) flush(interval time.Duration, readDone <-chan struct{}) {
	defer close(r.chunks)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if c := r.take(); c != nil {
				r.chunks <- c
			}
		case <-readDone:
			if c := r.take(); c != nil {
				r.chunks <- c
			}
			return
		}
	}
}

// Stop closes stdin so ffmpeg writes the trailer and exits.
func (r *ffmpegRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	r.stopped = true
	close(r.frames)
	r.backend.release(r)
	return nil
}

// Close waits briefly for ffmpeg and kills it if it is still running.
func (r *ffmpegRecorder) Close() error {
	r.Stop()
	select {
	case <-r.exited:
	case <-time.After(5 * time.Second):
		if err := r.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill ffmpeg: %w", err)
		}
		<-r.exited
	}
	if r.waitErr != nil {
		return fmt.Errorf("ffmpeg exited: %w\nFFmpeg Error: %s", r.waitErr, r.stderr.String())
	}
	return nil
}
