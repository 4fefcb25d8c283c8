package compositor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"storyreel/internal/fileutil"
	"storyreel/internal/logging"
	"storyreel/internal/session"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, tail(string(output), 400))
	}
	return nil
}

// FFmpegOptions configures FFmpegRecorder.
type FFmpegOptions struct {
	Binary string
	// WorkDir is the parent of the per-export scratch directory.
	WorkDir    string
	FontFile   string
	Style      CaptionStyle
	VideoCodec string
	AudioCodec string
	Logger     *slog.Logger
}

// FFmpegRecorder renders each scene as an ffmpeg segment and joins them.
type FFmpegRecorder struct {
	opts   FFmpegOptions
	run    commandRunner
	logger *slog.Logger

	dir      string
	surface  Size
	fps      int
	layout   CaptionLayout
	segments []string
	current  *sceneCapture
}

type sceneCapture struct {
	index     int
	scene     session.Scene
	placement Placement
	frames    int
	spans     []captionSpan
}

// captionSpan is a caption quantized to the frames that showed it.
type captionSpan struct {
	line  session.SubtitleLine
	first int
	last  int
}

// NewFFmpegRecorder constructs a recorder.
func NewFFmpegRecorder(opts FFmpegOptions) *FFmpegRecorder {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.Style == (CaptionStyle{}) {
		opts.Style = DefaultCaptionStyle()
	}
	if opts.VideoCodec == "" {
		opts.VideoCodec = "libx264"
	}
	if opts.AudioCodec == "" {
		opts.AudioCodec = "aac"
	}
	return &FFmpegRecorder{
		opts:   opts,
		run:    defaultCommandRunner,
		logger: logging.NewComponentLogger(opts.Logger, "ffmpeg_recorder"),
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (r *FFmpegRecorder) WithCommandRunner(run commandRunner) {
	if r != nil && run != nil {
		r.run = run
	}
}

// Start allocates the scratch directory.
func (r *FFmpegRecorder) Start(_ context.Context, surface Size, fps int) error {
	if !surface.Valid() {
		return fmt.Errorf("invalid surface %dx%d", surface.W, surface.H)
	}
	if r.opts.WorkDir != "" {
		if err := os.MkdirAll(r.opts.WorkDir, 0o755); err != nil {
			return err
		}
	}
	dir, err := os.MkdirTemp(r.opts.WorkDir, "export-*")
	if err != nil {
		return err
	}
	r.dir = dir
	r.surface = surface
	r.fps = fps
	r.layout = LayoutCaptions(surface, r.opts.Style)
	r.segments = nil
	return nil
}

// BeginScene opens a capture for one scene.
func (r *FFmpegRecorder) BeginScene(_ context.Context, index int, scene session.Scene) error {
	if r.dir == "" {
		return errors.New("recorder not started")
	}
	r.current = &sceneCapture{index: index, scene: scene}
	return nil
}

// WriteFrame records which caption the frame shows.
func (r *FFmpegRecorder) WriteFrame(_ context.Context, frame Frame) error {
	c := r.current
	if c == nil {
		return errors.New("no scene in progress")
	}
	c.frames++
	c.placement = frame.Placement
	if !frame.Captioned {
		return nil
	}
	if n := len(c.spans); n > 0 {
		last := &c.spans[n-1]
		if last.line == frame.Caption && last.last == frame.Index-1 {
			last.last = frame.Index
			return nil
		}
	}
	c.spans = append(c.spans, captionSpan{line: frame.Caption, first: frame.Index, last: frame.Index})
	return nil
}

// EndScene renders the captured scene into a segment file.
func (r *FFmpegRecorder) EndScene(ctx context.Context) error {
	c := r.current
	r.current = nil
	if c == nil {
		return errors.New("no scene in progress")
	}
	if c.frames == 0 {
		return fmt.Errorf("scene %d produced no frames", c.scene.ID)
	}
	duration := float64(c.frames) / float64(r.fps)
	graph, err := r.filterGraph(c, duration)
	if err != nil {
		return err
	}
	segment := filepath.Join(r.dir, fmt.Sprintf("segment-%03d.mp4", c.index+1))
	args := []string{
		"-y", "-v", "error",
		"-i", c.scene.VideoRef,
		"-i", c.scene.AudioRef,
		"-filter_complex", graph,
		"-map", "[v]", "-map", "[a]",
		"-t", formatSeconds(duration),
		"-r", strconv.Itoa(r.fps),
		"-c:v", r.opts.VideoCodec, "-pix_fmt", "yuv420p",
		"-c:a", r.opts.AudioCodec, "-ar", "48000", "-ac", "2",
		segment,
	}
	r.logger.Debug("rendering scene segment",
		logging.Int(logging.FieldSceneIndex, c.index),
		logging.Int("frames", c.frames),
		logging.Int("captions", len(c.spans)),
		logging.String("segment", segment),
	)
	if err := r.run(ctx, r.opts.Binary, args...); err != nil {
		return err
	}
	if _, err := os.Stat(segment); err != nil {
		return fmt.Errorf("ffmpeg did not produce segment: %w", err)
	}
	r.segments = append(r.segments, segment)
	return nil
}

// Finish concatenates the segments into dest and removes scratch files.
func (r *FFmpegRecorder) Finish(ctx context.Context, dest string) error {
	if len(r.segments) == 0 {
		return errors.New("no segments recorded")
	}
	var list strings.Builder
	for _, seg := range r.segments {
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(seg, "'", `'\''`))
	}
	listPath := filepath.Join(r.dir, "segments.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return err
	}
	joined := filepath.Join(r.dir, "joined.mp4")
	args := []string{
		"-y", "-v", "error",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		joined,
	}
	if err := r.run(ctx, r.opts.Binary, args...); err != nil {
		return err
	}
	if _, err := os.Stat(joined); err != nil {
		return fmt.Errorf("ffmpeg did not produce output: %w", err)
	}
	// The scratch directory may sit on another filesystem than the export.
	if err := fileutil.MoveFile(joined, dest); err != nil {
		return fmt.Errorf("finalize output: %w", err)
	}
	r.cleanup()
	return nil
}

// Abort releases scratch files.
func (r *FFmpegRecorder) Abort() {
	r.current = nil
	r.cleanup()
}

func (r *FFmpegRecorder) cleanup() {
	if r.dir == "" {
		return
	}
	if err := os.RemoveAll(r.dir); err != nil {
		r.logger.Debug("scratch cleanup failed", logging.Error(err), logging.String("dir", r.dir))
	}
	r.dir = ""
	r.segments = nil
}

// filterGraph scales and crops the clip to the surface, holds its last frame
// until the narration ends, and draws both caption layers for each span.
func (r *FFmpegRecorder) filterGraph(c *sceneCapture, duration float64) (string, error) {
	w, h := r.surface.W, r.surface.H
	d := formatSeconds(duration)
	var b strings.Builder
	fmt.Fprintf(&b, "[0:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1,fps=%d,tpad=stop_mode=clone:stop_duration=%s,trim=duration=%s,setpts=PTS-STARTPTS",
		w, h, w, h, r.fps, d, d)
	for i, span := range c.spans {
		start := formatSeconds(float64(span.first) / float64(r.fps))
		end := formatSeconds(float64(span.last+1) / float64(r.fps))
		layers := []struct {
			text string
			size int
			y    int
			tag  string
		}{
			{span.line.TextEn, r.layout.SourceSize, r.layout.SourceY, "src"},
			{span.line.TextZh, r.layout.TargetSize, r.layout.TargetY, "tgt"},
		}
		for _, layer := range layers {
			if strings.TrimSpace(layer.text) == "" {
				continue
			}
			path := filepath.Join(r.dir, fmt.Sprintf("caption-%03d-%03d-%s.txt", c.index+1, i+1, layer.tag))
			if err := os.WriteFile(path, []byte(layer.text), 0o644); err != nil {
				return "", err
			}
			b.WriteString(",drawtext=")
			if r.opts.FontFile != "" {
				fmt.Fprintf(&b, "fontfile=%s:", escapeFilterValue(r.opts.FontFile))
			}
			fmt.Fprintf(&b, "textfile=%s:fontsize=%d:fontcolor=white:borderw=2:bordercolor=black@0.8:x=(w-text_w)/2:y=%d:enable='gte(t,%s)*lt(t,%s)'",
				escapeFilterValue(path), layer.size, layer.y, start, end)
		}
	}
	b.WriteString("[v];")
	fmt.Fprintf(&b, "[1:a]apad=whole_dur=%s,atrim=duration=%s[a]", d, d)
	return b.String(), nil
}

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// escapeFilterValue escapes a filter option value for both parsing passes
// ffmpeg applies to -filter_complex: once for the option list, then once for
// the graph.
func escapeFilterValue(value string) string {
	return graphEscaper.Replace(optionEscaper.Replace(value))
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
