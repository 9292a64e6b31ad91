// Package transcoder turns a raw video stream into the published rendition:
// a clipped, resized, optionally watermarked segment sandwiched between two
// solid-color curtains, encoded with an external ffmpeg subprocess.
package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/reelworks/vod-worker/internal/logger"
	"github.com/reelworks/vod-worker/pkg/models"
)

const (
	// DefaultClipDuration bounds the content segment when nothing usable is
	// requested or probed.
	DefaultClipDuration = 30 * time.Second
	// CurtainDuration is the fixed length of each opening/closing curtain.
	CurtainDuration = 2500 * time.Millisecond

	defaultWidth     = 1280
	defaultHeight    = 720
	defaultFrameRate = "30"
)

var tracer = otel.Tracer("vod-transcoder")

// Result is the processed artifact. Closing the reader deletes the backing
// temp file, so the caller must close it on every path.
type Result struct {
	Reader   io.ReadCloser
	Format   string
	Duration time.Duration
	Metadata map[string]string
}

// Close releases the artifact and its backing file.
func (r *Result) Close() error {
	if r == nil || r.Reader == nil {
		return nil
	}
	return r.Reader.Close()
}

// Transcoder drives ffmpeg and ffprobe subprocesses.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
	log         *slog.Logger
}

// New builds a Transcoder. Empty paths fall back to binaries on PATH and the
// system temp directory.
func New(ffmpegPath, ffprobePath, tempDir string, log *slog.Logger) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Transcoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		tempDir:     tempDir,
		log:         log,
	}
}

// Process transforms the input stream according to opts. Probe failures are
// non-fatal; a non-zero ffmpeg exit is fatal for the task and carries the
// captured stderr.
func (t *Transcoder) Process(ctx context.Context, input io.Reader, opts Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, "transcode-video")
	defer span.End()

	if input == nil {
		return nil, errors.New("transcoder: input reader is nil")
	}

	inputPath, err := t.spoolInput(input)
	if err != nil {
		return nil, err
	}
	defer os.Remove(inputPath)

	probed, err := t.probeDuration(ctx, inputPath)
	if err != nil {
		logger.Warn(ctx, t.log, "probe duration failed, using requested clip duration", "error", err)
	}
	clipDuration := effectiveClipDuration(opts.ClipDuration, probed)

	frameRate := defaultFrameRate
	if rate, err := t.probeFrameRate(ctx, inputPath); err == nil {
		frameRate = rate
	} else {
		logger.Debug(ctx, t.log, "probe frame rate failed, using default", "error", err)
	}

	width := opts.TargetWidth
	if width <= 0 {
		width = defaultWidth
	}
	height := opts.TargetHeight
	if height <= 0 {
		height = defaultHeight
	}

	contentSeconds := clipDuration.Seconds()
	totalDuration := clipDuration + 2*CurtainDuration

	filter := buildFilterGraph(width, height, frameRate, contentSeconds, opts.Watermark)

	outputExt := ensureExt(opts.TargetFormat)
	outputFile, err := os.CreateTemp(t.tempDir, "transcode-output-*"+outputExt)
	if err != nil {
		return nil, fmt.Errorf("transcoder: create temp output: %w", err)
	}
	outputPath := outputFile.Name()
	if err := outputFile.Close(); err != nil {
		os.Remove(outputPath)
		return nil, fmt.Errorf("transcoder: close temp output: %w", err)
	}

	args := []string{"-y", "-i", inputPath, "-filter_complex", filter, "-map", "[vout]"}
	args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p", "-movflags", "+faststart")
	if opts.RemoveAudio {
		args = append(args, "-an")
	}
	args = append(args, "-t", fmt.Sprintf("%.3f", totalDuration.Seconds()))
	args = append(args, outputPath)

	span.SetAttributes(
		attribute.Float64("video.clip_seconds", contentSeconds),
		attribute.Int("video.target_width", width),
		attribute.Int("video.target_height", height),
	)

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(outputPath)
		return nil, fmt.Errorf("%w: %v: %s", models.ErrTranscodeFailed, err, stderr.String())
	}

	reader, err := os.Open(outputPath)
	if err != nil {
		os.Remove(outputPath)
		return nil, fmt.Errorf("transcoder: open output: %w", err)
	}

	return &Result{
		Reader:   &tempFileReadCloser{File: reader, path: outputPath},
		Format:   strings.TrimPrefix(outputExt, "."),
		Duration: totalDuration,
		Metadata: map[string]string{
			"clip_duration_seconds":   fmt.Sprintf("%.3f", contentSeconds),
			"curtain_segment_seconds": fmt.Sprintf("%.3f", CurtainDuration.Seconds()),
			"total_duration_seconds":  fmt.Sprintf("%.3f", totalDuration.Seconds()),
			"frame_rate":              frameRate,
			"target_width":            strconv.Itoa(width),
			"target_height":           strconv.Itoa(height),
		},
	}, nil
}

// buildFilterGraph assembles the three-segment graph: opening curtain,
// content (scaled, padded, SAR-pinned, trimmed), closing curtain, with the
// watermark drawn on all three when requested.
func buildFilterGraph(width, height int, frameRate string, contentSeconds float64, wm *Watermark) string {
	baseFilters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height),
		fmt.Sprintf("pad=%d:%d:(%d-iw)/2:(%d-ih)/2", width, height, width, height),
		"setsar=1",
		"format=yuv420p",
		fmt.Sprintf("fps=%s", frameRate),
	}
	if contentSeconds > 0 {
		baseFilters = append(baseFilters, fmt.Sprintf("trim=duration=%.3f", contentSeconds), "setpts=PTS-STARTPTS")
	}

	parts := []string{fmt.Sprintf("[0:v]%s[vbase]", strings.Join(baseFilters, ","))}

	spec := normalizeWatermark(wm, contentSeconds)

	mainLabel := "vbase"
	if spec != nil {
		parts = append(parts, fmt.Sprintf("[%s]drawtext=%s[vmain]", mainLabel, buildDrawTextArgs(spec, true)))
		mainLabel = "vmain"
	}

	curtainBase := fmt.Sprintf("color=c=black:size=%dx%d:rate=%s:d=%.3f,format=yuv420p,setsar=1",
		width, height, frameRate, CurtainDuration.Seconds())
	parts = append(parts,
		fmt.Sprintf("%s[vcurtain_start_base]", curtainBase),
		fmt.Sprintf("%s[vcurtain_end_base]", curtainBase),
	)

	startLabel := "vcurtain_start_base"
	endLabel := "vcurtain_end_base"
	if spec != nil {
		curtainArgs := buildDrawTextArgs(spec, false)
		parts = append(parts,
			fmt.Sprintf("[%s]drawtext=%s[vcurtain_start]", startLabel, curtainArgs),
			fmt.Sprintf("[%s]drawtext=%s[vcurtain_end]", endLabel, curtainArgs),
		)
		startLabel = "vcurtain_start"
		endLabel = "vcurtain_end"
	}

	parts = append(parts, fmt.Sprintf("[%s][%s][%s]concat=n=3:v=1:a=0[vout]", startLabel, mainLabel, endLabel))
	return strings.Join(parts, ";")
}

// effectiveClipDuration picks min(requested, probed) when the probe produced
// a usable value, falling back to the default when nothing usable remains.
func effectiveClipDuration(requested, probed time.Duration) time.Duration {
	clip := requested
	if clip <= 0 {
		clip = DefaultClipDuration
	}
	if probed > 0 && clip > probed {
		clip = probed
	}
	if clip <= 0 {
		clip = DefaultClipDuration
	}
	return clip
}

func (t *Transcoder) spoolInput(input io.Reader) (string, error) {
	inputFile, err := os.CreateTemp(t.tempDir, "transcode-input-*.mp4")
	if err != nil {
		return "", fmt.Errorf("transcoder: create temp input: %w", err)
	}
	inputPath := inputFile.Name()

	if _, err := io.Copy(inputFile, input); err != nil {
		inputFile.Close()
		os.Remove(inputPath)
		return "", fmt.Errorf("transcoder: write temp input: %w", err)
	}
	if err := inputFile.Close(); err != nil {
		os.Remove(inputPath)
		return "", fmt.Errorf("transcoder: close temp input: %w", err)
	}
	return inputPath, nil
}

func (t *Transcoder) probeFrameRate(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffprobe frame rate: %w: %s", err, string(output))
	}
	frameRate := strings.TrimSpace(string(output))
	if frameRate == "" || frameRate == "N/A" || frameRate == "0/0" {
		return "", errors.New("ffprobe frame rate: unavailable")
	}
	return frameRate, nil
}

func (t *Transcoder) probeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w: %s", err, stderr.String())
	}
	durStr := strings.TrimSpace(string(output))
	if durStr == "" {
		return 0, errors.New("ffprobe duration: empty")
	}
	durSec, err := strconv.ParseFloat(durStr, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: parse: %w", err)
	}
	if durSec <= 0 {
		return 0, nil
	}
	return time.Duration(durSec * float64(time.Second)), nil
}

func ensureExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return ".mp4"
	}
	if strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

// tempFileReadCloser deletes the backing file on Close.
type tempFileReadCloser struct {
	*os.File
	path string
}

func (t *tempFileReadCloser) Close() error {
	err := t.File.Close()
	if removeErr := os.Remove(t.path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		if err != nil {
			return err
		}
		return removeErr
	}
	return err
}
