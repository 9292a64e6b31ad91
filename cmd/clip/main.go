// Command clip runs the transcoding pipeline against a local file, without a
// queue, database, or storage backend. Useful for tuning the processing
// profile before deploying it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reelworks/vod-worker/internal/logger"
	"github.com/reelworks/vod-worker/internal/transcoder"
)

func main() {
	var (
		inputPath string
		watermark string
		width     int
		height    int
		clip      time.Duration
		keepAudio bool
	)
	flag.StringVar(&inputPath, "input", "", "path to the source video file")
	flag.StringVar(&watermark, "watermark", "", "watermark text to burn in (empty disables)")
	flag.IntVar(&width, "width", 720, "target width")
	flag.IntVar(&height, "height", 1280, "target height")
	flag.DurationVar(&clip, "clip", 30*time.Second, "content clip duration")
	flag.BoolVar(&keepAudio, "keep-audio", false, "keep the audio track")
	flag.Parse()

	if inputPath == "" {
		if flag.NArg() > 0 {
			inputPath = flag.Arg(0)
		} else {
			fmt.Fprintln(os.Stderr, "usage: clip -input <path-to-video>")
			os.Exit(1)
		}
	}

	opts := transcoder.Options{
		ClipDuration: clip,
		TargetWidth:  width,
		TargetHeight: height,
		TargetFormat: "mp4",
		RemoveAudio:  !keepAudio,
	}
	if watermark != "" {
		opts.Watermark = &transcoder.Watermark{
			Text:        watermark,
			BorderWidth: 1,
			BorderColor: "gray",
			MarginX:     40,
			MarginY:     40,
		}
	}

	outputPath, err := processFile(context.Background(), inputPath, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "processing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("processed video saved at:", outputPath)
}

func processFile(ctx context.Context, inputPath string, opts transcoder.Options) (string, error) {
	absPath, err := filepath.Abs(inputPath)
	if err != nil {
		return "", fmt.Errorf("resolve input path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return "", fmt.Errorf("open input file: %w", err)
	}
	defer file.Close()

	log := logger.New(os.Getenv("LOG_LEVEL"))
	engine := transcoder.New(os.Getenv("FFMPEG_PATH"), os.Getenv("FFPROBE_PATH"), os.Getenv("VIDEO_TEMP_DIR"), log)

	result, err := engine.Process(ctx, file, opts)
	if err != nil {
		return "", fmt.Errorf("process video: %w", err)
	}
	defer result.Close()

	base := strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	format := result.Format
	if format == "" {
		format = "mp4"
	}
	outputPath := filepath.Join(filepath.Dir(absPath), fmt.Sprintf("%s_processed.%s", base, format))

	outFile, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, result.Reader); err != nil {
		return "", fmt.Errorf("write processed video: %w", err)
	}

	return outputPath, nil
}
