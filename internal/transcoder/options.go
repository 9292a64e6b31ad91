package transcoder

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// WatermarkPosition anchors the watermark text to a corner or the center.
type WatermarkPosition string

const (
	PositionTopLeft     WatermarkPosition = "top-left"
	PositionTopRight    WatermarkPosition = "top-right"
	PositionBottomLeft  WatermarkPosition = "bottom-left"
	PositionBottomRight WatermarkPosition = "bottom-right"
	PositionCenter      WatermarkPosition = "center"
)

// Watermark describes the overlay text burned into the output. Zero-valued
// fields are filled with defaults at normalization time.
type Watermark struct {
	Text          string
	FontFile      string
	FontColor     string
	FontSize      int
	BorderWidth   int
	BorderColor   string
	Position      WatermarkPosition
	MarginX       int
	MarginY       int
	StartDuration time.Duration
	EndDuration   time.Duration
}

// Options drives one transcode.
type Options struct {
	ClipDuration time.Duration
	TargetWidth  int
	TargetHeight int
	TargetFormat string
	RemoveAudio  bool
	Watermark    *Watermark
}

// watermarkSpec is a fully-normalized watermark ready for filter building.
type watermarkSpec struct {
	Text                 string
	FontFile             string
	FontColor            string
	FontSize             int
	BorderWidth          int
	BorderColor          string
	Position             WatermarkPosition
	MarginX              int
	MarginY              int
	StartDurationSeconds float64
	EndTriggerSeconds    float64
}

// normalizeWatermark fills defaults and clamps the fade windows to the clip.
// The overlay is visible during the first StartDuration seconds and the last
// EndDuration seconds of the content window.
func normalizeWatermark(wm *Watermark, clipSeconds float64) *watermarkSpec {
	if wm == nil {
		return nil
	}

	text := wm.Text
	if text == "" {
		text = "Watermark"
	}
	fontColor := wm.FontColor
	if fontColor == "" {
		fontColor = "white"
	}
	fontSize := wm.FontSize
	if fontSize <= 0 {
		fontSize = 48
	}
	borderWidth := wm.BorderWidth
	if borderWidth < 0 {
		borderWidth = 0
	}
	borderColor := wm.BorderColor
	if borderColor == "" {
		borderColor = "black"
	}
	marginX := wm.MarginX
	if marginX < 0 {
		marginX = 0
	}
	marginY := wm.MarginY
	if marginY < 0 {
		marginY = 0
	}

	start := wm.StartDuration.Seconds()
	if start <= 0 {
		start = math.Min(3, math.Max(0.5, clipSeconds))
	}
	if clipSeconds > 0 {
		start = math.Min(start, clipSeconds)
	}

	end := wm.EndDuration.Seconds()
	if end <= 0 {
		end = math.Min(3, math.Max(0.5, clipSeconds))
	}
	if clipSeconds > 0 {
		end = math.Min(end, clipSeconds)
	}

	position := wm.Position
	if position == "" {
		position = PositionBottomRight
	}

	return &watermarkSpec{
		Text:                 text,
		FontFile:             wm.FontFile,
		FontColor:            fontColor,
		FontSize:             fontSize,
		BorderWidth:          borderWidth,
		BorderColor:          borderColor,
		Position:             position,
		MarginX:              marginX,
		MarginY:              marginY,
		StartDurationSeconds: start,
		EndTriggerSeconds:    math.Max(0, clipSeconds-end),
	}
}

// positionExpressions returns the drawtext x/y expressions for a position.
func positionExpressions(pos WatermarkPosition, marginX, marginY int) (string, string) {
	mx := strconv.Itoa(marginX)
	my := strconv.Itoa(marginY)

	switch pos {
	case PositionTopLeft:
		return mx, my
	case PositionTopRight:
		return fmt.Sprintf("w-text_w-%s", mx), my
	case PositionBottomLeft:
		return mx, fmt.Sprintf("h-text_h-%s", my)
	case PositionCenter:
		return "(w-text_w)/2", "(h-text_h)/2"
	default:
		return fmt.Sprintf("w-text_w-%s", mx), fmt.Sprintf("h-text_h-%s", my)
	}
}

// buildDrawTextArgs renders the drawtext filter arguments. The enable window
// is only applied on the content segment; curtains carry the watermark for
// their full duration.
func buildDrawTextArgs(wm *watermarkSpec, includeEnable bool) string {
	if wm == nil {
		return ""
	}

	xExpr, yExpr := positionExpressions(wm.Position, wm.MarginX, wm.MarginY)

	args := []string{}
	if wm.FontFile != "" {
		args = append(args, fmt.Sprintf("fontfile='%s'", escapeFontPath(wm.FontFile)))
	}
	args = append(args,
		fmt.Sprintf("text='%s'", escapeDrawText(wm.Text)),
		fmt.Sprintf("fontcolor=%s", wm.FontColor),
		fmt.Sprintf("fontsize=%d", wm.FontSize),
		fmt.Sprintf("borderw=%d", wm.BorderWidth),
	)
	if wm.BorderWidth > 0 {
		args = append(args, fmt.Sprintf("bordercolor=%s", wm.BorderColor))
	}
	args = append(args,
		fmt.Sprintf("x=%s", xExpr),
		fmt.Sprintf("y=%s", yExpr),
	)
	if includeEnable {
		args = append(args, fmt.Sprintf("enable='lte(t,%.3f)+gte(t,%.3f)'", wm.StartDurationSeconds, wm.EndTriggerSeconds))
	}

	return strings.Join(args, ":")
}

func escapeDrawText(value string) string {
	replaced := strings.ReplaceAll(value, `\`, `\\`)
	replaced = strings.ReplaceAll(replaced, `:`, `\:`)
	replaced = strings.ReplaceAll(replaced, `'`, `\\'`)
	replaced = strings.ReplaceAll(replaced, "\n", `\\n`)
	return replaced
}

func escapeFontPath(value string) string {
	replaced := filepath.ToSlash(value)
	return strings.ReplaceAll(replaced, `'`, `\\'`)
}
