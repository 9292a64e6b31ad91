package transcoder

import (
	"strings"
	"testing"
	"time"
)

func TestEffectiveClipDuration(t *testing.T) {
	tests := []struct {
		name      string
		requested time.Duration
		probed    time.Duration
		want      time.Duration
	}{
		{"requested shorter than probed", 10 * time.Second, 60 * time.Second, 10 * time.Second},
		{"probed shorter than requested", 30 * time.Second, 12 * time.Second, 12 * time.Second},
		{"probe unavailable", 30 * time.Second, 0, 30 * time.Second},
		{"nothing requested", 0, 0, DefaultClipDuration},
		{"negative requested", -5 * time.Second, 0, DefaultClipDuration},
		{"nothing requested but probed", 0, 12 * time.Second, 12 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := effectiveClipDuration(tt.requested, tt.probed); got != tt.want {
				t.Errorf("effectiveClipDuration(%v, %v) = %v, want %v", tt.requested, tt.probed, got, tt.want)
			}
		})
	}
}

func TestBuildFilterGraph(t *testing.T) {
	filter := buildFilterGraph(1280, 720, "30", 30, nil)

	for _, want := range []string{
		"scale=1280:720:force_original_aspect_ratio=decrease",
		"pad=1280:720:(1280-iw)/2:(720-ih)/2",
		"setsar=1",
		"format=yuv420p",
		"fps=30",
		"trim=duration=30.000",
		"setpts=PTS-STARTPTS",
		"color=c=black:size=1280x720:rate=30:d=2.500",
		"[vcurtain_start_base][vbase][vcurtain_end_base]concat=n=3:v=1:a=0[vout]",
	} {
		if !strings.Contains(filter, want) {
			t.Errorf("filter graph missing %q:\n%s", want, filter)
		}
	}

	if strings.Contains(filter, "drawtext") {
		t.Errorf("filter graph without watermark must not draw text:\n%s", filter)
	}
}

func TestBuildFilterGraphWithWatermark(t *testing.T) {
	wm := &Watermark{Text: "Rising Stars", MarginX: 40, MarginY: 40}
	filter := buildFilterGraph(720, 1280, "24", 20, wm)

	for _, want := range []string{
		"drawtext=text='Rising Stars'",
		"[vbase]drawtext=",
		"[vcurtain_start_base]drawtext=",
		"[vcurtain_end_base]drawtext=",
		"[vcurtain_start][vmain][vcurtain_end]concat=n=3:v=1:a=0[vout]",
		"enable='lte(t,3.000)+gte(t,17.000)'",
	} {
		if !strings.Contains(filter, want) {
			t.Errorf("filter graph missing %q:\n%s", want, filter)
		}
	}

	// The curtains carry the watermark for their full duration: exactly one
	// enable window, on the content segment.
	if got := strings.Count(filter, "enable="); got != 1 {
		t.Errorf("enable window count = %d, want 1:\n%s", got, filter)
	}
}

func TestNormalizeWatermarkDefaults(t *testing.T) {
	spec := normalizeWatermark(&Watermark{}, 30)

	if spec.Text != "Watermark" {
		t.Errorf("Text = %q, want Watermark", spec.Text)
	}
	if spec.FontColor != "white" {
		t.Errorf("FontColor = %q, want white", spec.FontColor)
	}
	if spec.FontSize != 48 {
		t.Errorf("FontSize = %d, want 48", spec.FontSize)
	}
	if spec.BorderColor != "black" {
		t.Errorf("BorderColor = %q, want black", spec.BorderColor)
	}
	if spec.Position != PositionBottomRight {
		t.Errorf("Position = %q, want bottom-right", spec.Position)
	}
	if spec.StartDurationSeconds != 3 {
		t.Errorf("StartDurationSeconds = %v, want 3", spec.StartDurationSeconds)
	}
	if spec.EndTriggerSeconds != 27 {
		t.Errorf("EndTriggerSeconds = %v, want 27", spec.EndTriggerSeconds)
	}
}

func TestNormalizeWatermarkShortClip(t *testing.T) {
	// Fade windows clamp to the clip; floor is 0.5 s for very short clips.
	spec := normalizeWatermark(&Watermark{}, 1)
	if spec.StartDurationSeconds != 1 {
		t.Errorf("StartDurationSeconds = %v, want 1", spec.StartDurationSeconds)
	}
	if spec.EndTriggerSeconds != 0 {
		t.Errorf("EndTriggerSeconds = %v, want 0", spec.EndTriggerSeconds)
	}
}

func TestNormalizeWatermarkClampsMargins(t *testing.T) {
	spec := normalizeWatermark(&Watermark{MarginX: -10, MarginY: -20}, 30)
	if spec.MarginX != 0 || spec.MarginY != 0 {
		t.Errorf("margins = (%d, %d), want (0, 0)", spec.MarginX, spec.MarginY)
	}
}

func TestNormalizeWatermarkNil(t *testing.T) {
	if normalizeWatermark(nil, 30) != nil {
		t.Error("normalizeWatermark(nil) should be nil")
	}
}

func TestPositionExpressions(t *testing.T) {
	tests := []struct {
		pos   WatermarkPosition
		wantX string
		wantY string
	}{
		{PositionTopLeft, "40", "20"},
		{PositionTopRight, "w-text_w-40", "20"},
		{PositionBottomLeft, "40", "h-text_h-20"},
		{PositionBottomRight, "w-text_w-40", "h-text_h-20"},
		{PositionCenter, "(w-text_w)/2", "(h-text_h)/2"},
		{WatermarkPosition("unknown"), "w-text_w-40", "h-text_h-20"},
	}

	for _, tt := range tests {
		t.Run(string(tt.pos), func(t *testing.T) {
			x, y := positionExpressions(tt.pos, 40, 20)
			if x != tt.wantX || y != tt.wantY {
				t.Errorf("positionExpressions(%q) = (%q, %q), want (%q, %q)", tt.pos, x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestBuildDrawTextArgsBorder(t *testing.T) {
	spec := normalizeWatermark(&Watermark{BorderWidth: 2, BorderColor: "gray"}, 30)
	args := buildDrawTextArgs(spec, false)
	if !strings.Contains(args, "borderw=2") || !strings.Contains(args, "bordercolor=gray") {
		t.Errorf("drawtext args missing border settings: %s", args)
	}

	spec = normalizeWatermark(&Watermark{}, 30)
	args = buildDrawTextArgs(spec, false)
	if strings.Contains(args, "bordercolor=") {
		t.Errorf("drawtext args must omit bordercolor when borderw=0: %s", args)
	}
}

func TestEscapeDrawText(t *testing.T) {
	got := escapeDrawText(`it's 10:30`)
	if !strings.Contains(got, `\\'`) || !strings.Contains(got, `\:`) {
		t.Errorf("escapeDrawText = %q", got)
	}
}

func TestEnsureExt(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ".mp4"},
		{"mp4", ".mp4"},
		{".webm", ".webm"},
		{" mov ", ".mov"},
	}
	for _, tt := range tests {
		if got := ensureExt(tt.in); got != tt.want {
			t.Errorf("ensureExt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
