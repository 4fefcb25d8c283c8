package compositor

import "math"

// Size is a pixel size.
type Size struct {
	W int
	H int
}

// Valid reports whether both sides are positive.
func (s Size) Valid() bool {
	return s.W > 0 && s.H > 0
}

// Placement positions a scaled clip on the surface. X and Y may be negative
// when the clip overflows and is clipped.
type Placement struct {
	Scale float64
	X     float64
	Y     float64
	W     float64
	H     float64
}

// CoverFit scales video to fill surface while keeping its aspect ratio,
// centered, with any overflow cropped.
func CoverFit(surface, video Size) Placement {
	if !surface.Valid() || !video.Valid() {
		return Placement{}
	}
	scale := math.Max(float64(surface.W)/float64(video.W), float64(surface.H)/float64(video.H))
	w := float64(video.W) * scale
	h := float64(video.H) * scale
	return Placement{
		Scale: scale,
		X:     (float64(surface.W) - w) / 2,
		Y:     (float64(surface.H) - h) / 2,
		W:     w,
		H:     h,
	}
}

// CaptionStyle holds font and spacing ratios relative to surface height.
type CaptionStyle struct {
	SourceScale float64
	TargetScale float64
	GapScale    float64
	// MarginScale is the distance from the bottom edge to the target line.
	MarginScale float64
}

// DefaultCaptionStyle matches the shipped configuration defaults.
func DefaultCaptionStyle() CaptionStyle {
	return CaptionStyle{SourceScale: 0.045, TargetScale: 0.04, GapScale: 0.06, MarginScale: 0.08}
}

// CaptionLayout is the pixel geometry of the two caption layers. Y values
// are the top of each text line; both lines are horizontally centered.
type CaptionLayout struct {
	SourceSize int
	TargetSize int
	SourceY    int
	TargetY    int
}

// LayoutCaptions places the source line above the target line with a gap
// proportional to surface height.
func LayoutCaptions(surface Size, style CaptionStyle) CaptionLayout {
	h := float64(surface.H)
	target := int(math.Round(h * style.TargetScale))
	targetY := surface.H - int(math.Round(h*style.MarginScale)) - target
	return CaptionLayout{
		SourceSize: int(math.Round(h * style.SourceScale)),
		TargetSize: target,
		SourceY:    targetY - int(math.Round(h*style.GapScale)),
		TargetY:    targetY,
	}
}
