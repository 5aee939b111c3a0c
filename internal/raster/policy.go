package raster

import (
	"fmt"
	"strings"
)

// Quality is a rasterization tier.
type Quality string

const (
	Low    Quality = "low"
	Medium Quality = "medium"
	High   Quality = "high"
)

const (
	// ThumbnailScale is the scale previews are rendered at on import.
	ThumbnailScale = 0.5
	// MaxSafePixels caps the estimated pixel count of an export.
	MaxSafePixels = 4000 * 4000
)

// ParseQuality maps a tier name to a Quality, defaulting to High.
func ParseQuality(s string) Quality {
	switch Quality(strings.ToLower(strings.TrimSpace(s))) {
	case Low:
		return Low
	case Medium:
		return Medium
	default:
		return High
	}
}

// Scale returns the base render scale of q (about 72/150/300 DPI).
func (q Quality) Scale() float64 {
	switch q {
	case Low:
		return 0.6
	case Medium:
		return 1.2
	default:
		return 2.4
	}
}

// Label is the user-facing tier name used in export file names.
func (q Quality) Label() string {
	switch q {
	case Low:
		return "低"
	case Medium:
		return "中"
	default:
		return "高"
	}
}

// EstimatePixels extrapolates the pixel count of a render at scale from
// the dimensions of a thumbnail rendered at ThumbnailScale.
func EstimatePixels(thumbWidth, thumbHeight int, scale float64) float64 {
	f := scale / ThumbnailScale
	return float64(thumbWidth) * float64(thumbHeight) * f * f
}

// Plan is the outcome of the pixel budget check.
type Plan struct {
	Requested       Quality
	Effective       Quality
	Scale           float64
	EstimatedPixels float64
}

func (p Plan) Downgraded() bool { return p.Requested != p.Effective }

// PlanRender applies the pixel budget to a requested tier. High falls back
// to Medium above MaxSafePixels; Medium falls back to Low above 1.5x that.
// The estimate uses the requested scale in both cases.
func PlanRender(q Quality, thumbWidth, thumbHeight int) Plan {
	q = ParseQuality(string(q))
	est := EstimatePixels(thumbWidth, thumbHeight, q.Scale())
	p := Plan{Requested: q, Effective: q, EstimatedPixels: est}
	switch {
	case q == High && est > MaxSafePixels:
		p.Effective = Medium
	case q == Medium && est > 1.5*MaxSafePixels:
		p.Effective = Low
	}
	p.Scale = p.Effective.Scale()
	return p
}

// FileName builds the export name, e.g. "report.pdf_页3_高质量.png".
func FileName(sourceName string, pageNumber int, q Quality) string {
	return fmt.Sprintf("%s_页%d_%s质量.png", sourceName, pageNumber, q.Label())
}
