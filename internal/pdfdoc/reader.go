package pdfdoc

import (
	"errors"
	"image"
)

// PointsPerInch is the resolution of a viewport at scale 1.
const PointsPerInch = 72.0

// ErrPageRange is returned when a page number is outside the document.
var ErrPageRange = errors.New("page number out of range")

// Viewport is the pixel geometry of a page rendered at Scale with
// Rotation degrees applied clockwise.
type Viewport struct {
	Scale    float64
	Rotation int
	Width    int
	Height   int
}

// Reader opens PDF buffers for inspection and rendering.
//
// Implementations may retain or invalidate the slice they are given;
// callers hand over a private copy.
type Reader interface {
	Open(data []byte) (Document, error)
}

// Document abstracts an opened PDF.
type Document interface {
	PageCount() int
	// Page returns page n, 1-based.
	Page(n int) (Page, error)
	Close() error
}

// Page abstracts a single page of an opened Document.
type Page interface {
	Viewport(scale float64, rotation int) Viewport
	Render(vp Viewport) (*image.RGBA, error)
}

// ValidRotation reports whether deg is a quarter turn multiple.
func ValidRotation(deg int) bool { return deg%90 == 0 }

// NormalizeRotation maps any multiple of 90 into [0, 360).
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// ScaleViewport computes the viewport of a page with the given bounds in
// points.
func ScaleViewport(bounds image.Rectangle, scale float64, rotation int) Viewport {
	rotation = NormalizeRotation(rotation)
	w := int(float64(bounds.Dx()) * scale)
	h := int(float64(bounds.Dy()) * scale)
	if rotation == 90 || rotation == 270 {
		w, h = h, w
	}
	return Viewport{Scale: scale, Rotation: rotation, Width: w, Height: h}
}
