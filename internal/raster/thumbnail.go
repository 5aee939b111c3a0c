package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	"github.com/local/pdfeditor/internal/pdfdoc"
)

// ConfirmPreviewScale is the scale of the replacement confirmation preview.
const ConfirmPreviewScale = 0.3

// Thumbnail is a PNG preview of a page with its pixel size.
type Thumbnail struct {
	PNG    []byte
	Width  int
	Height int
}

func (t Thumbnail) Empty() bool { return len(t.PNG) == 0 }

// RenderThumbnail rasterises page at scale without rotation.
func RenderThumbnail(page pdfdoc.Page, scale float64) (Thumbnail, error) {
	vp := page.Viewport(scale, 0)
	img, err := page.Render(vp)
	if err != nil {
		return Thumbnail{}, err
	}
	return encodeThumbnail(img)
}

// Downscale resamples a thumbnail by factor (0 < factor <= 1).
func Downscale(t Thumbnail, factor float64) (Thumbnail, error) {
	if factor <= 0 || factor > 1 {
		return Thumbnail{}, fmt.Errorf("invalid downscale factor %v", factor)
	}
	if factor == 1 {
		return t, nil
	}
	src, err := png.Decode(bytes.NewReader(t.PNG))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("failed to decode thumbnail: %w", err)
	}
	w := max(1, int(math.Round(float64(src.Bounds().Dx())*factor)))
	h := max(1, int(math.Round(float64(src.Bounds().Dy())*factor)))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return encodeThumbnail(dst)
}

func encodeThumbnail(img image.Image) (Thumbnail, error) {
	data, err := PNGEncoder{Level: png.BestSpeed}.Encode(img)
	if err != nil {
		return Thumbnail{}, err
	}
	b := img.Bounds()
	return Thumbnail{PNG: data, Width: b.Dx(), Height: b.Dy()}, nil
}
