package raster

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfeditor/internal/failure"
	"github.com/local/pdfeditor/internal/metrics"
	"github.com/local/pdfeditor/internal/pdfdoc"
)

// Source describes the page to export.
type Source struct {
	PageID      string
	Name        string
	PageNumber  int
	Rotation    int
	Data        []byte
	ThumbWidth  int
	ThumbHeight int
}

// Image is a rendered page export.
type Image struct {
	FileName string
	PNG      []byte
	Width    int
	Height   int
	Plan     Plan
}

// Rasterizer renders pages to PNG through a pdfdoc.Reader.
type Rasterizer struct {
	reader   pdfdoc.Reader
	primary  Encoder
	fallback Encoder
}

func New(reader pdfdoc.Reader) *Rasterizer {
	return &Rasterizer{
		reader:   reader,
		primary:  PNGEncoder{Level: png.DefaultCompression},
		fallback: DataURLEncoder{},
	}
}

// WithEncoders replaces the primary and fallback encoders.
func (r *Rasterizer) WithEncoders(primary, fallback Encoder) *Rasterizer {
	return &Rasterizer{reader: r.reader, primary: primary, fallback: fallback}
}

// Render exports src at quality q after applying the pixel budget.
func (r *Rasterizer) Render(ctx context.Context, src Source, q Quality) (*Image, error) {
	if len(src.Data) == 0 {
		return nil, &failure.EmptySourceError{PageID: src.PageID}
	}
	plan := PlanRender(q, src.ThumbWidth, src.ThumbHeight)
	if plan.Downgraded() {
		log.Warn().
			Str("page_id", src.PageID).
			Str("requested", string(plan.Requested)).
			Str("effective", string(plan.Effective)).
			Float64("estimated_pixels", plan.EstimatedPixels).
			Msg("page too large for requested quality; downgrading")
		metrics.IncDowngrade(string(plan.Requested), string(plan.Effective))
	}

	data, vp, err := r.RenderPage(ctx, src.Data, src.PageNumber, src.Rotation, plan.Scale, r.primary, r.fallback)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("page_id", src.PageID).
		Int("page", src.PageNumber).
		Float64("scale", plan.Scale).
		Int("png_size", len(data)).
		Msg("rasterized page")

	return &Image{
		FileName: FileName(src.Name, src.PageNumber, plan.Effective),
		PNG:      data,
		Width:    vp.Width,
		Height:   vp.Height,
		Plan:     plan,
	}, nil
}

// RenderPage opens a private copy of data, renders page at scale with
// rotation applied to the viewport and encodes the surface.
func (r *Rasterizer) RenderPage(ctx context.Context, data []byte, page, rotation int, scale float64, primary, fallback Encoder) ([]byte, pdfdoc.Viewport, error) {
	if err := ctx.Err(); err != nil {
		return nil, pdfdoc.Viewport{}, err
	}
	doc, err := r.reader.Open(bytes.Clone(data))
	if err != nil {
		return nil, pdfdoc.Viewport{}, failure.InvalidDocument("", err)
	}
	defer doc.Close()

	p, err := doc.Page(page)
	if err != nil {
		return nil, pdfdoc.Viewport{}, fmt.Errorf("failed to load page %d: %w", page, err)
	}
	vp := p.Viewport(scale, rotation)
	img, err := p.Render(vp)
	if err != nil {
		return nil, pdfdoc.Viewport{}, err
	}
	if b := img.Bounds(); b.Dx() > 0 && b.Dy() > 0 {
		vp.Width, vp.Height = b.Dx(), b.Dy()
	}

	out, err := encodeWithFallback(img, primary, fallback)
	if err != nil {
		return nil, pdfdoc.Viewport{}, err
	}
	return out, vp, nil
}
