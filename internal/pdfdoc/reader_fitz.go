package pdfdoc

import (
	"fmt"
	"image"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// FitzReader implements Reader using github.com/gen2brain/go-fitz (MuPDF).
// Rotated viewports are produced by rotating the page object with pdfcpu
// before rasterising, so rotation is never a pixel post-transform.
type FitzReader struct{}

func NewFitzReader() FitzReader { return FitzReader{} }

func (FitzReader) Open(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &fitzDoc{doc: doc, src: data}, nil
}

type fitzDoc struct {
	doc *fitz.Document
	src []byte
}

func (d *fitzDoc) PageCount() int { return d.doc.NumPage() }

func (d *fitzDoc) Page(n int) (Page, error) {
	if n < 1 || n > d.doc.NumPage() {
		return nil, fmt.Errorf("page %d of %d: %w", n, d.doc.NumPage(), ErrPageRange)
	}
	// go-fitz uses 0-based indexing
	bounds, err := d.doc.Bound(n - 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read bounds of page %d: %w", n, err)
	}
	return &fitzPage{doc: d, number: n, bounds: bounds}, nil
}

func (d *fitzDoc) Close() error { return d.doc.Close() }

type fitzPage struct {
	doc    *fitzDoc
	number int
	bounds image.Rectangle
}

func (p *fitzPage) Viewport(scale float64, rotation int) Viewport {
	return ScaleViewport(p.bounds, scale, rotation)
}

func (p *fitzPage) Render(vp Viewport) (*image.RGBA, error) {
	dpi := PointsPerInch * vp.Scale
	if NormalizeRotation(vp.Rotation) == 0 {
		img, err := p.doc.doc.ImageDPI(p.number-1, dpi)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", p.number, err)
		}
		return img, nil
	}

	rotated, err := extractRotatedPage(p.doc.src, p.number, vp.Rotation, false)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate page %d: %w", p.number, err)
	}
	doc, err := fitz.NewFromMemory(rotated)
	if err != nil {
		return nil, fmt.Errorf("failed to open rotated page %d: %w", p.number, err)
	}
	defer doc.Close()

	img, err := doc.ImageDPI(0, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", p.number, err)
	}
	log.Debug().
		Int("page", p.number).
		Int("rotation", vp.Rotation).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("rendered rotated page")
	return img, nil
}
