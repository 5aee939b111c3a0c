// Package pdfdoctest provides in-memory stand-ins for the pdfdoc
// collaborators.
package pdfdoctest

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/local/pdfeditor/internal/pdfdoc"
)

// ErrInvalid is returned when bytes do not name a registered document.
var ErrInvalid = errors.New("invalid PDF structure")

// Size is a page size in points.
type Size struct{ W, H int }

// Reader serves registered fake documents. A document's bytes are a
// marker string; Open looks them up verbatim.
type Reader struct {
	mu   sync.Mutex
	docs map[string][]Size

	// Consume zeroes the buffer passed to Open, like collaborators that
	// take ownership of what they are given.
	Consume bool
	// FailRender makes every Render call fail.
	FailRender bool

	Opens   int
	Renders []pdfdoc.Viewport
}

func NewReader() *Reader { return &Reader{docs: map[string][]Size{}} }

// Add registers a document with the given page sizes and returns its bytes.
func (r *Reader) Add(name string, pages ...Size) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%%PDF-fake %s %d", name, len(pages))
	r.docs[key] = pages
	return []byte(key)
}

// A4 is the size of an A4 page in points.
var A4 = Size{W: 595, H: 842}

// Pages returns n pages of size s.
func Pages(n int, s Size) []Size {
	out := make([]Size, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func (r *Reader) Open(data []byte) (pdfdoc.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pages, ok := r.docs[string(data)]
	if r.Consume {
		for i := range data {
			data[i] = 0
		}
	}
	if !ok {
		return nil, ErrInvalid
	}
	r.Opens++
	return &doc{r: r, pages: pages}, nil
}

type doc struct {
	r     *Reader
	pages []Size
}

func (d *doc) PageCount() int { return len(d.pages) }

func (d *doc) Page(n int) (pdfdoc.Page, error) {
	if n < 1 || n > len(d.pages) {
		return nil, pdfdoc.ErrPageRange
	}
	s := d.pages[n-1]
	return &page{r: d.r, bounds: image.Rect(0, 0, s.W, s.H)}, nil
}

func (d *doc) Close() error { return nil }

type page struct {
	r      *Reader
	bounds image.Rectangle
}

func (p *page) Viewport(scale float64, rotation int) pdfdoc.Viewport {
	return pdfdoc.ScaleViewport(p.bounds, scale, rotation)
}

func (p *page) Render(vp pdfdoc.Viewport) (*image.RGBA, error) {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	if p.r.FailRender {
		return nil, errors.New("render failed")
	}
	p.r.Renders = append(p.r.Renders, vp)
	img := image.NewRGBA(image.Rect(0, 0, max(1, vp.Width), max(1, vp.Height)))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 0xff, 0xff
	}
	img.Set(0, 0, color.Black)
	return img, nil
}

// Op is one recorded Builder call.
type Op struct {
	Kind     string // "copy" or "image"
	Source   string
	Page     int
	Rotation int
	Drop     bool
	Width    float64
	Height   float64
}

// Writer records composed documents. Save returns a textual listing of
// the recorded operations.
type Writer struct {
	mu sync.Mutex

	// Pad is appended to every saved document.
	Pad int
	// ResaveFunc handles Resave; nil returns the input unchanged.
	ResaveFunc func(data []byte) ([]byte, error)
	// FailCopyFor makes CopyPage fail for sources containing the string.
	FailCopyFor string

	Saved   [][]Op
	Options []pdfdoc.SaveOptions
	Resaves int
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) NewDocument() pdfdoc.Builder { return &builder{w: w} }

func (w *Writer) Resave(data []byte, _ pdfdoc.LoadOptions, _ pdfdoc.SaveOptions) ([]byte, error) {
	w.mu.Lock()
	w.Resaves++
	fn := w.ResaveFunc
	w.mu.Unlock()
	if fn == nil {
		return data, nil
	}
	return fn(data)
}

type builder struct {
	w   *Writer
	ops []Op
}

func (b *builder) CopyPage(src []byte, page, rotation int, opts pdfdoc.CopyOptions) error {
	if b.w.FailCopyFor != "" && strings.Contains(string(src), b.w.FailCopyFor) {
		return ErrInvalid
	}
	b.ops = append(b.ops, Op{Kind: "copy", Source: string(src), Page: page, Rotation: pdfdoc.NormalizeRotation(rotation), Drop: opts.DropAnnotations})
	return nil
}

func (b *builder) AddImagePage(png []byte, width, height float64) error {
	if len(png) == 0 {
		return errors.New("empty image")
	}
	b.ops = append(b.ops, Op{Kind: "image", Width: width, Height: height})
	return nil
}

func (b *builder) PageCount() int { return len(b.ops) }

func (b *builder) Save(opts pdfdoc.SaveOptions) ([]byte, error) {
	if len(b.ops) == 0 {
		return nil, pdfdoc.ErrEmptyDocument
	}
	b.w.mu.Lock()
	defer b.w.mu.Unlock()
	b.w.Saved = append(b.w.Saved, b.ops)
	b.w.Options = append(b.w.Options, opts)

	var sb strings.Builder
	sb.WriteString("%PDF-out\n")
	for _, op := range b.ops {
		fmt.Fprintf(&sb, "%s %d %d\n", op.Kind, op.Page, op.Rotation)
	}
	sb.WriteString(strings.Repeat(" ", b.w.Pad))
	return []byte(sb.String()), nil
}

// Last returns the operations of the most recent Save.
func (w *Writer) Last() []Op {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.Saved) == 0 {
		return nil
	}
	return w.Saved[len(w.Saved)-1]
}
