package pdfdoc

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// testPDF builds an n-page document out of image pages.
func testPDF(t *testing.T, n int) []byte {
	t.Helper()
	b := NewPdfcpuWriter().NewDocument()
	for i := 0; i < n; i++ {
		if err := b.AddImagePage(testPNG(t, 60+i*10, 80), float64(60+i*10), 80); err != nil {
			t.Fatal(err)
		}
	}
	out, err := b.Save(SaveOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func pageCount(t *testing.T, data []byte) int {
	t.Helper()
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func pageRotation(t *testing.T, data []byte, page int) int {
	t.Helper()
	ctx, err := readContext(data, newConfiguration(SaveOptions{}))
	if err != nil {
		t.Fatal(err)
	}
	_, _, inh, err := ctx.PageDict(page, false)
	if err != nil {
		t.Fatal(err)
	}
	return inh.Rotate
}

func TestBuilderSaveConcatenatesInOrder(t *testing.T) {
	src := testPDF(t, 3)
	if got := pageCount(t, src); got != 3 {
		t.Fatalf("source pages = %d, want 3", got)
	}

	b := NewPdfcpuWriter().NewDocument()
	for _, p := range []int{3, 1} {
		if err := b.CopyPage(src, p, 0, CopyOptions{}); err != nil {
			t.Fatalf("copy page %d: %v", p, err)
		}
	}
	if b.PageCount() != 2 {
		t.Fatalf("builder pages = %d", b.PageCount())
	}
	out, err := b.Save(SaveOptions{ObjectStreams: true, Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := pageCount(t, out); got != 2 {
		t.Fatalf("output pages = %d, want 2", got)
	}

	dims, err := api.PageDims(bytes.NewReader(out), nil)
	if err != nil {
		t.Fatal(err)
	}
	// page 3 of the source is the widest
	if dims[0].Width <= dims[1].Width {
		t.Fatalf("page order not preserved: %v", dims)
	}
}

func TestCopyPageAddsRotation(t *testing.T) {
	src := testPDF(t, 1)
	b := NewPdfcpuWriter().NewDocument()
	if err := b.CopyPage(src, 1, 90, CopyOptions{}); err != nil {
		t.Fatal(err)
	}
	once, err := b.Save(SaveOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := pageRotation(t, once, 1); got != 90 {
		t.Fatalf("rotation = %d, want 90", got)
	}

	b = NewPdfcpuWriter().NewDocument()
	if err := b.CopyPage(once, 1, 270, CopyOptions{DropAnnotations: true}); err != nil {
		t.Fatal(err)
	}
	twice, err := b.Save(SaveOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := pageRotation(t, twice, 1); got != 0 {
		t.Fatalf("rotation = %d, want 0 after wrapping", got)
	}
}

func TestCopyPageOutOfRange(t *testing.T) {
	src := testPDF(t, 1)
	err := NewPdfcpuWriter().NewDocument().CopyPage(src, 2, 0, CopyOptions{})
	if !errors.Is(err, ErrPageRange) {
		t.Fatalf("err = %v, want ErrPageRange", err)
	}
}

func TestCopyPageRejectsGarbage(t *testing.T) {
	err := NewPdfcpuWriter().NewDocument().CopyPage([]byte("not a pdf"), 1, 0, CopyOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSaveEmptyDocument(t *testing.T) {
	_, err := NewPdfcpuWriter().NewDocument().Save(SaveOptions{})
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("err = %v", err)
	}
}

func TestResaveKeepsPages(t *testing.T) {
	src := testPDF(t, 2)
	out, err := NewPdfcpuWriter().Resave(src, LoadOptions{TolerateEncryption: true}, SaveOptions{ObjectStreams: true, Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := pageCount(t, out); got != 2 {
		t.Fatalf("pages = %d", got)
	}
}

func TestNormalizeRotation(t *testing.T) {
	for in, want := range map[int]int{0: 0, 90: 90, 360: 0, 450: 90, -90: 270, -360: 0, -450: 270} {
		if got := NormalizeRotation(in); got != want {
			t.Errorf("NormalizeRotation(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestViewportSwapsForQuarterTurns(t *testing.T) {
	b := image.Rect(0, 0, 600, 800)
	vp := ScaleViewport(b, 0.5, 90)
	if vp.Width != 400 || vp.Height != 300 || vp.Rotation != 90 {
		t.Fatalf("viewport = %+v", vp)
	}
	vp = ScaleViewport(b, 2, -180)
	if vp.Width != 1200 || vp.Height != 1600 || vp.Rotation != 180 {
		t.Fatalf("viewport = %+v", vp)
	}
}
