package raster

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/local/pdfeditor/internal/failure"
	"github.com/local/pdfeditor/internal/pdfdoc/pdfdoctest"
)

func TestPlanRender(t *testing.T) {
	tests := []struct {
		name          string
		q             Quality
		w, h          int
		wantEffective Quality
		wantScale     float64
	}{
		{"small page keeps high", High, 300, 400, High, 2.4},
		{"large page high drops to medium", High, 1000, 1400, Medium, 1.2},
		{"medium within 1.5x budget", Medium, 2000, 2000, Medium, 1.2},
		{"medium just under 1.5x budget", Medium, 2000, 2083, Medium, 1.2},
		{"medium just over 1.5x budget", Medium, 2000, 2084, Low, 0.6},
		{"medium beyond 1.5x budget", Medium, 3000, 3500, Low, 0.6},
		{"low never downgrades", Low, 20000, 20000, Low, 0.6},
		{"unknown tier parses as high", Quality("ultra"), 10, 10, High, 2.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PlanRender(tt.q, tt.w, tt.h)
			if p.Effective != tt.wantEffective || p.Scale != tt.wantScale {
				t.Fatalf("plan = %+v, want %s at %v", p, tt.wantEffective, tt.wantScale)
			}
		})
	}
}

func TestEstimatePixels(t *testing.T) {
	if got := EstimatePixels(300, 400, 2.4); int(got+0.5) != 2_764_800 {
		t.Fatalf("estimate = %v", got)
	}
	if got := EstimatePixels(1000, 1400, 2.4); int(got+0.5) != 32_256_000 {
		t.Fatalf("estimate = %v", got)
	}
}

func TestFileName(t *testing.T) {
	got := []string{
		FileName("报告.pdf", 3, High),
		FileName("a.pdf", 1, Medium),
		FileName("a.pdf", 12, Low),
	}
	want := []string{"报告.pdf_页3_高质量.png", "a.pdf_页1_中质量.png", "a.pdf_页12_低质量.png"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("file names (-want +got):\n%s", diff)
	}
}

func TestRenderAppliesDowngradeAndRotation(t *testing.T) {
	r := pdfdoctest.NewReader()
	data := r.Add("big", pdfdoctest.A4)
	img, err := New(r).Render(context.Background(), Source{
		PageID: "p1", Name: "big.pdf", PageNumber: 1, Rotation: 90,
		Data: data, ThumbWidth: 1000, ThumbHeight: 1400,
	}, High)
	if err != nil {
		t.Fatal(err)
	}
	if !img.Plan.Downgraded() || img.Plan.Scale != 1.2 {
		t.Fatalf("plan = %+v", img.Plan)
	}
	if img.FileName != "big.pdf_页1_中质量.png" {
		t.Fatalf("file name = %q", img.FileName)
	}
	if len(r.Renders) != 1 {
		t.Fatalf("renders = %d", len(r.Renders))
	}
	vp := r.Renders[0]
	if vp.Rotation != 90 || vp.Scale != 1.2 || vp.Width <= vp.Height {
		t.Fatalf("viewport = %+v", vp)
	}
	w, h, err := DecodeDimensions(img.PNG)
	if err != nil {
		t.Fatal(err)
	}
	if w != vp.Width || h != vp.Height {
		t.Fatalf("png %dx%d, viewport %dx%d", w, h, vp.Width, vp.Height)
	}
}

func TestRenderEmptySourceFailsFast(t *testing.T) {
	r := pdfdoctest.NewReader()
	_, err := New(r).Render(context.Background(), Source{PageID: "p1", PageNumber: 1}, Low)
	if !failure.IsEmptySource(err) {
		t.Fatalf("err = %v", err)
	}
	if r.Opens != 0 {
		t.Fatal("reader should not be touched")
	}
}

func TestRenderClonesSource(t *testing.T) {
	r := pdfdoctest.NewReader()
	r.Consume = true
	data := r.Add("doc", pdfdoctest.A4)
	rz := New(r)
	for i := 0; i < 2; i++ {
		if _, err := rz.Render(context.Background(), Source{PageID: "p", Name: "d", PageNumber: 1, Data: data, ThumbWidth: 10, ThumbHeight: 10}, Low); err != nil {
			t.Fatalf("render %d: %v", i, err)
		}
	}
}

func TestEncodeFallback(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	broken := EncoderFunc(func(image.Image) ([]byte, error) { return nil, errors.New("blob failed") })

	out, err := encodeWithFallback(img, broken, DataURLEncoder{})
	if err != nil {
		t.Fatal(err)
	}
	if w, h, err := DecodeDimensions(out); err != nil || w != 4 || h != 4 {
		t.Fatalf("fallback output %dx%d err %v", w, h, err)
	}

	_, err = encodeWithFallback(img, broken, broken)
	if !failure.IsEncoding(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	url, err := EncodeDataURL(image.NewRGBA(image.Rect(0, 0, 3, 2)))
	if err != nil {
		t.Fatal(err)
	}
	data, err := DecodeDataURL(url)
	if err != nil {
		t.Fatal(err)
	}
	if w, h, _ := DecodeDimensions(data); w != 3 || h != 2 {
		t.Fatalf("got %dx%d", w, h)
	}
	if _, err := DecodeDataURL("data:text/plain,hi"); err == nil {
		t.Fatal("expected error for non-PNG data URL")
	}
}

func TestDownscale(t *testing.T) {
	r := pdfdoctest.NewReader()
	doc, err := r.Open(r.Add("d", pdfdoctest.Size{W: 600, H: 800}))
	if err != nil {
		t.Fatal(err)
	}
	p, err := doc.Page(1)
	if err != nil {
		t.Fatal(err)
	}
	th, err := RenderThumbnail(p, ThumbnailScale)
	if err != nil {
		t.Fatal(err)
	}
	if th.Width != 300 || th.Height != 400 {
		t.Fatalf("thumbnail %dx%d", th.Width, th.Height)
	}
	small, err := Downscale(th, ConfirmPreviewScale/ThumbnailScale)
	if err != nil {
		t.Fatal(err)
	}
	if small.Width != 180 || small.Height != 240 {
		t.Fatalf("preview %dx%d", small.Width, small.Height)
	}
	if _, err := Downscale(th, 2); err == nil {
		t.Fatal("expected error for upscale")
	}
}
