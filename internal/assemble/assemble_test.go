package assemble

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/local/pdfeditor/internal/failure"
	"github.com/local/pdfeditor/internal/pdfdoc"
	"github.com/local/pdfeditor/internal/pdfdoc/pdfdoctest"
	"github.com/local/pdfeditor/internal/raster"
)

type fixture struct {
	reader *pdfdoctest.Reader
	writer *pdfdoctest.Writer
	asm    *Assembler
	a, b   []byte
}

func newFixture() *fixture {
	r := pdfdoctest.NewReader()
	w := pdfdoctest.NewWriter()
	return &fixture{
		reader: r,
		writer: w,
		asm:    New(w, raster.New(r)),
		a:      r.Add("a", pdfdoctest.Pages(3, pdfdoctest.A4)...),
		b:      r.Add("b", pdfdoctest.A4),
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio(1_000_000, 400_000); got != 60.0 {
		t.Fatalf("ratio = %v, want 60.0", got)
	}
	if got := Ratio(3, 2); got != 33.3 {
		t.Fatalf("ratio = %v, want 33.3", got)
	}
	if got := Ratio(100, 150); got != -50 {
		t.Fatalf("ratio = %v, want -50", got)
	}
	if got := Ratio(0, 10); got != 0 {
		t.Fatalf("ratio = %v, want 0", got)
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		0:         "0 B",
		512:       "512 B",
		1536:      "1.5 KB",
		1 << 20:   "1 MB",
		1_234_567: "1.18 MB",
		5 << 30:   "5 GB",
		1 << 40:   "1024 GB",
	}
	for in, want := range tests {
		if got := FormatSize(in); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestParseTier(t *testing.T) {
	for in, want := range map[string]Tier{"low": TierLow, " Medium ": TierMedium, "high": TierHigh, "": TierHigh, "max": TierHigh} {
		if got := ParseTier(in); got != want {
			t.Errorf("ParseTier(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestMergeKeepsOrderAndRotation(t *testing.T) {
	f := newFixture()
	pages := []Page{
		{ID: "1", SourcePage: 3, Rotation: 90, Source: f.a},
		{ID: "2", SourcePage: 1, Source: f.b},
		{ID: "3", SourcePage: 1, Source: nil},
		{ID: "4", SourcePage: 1, Rotation: 270, Source: f.a},
	}
	_, skipped, err := f.asm.Merge(context.Background(), "merge", pages)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"3"}, skipped); diff != "" {
		t.Fatalf("skipped (-want +got):\n%s", diff)
	}
	want := []pdfdoctest.Op{
		{Kind: "copy", Source: string(f.a), Page: 3, Rotation: 90},
		{Kind: "copy", Source: string(f.b), Page: 1},
		{Kind: "copy", Source: string(f.a), Page: 1, Rotation: 270},
	}
	if diff := cmp.Diff(want, f.writer.Last()); diff != "" {
		t.Fatalf("ops (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]pdfdoc.SaveOptions{{ObjectStreams: true, Compress: true}}, f.writer.Options); diff != "" {
		t.Fatalf("save options (-want +got):\n%s", diff)
	}
}

func TestMergeNothingUsable(t *testing.T) {
	f := newFixture()
	_, skipped, err := f.asm.Merge(context.Background(), "merge", []Page{{ID: "x"}, {ID: "y", Source: []byte{}}})
	if !failure.IsPrecondition(err) {
		t.Fatalf("err = %v", err)
	}
	if len(skipped) != 2 {
		t.Fatalf("skipped = %v", skipped)
	}
	if len(f.writer.Saved) != 0 {
		t.Fatal("nothing should be saved")
	}
}

func TestMergeCopyFailureAborts(t *testing.T) {
	f := newFixture()
	f.writer.FailCopyFor = "fake b"
	_, _, err := f.asm.Merge(context.Background(), "merge", []Page{
		{ID: "1", SourceName: "a.pdf", SourcePage: 1, Source: f.a},
		{ID: "2", SourceName: "b.pdf", SourcePage: 1, Source: f.b},
	})
	if !failure.IsInvalidDocument(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestCompressCopyTiers(t *testing.T) {
	for _, tc := range []struct {
		tier Tier
		drop bool
	}{{TierHigh, false}, {TierMedium, true}} {
		t.Run(string(tc.tier), func(t *testing.T) {
			f := newFixture()
			f.writer.Pad = 64
			pages := []Page{
				{ID: "1", SourcePage: 2, Rotation: 180, Source: f.a},
				{ID: "2", SourcePage: 1, Source: nil},
			}
			res, err := f.asm.Compress(context.Background(), pages, tc.tier)
			if err != nil {
				t.Fatal(err)
			}
			ops := f.writer.Last()
			if len(ops) != 1 || ops[0].Drop != tc.drop || ops[0].Rotation != 180 || ops[0].Page != 2 {
				t.Fatalf("ops = %+v", ops)
			}
			if res.OriginalSize != int64(len(f.a)) || res.CompressedSize != int64(len(res.Data)) {
				t.Fatalf("sizes = %d/%d", res.OriginalSize, res.CompressedSize)
			}
			if res.Ratio != Ratio(res.OriginalSize, res.CompressedSize) {
				t.Fatalf("ratio = %v", res.Ratio)
			}
			if diff := cmp.Diff([]string{"2"}, res.Skipped); diff != "" {
				t.Fatalf("skipped (-want +got):\n%s", diff)
			}
			if f.writer.Resaves != 0 {
				t.Fatal("copy tiers must not resave")
			}
		})
	}
}

func TestCompressLowRastersAndKeepsSmaller(t *testing.T) {
	f := newFixture()
	f.writer.Pad = 1000
	f.writer.ResaveFunc = func(data []byte) ([]byte, error) { return data[:len(data)-500], nil }

	res, err := f.asm.Compress(context.Background(), []Page{
		{ID: "1", SourcePage: 1, Rotation: 90, Source: f.a},
		{ID: "2", SourcePage: 1, Source: f.b},
	}, TierLow)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Resaved || f.writer.Resaves != 1 {
		t.Fatalf("resaved = %v, resaves = %d", res.Resaved, f.writer.Resaves)
	}
	want := []pdfdoctest.Op{
		{Kind: "image", Width: 673, Height: 476},
		{Kind: "image", Width: 476, Height: 673},
	}
	if diff := cmp.Diff(want, f.writer.Last()); diff != "" {
		t.Fatalf("ops (-want +got):\n%s", diff)
	}
	for _, vp := range f.reader.Renders {
		if vp.Scale != LowTierScale {
			t.Fatalf("render scale = %v", vp.Scale)
		}
	}
	if f.reader.Renders[0].Rotation != 90 {
		t.Fatalf("rotation not baked in: %+v", f.reader.Renders[0])
	}
}

func TestCompressLowKeepsOriginalWhenResaveGrows(t *testing.T) {
	f := newFixture()
	f.writer.ResaveFunc = func(data []byte) ([]byte, error) { return append(data, make([]byte, 100)...), nil }

	res, err := f.asm.Compress(context.Background(), []Page{{ID: "1", SourcePage: 1, Source: f.b}}, TierLow)
	if err != nil {
		t.Fatal(err)
	}
	if res.Resaved {
		t.Fatal("larger resave output should be discarded")
	}
}

func TestCompressNothingUsable(t *testing.T) {
	f := newFixture()
	for _, tier := range []Tier{TierHigh, TierMedium, TierLow} {
		if _, err := f.asm.Compress(context.Background(), []Page{{ID: "1"}}, tier); !failure.IsPrecondition(err) {
			t.Fatalf("%s: err = %v", tier, err)
		}
	}
}

func TestResultFileName(t *testing.T) {
	r := &Result{Tier: TierMedium}
	if got := r.FileName(time.UnixMilli(1700000000123)); got != "compressed_medium_1700000000123.pdf" {
		t.Fatalf("file name = %q", got)
	}
}
