// Package assemble composes output documents from the page sequence:
// plain merges and the three recompression tiers.
package assemble

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfeditor/internal/failure"
	"github.com/local/pdfeditor/internal/metrics"
	"github.com/local/pdfeditor/internal/pdfdoc"
	"github.com/local/pdfeditor/internal/raster"
)

// Tier is a recompression strategy.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// LowTierScale is the render scale of the raster re-encode tier.
const LowTierScale = 0.8

// ParseTier maps a tier name to a Tier, defaulting to TierHigh.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierLow:
		return TierLow
	case TierMedium:
		return TierMedium
	default:
		return TierHigh
	}
}

// Page is one entry of the sequence being assembled.
type Page struct {
	ID         string
	SourceName string
	SourcePage int
	Rotation   int
	Source     []byte
}

// Result is a recompressed document with its size report.
type Result struct {
	Data           []byte
	Tier           Tier
	OriginalSize   int64
	CompressedSize int64
	Ratio          float64
	Skipped        []string
	Resaved        bool
}

// FileName is the download name of the result.
func (r *Result) FileName(now time.Time) string {
	return fmt.Sprintf("compressed_%s_%d.pdf", r.Tier, now.UnixMilli())
}

// Assembler builds documents through a pdfdoc.Writer. The low tier
// renders pages through the Rasterizer.
type Assembler struct {
	writer pdfdoc.Writer
	raster *raster.Rasterizer
}

func New(writer pdfdoc.Writer, rz *raster.Rasterizer) *Assembler {
	return &Assembler{writer: writer, raster: rz}
}

var copySave = pdfdoc.SaveOptions{ObjectStreams: true, Compress: true}

// Merge copies pages in order, with their rotation, into one document.
// Pages without source bytes are skipped; their ids are returned.
func (a *Assembler) Merge(ctx context.Context, op string, pages []Page) ([]byte, []string, error) {
	return a.copyPages(ctx, op, pages, pdfdoc.CopyOptions{})
}

func (a *Assembler) copyPages(ctx context.Context, op string, pages []Page, opts pdfdoc.CopyOptions) ([]byte, []string, error) {
	doc := a.writer.NewDocument()
	var skipped []string
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if len(p.Source) == 0 {
			skipped = append(skipped, p.skip(op))
			continue
		}
		if err := doc.CopyPage(bytes.Clone(p.Source), p.SourcePage, p.Rotation, opts); err != nil {
			return nil, nil, failure.InvalidDocument(p.SourceName, err)
		}
	}
	if doc.PageCount() == 0 {
		return nil, skipped, failure.Precondition("没有可用的页面")
	}
	out, err := doc.Save(copySave)
	if err != nil {
		return nil, skipped, fmt.Errorf("failed to save document: %w", err)
	}
	return out, skipped, nil
}

func (p Page) skip(op string) string {
	log.Warn().Str("page_id", p.ID).Str("op", op).Msg("page source is empty; skipping page")
	metrics.IncSkipped(op)
	return p.ID
}

// Compress rebuilds the sequence with the given tier and reports the
// size change against the summed source sizes.
func (a *Assembler) Compress(ctx context.Context, pages []Page, tier Tier) (*Result, error) {
	tier = ParseTier(string(tier))
	var original int64
	for _, p := range pages {
		original += int64(len(p.Source))
	}

	res := &Result{Tier: tier, OriginalSize: original}
	var err error
	switch tier {
	case TierLow:
		res.Data, res.Skipped, res.Resaved, err = a.rasterize(ctx, pages)
	case TierMedium:
		res.Data, res.Skipped, err = a.copyPages(ctx, "compress", pages, pdfdoc.CopyOptions{DropAnnotations: true})
	default:
		res.Data, res.Skipped, err = a.copyPages(ctx, "compress", pages, pdfdoc.CopyOptions{})
	}
	if err != nil {
		return nil, err
	}

	res.CompressedSize = int64(len(res.Data))
	res.Ratio = Ratio(res.OriginalSize, res.CompressedSize)
	metrics.ObserveCompression(string(tier), res.Ratio)
	log.Info().
		Str("tier", string(tier)).
		Int("pages", len(pages)-len(res.Skipped)).
		Int("skipped", len(res.Skipped)).
		Str("original", FormatSize(res.OriginalSize)).
		Str("compressed", FormatSize(res.CompressedSize)).
		Float64("ratio", res.Ratio).
		Msg("document recompressed")
	return res, nil
}

// rasterize builds one image page per record and keeps the smaller of the
// built and resaved outputs.
func (a *Assembler) rasterize(ctx context.Context, pages []Page) ([]byte, []string, bool, error) {
	doc := a.writer.NewDocument()
	primary := raster.PNGEncoder{Level: png.BestCompression}
	var skipped []string
	for _, p := range pages {
		if len(p.Source) == 0 {
			skipped = append(skipped, p.skip("compress"))
			continue
		}
		img, vp, err := a.raster.RenderPage(ctx, p.Source, p.SourcePage, p.Rotation, LowTierScale, primary, raster.DataURLEncoder{})
		if err != nil {
			return nil, nil, false, err
		}
		if err := doc.AddImagePage(img, float64(vp.Width), float64(vp.Height)); err != nil {
			return nil, nil, false, fmt.Errorf("failed to add page %s: %w", p.ID, err)
		}
	}
	if doc.PageCount() == 0 {
		return nil, skipped, false, failure.Precondition("没有可用的页面")
	}
	out, err := doc.Save(pdfdoc.SaveOptions{ObjectStreams: true})
	if err != nil {
		return nil, skipped, false, fmt.Errorf("failed to save document: %w", err)
	}

	resaved, err := a.writer.Resave(bytes.Clone(out), pdfdoc.LoadOptions{TolerateEncryption: true}, copySave)
	if err != nil {
		log.Warn().Err(err).Msg("resave pass failed; keeping first output")
		return out, skipped, false, nil
	}
	if len(resaved) > 0 && len(resaved) < len(out) {
		return resaved, skipped, true, nil
	}
	return out, skipped, false, nil
}

// Ratio is the size reduction in percent, rounded to one decimal.
func Ratio(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	r := (1 - float64(compressed)/float64(original)) * 100
	return math.Round(r*10) / 10
}

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatSize renders n bytes with 1024-based units and up to two decimals.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return fmt.Sprintf("%s %s", trimFloat(v), sizeUnits[i])
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
