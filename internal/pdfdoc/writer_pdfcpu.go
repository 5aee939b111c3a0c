package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"
)

// ErrEmptyDocument is returned when saving a Builder without pages.
var ErrEmptyDocument = errors.New("document has no pages")

// ErrEncrypted is returned by Resave for encrypted input unless tolerated.
var ErrEncrypted = errors.New("document is encrypted")

// PdfcpuWriter implements Writer using github.com/pdfcpu/pdfcpu.
// Every page is first extracted into a standalone single-page document;
// Save concatenates those in order.
type PdfcpuWriter struct{}

func NewPdfcpuWriter() PdfcpuWriter { return PdfcpuWriter{} }

func (PdfcpuWriter) NewDocument() Builder { return &pdfcpuBuilder{} }

func (PdfcpuWriter) Resave(data []byte, load LoadOptions, save SaveOptions) ([]byte, error) {
	conf := newConfiguration(save)
	ctx, err := readContext(data, conf)
	if err != nil {
		return nil, err
	}
	if ctx.Encrypt != nil && !load.TolerateEncryption {
		return nil, ErrEncrypted
	}
	if err := api.OptimizeContext(ctx); err != nil {
		return nil, fmt.Errorf("optimize failed: %w", err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfcpuBuilder struct {
	parts [][]byte
}

func (b *pdfcpuBuilder) CopyPage(src []byte, page, rotation int, opts CopyOptions) error {
	part, err := extractRotatedPage(src, page, rotation, opts.DropAnnotations)
	if err != nil {
		return err
	}
	b.parts = append(b.parts, part)
	return nil
}

func (b *pdfcpuBuilder) AddImagePage(png []byte, width, height float64) error {
	imp := pdfcpu.DefaultImportConfig()
	// page dimensions follow the image dimensions
	imp.Pos = types.Full
	imp.Scale = 1.0
	imp.PageDim = &types.Dim{Width: width, Height: height}

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, []io.Reader{bytes.NewReader(png)}, imp, newConfiguration(SaveOptions{})); err != nil {
		return fmt.Errorf("failed to import image page: %w", err)
	}
	b.parts = append(b.parts, buf.Bytes())
	return nil
}

func (b *pdfcpuBuilder) PageCount() int { return len(b.parts) }

func (b *pdfcpuBuilder) Save(opts SaveOptions) ([]byte, error) {
	if len(b.parts) == 0 {
		return nil, ErrEmptyDocument
	}
	conf := newConfiguration(opts)
	rsc := make([]io.ReadSeeker, len(b.parts))
	for i, p := range b.parts {
		rsc[i] = bytes.NewReader(p)
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(rsc, &buf, false, conf); err != nil {
		return nil, fmt.Errorf("merge failed: %w", err)
	}
	out := buf.Bytes()
	if !opts.Compress {
		return out, nil
	}

	var opt bytes.Buffer
	if err := api.Optimize(bytes.NewReader(out), &opt, conf); err != nil {
		log.Warn().Err(err).Int("pages", len(b.parts)).Msg("optimize after merge failed; keeping merged output")
		return out, nil
	}
	return opt.Bytes(), nil
}

func newConfiguration(save SaveOptions) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = save.ObjectStreams
	conf.WriteXRefStream = save.ObjectStreams
	return conf
}

func readContext(data []byte, conf *model.Configuration) (*model.Context, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("page count failed: %w", err)
	}
	return ctx, nil
}

// extractRotatedPage returns a single-page PDF holding page of src with its
// rotation advanced by rotation degrees.
func extractRotatedPage(src []byte, page, rotation int, dropAnnots bool) ([]byte, error) {
	ctx, err := readContext(src, newConfiguration(SaveOptions{}))
	if err != nil {
		return nil, err
	}
	if page < 1 || page > ctx.PageCount {
		return nil, fmt.Errorf("page %d of %d: %w", page, ctx.PageCount, ErrPageRange)
	}

	pageCtx, err := pdfcpu.ExtractPages(ctx, []int{page}, false)
	if err != nil {
		return nil, fmt.Errorf("extract page %d: %w", page, err)
	}
	if err := pageCtx.EnsurePageCount(); err != nil {
		return nil, err
	}
	pageDict, _, inh, err := pageCtx.PageDict(1, false)
	if err != nil {
		return nil, err
	}
	if pageDict == nil {
		return nil, fmt.Errorf("extract page %d: missing page dict", page)
	}

	own := 0
	if inh != nil {
		own = inh.Rotate
	}
	pageDict["Rotate"] = types.Integer(NormalizeRotation(own + rotation))
	if dropAnnots {
		pageDict.Delete("Annots")
	}

	var buf bytes.Buffer
	if err := api.WriteContext(pageCtx, &buf); err != nil {
		return nil, fmt.Errorf("write page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}
