// Package editor holds the page sequence of one editing session and the
// operations the user performs on it.
package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfeditor/internal/assemble"
	"github.com/local/pdfeditor/internal/delivery"
	"github.com/local/pdfeditor/internal/failure"
	"github.com/local/pdfeditor/internal/pdfdoc"
	"github.com/local/pdfeditor/internal/raster"
)

var (
	// ErrNoPages is wrapped in InvalidDocumentError for files without pages.
	ErrNoPages = errors.New("file has no pages")
	// ErrEmptyFile is wrapped in InvalidDocumentError for zero-length input.
	ErrEmptyFile = errors.New("file is empty")
)

// User-facing rejection messages.
const (
	msgLeaveReplace   = "请先退出替换模式"
	msgNeedSelection  = "没有选中的页面"
	msgNeedReplace    = "请先进入替换模式"
	msgNeedTargets    = "请先选择要替换的页面"
	msgIncomplete     = "替换数据不完整"
	msgNeedPages      = "请先导入PDF文件"
	msgMergeNeedsPage = "至少需要1个页面才能合并"
	msgBadRotation    = "旋转角度必须是90的倍数"
)

// File is an input document.
type File struct {
	Name string
	Data []byte
}

// Export is a produced artifact and where it was delivered.
type Export struct {
	Artifact delivery.Artifact
	Location string
	Skipped  []string
}

// ImageExport is a rasterized page.
type ImageExport struct {
	Export
	Plan raster.Plan
}

// CompressExport is a recompressed document with its size report.
type CompressExport struct {
	Export
	Report *assemble.Result
}

type staged struct {
	data      []byte
	name      string
	pageCount int
	thumb     raster.Thumbnail
	preview   raster.Thumbnail
}

type subscriber struct {
	id int
	fn func(Event)
}

// Session is a single-writer editing session. It does no locking; callers
// that share it across goroutines serialise access.
type Session struct {
	reader pdfdoc.Reader
	raster *raster.Rasterizer
	asm    *assemble.Assembler
	out    delivery.Deliverer

	store    Store
	mode     Mode
	selected idSet
	targets  idSet
	staged   *staged
	quality  raster.Quality

	subs   []subscriber
	nextID int

	now   func() time.Time
	newID func() string
}

// NewSession creates an empty session in ModeNormal.
func NewSession(reader pdfdoc.Reader, writer pdfdoc.Writer, out delivery.Deliverer) *Session {
	if out == nil {
		out = delivery.Discard
	}
	rz := raster.New(reader)
	return &Session{
		reader:   reader,
		raster:   rz,
		asm:      assemble.New(writer, rz),
		out:      out,
		selected: idSet{},
		targets:  idSet{},
		quality:  raster.High,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Subscribe registers fn for every committed mutation. The returned
// function removes it.
func (s *Session) Subscribe(fn func(Event)) (cancel func()) {
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) emit(kind EventKind) {
	if len(s.subs) == 0 {
		return
	}
	ev := Event{Kind: kind, Snapshot: s.Snapshot()}
	for _, sub := range s.subs {
		sub.fn(ev)
	}
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Mode:          s.mode,
		Pages:         make([]PageView, 0, s.store.Len()),
		SelectedCount: len(s.selected),
		TargetCount:   len(s.targets),
		Quality:       s.quality,
	}
	for _, p := range s.store.pages {
		snap.Pages = append(snap.Pages, PageView{
			ID:            p.ID,
			SourceName:    p.SourceName,
			SourcePage:    p.SourcePage,
			Rotation:      p.Rotation,
			PreviewWidth:  p.Preview.Width,
			PreviewHeight: p.Preview.Height,
			SourceSize:    len(p.Source),
			Selected:      s.selected.has(p.ID),
			Target:        s.targets.has(p.ID),
		})
	}
	if st := s.staged; st != nil {
		snap.Staged = &StagedView{
			Name:          st.name,
			PageCount:     st.pageCount,
			PreviewWidth:  st.preview.Width,
			PreviewHeight: st.preview.Height,
			Preview:       st.preview,
		}
	}
	return snap
}

func (s *Session) Mode() Mode { return s.mode }

func (s *Session) Len() int { return s.store.Len() }

// Page returns a copy of the page record. The Source slice is shared and
// must not be modified.
func (s *Session) Page(id string) (Page, bool) {
	p := s.store.Get(id)
	if p == nil {
		return Page{}, false
	}
	return *p, true
}

func (s *Session) requireNormal() error {
	if s.mode != ModeNormal {
		return failure.Precondition(msgLeaveReplace)
	}
	return nil
}

// Import opens data and appends one page per document page, in order.
// On any failure nothing is appended.
func (s *Session) Import(ctx context.Context, data []byte, name string) ([]Page, error) {
	pages, err := s.load(ctx, data, name)
	if err != nil {
		return nil, err
	}
	s.store.Append(pages...)
	log.Info().Str("file", name).Int("pages", len(pages)).Int("total", s.store.Len()).Msg("imported file")
	s.emit(EventImport)

	out := make([]Page, len(pages))
	for i, p := range pages {
		out[i] = *p
	}
	return out, nil
}

// ImportFiles imports files in order and stops at the first failure.
// Files imported before the failure stay in the session.
func (s *Session) ImportFiles(ctx context.Context, files []File) ([]Page, error) {
	var all []Page
	for _, f := range files {
		pages, err := s.Import(ctx, f.Data, f.Name)
		if err != nil {
			return all, err
		}
		all = append(all, pages...)
	}
	return all, nil
}

func (s *Session) load(ctx context.Context, data []byte, name string) ([]*Page, error) {
	if len(data) == 0 {
		return nil, failure.InvalidDocument(name, ErrEmptyFile)
	}
	doc, err := s.reader.Open(bytes.Clone(data))
	if err != nil {
		return nil, failure.InvalidDocument(name, err)
	}
	defer doc.Close()

	n := doc.PageCount()
	if n == 0 {
		return nil, failure.InvalidDocument(name, ErrNoPages)
	}
	pages := make([]*Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := doc.Page(i)
		if err != nil {
			return nil, failure.InvalidDocument(name, fmt.Errorf("page %d: %w", i, err))
		}
		thumb, err := raster.RenderThumbnail(p, raster.ThumbnailScale)
		if err != nil {
			return nil, failure.InvalidDocument(name, fmt.Errorf("page %d: %w", i, err))
		}
		pages = append(pages, &Page{
			ID:         s.newID(),
			SourceName: name,
			SourcePage: i,
			Source:     bytes.Clone(data),
			Preview:    thumb,
		})
	}
	return pages, nil
}

// Delete removes id. Deleting an absent id is a no-op.
func (s *Session) Delete(id string) (bool, error) {
	if err := s.requireNormal(); err != nil {
		return false, err
	}
	if !s.store.Remove(id) {
		return false, nil
	}
	delete(s.selected, id)
	delete(s.targets, id)
	s.emit(EventDelete)
	return true, nil
}

// DeleteMany removes all ids as one mutation.
func (s *Session) DeleteMany(ids []string) (int, error) {
	if err := s.requireNormal(); err != nil {
		return 0, err
	}
	n := s.removeAll(newIDSet(ids...))
	if n > 0 {
		s.emit(EventDelete)
	}
	return n, nil
}

func (s *Session) removeAll(ids idSet) int {
	n := s.store.RemoveMany(ids)
	for id := range ids {
		delete(s.selected, id)
		delete(s.targets, id)
	}
	return n
}

// Rotate adds delta degrees to the page rotation and returns the result
// in [0, 360). delta must be a multiple of 90.
func (s *Session) Rotate(id string, delta int) (int, error) {
	if err := s.requireNormal(); err != nil {
		return 0, err
	}
	if !pdfdoc.ValidRotation(delta) {
		return 0, failure.Precondition(msgBadRotation)
	}
	p := s.store.Get(id)
	if p == nil {
		return 0, &failure.NotFoundError{PageID: id}
	}
	p.Rotation = pdfdoc.NormalizeRotation(p.Rotation + delta)
	s.emit(EventRotate)
	return p.Rotation, nil
}

// Move places id before beforeID, or last when beforeID is empty.
func (s *Session) Move(id, beforeID string) error {
	return s.move(func() error { return s.store.Move(id, beforeID) })
}

// MoveToIndex places id at index of the resulting sequence.
func (s *Session) MoveToIndex(id string, index int) error {
	return s.move(func() error { return s.store.MoveToIndex(id, index) })
}

// Reorder moves dragID to the position dropID holds.
func (s *Session) Reorder(dragID, dropID string) error {
	return s.move(func() error { return s.store.Reorder(dragID, dropID) })
}

func (s *Session) move(fn func() error) error {
	if err := s.requireNormal(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	s.emit(EventMove)
	return nil
}

// ReplaceContent points id at page 1 of data. Rotation is reset.
func (s *Session) ReplaceContent(ctx context.Context, id string, data []byte, name string) error {
	if s.store.Get(id) == nil {
		return &failure.NotFoundError{PageID: id}
	}
	if len(data) == 0 {
		return &failure.EmptySourceError{PageID: id}
	}
	thumb, _, err := s.firstPage(ctx, data, name)
	if err != nil {
		return err
	}
	s.applyReplace(newIDSet(id), data, name, thumb)
	log.Info().Str("page_id", id).Str("file", name).Msg("replaced page content")
	s.emit(EventReplace)
	return nil
}

// ReplaceContentBatch replaces every id with page 1 of data. The file is
// rendered once; each page gets its own copy of the bytes. It returns how
// many ids were present.
func (s *Session) ReplaceContentBatch(ctx context.Context, ids []string, data []byte, name string) (int, error) {
	if len(ids) == 0 {
		return 0, failure.Precondition(msgNeedTargets)
	}
	if len(data) == 0 {
		return 0, failure.InvalidDocument(name, ErrEmptyFile)
	}
	thumb, _, err := s.firstPage(ctx, data, name)
	if err != nil {
		return 0, err
	}
	n := s.applyReplace(newIDSet(ids...), data, name, thumb)
	if n > 0 {
		s.emit(EventReplace)
	}
	return n, nil
}

// firstPage renders page 1 of data at thumbnail scale and returns the
// document page count.
func (s *Session) firstPage(ctx context.Context, data []byte, name string) (raster.Thumbnail, int, error) {
	if err := ctx.Err(); err != nil {
		return raster.Thumbnail{}, 0, err
	}
	doc, err := s.reader.Open(bytes.Clone(data))
	if err != nil {
		return raster.Thumbnail{}, 0, failure.InvalidDocument(name, err)
	}
	defer doc.Close()
	n := doc.PageCount()
	if n == 0 {
		return raster.Thumbnail{}, 0, failure.InvalidDocument(name, ErrNoPages)
	}
	p, err := doc.Page(1)
	if err != nil {
		return raster.Thumbnail{}, 0, failure.InvalidDocument(name, err)
	}
	thumb, err := raster.RenderThumbnail(p, raster.ThumbnailScale)
	if err != nil {
		return raster.Thumbnail{}, 0, failure.InvalidDocument(name, err)
	}
	return thumb, n, nil
}

func (s *Session) applyReplace(ids idSet, data []byte, name string, thumb raster.Thumbnail) int {
	n := 0
	for _, p := range s.store.pages {
		if !ids.has(p.ID) {
			continue
		}
		p.SourceName = name
		p.SourcePage = 1
		p.Rotation = 0
		p.Source = bytes.Clone(data)
		p.Preview = thumb
		n++
	}
	return n
}

// EnterReplaceStaging switches to ModeReplaceStaging with an empty target
// set. Calling it while already staging starts over.
func (s *Session) EnterReplaceStaging() {
	s.mode = ModeReplaceStaging
	s.targets.clear()
	s.staged = nil
	s.emit(EventMode)
}

// ExitReplaceStaging drops targets and any staged file and returns to
// ModeNormal.
func (s *Session) ExitReplaceStaging() {
	s.resetStaging()
	s.emit(EventMode)
}

func (s *Session) resetStaging() {
	s.mode = ModeNormal
	s.targets.clear()
	s.staged = nil
}

// ToggleSelect flips selection of id and returns its new state. It does
// nothing outside ModeNormal or for unknown ids.
func (s *Session) ToggleSelect(id string) bool {
	if s.mode != ModeNormal || s.store.Get(id) == nil {
		return false
	}
	on := s.selected.toggle(id)
	s.emit(EventSelect)
	return on
}

// SelectAll selects every page, or clears the selection when every page
// is already selected. It returns the selection size.
func (s *Session) SelectAll() int {
	if s.mode != ModeNormal {
		return len(s.selected)
	}
	if len(s.selected) == s.store.Len() {
		s.selected.clear()
	} else {
		for _, p := range s.store.pages {
			s.selected[p.ID] = struct{}{}
		}
	}
	s.emit(EventSelect)
	return len(s.selected)
}

func (s *Session) requireSelection() error {
	if err := s.requireNormal(); err != nil {
		return err
	}
	if len(s.selected) == 0 {
		return failure.Precondition(msgNeedSelection)
	}
	return nil
}

// Selected returns the selected ids in sequence order.
func (s *Session) Selected() []string {
	var out []string
	for _, p := range s.store.pages {
		if s.selected.has(p.ID) {
			out = append(out, p.ID)
		}
	}
	return out
}

// DeleteSelected removes the selected pages and clears the selection.
func (s *Session) DeleteSelected() (int, error) {
	if err := s.requireSelection(); err != nil {
		return 0, err
	}
	n := s.removeAll(newIDSet(s.Selected()...))
	s.selected.clear()
	s.emit(EventDelete)
	return n, nil
}

// RotateSelected rotates every selected page by delta. The selection is
// kept.
func (s *Session) RotateSelected(delta int) (int, error) {
	if err := s.requireSelection(); err != nil {
		return 0, err
	}
	if !pdfdoc.ValidRotation(delta) {
		return 0, failure.Precondition(msgBadRotation)
	}
	n := 0
	for _, p := range s.store.pages {
		if s.selected.has(p.ID) {
			p.Rotation = pdfdoc.NormalizeRotation(p.Rotation + delta)
			n++
		}
	}
	s.emit(EventRotate)
	return n, nil
}

// DownloadSelected merges the selected pages in sequence order.
func (s *Session) DownloadSelected(ctx context.Context) (*Export, error) {
	if err := s.requireSelection(); err != nil {
		return nil, err
	}
	pages := s.assemblePages(s.selected)
	data, skipped, err := s.asm.Merge(ctx, "download_selected", pages)
	if err != nil {
		return nil, err
	}
	return s.deliver(ctx, delivery.Artifact{
		Name: fmt.Sprintf("selected_%d.pdf", s.now().UnixMilli()),
		MIME: delivery.MIMEPDF,
		Data: data,
	}, skipped)
}

// ToggleReplaceTarget flips id in the target set.
func (s *Session) ToggleReplaceTarget(id string) (bool, error) {
	if s.mode != ModeReplaceStaging {
		return false, failure.Precondition(msgNeedReplace)
	}
	if s.store.Get(id) == nil {
		return false, &failure.NotFoundError{PageID: id}
	}
	on := s.targets.toggle(id)
	s.emit(EventTarget)
	return on, nil
}

// Targets returns the replacement targets in sequence order.
func (s *Session) Targets() []string {
	var out []string
	for _, p := range s.store.pages {
		if s.targets.has(p.ID) {
			out = append(out, p.ID)
		}
	}
	return out
}

// StageReplacement holds data as the pending replacement and prepares the
// confirmation preview. No page changes until ExecuteReplace.
func (s *Session) StageReplacement(ctx context.Context, data []byte, name string) (*StagedView, error) {
	if s.mode != ModeReplaceStaging {
		return nil, failure.Precondition(msgNeedReplace)
	}
	if len(s.targets) == 0 {
		return nil, failure.Precondition(msgNeedTargets)
	}
	if len(data) == 0 {
		return nil, failure.InvalidDocument(name, ErrEmptyFile)
	}
	thumb, n, err := s.firstPage(ctx, data, name)
	if err != nil {
		return nil, err
	}
	preview, err := raster.Downscale(thumb, raster.ConfirmPreviewScale/raster.ThumbnailScale)
	if err != nil {
		return nil, err
	}
	s.staged = &staged{
		data:      bytes.Clone(data),
		name:      name,
		pageCount: n,
		thumb:     thumb,
		preview:   preview,
	}
	s.emit(EventStage)
	return s.Snapshot().Staged, nil
}

// CancelReplacement drops the staged file but stays in ModeReplaceStaging.
func (s *Session) CancelReplacement() {
	if s.staged == nil {
		return
	}
	s.staged = nil
	s.emit(EventStage)
}

// ExecuteReplace applies the staged file to every target, returns the
// number of pages replaced and leaves ModeReplaceStaging.
func (s *Session) ExecuteReplace(ctx context.Context) (int, error) {
	if s.mode != ModeReplaceStaging || s.staged == nil || len(s.targets) == 0 {
		return 0, failure.Precondition(msgIncomplete)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	st := s.staged
	n := s.applyReplace(s.targets, st.data, st.name, st.thumb)
	s.resetStaging()
	log.Info().Str("file", st.name).Int("replaced", n).Msg("replaced target pages")
	s.emit(EventReplace)
	return n, nil
}

// Clear empties the session.
func (s *Session) Clear() error {
	if err := s.requireNormal(); err != nil {
		return err
	}
	s.store.Clear()
	s.selected.clear()
	s.targets.clear()
	s.emit(EventClear)
	return nil
}

// SelectQuality sets the tier used by ExportImage when none is given.
func (s *Session) SelectQuality(q string) raster.Quality {
	s.quality = raster.ParseQuality(q)
	s.emit(EventQuality)
	return s.quality
}

func (s *Session) requireExportable() error {
	if err := s.requireNormal(); err != nil {
		return err
	}
	if s.store.Len() == 0 {
		return failure.Precondition(msgNeedPages)
	}
	return nil
}

// MergeAll merges the whole sequence.
func (s *Session) MergeAll(ctx context.Context) (*Export, error) {
	if err := s.requireNormal(); err != nil {
		return nil, err
	}
	if s.store.Len() < 1 {
		return nil, failure.Precondition(msgMergeNeedsPage)
	}
	data, skipped, err := s.asm.Merge(ctx, "merge", s.assemblePages(nil))
	if err != nil {
		return nil, err
	}
	return s.deliver(ctx, delivery.Artifact{
		Name: fmt.Sprintf("merged_%d.pdf", s.now().UnixMilli()),
		MIME: delivery.MIMEPDF,
		Data: data,
	}, skipped)
}

// ExportImage renders one page to PNG. An empty quality uses the session
// quality.
func (s *Session) ExportImage(ctx context.Context, id string, quality string) (*ImageExport, error) {
	p := s.store.Get(id)
	if p == nil {
		return nil, &failure.NotFoundError{PageID: id}
	}
	q := s.quality
	if quality != "" {
		q = raster.ParseQuality(quality)
	}
	img, err := s.raster.Render(ctx, raster.Source{
		PageID:      p.ID,
		Name:        p.SourceName,
		PageNumber:  p.SourcePage,
		Rotation:    p.Rotation,
		Data:        p.Source,
		ThumbWidth:  p.Preview.Width,
		ThumbHeight: p.Preview.Height,
	}, q)
	if err != nil {
		return nil, err
	}
	exp, err := s.deliver(ctx, delivery.Artifact{Name: img.FileName, MIME: delivery.MIMEPNG, Data: img.PNG}, nil)
	if err != nil {
		return nil, err
	}
	return &ImageExport{Export: *exp, Plan: img.Plan}, nil
}

// Compress rebuilds the sequence with the given recompression tier.
func (s *Session) Compress(ctx context.Context, tier string) (*CompressExport, error) {
	if err := s.requireExportable(); err != nil {
		return nil, err
	}
	res, err := s.asm.Compress(ctx, s.assemblePages(nil), assemble.ParseTier(tier))
	if err != nil {
		return nil, err
	}
	exp, err := s.deliver(ctx, delivery.Artifact{
		Name: res.FileName(s.now()),
		MIME: delivery.MIMEPDF,
		Data: res.Data,
	}, res.Skipped)
	if err != nil {
		return nil, err
	}
	return &CompressExport{Export: *exp, Report: res}, nil
}

// assemblePages lists pages in sequence order, restricted to only when it
// is non-nil.
func (s *Session) assemblePages(only idSet) []assemble.Page {
	out := make([]assemble.Page, 0, s.store.Len())
	for _, p := range s.store.pages {
		if only != nil && !only.has(p.ID) {
			continue
		}
		out = append(out, assemble.Page{
			ID:         p.ID,
			SourceName: p.SourceName,
			SourcePage: p.SourcePage,
			Rotation:   p.Rotation,
			Source:     p.Source,
		})
	}
	return out
}

func (s *Session) deliver(ctx context.Context, a delivery.Artifact, skipped []string) (*Export, error) {
	loc, err := s.out.Deliver(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("deliver %s: %w", a.Name, err)
	}
	log.Info().Str("name", a.Name).Int("size", len(a.Data)).Str("location", loc).Int("skipped", len(skipped)).Msg("artifact delivered")
	return &Export{Artifact: a, Location: loc, Skipped: skipped}, nil
}
