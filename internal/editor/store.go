package editor

import (
	"slices"

	"github.com/local/pdfeditor/internal/failure"
	"github.com/local/pdfeditor/internal/raster"
)

// Page is one entry of the editing sequence. Source holds the complete
// file the page came from and is never shared between pages.
type Page struct {
	ID         string
	SourceName string
	SourcePage int
	Rotation   int
	Source     []byte
	Preview    raster.Thumbnail
}

// Store is the ordered page sequence. Order is export order.
type Store struct {
	pages []*Page
}

func (s *Store) Len() int { return len(s.pages) }

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.pages, func(p *Page) bool { return p.ID == id })
}

// Get returns the page with id, or nil.
func (s *Store) Get(id string) *Page {
	if i := s.index(id); i >= 0 {
		return s.pages[i]
	}
	return nil
}

// Pages returns the sequence. The slice is a copy; the pages are not.
func (s *Store) Pages() []*Page { return slices.Clone(s.pages) }

func (s *Store) IDs() []string {
	out := make([]string, len(s.pages))
	for i, p := range s.pages {
		out[i] = p.ID
	}
	return out
}

func (s *Store) Append(pages ...*Page) { s.pages = append(s.pages, pages...) }

// Remove deletes id and reports whether it was present.
func (s *Store) Remove(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.pages = slices.Delete(s.pages, i, i+1)
	return true
}

// RemoveMany deletes every page in ids in one pass.
func (s *Store) RemoveMany(ids idSet) int {
	before := len(s.pages)
	s.pages = slices.DeleteFunc(s.pages, func(p *Page) bool { return ids.has(p.ID) })
	return before - len(s.pages)
}

func (s *Store) Clear() { s.pages = nil }

// Move places id directly before beforeID, or at the end when beforeID is
// empty.
func (s *Store) Move(id, beforeID string) error {
	from := s.index(id)
	if from < 0 {
		return &failure.NotFoundError{PageID: id}
	}
	if beforeID != "" && s.index(beforeID) < 0 {
		return &failure.NotFoundError{PageID: beforeID}
	}
	if id == beforeID {
		return nil
	}
	p := s.pages[from]
	s.pages = slices.Delete(s.pages, from, from+1)
	to := len(s.pages)
	if beforeID != "" {
		to = s.index(beforeID)
	}
	s.pages = slices.Insert(s.pages, to, p)
	return nil
}

// MoveToIndex places id at position index of the resulting sequence,
// clamped to its bounds.
func (s *Store) MoveToIndex(id string, index int) error {
	from := s.index(id)
	if from < 0 {
		return &failure.NotFoundError{PageID: id}
	}
	p := s.pages[from]
	s.pages = slices.Delete(s.pages, from, from+1)
	index = min(max(index, 0), len(s.pages))
	s.pages = slices.Insert(s.pages, index, p)
	return nil
}

// Reorder is the drag and drop form of a move: dragID is taken out and
// reinserted at the position dropID held before the move.
func (s *Store) Reorder(dragID, dropID string) error {
	from := s.index(dragID)
	if from < 0 {
		return &failure.NotFoundError{PageID: dragID}
	}
	to := s.index(dropID)
	if to < 0 {
		return &failure.NotFoundError{PageID: dropID}
	}
	if from == to {
		return nil
	}
	return s.MoveToIndex(dragID, to)
}

type idSet map[string]struct{}

func (s idSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

// toggle flips membership and returns the new state.
func (s idSet) toggle(id string) bool {
	if s.has(id) {
		delete(s, id)
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s idSet) clear() { clear(s) }

func newIDSet(ids ...string) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
