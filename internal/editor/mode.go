package editor

import (
	"fmt"

	"github.com/local/pdfeditor/internal/raster"
)

// Mode is the interaction mode of a session.
type Mode int

const (
	// ModeNormal: selection and bulk operations are available.
	ModeNormal Mode = iota
	// ModeReplaceStaging: pages are picked as replacement targets and a
	// replacement file is staged; the page sequence is frozen.
	ModeReplaceStaging
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeReplaceStaging:
		return "replace_staging"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// EventKind names the operation that produced an Event.
type EventKind string

const (
	EventImport  EventKind = "import"
	EventDelete  EventKind = "delete"
	EventRotate  EventKind = "rotate"
	EventMove    EventKind = "move"
	EventReplace EventKind = "replace"
	EventMode    EventKind = "mode"
	EventSelect  EventKind = "select"
	EventTarget  EventKind = "target"
	EventStage   EventKind = "stage"
	EventClear   EventKind = "clear"
	EventQuality EventKind = "quality"
)

// Event is delivered to subscribers after every committed mutation.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
}

// PageView is the read-only view of a page.
type PageView struct {
	ID            string `json:"id"`
	SourceName    string `json:"source_name"`
	SourcePage    int    `json:"source_page"`
	Rotation      int    `json:"rotation"`
	PreviewWidth  int    `json:"preview_width"`
	PreviewHeight int    `json:"preview_height"`
	SourceSize    int    `json:"source_size"`
	Selected      bool   `json:"selected"`
	Target        bool   `json:"target"`
}

// StagedView describes a staged replacement file.
type StagedView struct {
	Name          string           `json:"name"`
	PageCount     int              `json:"page_count"`
	PreviewWidth  int              `json:"preview_width"`
	PreviewHeight int              `json:"preview_height"`
	Preview       raster.Thumbnail `json:"-"`
}

// Snapshot is the observable state of a session.
type Snapshot struct {
	Mode          Mode           `json:"mode"`
	Pages         []PageView     `json:"pages"`
	SelectedCount int            `json:"selected_count"`
	TargetCount   int            `json:"target_count"`
	Staged        *StagedView    `json:"staged,omitempty"`
	Quality       raster.Quality `json:"quality"`
}

// IDs returns the page ids in sequence order.
func (s Snapshot) IDs() []string {
	out := make([]string, len(s.Pages))
	for i, p := range s.Pages {
		out[i] = p.ID
	}
	return out
}
