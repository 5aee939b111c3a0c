package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfeditor/internal/storage"
)

const pdfMIME = "application/pdf"

// Info contains detected file type information
type Info struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Encrypted   bool
	Description string
}

// Detect detects the file type from magic bytes, not the file name. The
// name is only used for logging and for the encrypted-envelope case.
func Detect(data []byte, name string) *Info {
	mtype := mimetype.Detect(data)
	info := &Info{MIMEType: mtype.String(), Extension: mtype.Extension()}

	switch {
	case mtype.Is(pdfMIME):
		info.Supported = true
		info.Description = "PDF document"
	case storage.IsEncrypted(data):
		// sealed objects are opaque until decrypted
		info.Encrypted = true
		info.Description = "Encrypted envelope"
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}

	log.Debug().
		Str("mime", info.MIMEType).
		Str("ext", info.Extension).
		Str("file", filepath.Base(name)).
		Bool("supported", info.Supported).
		Msg("detected file type")
	return info
}

// IsPDF reports whether data looks like a PDF document.
func IsPDF(data []byte) bool {
	return mimetype.Detect(data).Is(pdfMIME)
}

// Check returns an error describing why data cannot be imported, or nil.
func Check(data []byte, name string) error {
	if len(data) == 0 {
		return fmt.Errorf("%s: file is empty", name)
	}
	info := Detect(data, name)
	if info.Supported {
		return nil
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return fmt.Errorf("%s: content is %s, not a PDF", name, info.MIMEType)
	}
	return fmt.Errorf("%s: %s", name, info.Description)
}
