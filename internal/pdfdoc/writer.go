package pdfdoc

// SaveOptions controls how a composed document is serialised.
type SaveOptions struct {
	ObjectStreams bool
	Compress      bool
}

// LoadOptions controls how an existing document is parsed before resaving.
type LoadOptions struct {
	// TolerateEncryption accepts documents carrying encryption metadata
	// that can be opened without a user password.
	TolerateEncryption bool
}

// CopyOptions controls a page copy into a Builder.
type CopyOptions struct {
	// DropAnnotations removes the /Annots entry of the copied page.
	DropAnnotations bool
}

// Writer composes new PDF documents.
type Writer interface {
	NewDocument() Builder
	// Resave reloads data and writes it back out, returning the new bytes.
	Resave(data []byte, load LoadOptions, save SaveOptions) ([]byte, error)
}

// Builder accumulates pages of a document under construction, in order.
type Builder interface {
	// CopyPage appends page (1-based) of src, adding rotation degrees to the
	// page's own rotation.
	CopyPage(src []byte, page, rotation int, opts CopyOptions) error
	// AddImagePage appends a page of width x height points filled by the
	// PNG image.
	AddImagePage(png []byte, width, height float64) error
	PageCount() int
	Save(opts SaveOptions) ([]byte, error)
}
