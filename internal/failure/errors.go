package failure

import (
	"errors"
	"fmt"
)

// InvalidDocumentError is returned when a buffer cannot be opened as a PDF.
type InvalidDocumentError struct {
	Name string
	Err  error
}

func (e *InvalidDocumentError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid document: %v", e.Err)
	}
	return fmt.Sprintf("invalid document %q: %v", e.Name, e.Err)
}

func (e *InvalidDocumentError) Unwrap() error { return e.Err }

// EmptySourceError means a page record has no source bytes left to work with.
type EmptySourceError struct {
	PageID string
}

func (e *EmptySourceError) Error() string {
	return fmt.Sprintf("page %s has an empty source buffer", e.PageID)
}

// PreconditionError rejects an operation invoked in the wrong state.
// Message is user facing.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Message)
}

// EncodingError is returned when both the primary and the fallback
// image encoders fail.
type EncodingError struct {
	Primary  error
	Fallback error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("image encoding failed: %v (fallback: %v)", e.Primary, e.Fallback)
}

func (e *EncodingError) Unwrap() []error { return []error{e.Primary, e.Fallback} }

// NotFoundError is returned when an operation names a page id that is not live.
type NotFoundError struct {
	PageID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("page %s not found", e.PageID)
}

func Precondition(format string, args ...any) error {
	return &PreconditionError{Message: fmt.Sprintf(format, args...)}
}

func InvalidDocument(name string, err error) error {
	return &InvalidDocumentError{Name: name, Err: err}
}

func IsInvalidDocument(err error) bool {
	var e *InvalidDocumentError
	return errors.As(err, &e)
}

func IsEmptySource(err error) bool {
	var e *EmptySourceError
	return errors.As(err, &e)
}

func IsPrecondition(err error) bool {
	var e *PreconditionError
	return errors.As(err, &e)
}

func IsEncoding(err error) bool {
	var e *EncodingError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// UserMessage returns the short text shown to the user for err.
func UserMessage(err error) string {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe.Message
	}
	var ide *InvalidDocumentError
	if errors.As(err, &ide) {
		return fmt.Sprintf("无法读取文件: %v", ide.Err)
	}
	var ese *EmptySourceError
	if errors.As(err, &ese) {
		return "页面的源数据无效"
	}
	return err.Error()
}
