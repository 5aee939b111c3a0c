package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiersSeeThroughWrapping(t *testing.T) {
	base := errors.New("bad xref")
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"invalid document", fmt.Errorf("import: %w", InvalidDocument("a.pdf", base)), IsInvalidDocument},
		{"empty source", fmt.Errorf("raster: %w", &EmptySourceError{PageID: "p1"}), IsEmptySource},
		{"precondition", fmt.Errorf("merge: %w", Precondition("no pages")), IsPrecondition},
		{"encoding", fmt.Errorf("export: %w", &EncodingError{Primary: base, Fallback: base}), IsEncoding},
		{"not found", fmt.Errorf("rotate: %w", &NotFoundError{PageID: "x"}), IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Fatalf("classifier did not match %v", tt.err)
			}
		})
	}
}

func TestInvalidDocumentUnwraps(t *testing.T) {
	base := errors.New("not a pdf")
	err := InvalidDocument("x.pdf", base)
	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to reach the cause")
	}
}

func TestEncodingErrorUnwrapsBoth(t *testing.T) {
	p, f := errors.New("primary"), errors.New("fallback")
	err := &EncodingError{Primary: p, Fallback: f}
	if !errors.Is(err, p) || !errors.Is(err, f) {
		t.Fatal("expected both causes reachable")
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(Precondition("没有选中的页面")); got != "没有选中的页面" {
		t.Fatalf("got %q", got)
	}
	if got := UserMessage(errors.New("boom")); got != "boom" {
		t.Fatalf("got %q", got)
	}
}
