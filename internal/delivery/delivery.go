// Package delivery hands finished artifacts to their destination.
package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// MIME types of the artifacts the editor produces.
const (
	MIMEPDF = "application/pdf"
	MIMEPNG = "image/png"
)

// Artifact is a named byte payload ready for download.
type Artifact struct {
	Name string
	MIME string
	Data []byte
}

// Deliverer stores an artifact and returns where it can be fetched.
type Deliverer interface {
	Deliver(ctx context.Context, a Artifact) (string, error)
}

// Func adapts a function to Deliverer.
type Func func(ctx context.Context, a Artifact) (string, error)

func (f Func) Deliver(ctx context.Context, a Artifact) (string, error) { return f(ctx, a) }

// Discard drops artifacts; the HTTP response is their only copy.
var Discard Deliverer = Func(func(context.Context, Artifact) (string, error) { return "", nil })

// Local writes artifacts into a directory.
type Local struct {
	Dir string
}

// NewLocal returns a Local sink. Directory defaults to ./uploads/results.
func NewLocal(dir string) *Local {
	if dir == "" {
		dir = filepath.Join("uploads", "results")
	}
	return &Local{Dir: dir}
}

func (l *Local) Deliver(_ context.Context, a Artifact) (string, error) {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", err
	}
	p := filepath.Join(l.Dir, safeName(a.Name))
	if err := os.WriteFile(p, a.Data, 0o644); err != nil {
		return "", err
	}
	log.Info().Str("path", p).Int("size", len(a.Data)).Msg("artifact saved locally")
	return p, nil
}

// Uploader is the part of storage.S3Client the S3 sink needs.
type Uploader interface {
	Upload(ctx context.Context, key, name, contentType string, data []byte, password string) error
	Bucket() string
}

// S3 uploads artifacts under Prefix, sealed when Password is set.
type S3 struct {
	Client   Uploader
	Prefix   string
	Password string
}

func (s *S3) Deliver(ctx context.Context, a Artifact) (string, error) {
	key := safeName(a.Name)
	if p := strings.Trim(s.Prefix, "/"); p != "" {
		key = p + "/" + key
	}
	if err := s.Client.Upload(ctx, key, a.Name, a.MIME, a.Data, s.Password); err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", s.Client.Bucket(), key), nil
}

// safeName strips directory components from a download name.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "artifact"
	}
	return name
}
