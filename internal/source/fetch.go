// Package source loads import documents from paths, URLs and S3.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfeditor/internal/filetype"
	"github.com/local/pdfeditor/internal/storage"
)

// File is a fetched document.
type File struct {
	Name string
	Data []byte
}

// ObjectStore is the part of storage.S3Client the fetcher needs.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key, password string) (*storage.Object, error)
}

// ErrOutsideRoot is returned for local paths that are not under Root.
var ErrOutsideRoot = errors.New("local import path not allowed")

// Fetcher resolves references of the form:
//   - file://path or a filesystem path, only below Root
//   - http(s)://host/path
//   - s3://bucket/key
type Fetcher struct {
	HTTP     *http.Client
	S3       ObjectStore
	Password string
	MaxBytes int64
	// Root is the directory local imports are confined to. Empty disables
	// local imports.
	Root string
}

func NewFetcher(s3 ObjectStore, password string, timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{
		HTTP:     &http.Client{Timeout: timeout},
		S3:       s3,
		Password: password,
		MaxBytes: maxBytes,
	}
}

// Fetch loads ref and checks that it holds a PDF.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*File, error) {
	// optional #page fragment is not meaningful for imports
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}

	var (
		file *File
		err  error
	)
	switch {
	case strings.HasPrefix(ref, "s3://"):
		file, err = f.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		file, err = f.fetchHTTP(ctx, ref)
	default:
		file, err = f.fetchFile(strings.TrimPrefix(ref, "file://"))
	}
	if err != nil {
		return nil, err
	}
	if err := filetype.Check(file.Data, file.Name); err != nil {
		return nil, err
	}
	log.Info().Str("ref", ref).Str("name", file.Name).Int("size", len(file.Data)).Msg("fetched import source")
	return file, nil
}

// confine resolves p and reports an error unless it lies below Root.
func (f *Fetcher) confine(p string) (string, error) {
	if f.Root == "" {
		return "", ErrOutsideRoot
	}
	root, err := filepath.EvalSymlinks(f.Root)
	if err != nil {
		return "", fmt.Errorf("import root: %w", err)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	// symlinks are followed so a link cannot point out of the root
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return resolved, nil
}

func (f *Fetcher) fetchFile(p string) (*File, error) {
	p, err := f.confine(p)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	data, err := f.readAll(fh)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return &File{Name: filepath.Base(p), Data: data}, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, ref string) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	data, err := f.readAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	name := "download.pdf"
	if u, err := url.Parse(ref); err == nil {
		if b := path.Base(u.Path); b != "" && b != "/" && b != "." {
			name = b
		}
	}
	return &File{Name: name, Data: data}, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, ref string) (*File, error) {
	if f.S3 == nil {
		return nil, fmt.Errorf("s3 import is not configured")
	}
	rest := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		return nil, fmt.Errorf("invalid s3 url: %s", ref)
	}
	bucket, key := rest[:slash], rest[slash+1:]

	obj, err := f.S3.Download(ctx, bucket, key, f.Password)
	if err != nil {
		return nil, err
	}
	if f.MaxBytes > 0 && int64(len(obj.Data)) > f.MaxBytes {
		return nil, fmt.Errorf("s3://%s/%s exceeds %d bytes", bucket, key, f.MaxBytes)
	}
	name := obj.Name
	if name == "" {
		name = path.Base(key)
	}
	return &File{Name: name, Data: obj.Data}, nil
}

func (f *Fetcher) readAll(r io.Reader) ([]byte, error) {
	if f.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("exceeds %d bytes", f.MaxBytes)
	}
	return data, nil
}
