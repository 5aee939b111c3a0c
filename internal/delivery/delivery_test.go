package delivery

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLocalDeliver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	l := NewLocal(dir)
	p, err := l.Deliver(context.Background(), Artifact{Name: "../merged_1.pdf", MIME: MIMEPDF, Data: []byte("%PDF")})
	if err != nil {
		t.Fatal(err)
	}
	if p != filepath.Join(dir, "merged_1.pdf") {
		t.Fatalf("path = %q", p)
	}
	got, err := os.ReadFile(p)
	if err != nil || string(got) != "%PDF" {
		t.Fatalf("read %q, %v", got, err)
	}
}

func TestNewLocalDefaultDir(t *testing.T) {
	if got := NewLocal("").Dir; got != filepath.Join("uploads", "results") {
		t.Fatalf("dir = %q", got)
	}
}

type fakeUploader struct {
	key, name, mime, password string
	data                      []byte
	err                       error
}

func (u *fakeUploader) Upload(_ context.Context, key, name, contentType string, data []byte, password string) error {
	u.key, u.name, u.mime, u.data, u.password = key, name, contentType, data, password
	return u.err
}

func (u *fakeUploader) Bucket() string { return "results" }

func TestS3Deliver(t *testing.T) {
	up := &fakeUploader{}
	s := &S3{Client: up, Prefix: "/editor/out/", Password: "pw"}
	loc, err := s.Deliver(context.Background(), Artifact{Name: "a_页1_高质量.png", MIME: MIMEPNG, Data: []byte{1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	if loc != "s3://results/editor/out/a_页1_高质量.png" {
		t.Fatalf("location = %q", loc)
	}
	if up.mime != MIMEPNG || up.password != "pw" || !bytes.Equal(up.data, []byte{1, 2}) {
		t.Fatalf("upload = %+v", up)
	}

	up.err = errors.New("denied")
	if _, err := s.Deliver(context.Background(), Artifact{Name: "x.pdf"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedisRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	r, err := NewRedis(url, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	loc, err := r.Deliver(context.Background(), Artifact{Name: "m.pdf", MIME: MIMEPDF, Data: []byte("%PDF-1.7")})
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Get(context.Background(), filepath.Base(loc))
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "m.pdf" || got.MIME != MIMEPDF || string(got.Data) != "%PDF-1.7" {
		t.Fatalf("got %+v", got)
	}
	if _, err := r.Get(context.Background(), "missing"); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v", err)
	}
}
