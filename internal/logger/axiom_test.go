package logger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
)

type fakeIngester struct {
	mu      sync.Mutex
	dataset string
	batches [][]axiom.Event
	err     error
}

func (f *fakeIngester) IngestEvents(_ context.Context, id string, events []axiom.Event, _ ...ingest.Option) (*ingest.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataset = id
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, append([]axiom.Event(nil), events...))
	return &ingest.Status{Ingested: uint64(len(events))}, nil
}

func (f *fakeIngester) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.batches))
	for i, b := range f.batches {
		out[i] = len(b)
	}
	return out
}

func TestShipperFlushesFullBatches(t *testing.T) {
	api := &fakeIngester{}
	s := newShipper(api, shipperOptions{Dataset: "test_pdfeditor", BatchSize: 2, Every: time.Hour})
	s.start()

	for _, msg := range []string{"a", "b", "c"} {
		s.WriteLevel(zerolog.InfoLevel, []byte(`{"level":"info","message":"`+msg+`"}`))
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(api.sizes()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("full batch was not flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	got := api.sizes()
	if len(got) != 2 || got[0] != 2 || got[1] != 1 {
		t.Fatalf("batch sizes = %v", got)
	}
	if api.dataset != "test_pdfeditor" {
		t.Fatalf("dataset = %q", api.dataset)
	}
	ev := api.batches[0][0]
	if ev["service"] != service || ev["message"] != "a" {
		t.Fatalf("event = %v", ev)
	}
	if _, ok := ev[ingest.TimestampField]; !ok {
		t.Fatal("missing timestamp")
	}
	if s.shipped.Load() != 3 {
		t.Fatalf("shipped = %d", s.shipped.Load())
	}
}

func TestShipperFiltersLevel(t *testing.T) {
	api := &fakeIngester{}
	s := newShipper(api, shipperOptions{MinLevel: zerolog.WarnLevel, Every: time.Hour})
	s.start()

	s.WriteLevel(zerolog.InfoLevel, []byte(`{"level":"info","message":"skip"}`))
	s.WriteLevel(zerolog.ErrorLevel, []byte(`{"level":"error","message":"keep"}`))
	s.Write([]byte(`{"level":"debug","message":"skip"}`))
	s.Write([]byte(`{"level":"warn","message":"keep"}`))
	s.Write([]byte("not json"))

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if api.dataset != "dev_"+service {
		t.Fatalf("dataset = %q", api.dataset)
	}
	var msgs []string
	for _, b := range api.batches {
		for _, ev := range b {
			msgs = append(msgs, ev["message"].(string))
		}
	}
	// plain text lines ship at info, which is below warn
	if strings.Join(msgs, ",") != "keep,keep" {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestShipperCountsLostEvents(t *testing.T) {
	api := &fakeIngester{}
	s := newShipper(api, shipperOptions{BatchSize: 10, Buffer: 1, Every: time.Hour})

	// nothing drains the buffer until start
	for i := 0; i < 3; i++ {
		s.WriteLevel(zerolog.ErrorLevel, []byte(`{"level":"error","message":"x"}`))
	}
	s.start()
	err := s.Close()
	if err == nil || !strings.Contains(err.Error(), "2 events dropped") {
		t.Fatalf("err = %v", err)
	}
	if got := api.sizes(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("batch sizes = %v", got)
	}

	s.WriteLevel(zerolog.ErrorLevel, []byte(`{"level":"error"}`))
	if s.dropped.Load() != 3 {
		t.Fatalf("write after close: dropped = %d", s.dropped.Load())
	}
}

func TestShipperCountsIngestFailures(t *testing.T) {
	api := &fakeIngester{err: errors.New("unauthorized")}
	s := newShipper(api, shipperOptions{Every: time.Hour})
	s.start()
	s.WriteLevel(zerolog.WarnLevel, []byte(`{"level":"warn"}`))
	s.WriteLevel(zerolog.WarnLevel, []byte(`{"level":"warn"}`))

	err := s.Close()
	if err == nil || !strings.Contains(err.Error(), "2 failed") {
		t.Fatalf("err = %v", err)
	}
	// Close is idempotent
	if err := s.Close(); err == nil {
		t.Fatal("second Close should still report the loss")
	}
}
