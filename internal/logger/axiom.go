package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
)

// ingester is the part of *axiom.Client the shipper uses.
type ingester interface {
	IngestEvents(ctx context.Context, id string, events []axiom.Event, options ...ingest.Option) (*ingest.Status, error)
}

type shipperOptions struct {
	Dataset   string
	MinLevel  zerolog.Level
	BatchSize int
	Buffer    int
	Every     time.Duration
}

// shipper batches log lines into Axiom ingest calls. Lines below MinLevel
// are skipped; lines that do not fit the buffer are counted and dropped.
type shipper struct {
	api  ingester
	opts shipperOptions

	ch   chan axiom.Event
	done chan struct{}
	wg   sync.WaitGroup
	stop sync.Once

	dropped atomic.Int64
	failed  atomic.Int64
	shipped atomic.Int64
}

func newShipper(api ingester, opts shipperOptions) *shipper {
	if opts.Dataset == "" {
		opts.Dataset = "dev_" + service
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 5 * opts.BatchSize
	}
	if opts.Every <= 0 {
		opts.Every = 10 * time.Second
	}
	return &shipper{
		api:  api,
		opts: opts,
		ch:   make(chan axiom.Event, opts.Buffer),
		done: make(chan struct{}),
	}
}

// newAxiomShipper connects to Axiom and starts shipping.
func newAxiomShipper(o Options) (*shipper, error) {
	copts := []axiom.Option{axiom.SetToken(o.AxiomAPIKey)}
	if o.AxiomOrgID != "" {
		copts = append(copts, axiom.SetOrganizationID(o.AxiomOrgID))
	}
	c, err := axiom.NewClient(copts...)
	if err != nil {
		return nil, err
	}
	lvl, err := zerolog.ParseLevel(o.AxiomLevel)
	if err != nil || o.AxiomLevel == "" {
		lvl = zerolog.InfoLevel
	}
	s := newShipper(c, shipperOptions{
		Dataset:   o.AxiomDataset,
		MinLevel:  lvl,
		BatchSize: o.AxiomBatch,
		Every:     o.AxiomFlush,
	})
	s.start()
	return s, nil
}

func (s *shipper) start() {
	s.wg.Add(1)
	go s.loop()
}

// WriteLevel lets zerolog.MultiLevelWriter pass the level without a parse.
func (s *shipper) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < s.opts.MinLevel {
		return len(p), nil
	}
	s.enqueue(s.event(p))
	return len(p), nil
}

func (s *shipper) Write(p []byte) (int, error) {
	ev := s.event(p)
	if str, ok := ev[zerolog.LevelFieldName].(string); ok {
		if l, err := zerolog.ParseLevel(str); err == nil && l < s.opts.MinLevel {
			return len(p), nil
		}
	}
	s.enqueue(ev)
	return len(p), nil
}

func (s *shipper) event(p []byte) axiom.Event {
	var ev axiom.Event
	if err := json.Unmarshal(p, &ev); err != nil || ev == nil {
		ev = axiom.Event{zerolog.MessageFieldName: string(p), zerolog.LevelFieldName: zerolog.InfoLevel.String()}
	}
	ev["service"] = service
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	return ev
}

func (s *shipper) enqueue(ev axiom.Event) {
	select {
	case <-s.done:
		s.dropped.Add(1)
		return
	default:
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *shipper) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.Every)
	defer ticker.Stop()
	batch := make([]axiom.Event, 0, s.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		status, err := s.api.IngestEvents(ctx, s.opts.Dataset, batch)
		switch {
		case err != nil:
			s.failed.Add(int64(len(batch)))
		case status != nil:
			s.failed.Add(int64(status.Failed))
			s.shipped.Add(int64(status.Ingested))
		default:
			s.shipped.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}
	for {
		select {
		case <-s.done:
			// whatever was queued before Close still goes out
			for {
				select {
				case ev := <-s.ch:
					batch = append(batch, ev)
					if len(batch) >= s.opts.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case <-ticker.C:
			flush()
		case ev := <-s.ch:
			batch = append(batch, ev)
			if len(batch) >= s.opts.BatchSize {
				flush()
			}
		}
	}
}

// Close flushes queued events and reports any that were lost.
func (s *shipper) Close() error {
	s.stop.Do(func() { close(s.done) })
	s.wg.Wait()
	dropped, failed := s.dropped.Load(), s.failed.Load()
	if dropped > 0 || failed > 0 {
		return fmt.Errorf("axiom: %d events dropped, %d failed to ingest", dropped, failed)
	}
	return nil
}
