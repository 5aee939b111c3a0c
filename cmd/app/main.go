package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/pdfeditor/internal/config"
	"github.com/local/pdfeditor/internal/delivery"
	"github.com/local/pdfeditor/internal/editor"
	logpkg "github.com/local/pdfeditor/internal/logger"
	"github.com/local/pdfeditor/internal/metrics"
	"github.com/local/pdfeditor/internal/pdfdoc"
	"github.com/local/pdfeditor/internal/server"
	"github.com/local/pdfeditor/internal/source"
	"github.com/local/pdfeditor/internal/storage"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load env: %v\n", err)
		cfg = cfgpkg.FromEnv()
	}

	if err := logpkg.Init(logpkg.OptionsFrom(cfg)); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
	}
	defer logpkg.Close()

	metrics.Init()

	ctx := context.Background()

	// Object storage is optional; it backs s3:// imports and the s3 sink.
	var s3c *storage.S3Client
	if cfg.S3.Bucket != "" {
		s3c, err = storage.NewS3Client(ctx, storage.Options{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 client")
		}
	}

	var (
		out       delivery.Deliverer
		artifacts server.ArtifactStore
	)
	switch cfg.Delivery.Kind {
	case "s3":
		if s3c == nil {
			log.Fatal().Msg("DELIVERY_KIND=s3 requires AWS_S3_BUCKET")
		}
		out = &delivery.S3{Client: s3c, Prefix: cfg.Delivery.S3Prefix, Password: cfg.S3.Password}
	case "redis":
		rd, err := delivery.NewRedis(cfg.Delivery.RedisURL, cfg.Delivery.ArtifactTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rd.Close()
		out, artifacts = rd, rd
	case "none":
		out = delivery.Discard
	default:
		out = delivery.NewLocal(cfg.Delivery.ResultDir)
	}

	var store source.ObjectStore
	if s3c != nil {
		store = s3c
	}
	fetcher := source.NewFetcher(store, cfg.S3.Password, cfg.Source.FetchTimeout, cfg.Server.MaxUploadBytes())
	fetcher.Root = cfg.Source.ImportRoot

	session := editor.NewSession(pdfdoc.NewFitzReader(), pdfdoc.NewPdfcpuWriter(), out)
	session.Subscribe(func(ev editor.Event) {
		metrics.SetPages(len(ev.Snapshot.Pages))
		metrics.SetSelected(ev.Snapshot.SelectedCount)
		log.Debug().Str("event", string(ev.Kind)).Str("mode", ev.Snapshot.Mode.String()).Int("pages", len(ev.Snapshot.Pages)).Msg("session changed")
	})

	srv := server.New(server.Dependencies{
		Session:   session,
		Importer:  fetcher,
		Artifacts: artifacts,
		MaxUpload: cfg.Server.MaxUploadBytes(),
	})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	httpSrv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}

	go func() {
		log.Info().Str("delivery", cfg.Delivery.Kind).Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	fmt.Println("shutdown complete")
}
