package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DELIVERY_KIND", "MAX_UPLOAD_MB", "ARTIFACT_TTL", "AXIOM_DATASET", "LOG_FILE", "IMPORT_ROOT"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Server.Port != "8080" || cfg.Delivery.Kind != "local" {
		t.Fatalf("server = %+v, delivery = %+v", cfg.Server, cfg.Delivery)
	}
	if cfg.Server.MaxUploadBytes() != 100<<20 {
		t.Fatalf("max upload = %d", cfg.Server.MaxUploadBytes())
	}
	if cfg.Delivery.ArtifactTTL != time.Hour || cfg.Axiom.Dataset != "dev_pdfeditor" {
		t.Fatalf("ttl = %v, dataset = %q", cfg.Delivery.ArtifactTTL, cfg.Axiom.Dataset)
	}
	if cfg.Logging.File != "logs/pdfeditor.log" {
		t.Fatalf("log file = %q", cfg.Logging.File)
	}
	if cfg.Source.ImportRoot != "" {
		t.Fatalf("import root = %q, local imports should be off", cfg.Source.ImportRoot)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DELIVERY_KIND", "Redis")
	t.Setenv("MAX_UPLOAD_MB", "bogus")
	t.Setenv("ARTIFACT_TTL", "15m")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("IMPORT_ROOT", "/srv/imports")
	cfg := FromEnv()
	if cfg.Server.Port != "9090" || cfg.Delivery.Kind != "redis" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Server.MaxUploadMB != 100 {
		t.Fatalf("invalid int should fall back, got %d", cfg.Server.MaxUploadMB)
	}
	if cfg.Delivery.ArtifactTTL != 15*time.Minute || !cfg.Logging.Pretty {
		t.Fatalf("ttl = %v, pretty = %v", cfg.Delivery.ArtifactTTL, cfg.Logging.Pretty)
	}
	if cfg.Source.ImportRoot != "/srv/imports" {
		t.Fatalf("import root = %q", cfg.Source.ImportRoot)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(p, []byte("S3_RESULT_PREFIX=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", p)
	t.Setenv("S3_RESULT_PREFIX", "")
	os.Unsetenv("S3_RESULT_PREFIX")
	t.Cleanup(func() { os.Unsetenv("S3_RESULT_PREFIX") })

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Delivery.S3Prefix != "from-file" {
		t.Fatalf("prefix = %q", cfg.Delivery.S3Prefix)
	}
}

func TestLoadWithoutEnvFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	if _, err := Load(); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}
