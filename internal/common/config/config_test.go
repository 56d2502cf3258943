package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_RequiresUpstreamBaseURL(t *testing.T) {
	t.Setenv("FREIGHTDOCS_UPSTREAM_BASE_URL", "")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error when upstream.base_url is missing")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("FREIGHTDOCS_UPSTREAM_BASE_URL", "https://erp.example.test/api")
	t.Setenv("FREIGHTDOCS_SERVER_PORT", "9100")
	t.Setenv("FREIGHTDOCS_UPSTREAM_TIMEOUT", "5s")
	t.Setenv("FREIGHTDOCS_DOCUMENTS_DEFAULT_COMPANY_ID", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Upstream.BaseURL != "https://erp.example.test/api" {
		t.Errorf("base url = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Upstream.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.Upstream.Timeout)
	}
	if cfg.Documents.DefaultCompanyID != 3 {
		t.Errorf("default company = %d, want 3", cfg.Documents.DefaultCompanyID)
	}
	if cfg.Upstream.MaxConcurrency != 4 {
		t.Errorf("max concurrency default = %d, want 4", cfg.Upstream.MaxConcurrency)
	}
	if cfg.Auth.PersonClaim != "personId" {
		t.Errorf("person claim default = %q", cfg.Auth.PersonClaim)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("FREIGHTDOCS_UPSTREAM_BASE_URL", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
service:
  name: freight-docs-test
upstream:
  base_url: http://localhost:5000/api
  max_concurrency: 2
nats:
  url: nats://localhost:4222
documents:
  default_company_id: 1
  confirm_ttl: 30s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Name != "freight-docs-test" {
		t.Errorf("service name = %q", cfg.Service.Name)
	}
	if cfg.Upstream.MaxConcurrency != 2 {
		t.Errorf("max concurrency = %d, want 2", cfg.Upstream.MaxConcurrency)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
	if cfg.Documents.ConfirmTTL != 30*time.Second {
		t.Errorf("confirm ttl = %v", cfg.Documents.ConfirmTTL)
	}
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 0, GRPCPort: 9086},
		Upstream: UpstreamConfig{BaseURL: "http://x"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected port validation error")
	}
}
