package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ClaimTimeout != 120*time.Second {
		t.Errorf("ClaimTimeout = %s, want 120s", cfg.ClaimTimeout)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EventQueueSize != 256 {
		t.Errorf("EventQueueSize = %d, want 256", cfg.EventQueueSize)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paychan.yaml")
	data := `
database_url: postgres://localhost/paychan
claim_timeout: 30s
networks:
  mainnet:
    endpoint: wss://xrplcluster.com
    asset: xrp
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/paychan" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.ClaimTimeout != 30*time.Second {
		t.Errorf("ClaimTimeout = %s, want 30s", cfg.ClaimTimeout)
	}
	if _, ok := cfg.Networks["mainnet"]; !ok {
		t.Error("mainnet network missing")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PAYCHAN_CLAIM_TIMEOUT", "45s")
	t.Setenv("PAYCHAN_DATABASE_URL", "postgres://env/paychan")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClaimTimeout != 45*time.Second {
		t.Errorf("ClaimTimeout = %s, want 45s", cfg.ClaimTimeout)
	}
	if cfg.DatabaseURL != "postgres://env/paychan" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestValidateRejectsBadNetwork(t *testing.T) {
	cfg := Default()
	cfg.Networks["broken"] = NetworkConfig{Endpoint: ""}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for network without endpoint")
	}
}
