package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
mysql:
  host: db.internal
  database: anggaran_test
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
auth:
  jwt_secret: from-file
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.MySQL.Host != "db.internal" || cfg.MySQL.Database != "anggaran_test" {
		t.Errorf("unexpected mysql config: %+v", cfg.MySQL)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("unexpected kafka config: %+v", cfg.Kafka)
	}
	// values missing from the file fall back to defaults
	if cfg.Auth.SessionHours != 8 {
		t.Errorf("Auth.SessionHours = %d, want default 8", cfg.Auth.SessionHours)
	}
	if cfg.Business.DBRetryAttempts != 3 {
		t.Errorf("Business.DBRetryAttempts = %d, want default 3", cfg.Business.DBRetryAttempts)
	}
	if cfg.Kafka.Topic.BudgetEvents != "anggaran.budget-events" {
		t.Errorf("Kafka.Topic.BudgetEvents = %q", cfg.Kafka.Topic.BudgetEvents)
	}
	if GlobalConfig != cfg {
		t.Error("GlobalConfig not set")
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  jwt_secret: from-file\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ANGGARAN_AUTH_JWT_SECRET", "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("Auth.JWTSecret = %q, want from-env", cfg.Auth.JWTSecret)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Storage.StagingRetentionHours != 24 {
		t.Errorf("StagingRetentionHours = %d, want 24", cfg.Storage.StagingRetentionHours)
	}
	if cfg.Auth.CookieName != "anggaran_session" {
		t.Errorf("CookieName = %q", cfg.Auth.CookieName)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"empty", "", true},
		{"short", "change-me", true},
		{"long enough", strings.Repeat("k", MinJWTSecretLength), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.JWTSecret = tt.secret
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
