package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("SESSION_BACKEND", "")
	t.Setenv("HTTP_ADDR", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DBDsn == "" {
		t.Errorf("expected default DSN, got empty")
	}
	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q, want data", cfg.DataDir)
	}
	if cfg.SessionBackend != "local" {
		t.Errorf("SessionBackend = %q, want local", cfg.SessionBackend)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
}

func TestLoadInvalidSessionBackend(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "ftp")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for unknown session backend")
	}
}

func TestLoadDriveBackendRequiresCredentials(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "drive")
	t.Setenv("DRIVE_CREDENTIALS_FILE", "")
	if _, err := Load(); err == nil {
		t.Errorf("expected error when drive backend has no credentials file")
	}
	t.Setenv("DRIVE_CREDENTIALS_FILE", "creds.json")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DriveFolderName != "Instagram_Bot_Data" {
		t.Errorf("DriveFolderName = %q, want default", cfg.DriveFolderName)
	}
}

func TestLoadS3BackendRequiresBucket(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "")
	if _, err := Load(); err == nil {
		t.Errorf("expected error when s3 backend has no bucket")
	}
}

func TestValidateChatReady(t *testing.T) {
	t.Setenv("TWITCH_CHANNEL", "chan")
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	cfg, _ := Load()
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("expected valid chat config, got %v", err)
	}
	if err := os.Unsetenv("TWITCH_CHANNEL"); err != nil {
		t.Fatalf("failed to unset TWITCH_CHANNEL: %v", err)
	}
	cfg, _ = Load()
	if err := cfg.ValidateChatReady(); err == nil {
		t.Errorf("expected error when missing twitch envs")
	}
}
