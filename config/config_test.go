package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SHORTS_SITE_DATA_DIR", "/srv/shorts")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.ConfigDir != filepath.Join("/srv/shorts", "config") {
		t.Fatalf("unexpected config dir %q", cfg.ConfigDir)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("unexpected poll interval %s", cfg.PollInterval)
	}
	if cfg.Quality != "medium" || cfg.SceneThreshold != 0.3 {
		t.Fatalf("unexpected render defaults: %q %v", cfg.Quality, cfg.SceneThreshold)
	}
	if cfg.Publish.Enabled() {
		t.Fatalf("publishing should be disabled without client credentials")
	}
	if cfg.Publish.RedirectURL != "http://localhost:8080/api/publish/callback" {
		t.Fatalf("unexpected redirect url %q", cfg.Publish.RedirectURL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"quality", "SHORTS_SITE_QUALITY", "ultra"},
		{"storage", "SHORTS_SITE_STORAGE", "ftp"},
		{"s3 without endpoint", "SHORTS_SITE_STORAGE", "s3"},
		{"poll interval", "SHORTS_SITE_POLL_INTERVAL", "soon"},
		{"threshold", "SHORTS_SITE_SCENE_THRESHOLD", "high"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestPublishRequiresSecrets(t *testing.T) {
	t.Setenv("SHORTS_SITE_PUBLISH_CLIENT_ID", "id")
	t.Setenv("SHORTS_SITE_PUBLISH_CLIENT_SECRET", "secret")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when session key is missing")
	}

	t.Setenv("SHORTS_SITE_SESSION_AUTH_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("SHORTS_SITE_TOKEN_SECRET", "s3cret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Publish.Enabled() {
		t.Fatalf("expected publishing enabled")
	}
}

func TestGetSecure(t *testing.T) {
	for _, v := range []string{"on", "1", "TRUE", "yes"} {
		t.Setenv("SHORTS_SITE_SECURE", v)
		if !GetSecure() {
			t.Fatalf("expected %q to be secure", v)
		}
	}
	t.Setenv("SHORTS_SITE_SECURE", "off")
	if GetSecure() {
		t.Fatalf("expected off to be insecure")
	}
}
