package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DefaultTopK != 10 {
		t.Errorf("expected default top_k 10, got %d", cfg.DefaultTopK)
	}
	if cfg.EmbeddingDimensions != 384 {
		t.Errorf("expected default dimensions 384, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.BackendTimeout != 10*time.Second {
		t.Errorf("expected default backend timeout 10s, got %s", cfg.BackendTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VERIDOCS_PORT", "9000")
	t.Setenv("VERIDOCS_DEFAULT_TOP_K", "25")
	t.Setenv("VERIDOCS_DEFAULT_ROLES", "viewer, engineer")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.DefaultTopK != 25 {
		t.Errorf("expected top_k 25, got %d", cfg.DefaultTopK)
	}
	if len(cfg.DefaultRoles) != 2 || cfg.DefaultRoles[0] != "viewer" || cfg.DefaultRoles[1] != "engineer" {
		t.Errorf("expected [viewer engineer], got %v", cfg.DefaultRoles)
	}
}

func TestValidateRejectsBadProvider(t *testing.T) {
	t.Setenv("VERIDOCS_EMBEDDING_PROVIDER", "quantum")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown embedding provider, got nil")
	}
}

func TestValidateRejectsNonPositiveTopK(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.DefaultTopK = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for top_k 0, got nil")
	}
}

func TestEnvIntFallbackOnGarbage(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	if v := envInt("TEST_INT_BAD", 7); v != 7 {
		t.Fatalf("expected fallback 7, got %d", v)
	}
}

func TestEnvListEmpty(t *testing.T) {
	t.Setenv("TEST_LIST", " , ,")
	if v := envList("TEST_LIST", nil); v != nil {
		t.Fatalf("expected nil, got %v", v)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "90s")
	if v := envDuration("TEST_DUR", time.Second); v != 90*time.Second {
		t.Fatalf("expected 90s, got %s", v)
	}
}
