package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	got, err := Load(Source{Name: "api key", Value: "inline", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("expected from-file, got %q", got)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	_, err := Load(Source{Name: "api key", File: path})
	if err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}
}

func TestLoadFallsBackToEnv(t *testing.T) {
	t.Setenv("SCREENER_TEST_KEY", " env-secret ")

	got, err := Load(Source{Name: "api key", Env: "SCREENER_TEST_KEY"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "env-secret" {
		t.Fatalf("expected env-secret, got %q", got)
	}

	got, err = Load(Source{Name: "api key", Value: "inline", Env: "SCREENER_TEST_KEY"})
	if err != nil || got != "inline" {
		t.Fatalf("expected inline value to win, got %q, %v", got, err)
	}
}

func TestLoadNotConfigured(t *testing.T) {
	t.Setenv("SCREENER_TEST_KEY", "")

	_, err := Load(Source{Name: "api key", Env: "SCREENER_TEST_KEY"})
	if err == nil || !strings.Contains(err.Error(), "SCREENER_TEST_KEY") {
		t.Fatalf("expected error naming env var, got %v", err)
	}

	if _, err := Load(Source{}); err == nil {
		t.Fatal("expected error for empty source")
	}
}
