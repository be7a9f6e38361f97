package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	t.Setenv("JOBPRE_TEST_KEY", "from-env")

	got, err := Load(Source{Name: "api key", File: path, Value: "inline", Env: []string{"JOBPRE_TEST_KEY"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "from-file" {
		t.Fatalf("expected file secret, got %q", got)
	}
}

func TestLoadFallsBackToValueThenEnv(t *testing.T) {
	t.Setenv("JOBPRE_TEST_KEY_A", "")
	t.Setenv("JOBPRE_TEST_KEY_B", " from-env ")

	got, err := Load(Source{Value: " inline ", Env: []string{"JOBPRE_TEST_KEY_B"}})
	if err != nil || got != "inline" {
		t.Fatalf("expected inline secret, got %q, %v", got, err)
	}

	got, err = Load(Source{Env: []string{"JOBPRE_TEST_KEY_A", "JOBPRE_TEST_KEY_B"}})
	if err != nil || got != "from-env" {
		t.Fatalf("expected env secret, got %q, %v", got, err)
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(Source{Name: "api key"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if _, err := Load(Source{File: empty, Value: "inline"}); err == nil || errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected hard error for empty file, got %v", err)
	}

	if _, err := Load(Source{File: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
