package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetEnv_fallback(t *testing.T) {
	t.Setenv("STREAMER_TEST_KEY", "")
	if got := GetEnv("STREAMER_TEST_KEY", "def"); got != "def" {
		t.Errorf("GetEnv: got %q want %q", got, "def")
	}
	t.Setenv("STREAMER_TEST_KEY", "value")
	if got := GetEnv("STREAMER_TEST_KEY", "def"); got != "value" {
		t.Errorf("GetEnv: got %q want %q", got, "value")
	}
}

func TestGetEnvInt_invalid_uses_fallback(t *testing.T) {
	t.Setenv("STREAMER_TEST_INT", "abc")
	if got := GetEnvInt("STREAMER_TEST_INT", 7); got != 7 {
		t.Errorf("GetEnvInt: got %d want 7", got)
	}
	t.Setenv("STREAMER_TEST_INT", "12")
	if got := GetEnvInt("STREAMER_TEST_INT", 7); got != 12 {
		t.Errorf("GetEnvInt: got %d want 12", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("STREAMER_TEST_DUR", "250ms")
	if got := GetEnvDuration("STREAMER_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("GetEnvDuration: got %v", got)
	}
	t.Setenv("STREAMER_TEST_DUR", "-1s")
	if got := GetEnvDuration("STREAMER_TEST_DUR", time.Second); got != time.Second {
		t.Errorf("negative duration should fall back, got %v", got)
	}
}

func TestRequire_reports_all_missing(t *testing.T) {
	t.Setenv("STREAMER_TEST_A", "a")
	t.Setenv("STREAMER_TEST_B", "  ")
	t.Setenv("STREAMER_TEST_C", "")

	_, err := Require("STREAMER_TEST_A", "STREAMER_TEST_B", "STREAMER_TEST_C")
	if err == nil {
		t.Fatal("expected error for missing keys")
	}
	if !strings.Contains(err.Error(), "STREAMER_TEST_B") || !strings.Contains(err.Error(), "STREAMER_TEST_C") {
		t.Errorf("error should name both missing keys: %v", err)
	}

	t.Setenv("STREAMER_TEST_B", "b")
	t.Setenv("STREAMER_TEST_C", "c")
	values, err := Require("STREAMER_TEST_A", "STREAMER_TEST_B", "STREAMER_TEST_C")
	if err != nil {
		t.Fatalf("Require: %v", err)
	}
	if strings.Join(values, ",") != "a,b,c" {
		t.Errorf("Require values: %v", values)
	}
}

func TestLoad_reads_env_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("STREAMER_TEST_FROM_FILE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STREAMER_TEST_FROM_FILE", "")
	os.Unsetenv("STREAMER_TEST_FROM_FILE")

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := os.Getenv("STREAMER_TEST_FROM_FILE"); got != "loaded" {
		t.Errorf("expected value from env file, got %q", got)
	}
}
