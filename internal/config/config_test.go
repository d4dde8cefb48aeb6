package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("WEBCHAT_TEST_KEY", "sk-secret")

	tests := []struct {
		in   string
		want string
	}{
		{"${WEBCHAT_TEST_KEY}", "sk-secret"},
		{"$WEBCHAT_TEST_KEY", "sk-secret"},
		{"sk-literal", "sk-literal"},
		{"${WEBCHAT_TEST_UNSET}", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := expandEnv(tc.in); got != tc.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := &Config{}
	if err := cfg.RequireAPIKey(); err == nil {
		t.Error("expected error with no api key configured")
	}

	cfg.OpenAI.APIKey = "   "
	if err := cfg.RequireAPIKey(); err == nil {
		t.Error("expected error with a blank api key")
	}

	cfg.OpenAI.APIKey = "sk-test"
	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("unexpected error with api key set: %v", err)
	}
}

func TestRequireAPIKeyErrorNamesEnvVar(t *testing.T) {
	cfg := &Config{}
	err := cfg.RequireAPIKey()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("error %q does not name the environment variable", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath: %v", err)
	}
	want := filepath.Join(dir, "webchat", "config.yaml")
	if path != want {
		t.Errorf("config path = %q, want %q", path, want)
	}
}

func TestGetDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := GetDataDir()
	if err != nil {
		t.Fatalf("GetDataDir: %v", err)
	}
	if got != filepath.Join(dir, "webchat") {
		t.Errorf("data dir = %q", got)
	}
}
