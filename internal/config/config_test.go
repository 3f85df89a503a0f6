//nolint:revive // Test file - relaxed linting
package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/conneroisu/foundry/internal/config"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "foundry.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

// TestLoadLayering tests that env overrides the file and flags override env.
func TestLoadLayering(t *testing.T) {
	path := writeFile(t, `
url = "http://file:30000"
user_id = "file-user"
password = "file-pass"
rpc_timeout = "20s"
tool_rps = 2.5
tool_burst = 4
`)

	cfg, err := config.Load(
		[]string{"--config", path, "--user-id", "flag-user", "--transport", "sse"},
		env(map[string]string{
			"FOUNDRY_USER_ID":   "env-user",
			"FOUNDRY_PASSWORD":  "env-pass",
			"FOUNDRY_LOG_LEVEL": "debug",
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	want := config.Default()
	want.URL = "http://file:30000"
	want.UserID = "flag-user"
	want.Password = "env-pass"
	want.RPCTimeout = 20 * time.Second
	want.ToolRPS = 2.5
	want.ToolBurst = 4
	want.Transport = "sse"
	want.LogLevel = "debug"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.Level() != zerolog.DebugLevel {
		t.Errorf("level = %s", cfg.Level())
	}
}

// TestLoadConfigFromEnv tests FOUNDRY_CONFIG.
func TestLoadConfigFromEnv(t *testing.T) {
	path := writeFile(t, "url = \"http://vtt\"\nuser_id = \"gm\"\n")

	cfg, err := config.Load(nil, env(map[string]string{"FOUNDRY_CONFIG": path}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.URL != "http://vtt" || cfg.UserID != "gm" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

// TestLoadErrors tests rejected inputs.
func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		file    string
		wantErr string
	}{
		{
			name:    "missing url",
			args:    []string{"--user-id", "gm"},
			wantErr: "url is required",
		},
		{
			name:    "bad transport",
			args:    []string{"--url", "http://vtt", "--user-id", "gm", "--transport", "grpc"},
			wantErr: "transport",
		},
		{
			name:    "bad duration in env",
			args:    []string{"--url", "http://vtt", "--user-id", "gm"},
			env:     map[string]string{"FOUNDRY_RPC_TIMEOUT": "soon"},
			wantErr: "FOUNDRY_RPC_TIMEOUT",
		},
		{
			name:    "unknown file key",
			file:    "url = \"http://vtt\"\nuser = \"gm\"\n",
			wantErr: "unknown key",
		},
		{
			name:    "bad log level",
			args:    []string{"--url", "http://vtt", "--user-id", "gm", "--log-level", "loud"},
			wantErr: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			if tt.file != "" {
				args = append(args, "--config", writeFile(t, tt.file))
			}

			_, err := config.Load(args, env(tt.env))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestLoadHelp tests that --help surfaces pflag.ErrHelp.
func TestLoadHelp(t *testing.T) {
	_, err := config.Load([]string{"--help"}, env(nil))
	if !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
}
