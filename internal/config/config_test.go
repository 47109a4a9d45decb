package config_test

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"tubedl/internal/config"
)

//go:embed testdata/.env.custom.dir
var envCustomDir []byte

func parseEnv(r io.Reader) (map[string]string, error) {
	env := make(map[string]string)
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid line %d: %q", lineNo, line)
		}

		env[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan env: %w", err)
	}

	return env, nil
}

func applyEnv(t *testing.T, env map[string]string) {
	t.Helper()

	for key, value := range env {
		t.Setenv(key, value)
	}
}

func TestNew(t *testing.T) {
	pwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get current working directory: %v", err)
	}

	tests := []struct {
		name string
		env  map[string]string
		want func(t *testing.T, got *config.Config)
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: func(t *testing.T, got *config.Config) {
				if got.App.Provider != "youtube" || got.App.LogLevel != "info" {
					t.Errorf("App = %+v", got.App)
				}

				if got.HTTP.Port != ":8080" || got.HTTP.DownloadTimeout != 30*time.Minute {
					t.Errorf("HTTP = %+v", got.HTTP)
				}

				if got.Progress.PollInterval != 250*time.Millisecond || got.Progress.TTL != time.Hour {
					t.Errorf("Progress = %+v", got.Progress)
				}

				if got.Storage.TTL != 24*time.Hour {
					t.Errorf("Storage = %+v", got.Storage)
				}

				if got.Dir.CookieFile != "" {
					t.Errorf("CookieFile = %q, want empty", got.Dir.CookieFile)
				}

				if len(got.Proxy.Proxies) != 0 {
					t.Errorf("Proxies = %v, want none", got.Proxy.Proxies)
				}
			},
		},
		{
			name: "custom dir",
			env:  mustParse(t, envCustomDir),
			want: func(t *testing.T, got *config.Config) {
				if got.Dir.Downloads != filepath.Join(pwd, "data", "downloads") {
					t.Errorf("Downloads = %q", got.Dir.Downloads)
				}

				if got.Dir.Cache != filepath.Join(pwd, "data", "cache") {
					t.Errorf("Cache = %q", got.Dir.Cache)
				}

				if got.Dir.CookieFile != filepath.Join(pwd, "data", "cookies", "cookies.txt") {
					t.Errorf("CookieFile = %q", got.Dir.CookieFile)
				}

				if got.App.Provider != "mock" || got.Progress.PollInterval != 100*time.Millisecond {
					t.Errorf("App = %+v, Progress = %+v", got.App, got.Progress)
				}

				want := []string{"http://10.0.0.1:3128", "socks5://10.0.0.2:1080"}
				if !slices.Equal(got.Proxy.Proxies, want) {
					t.Errorf("Proxies = %v, want %v", got.Proxy.Proxies, want)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applyEnv(t, tt.env)

			got, err := config.New()
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}

			if !filepath.IsAbs(got.Dir.Downloads) || !filepath.IsAbs(got.Dir.Cache) {
				t.Errorf("expected absolute paths, got %q and %q", got.Dir.Downloads, got.Dir.Cache)
			}

			tt.want(t, got)
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero poll interval", map[string]string{"TUBEDL_PROGRESS_POLL_INTERVAL": "0s"}},
		{"malformed duration", map[string]string{"TUBEDL_STORAGE_TTL": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applyEnv(t, tt.env)

			if _, err := config.New(); err == nil {
				t.Error("New() succeeded unexpectedly")
			}
		})
	}
}

func mustParse(t *testing.T, data []byte) map[string]string {
	t.Helper()

	env, err := parseEnv(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parseEnv() failed: %v", err)
	}

	return env
}
