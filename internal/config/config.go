// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	HTTP     HTTP
	App      App
	Dir      Dir
	Storage  Storage
	Progress Progress
	Proxy    Proxy
}

// App holds application-wide configuration.
type App struct {
	LogLevel string `env:"TUBEDL_APP_LOG_LEVEL" envDefault:"info"`
	// Provider selects the metadata/stream backend: youtube, ytdlp or mock.
	Provider string `env:"TUBEDL_APP_PROVIDER" envDefault:"youtube"`
	// LookupTimeout bounds a single metadata lookup.
	LookupTimeout time.Duration `env:"TUBEDL_APP_LOOKUP_TIMEOUT" envDefault:"60s"`
}

// Storage holds file store configuration.
type Storage struct {
	TTL             time.Duration `env:"TUBEDL_STORAGE_TTL"              envDefault:"24h"`
	CleanupInterval time.Duration `env:"TUBEDL_STORAGE_CLEANUP_INTERVAL" envDefault:"1h"`
}

// Progress holds progress registry and publisher configuration.
type Progress struct {
	// PollInterval is how often a publisher re-reads the registry.
	PollInterval time.Duration `env:"TUBEDL_PROGRESS_POLL_INTERVAL" envDefault:"250ms"`
	// TTL is how long a terminal record is kept after its last update.
	TTL time.Duration `env:"TUBEDL_PROGRESS_TTL" envDefault:"1h"`
	// StaleAfter evicts non-terminal records nobody updated for this long.
	StaleAfter    time.Duration `env:"TUBEDL_PROGRESS_STALE_AFTER"    envDefault:"6h"`
	SweepInterval time.Duration `env:"TUBEDL_PROGRESS_SWEEP_INTERVAL" envDefault:"5m"`
}

// HTTP holds HTTP server configuration.
type HTTP struct {
	Port            string        `env:"TUBEDL_HTTP_PORT"             envDefault:":8080"`
	HandlerTimeout  time.Duration `env:"TUBEDL_HTTP_HANDLER_TIMEOUT"  envDefault:"20s"`
	DownloadTimeout time.Duration `env:"TUBEDL_HTTP_DOWNLOAD_TIMEOUT" envDefault:"30m"`
	ShutdownTimeout time.Duration `env:"TUBEDL_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Dir holds directory paths for downloads, cache, and cookie file.
type Dir struct {
	Downloads string `env:"TUBEDL_DIR_DOWNLOAD" envDefault:"./data/downloads"` // completed files stored here
	Cache     string `env:"TUBEDL_DIR_CACHE"    envDefault:"./data/cache"`     // yt-dlp cache (meta, sigs)

	// must contain cookies.txt file, used by the ytdlp provider only
	// see: https://github.com/yt-dlp/yt-dlp/wiki/FAQ#how-do-i-pass-cookies-to-yt-dlp
	CookieFile string `env:"TUBEDL_DIR_COOKIE_FILE" envDefault:""`
}

// SetAbsPaths converts all directory paths to absolute paths.
func (c *Dir) SetAbsPaths() error {
	var err error
	if c.Downloads, err = filepath.Abs(c.Downloads); err != nil {
		return fmt.Errorf("downloads: %w", err)
	}

	if c.Cache, err = filepath.Abs(c.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if c.CookieFile != "" {
		if c.CookieFile, err = filepath.Abs(c.CookieFile); err != nil {
			return fmt.Errorf("cookie file: %w", err)
		}
	}

	return nil
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	cfg := &Config{}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	err = cfg.Dir.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set absolute paths: %w", err)
	}

	if cfg.Progress.PollInterval <= 0 {
		return nil, fmt.Errorf("progress poll interval must be positive, got %s", cfg.Progress.PollInterval)
	}

	cfg.Proxy.parseList()

	return cfg, nil
}

// Proxy holds proxy configuration for outgoing provider requests.
type Proxy struct {
	// List is a comma-separated list of proxy URLs (http, https, socks5)
	List string `env:"TUBEDL_PROXY_LIST" envDefault:""`
	// HealthCheckInterval is how often to check proxy health
	HealthCheckInterval time.Duration `env:"TUBEDL_PROXY_HEALTH_CHECK_INTERVAL" envDefault:"5m"`
	// FailureBackoff is the initial backoff duration for failed proxies
	FailureBackoff time.Duration `env:"TUBEDL_PROXY_FAILURE_BACKOFF" envDefault:"1m"`
	// MaxFailures is the maximum number of failures before a proxy is temporarily removed
	MaxFailures int `env:"TUBEDL_PROXY_MAX_FAILURES" envDefault:"3"`

	// Proxies is the parsed list of proxy URLs
	Proxies []string `env:"-"`
}

// parseList parses the comma-separated proxy list.
func (p *Proxy) parseList() {
	if p.List == "" {
		return
	}

	for proxy := range strings.SplitSeq(p.List, ",") {
		proxy = strings.TrimSpace(proxy)
		if proxy != "" {
			p.Proxies = append(p.Proxies, proxy)
		}
	}
}
