// Package proxymgr provides proxy management for outgoing provider requests.
// It handles proxy rotation, health checking, and failure tracking.
package proxymgr

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"tubedl/internal/config"
	"tubedl/internal/errs"
	"tubedl/internal/observability"
)

// ProxyState represents the current state of a proxy.
type ProxyState int

const (
	// ProxyStateAvailable indicates the proxy is available for use.
	ProxyStateAvailable ProxyState = iota
	// ProxyStateFailed indicates the proxy has failed and is in backoff.
	ProxyStateFailed
)

const (
	healthCheckTimeout = 10 * time.Second
	maxBackoff         = time.Hour
)

type proxyInfo struct {
	URL           *url.URL
	State         ProxyState
	FailureCount  int
	LastFailure   time.Time
	BackoffUntil  time.Time
	LastHealthChk time.Time
}

// Manager manages proxy rotation and health.
// A nil *Manager routes everything directly.
type Manager struct {
	log     *slog.Logger
	cfg     *config.Config
	metrics *observability.Metrics

	mu         sync.Mutex
	proxies    map[string]*proxyInfo
	order      []string                   // insertion order for consistent iteration
	transports map[string]*http.Transport // one pooled transport per proxy
}

// New creates a new proxy manager. Unparseable proxy URLs are skipped with a warning.
func New(log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) *Manager {
	mgr := &Manager{
		log:        log.With(slog.String("package", "proxymgr")),
		cfg:        cfg,
		metrics:    metrics,
		proxies:    make(map[string]*proxyInfo),
		order:      make([]string, 0, len(cfg.Proxy.Proxies)),
		transports: make(map[string]*http.Transport),
	}

	for _, raw := range cfg.Proxy.Proxies {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			mgr.log.Warn("skipping invalid proxy", slog.String("proxy", raw), slog.Any("error", err))

			continue
		}

		if _, dup := mgr.proxies[raw]; dup {
			continue
		}

		mgr.proxies[raw] = &proxyInfo{URL: u, State: ProxyStateAvailable}
		mgr.order = append(mgr.order, raw)
	}

	metrics.SetProxiesAvailable(len(mgr.order))

	return mgr
}

// GetRandomProxy returns a random available proxy URL.
// Returns empty string if no proxies are available.
func (m *Manager) GetRandomProxy() string {
	if m == nil {
		return ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	available := m.availableLocked(time.Now())
	if len(available) == 0 {
		return ""
	}

	return available[rand.IntN(len(available))]
}

// MarkFailed counts a failure and puts the proxy into exponential backoff
// once MaxFailures is reached.
func (m *Manager) MarkFailed(proxyURL string) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.proxies[proxyURL]
	if !exists {
		return
	}

	info.FailureCount++
	info.LastFailure = time.Now()

	m.metrics.RecordProxyFailure(proxyURL)

	limit := max(m.cfg.Proxy.MaxFailures, 1)
	if info.FailureCount < limit {
		return
	}

	info.State = ProxyStateFailed

	backoff := min(m.cfg.Proxy.FailureBackoff*time.Duration(1<<min(info.FailureCount-limit, 16)), maxBackoff)
	info.BackoffUntil = time.Now().Add(backoff)

	m.metrics.SetProxiesAvailable(len(m.availableLocked(time.Now())))

	m.log.Warn("proxy marked as failed",
		slog.String("proxy", proxyURL),
		slog.Int("failure_count", info.FailureCount),
		slog.Duration("backoff", backoff))
}

// MarkSuccess marks a proxy as successful and resets failure count.
func (m *Manager) MarkSuccess(proxyURL string) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetLocked(proxyURL)
}

// RestoreProxy manually restores a failed proxy.
func (m *Manager) RestoreProxy(proxyURL string) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resetLocked(proxyURL) {
		m.log.Info("proxy restored", slog.String("proxy", proxyURL))
	}
}

func (m *Manager) resetLocked(proxyURL string) bool {
	info, exists := m.proxies[proxyURL]
	if !exists {
		return false
	}

	info.State = ProxyStateAvailable
	info.FailureCount = 0
	info.BackoffUntil = time.Time{}

	m.metrics.SetProxiesAvailable(len(m.availableLocked(time.Now())))

	return true
}

// HealthCheck dials the proxy host. Reaching the port is all that is checked,
// which works for http, https and socks5 proxies alike.
func (m *Manager) HealthCheck(ctx context.Context, proxyURL string) error {
	m.mu.Lock()
	info, exists := m.proxies[proxyURL]
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("health check %s: %w", proxyURL, errs.ErrNoProxiesAvailable)
	}

	dialer := &net.Dialer{Timeout: healthCheckTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", info.URL.Host)
	if err != nil {
		m.MarkFailed(proxyURL)

		return fmt.Errorf("dial proxy: %w", err)
	}
	defer conn.Close()

	m.mu.Lock()
	info.LastHealthChk = time.Now()
	m.resetLocked(proxyURL)
	m.mu.Unlock()

	return nil
}

// Run checks every proxy each HealthCheckInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if m == nil || m.cfg.Proxy.HealthCheckInterval <= 0 || len(m.order) == 0 {
		return nil
	}

	m.log.Info("proxy health checker started",
		slog.Duration("interval", m.cfg.Proxy.HealthCheckInterval),
		slog.Int("proxy_count", len(m.order)))

	ticker := time.NewTicker(m.cfg.Proxy.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// ProxyStats represents statistics for a proxy.
type ProxyStats struct {
	State         ProxyState
	FailureCount  int
	LastFailure   time.Time
	BackoffUntil  time.Time
	LastHealthChk time.Time
}

// GetStats returns current proxy statistics.
func (m *Manager) GetStats() map[string]ProxyStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]ProxyStats, len(m.proxies))
	for proxyURL, info := range m.proxies {
		stats[proxyURL] = ProxyStats{
			State:         info.State,
			FailureCount:  info.FailureCount,
			LastFailure:   info.LastFailure,
			BackoffUntil:  info.BackoffUntil,
			LastHealthChk: info.LastHealthChk,
		}
	}

	return stats
}

// HasProxies returns true if any proxies are configured.
func (m *Manager) HasProxies() bool {
	return m != nil && len(m.order) > 0
}

// ProxyCount returns the total number of configured proxies.
func (m *Manager) ProxyCount() int {
	if m == nil {
		return 0
	}

	return len(m.order)
}

// AvailableCount returns the number of currently available proxies.
func (m *Manager) AvailableCount() int {
	if m == nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.availableLocked(time.Now()))
}

// availableLocked lists proxies not in backoff. A failed proxy whose backoff
// expired counts as available again.
func (m *Manager) availableLocked(now time.Time) []string {
	available := make([]string, 0, len(m.order))

	for _, proxyURL := range m.order {
		info := m.proxies[proxyURL]
		if info.State == ProxyStateAvailable || now.After(info.BackoffUntil) {
			available = append(available, proxyURL)
		}
	}

	return available
}

func (m *Manager) checkAll(ctx context.Context) {
	m.mu.Lock()
	proxies := make([]string, len(m.order))
	copy(proxies, m.order)
	m.mu.Unlock()

	for _, proxy := range proxies {
		if ctx.Err() != nil {
			return
		}

		if err := m.HealthCheck(ctx, proxy); err != nil {
			m.log.Debug("proxy health check failed",
				slog.String("proxy", proxy),
				slog.Any("error", err))
		}
	}
}
