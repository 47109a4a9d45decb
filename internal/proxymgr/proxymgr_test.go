package proxymgr

import (
	"errors"
	"log/slog"
	"net"
	"testing"
	"testing/synctest"
	"time"

	"tubedl/internal/config"
	"tubedl/internal/errs"
	"tubedl/internal/observability"
)

const testProxyURL = "socks5h://localhost:1080"

func newManager(t *testing.T, proxy config.Proxy, metrics *observability.Metrics) *Manager {
	t.Helper()

	return New(slog.Default(), &config.Config{Proxy: proxy}, metrics)
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		proxies   []string
		wantCount int
	}{
		{name: "none", proxies: nil, wantCount: 0},
		{name: "one", proxies: []string{testProxyURL}, wantCount: 1},
		{name: "two", proxies: []string{"socks5h://proxy1:1080", "http://proxy2:3128"}, wantCount: 2},
		{name: "invalid and duplicates skipped", proxies: []string{"://bad", testProxyURL, testProxyURL, "no-host"}, wantCount: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mgr := newManager(t, config.Proxy{Proxies: tc.proxies}, nil)

			if got := mgr.ProxyCount(); got != tc.wantCount {
				t.Errorf("ProxyCount() = %d, want %d", got, tc.wantCount)
			}

			if got := mgr.HasProxies(); got != (tc.wantCount > 0) {
				t.Errorf("HasProxies() = %v", got)
			}

			got := mgr.GetRandomProxy()
			if (got == "") != (tc.wantCount == 0) {
				t.Errorf("GetRandomProxy() = %q", got)
			}

			if got != "" && !containsProxy(mgr.order, got) {
				t.Errorf("GetRandomProxy() = %q, not a configured proxy", got)
			}

			stats := mgr.GetStats()
			if len(stats) != tc.wantCount {
				t.Errorf("len(GetStats()) = %d, want %d", len(stats), tc.wantCount)
			}

			for proxy, stat := range stats {
				if stat.State != ProxyStateAvailable || stat.FailureCount != 0 {
					t.Errorf("%s: fresh proxy stats = %+v", proxy, stat)
				}
			}
		})
	}
}

func containsProxy(order []string, proxy string) bool {
	for _, p := range order {
		if p == proxy {
			return true
		}
	}

	return false
}

func TestFailureTracking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		failures      int
		recover       func(m *Manager)
		wantState     ProxyState
		wantFailures  int
		wantAvailable int
	}{
		{
			name:          "below limit stays available",
			failures:      2,
			wantState:     ProxyStateAvailable,
			wantFailures:  2,
			wantAvailable: 1,
		},
		{
			name:          "limit reached enters backoff",
			failures:      3,
			wantState:     ProxyStateFailed,
			wantFailures:  3,
			wantAvailable: 0,
		},
		{
			name:          "success resets",
			failures:      3,
			recover:       func(m *Manager) { m.MarkSuccess(testProxyURL) },
			wantState:     ProxyStateAvailable,
			wantFailures:  0,
			wantAvailable: 1,
		},
		{
			name:          "manual restore",
			failures:      5,
			recover:       func(m *Manager) { m.RestoreProxy(testProxyURL) },
			wantState:     ProxyStateAvailable,
			wantFailures:  0,
			wantAvailable: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mgr := newManager(t, config.Proxy{
				Proxies:        []string{testProxyURL},
				MaxFailures:    3,
				FailureBackoff: time.Minute,
			}, nil)

			for range tc.failures {
				mgr.MarkFailed(testProxyURL)
			}

			if tc.recover != nil {
				tc.recover(mgr)
			}

			stat := mgr.GetStats()[testProxyURL]
			if stat.State != tc.wantState {
				t.Errorf("State = %v, want %v", stat.State, tc.wantState)
			}

			if stat.FailureCount != tc.wantFailures {
				t.Errorf("FailureCount = %d, want %d", stat.FailureCount, tc.wantFailures)
			}

			if got := mgr.AvailableCount(); got != tc.wantAvailable {
				t.Errorf("AvailableCount() = %d, want %d", got, tc.wantAvailable)
			}
		})
	}
}

func TestMarkFailed_UnknownProxyIgnored(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, config.Proxy{Proxies: []string{testProxyURL}, MaxFailures: 1}, nil)
	mgr.MarkFailed("socks5h://nonexistent:1080")

	if got := mgr.AvailableCount(); got != 1 {
		t.Errorf("AvailableCount() = %d, want 1", got)
	}
}

func TestBackoffExpiry(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		mgr := newManager(t, config.Proxy{
			Proxies:        []string{testProxyURL},
			MaxFailures:    1,
			FailureBackoff: time.Minute,
		}, nil)

		mgr.MarkFailed(testProxyURL)

		if mgr.AvailableCount() != 0 {
			t.Errorf("AvailableCount() = %d, want 0", mgr.AvailableCount())
		}

		time.Sleep(time.Minute + time.Second)

		if mgr.AvailableCount() != 1 {
			t.Errorf("AvailableCount() after backoff = %d, want 1", mgr.AvailableCount())
		}

		// a second failure past the limit doubles the backoff
		mgr.MarkFailed(testProxyURL)

		time.Sleep(time.Minute + time.Second)

		if mgr.AvailableCount() != 0 {
			t.Errorf("AvailableCount() = %d, want 0 inside doubled backoff", mgr.AvailableCount())
		}
	})
}

func TestNilManager(t *testing.T) {
	t.Parallel()

	var mgr *Manager

	if mgr.HasProxies() || mgr.ProxyCount() != 0 || mgr.AvailableCount() != 0 {
		t.Errorf("nil manager reports proxies")
	}

	if got := mgr.GetRandomProxy(); got != "" {
		t.Errorf("GetRandomProxy() = %q, want empty", got)
	}

	mgr.MarkFailed(testProxyURL)
	mgr.MarkSuccess(testProxyURL)
	mgr.RestoreProxy(testProxyURL)

	if mgr.Client() == nil {
		t.Errorf("Client() = nil")
	}

	if err := mgr.Run(t.Context()); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

func TestRun_ReturnsImmediately(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		proxy config.Proxy
	}{
		{name: "no proxies", proxy: config.Proxy{HealthCheckInterval: time.Second}},
		{name: "zero interval", proxy: config.Proxy{Proxies: []string{testProxyURL}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if err := newManager(t, tc.proxy, nil).Run(t.Context()); err != nil {
				t.Errorf("Run() = %v, want nil", err)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	liveURL := "socks5h://" + ln.Addr().String()

	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	deadURL := "socks5h://" + dead.Addr().String()
	dead.Close()

	mgr := newManager(t, config.Proxy{
		Proxies:        []string{liveURL, deadURL},
		MaxFailures:    1,
		FailureBackoff: time.Minute,
	}, nil)

	mgr.MarkFailed(liveURL)

	if err := mgr.HealthCheck(t.Context(), liveURL); err != nil {
		t.Errorf("HealthCheck(live) = %v", err)
	}

	if stat := mgr.GetStats()[liveURL]; stat.State != ProxyStateAvailable || stat.LastHealthChk.IsZero() {
		t.Errorf("live proxy after check = %+v", stat)
	}

	if err := mgr.HealthCheck(t.Context(), deadURL); err == nil {
		t.Errorf("HealthCheck(dead) = nil")
	}

	if got := mgr.GetStats()[deadURL].State; got != ProxyStateFailed {
		t.Errorf("dead proxy State = %v, want ProxyStateFailed", got)
	}

	if err := mgr.HealthCheck(t.Context(), "socks5h://unknown:1"); !errors.Is(err, errs.ErrNoProxiesAvailable) {
		t.Errorf("HealthCheck(unknown) = %v, want ErrNoProxiesAvailable", err)
	}
}
