package proxymgr

import (
	"fmt"
	"net/http"
	"net/url"
)

// Client returns an HTTP client whose requests go through a random
// available proxy. Without proxies it is a plain client.
func (m *Manager) Client() *http.Client {
	if !m.HasProxies() {
		return &http.Client{}
	}

	return &http.Client{Transport: &roundTripper{mgr: m}}
}

type roundTripper struct {
	mgr *Manager
}

// RoundTrip sends req through one proxy and feeds the outcome back into the
// proxy's failure tracking. With every proxy in backoff the request goes direct.
func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	proxyURL := rt.mgr.GetRandomProxy()
	if proxyURL == "" {
		rt.mgr.log.DebugContext(req.Context(), "no healthy proxy, going direct")

		return http.DefaultTransport.RoundTrip(req)
	}

	tr, err := rt.mgr.transport(proxyURL)
	if err != nil {
		return nil, err
	}

	rt.mgr.metrics.RecordProxyRequest(proxyURL)

	resp, err := tr.RoundTrip(req)
	if err != nil {
		// a canceled caller says nothing about the proxy
		if req.Context().Err() == nil {
			rt.mgr.MarkFailed(proxyURL)
		}

		return nil, err
	}

	if resp.StatusCode == http.StatusProxyAuthRequired || resp.StatusCode == http.StatusBadGateway {
		rt.mgr.MarkFailed(proxyURL)
	} else {
		rt.mgr.MarkSuccess(proxyURL)
	}

	return resp, nil
}

func (m *Manager) transport(proxyURL string) (*http.Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tr, ok := m.transports[proxyURL]; ok {
		return tr, nil
	}

	info, ok := m.proxies[proxyURL]
	if !ok {
		return nil, fmt.Errorf("unknown proxy %q", proxyURL)
	}

	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("default transport is %T", http.DefaultTransport)
	}

	tr := base.Clone()
	tr.Proxy = http.ProxyURL(&url.URL{Scheme: info.URL.Scheme, User: info.URL.User, Host: info.URL.Host})
	m.transports[proxyURL] = tr

	return tr, nil
}
