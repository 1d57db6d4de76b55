package httpx

import (
	"crypto/tls"
	"net/http"
	"sync"
	"time"
)

// UserAgent identifies this service to upstream hosts.
const UserAgent = "contentmill/1.0"

var (
	clientOnce sync.Once
	client     *http.Client
)

// SharedClient returns the process-wide HTTP client. The client enforces a
// request timeout, bounds its idle connection pool, and requires TLS 1.2 or
// newer. Every request sent through it carries the service User-Agent
// unless the caller set its own.
func SharedClient() *http.Client {
	clientOnce.Do(func() {
		client = newClient()
	})
	return client
}

// ResetClient discards the shared client so the next SharedClient call
// builds a fresh one. Intended for tests that swap transports; not safe
// while fetch loops are running.
func ResetClient() {
	clientOnce = sync.Once{}
	client = nil
}

// CloseClient releases the shared client's idle connections. Call it during
// shutdown after all fetch loops have stopped.
func CloseClient() {
	if client == nil {
		return
	}
	client.CloseIdleConnections()
	ResetClient()
}

func newClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: &userAgentTransport{base: transport},
	}
}

// userAgentTransport stamps the default User-Agent on requests that do not
// set their own.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}
	return t.base.RoundTrip(req)
}
