// Package httpclient provides the shared, process-wide HTTP client every
// executor uses, with a pluggable seam for TLS client-hello impersonation.
//
// No library in the retrieved corpus addresses JA3/client-hello
// impersonation (github.com/refraction-networking/utls and similar are not
// present anywhere in the example pack), so the default transport is built
// directly on crypto/tls and net/http. Client is an interface specifically
// so a fingerprinting transport can be substituted without touching any
// executor.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"
)

// Client is the contract executors depend on; *http.Client satisfies it
// directly.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures the shared client.
type Options struct {
	ProxyURL string
	// Impersonate names a TLS fingerprint profile. Only "" (default Go
	// fingerprint) is implemented; any other value is accepted but not yet
	// honored, since no corpus dependency implements fingerprint spoofing.
	Impersonate string

	ConnectTimeout time.Duration
}

const defaultConnectTimeout = 10 * time.Second

// New builds the shared *http.Client used for every upstream call.
func New(opts Options) (*http.Client, error) {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaultConnectTimeout
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}

	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   0, // per-call timeouts are applied via context, not a blanket client timeout
	}, nil
}
