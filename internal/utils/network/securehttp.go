package network

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/open-edge-platform/trunk-libdeps/internal/config/version"
)

// NewSecureHTTPClient returns an http.Client restricted to TLS 1.2+ with the
// given overall request timeout. A zero timeout leaves requests unbounded.
func NewSecureHTTPClient(timeout time.Duration) *http.Client {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		},
	}

	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		TLSClientConfig:   tlsConfig,
		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: &userAgentTransport{next: transport},
		Timeout:   timeout,
	}
}

// UserAgent is sent on every request made through NewSecureHTTPClient.
func UserAgent() string {
	return version.Toolname + "/" + version.Version
}

type userAgentTransport struct {
	next http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent())
	}
	return t.next.RoundTrip(req)
}
