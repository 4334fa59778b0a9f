package core

import (
	"net"
	"net/http"
	"time"
)

// GetHTTPClient returns an HTTP client for outbound calls to model providers
// and source image hosts. A zero timeout means no overall deadline.
func GetHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// GetAIClient returns the HTTP client used for generation calls, bounded by AITimeout.
func GetAIClient(cfg *Config) *http.Client {
	return GetHTTPClient(cfg.AITimeout)
}
