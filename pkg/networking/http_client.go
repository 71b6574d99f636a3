// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package networking builds the outbound HTTP clients used to reach
// Atlassian services and fetches JSON from them.
package networking

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"
)

// HttpTimeout is the timeout for outgoing HTTP requests
const HttpTimeout = 30 * time.Second

// headerTransport adds fixed headers to every request that does not
// already carry them.
type headerTransport struct {
	transport http.RoundTripper
	headers   map[string]string
}

// RoundTrip adds the configured headers and forwards the request
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	newReq := req.Clone(req.Context())
	for k, v := range t.headers {
		if newReq.Header.Get(k) == "" {
			newReq.Header.Set(k, v)
		}
	}
	return t.transport.RoundTrip(newReq)
}

// HttpClientBuilder provides a fluent interface for building HTTP clients
type HttpClientBuilder struct {
	clientTimeout         time.Duration
	tlsHandshakeTimeout   time.Duration
	responseHeaderTimeout time.Duration
	skipTLSVerify         bool
	proxy                 *httpproxy.Config
	headers               map[string]string
}

// NewHttpClientBuilder returns a new HttpClientBuilder
func NewHttpClientBuilder() *HttpClientBuilder {
	return &HttpClientBuilder{
		clientTimeout:         HttpTimeout,
		tlsHandshakeTimeout:   10 * time.Second,
		responseHeaderTimeout: 10 * time.Second,
	}
}

// WithTLSVerify turns server certificate verification on or off.
func (b *HttpClientBuilder) WithTLSVerify(verify bool) *HttpClientBuilder {
	b.skipTLSVerify = !verify
	return b
}

// WithTimeout overrides HttpTimeout for the whole request.
func (b *HttpClientBuilder) WithTimeout(d time.Duration) *HttpClientBuilder {
	b.clientTimeout = d
	return b
}

// WithProxy routes requests through explicit proxies. A SOCKS proxy is used
// for any scheme that has no dedicated proxy. When no proxy is set the
// process environment decides.
func (b *HttpClientBuilder) WithProxy(httpProxy, httpsProxy, socksProxy, noProxy string) *HttpClientBuilder {
	if httpProxy == "" && httpsProxy == "" && socksProxy == "" {
		b.proxy = nil
		return b
	}
	if httpProxy == "" {
		httpProxy = socksProxy
	}
	if httpsProxy == "" {
		httpsProxy = socksProxy
	}
	b.proxy = &httpproxy.Config{
		HTTPProxy:  httpProxy,
		HTTPSProxy: httpsProxy,
		NoProxy:    noProxy,
	}
	return b
}

// WithHeaders adds headers sent with every request.
func (b *HttpClientBuilder) WithHeaders(headers map[string]string) *HttpClientBuilder {
	if len(headers) == 0 {
		return b
	}
	if b.headers == nil {
		b.headers = make(map[string]string, len(headers))
	}
	for k, v := range headers {
		b.headers[k] = v
	}
	return b
}

// Build creates the configured HTTP client
func (b *HttpClientBuilder) Build() (*http.Client, error) {
	if err := b.validateProxy(); err != nil {
		return nil, err
	}

	transport := &http.Transport{
		TLSHandshakeTimeout:   b.tlsHandshakeTimeout,
		ResponseHeaderTimeout: b.responseHeaderTimeout,
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if b.proxy != nil {
		proxyFunc := b.proxy.ProxyFunc()
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			return proxyFunc(req.URL)
		}
	}

	if b.skipTLSVerify {
		transport.TLSClientConfig.InsecureSkipVerify = true // #nosec G402 - explicitly disabled by configuration
	}

	var clientTransport http.RoundTripper = transport
	if len(b.headers) > 0 {
		clientTransport = &headerTransport{
			transport: clientTransport,
			headers:   b.headers,
		}
	}

	return &http.Client{
		Transport: clientTransport,
		Timeout:   b.clientTimeout,
	}, nil
}

// validateProxy rejects proxy URLs that httpproxy would fail on for every
// request. A value without a scheme is read as http, as httpproxy does.
func (b *HttpClientBuilder) validateProxy() error {
	if b.proxy == nil {
		return nil
	}
	for _, raw := range []string{b.proxy.HTTPProxy, b.proxy.HTTPSProxy} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err == nil && u.Scheme != "" && u.Host != "" {
			continue
		}
		if _, err := url.Parse("http://" + raw); err != nil {
			return fmt.Errorf("invalid proxy URL: %w", err)
		}
	}
	return nil
}
