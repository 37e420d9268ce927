package domain

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/utils"
)

const defaultProbeTimeout = 5 * time.Second

func newProbeClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 0,
				}).DialContext(ctx, network, addr)
			},
			TLSHandshakeTimeout: timeout,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			DisableKeepAlives: true,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Don't follow redirects
			return http.ErrUseLastResponse
		},
	}
}

// HTTPProbe reports a service healthy when URL answers with the expected status.
type HTTPProbe struct {
	URL          string
	Timeout      time.Duration
	ExpectStatus int // 0 accepts any 2xx or 3xx

	client *http.Client
}

// NewHTTPProbe builds a probe with its own short-lived client.
func NewHTTPProbe(url string, timeout time.Duration, expectStatus int) *HTTPProbe {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &HTTPProbe{
		URL:          url,
		Timeout:      timeout,
		ExpectStatus: expectStatus,
		client:       newProbeClient(timeout),
	}
}

func (p *HTTPProbe) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.URL, err)
	}
	defer utils.DrainClose(resp.Body)

	if p.ExpectStatus != 0 {
		if resp.StatusCode != p.ExpectStatus {
			return fmt.Errorf("probe %s: status %d, want %d", p.URL, resp.StatusCode, p.ExpectStatus)
		}
		return nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("probe %s: status %d", p.URL, resp.StatusCode)
	}
	return nil
}

// HTTPRestarter triggers a restart by calling a control endpoint.
type HTTPRestarter struct {
	URL     string
	Method  string
	Timeout time.Duration

	client *http.Client
}

func NewHTTPRestarter(url, method string, timeout time.Duration) *HTTPRestarter {
	if method == "" {
		method = http.MethodPost
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &HTTPRestarter{
		URL:     url,
		Method:  method,
		Timeout: timeout,
		client:  newProbeClient(timeout),
	}
}

func (r *HTTPRestarter) Restart(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("restart hook %s: %w", r.URL, err)
	}
	defer utils.DrainClose(resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("restart hook %s: status %d", r.URL, resp.StatusCode)
	}
	return nil
}
