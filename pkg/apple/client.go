// Package apple talks to Apple's consumer product and warranty lookup pages.
// The endpoints are undocumented; every parser fails with a ParseError when
// the response no longer looks the way it used to.
package apple

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nmasdoufi/warranty/pkg/config"
	"github.com/nmasdoufi/warranty/pkg/serial"
)

const maxBody = 2 << 20

// Client performs product and warranty lookups.
type Client struct {
	endpoints  config.EndpointConfig
	warranty   config.WarrantyConfig
	userAgent  string
	httpClient *http.Client
}

// NewClient builds a client. Certificates are verified by the default
// transport and every request is bounded by the configured timeout.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		endpoints: cfg.Endpoints,
		warranty:  cfg.Warranty,
		userAgent: cfg.HTTP.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.HTTP.Timeout,
		},
	}
}

// HTTPClient exposes the underlying client so other fetchers share its
// timeout and connection pool.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// CloseIdleConnections releases pooled connections at the end of a run.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// ProductDescription looks up the marketing name for a serial's model code.
func (c *Client) ProductDescription(ctx context.Context, sn string) (string, error) {
	code, err := serial.ProductCode(sn)
	if err != nil {
		return "", err
	}
	reqURL := fmt.Sprintf(c.endpoints.ProductURL, url.QueryEscape(code), url.QueryEscape(c.warranty.Locale))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	body, err := c.do(req, "product")
	if err != nil {
		return "", err
	}
	return ParseProductDescription(body)
}

// Warranty looks up coverage for a serial using the configured format. The
// html and auto formats use the current form POST; json and list use the
// legacy GET endpoint.
func (c *Client) Warranty(ctx context.Context, sn string) (Warranty, error) {
	var (
		req *http.Request
		err error
	)
	switch c.warranty.Format {
	case config.FormatJSON, config.FormatList:
		params := url.Values{}
		params.Set("sn", sn)
		params.Set("country", c.warranty.Country)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.LegacyWarrantyURL+"?"+params.Encode(), nil)
	default:
		form := url.Values{}
		form.Set("sn", sn)
		form.Set("Continue", "Continue")
		form.Set("cn", "")
		form.Set("locale", "")
		form.Set("caller", "")
		form.Set("num", "0")
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.WarrantyURL, strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return Warranty{}, fmt.Errorf("failed to create request: %w", err)
	}
	body, err := c.do(req, "warranty")
	if err != nil {
		return Warranty{}, err
	}
	return ParseWarranty(c.warranty.Format, body)
}

func (c *Client) do(req *http.Request, op string) (string, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &NetworkError{Op: op, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	return string(body), nil
}
