package glpi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nmasdoufi/warranty/pkg/config"
	"github.com/nmasdoufi/warranty/pkg/inventory"
)

// Client pushes warranty records to a GLPI inventory endpoint.
type Client struct {
	cfg        config.GLPIConfig
	baseURL    string
	httpClient *http.Client
	token      string
	tokenUntil time.Time
	mu         sync.Mutex
}

// warrantyPayload is the JSON body sent for each record.
type warrantyPayload struct {
	Serial             string `json:"serial"`
	Manufacturer       string `json:"manufacturer"`
	Model              string `json:"model,omitempty"`
	WarrantyType       string `json:"warranty_type,omitempty"`
	PurchaseDate       string `json:"purchase_date,omitempty"`
	WarrantyStatus     string `json:"warranty_status"`
	WarrantyExpiration string `json:"warranty_expiration,omitempty"`
	ManufactureDate    string `json:"manufacture_date,omitempty"`
	ASDVersion         string `json:"asd_version,omitempty"`
}

// NewClient builds a GLPI client.
func NewClient(cfg config.GLPIConfig, timeout time.Duration) *Client {
	return &Client{cfg: cfg, baseURL: sanitizeBaseURL(cfg.BaseURL), httpClient: &http.Client{Timeout: timeout}}
}

// Enabled reports whether a GLPI endpoint is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// PushWarranty sends one warranty record to GLPI.
func (c *Client) PushWarranty(ctx context.Context, rec inventory.WarrantyRecord) error {
	if !c.Enabled() {
		return fmt.Errorf("glpi base url not configured")
	}
	name, value, err := c.authHeader(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(newWarrantyPayload(rec))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/inventory", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(name, value)
	return c.decode(req, "push "+rec.Serial, nil)
}

func newWarrantyPayload(rec inventory.WarrantyRecord) warrantyPayload {
	p := warrantyPayload{
		Serial:         rec.Serial,
		Manufacturer:   "Apple",
		Model:          rec.Description,
		WarrantyType:   rec.WarrantyType,
		WarrantyStatus: strings.ToLower(rec.Coverage.String()),
		ASDVersion:     rec.ASDVersion,
	}
	if rec.PurchaseDate != nil {
		p.PurchaseDate = rec.PurchaseDate.Format(inventory.DateLayout)
	}
	if rec.Coverage.HasExpiration() {
		p.WarrantyStatus = "active"
		p.WarrantyExpiration = rec.Coverage.Expires.Format(inventory.DateLayout)
	}
	if rec.Manufactured != nil {
		p.ManufactureDate = rec.Manufactured.Format(inventory.DateLayout)
	}
	return p
}

// authHeader returns the header carrying the current credential, obtaining
// one first when needed.
func (c *Client) authHeader(ctx context.Context) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.useOAuth() {
		if c.token == "" || time.Until(c.tokenUntil) <= 30*time.Second {
			if err := c.requestOAuthToken(ctx); err != nil {
				return "", "", err
			}
		}
		return "Authorization", "Bearer " + c.token, nil
	}
	if c.token == "" {
		if err := c.initSession(ctx); err != nil {
			return "", "", err
		}
	}
	return "Session-Token", c.token, nil
}

func (c *Client) initSession(ctx context.Context) error {
	if c.cfg.UserToken == "" {
		return fmt.Errorf("glpi user token missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/initSession", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "user_token "+c.cfg.UserToken)
	var session struct {
		SessionToken string `json:"session_token"`
		Message      string `json:"message"`
	}
	if err := c.decode(req, "init session", &session); err != nil {
		return err
	}
	if session.SessionToken == "" {
		return fmt.Errorf("glpi session token empty: %s", session.Message)
	}
	c.token = session.SessionToken
	return nil
}

func (c *Client) requestOAuthToken(ctx context.Context) error {
	tokenURL, err := oauthTokenURL(c.baseURL)
	if err != nil {
		return err
	}
	oauth := c.cfg.OAuth
	scope := oauth.Scope
	if scope == "" {
		scope = "api"
	}
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {oauth.ClientID},
		"client_secret": {oauth.ClientSecret},
		"username":      {oauth.Username},
		"password":      {oauth.Password},
		"scope":         {scope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var grant struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := c.decode(req, "oauth token", &grant); err != nil {
		return err
	}
	switch {
	case grant.AccessToken == "":
		return fmt.Errorf("glpi oauth access token empty")
	case grant.TokenType != "" && !strings.EqualFold(grant.TokenType, "bearer"):
		return fmt.Errorf("glpi oauth unexpected token type %q", grant.TokenType)
	}
	lifetime := time.Duration(grant.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	c.token = grant.AccessToken
	c.tokenUntil = time.Now().Add(lifetime)
	return nil
}

// Close ends a legacy API session. OAuth tokens simply expire.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.useOAuth() || c.token == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/killSession", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Session-Token", c.token)
	c.token = ""
	return c.decode(req, "kill session", nil)
}

// decode sends req with the app token attached and decodes a JSON reply into
// out when out is non-nil.
func (c *Client) decode(req *http.Request, op string, out interface{}) error {
	if c.cfg.AppToken != "" {
		req.Header.Set("App-Token", c.cfg.AppToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("glpi %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("glpi %s failed: %s: %s", op, resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("glpi %s: decode reply: %w", op, err)
	}
	return nil
}

func (c *Client) useOAuth() bool {
	if c.cfg.OAuth == nil {
		return false
	}
	return c.cfg.OAuth.ClientID != "" && c.cfg.OAuth.ClientSecret != "" && c.cfg.OAuth.Username != ""
}

func oauthTokenURL(base string) (string, error) {
	const marker = "/api.php"
	idx := strings.Index(base, marker)
	if idx == -1 {
		return "", fmt.Errorf("glpi oauth requires api.php endpoint, got %s", base)
	}
	return base[:idx+len(marker)] + "/token", nil
}

func sanitizeBaseURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	return strings.TrimRight(trimmed, "/")
}
