// Package push delivers notifications through an HTTP push gateway. Each
// message is a JSON POST authenticated with an OAuth2 client-credentials
// token.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/auth"
	"github.com/mozocode/On-The-Way-Rebuild/core/notify"
)

// Config configures the gateway client.
type Config struct {
	URL            string    `json:"url"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	Auth           auth.Conf `json:"auth"`
}

// SetDefaults applies a 5s request timeout.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 5
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("push: url is required")
	}
	return nil
}

// Payload is the body POSTed to the gateway.
type Payload struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

// StatusError is returned for a non-2xx gateway response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push gateway returned %d: %s", e.Code, e.Body)
}

type tokenSource interface {
	SetAuthHeader(r *http.Request) error
	ForceRefresh(ctx context.Context) (string, error)
}

// Notifier implements notify.Notifier over HTTP.
type Notifier struct {
	url    string
	client *http.Client
	creds  tokenSource
}

// New builds a notifier. Credentials are only used when cfg.Auth is set.
func New(cfg Config) (*Notifier, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Notifier{
		url:    cfg.URL,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
	if cfg.Auth.Enabled() {
		n.creds = auth.NewClientCred(cfg.Auth)
	}
	return n, nil
}

// Notify posts msg to the gateway. Recipients without a push token yield
// notify.ErrNoToken. A 401 triggers one token refresh and retry.
func (n *Notifier) Notify(ctx context.Context, msg notify.Message) error {
	if msg.Token == "" {
		return notify.ErrNoToken
	}
	body, err := json.Marshal(Payload{To: msg.Token, Title: msg.Title, Body: msg.Body, Data: msg.Data, Sound: "default"})
	if err != nil {
		return err
	}
	code, err := n.post(ctx, body)
	if err != nil && code == http.StatusUnauthorized && n.creds != nil {
		if _, rerr := n.creds.ForceRefresh(ctx); rerr != nil {
			return fmt.Errorf("refresh push credentials: %w", rerr)
		}
		_, err = n.post(ctx, body)
	}
	if err != nil {
		return fmt.Errorf("push to %s: %w", msg.Recipient, err)
	}
	return nil
}

func (n *Notifier) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.creds != nil {
		if err := n.creds.SetAuthHeader(req); err != nil {
			return 0, err
		}
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: string(b)}
}
