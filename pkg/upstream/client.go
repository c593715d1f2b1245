package upstream

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Credentials contains what the client needs to authenticate a request.
type Credentials struct {
	// AuthToken is the bearer token for the backend.
	AuthToken string

	// InstallationID identifies this deployment to the backend.
	InstallationID string
}

// CredentialsProvider supplies credentials per request, so a config
// reload can rotate the token without rebuilding the client.
type CredentialsProvider interface {
	Credentials() Credentials
}

// StaticCredentials is a CredentialsProvider for a fixed token.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials() Credentials {
	return Credentials(s)
}

// Config contains configuration for the upstream client.
type Config struct {
	// BaseURL is the backend root, without a trailing slash.
	BaseURL string

	// RequestTimeout bounds the whole HTTP exchange when the caller's
	// context carries no tighter deadline.
	RequestTimeout time.Duration
}

// StatusError is returned for any non-2xx backend response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

// HTTPStatus lets the retry layer classify the failure.
func (e *StatusError) HTTPStatus() int {
	return e.Status
}

// Client talks to the translation backend.
type Client struct {
	cfg   Config
	creds CredentialsProvider
	http  *http.Client
	clock func() time.Time
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Intended for tests
// and for callers that need custom transport settings.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClock overrides the timestamp source used for signing.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClient creates a backend client.
func NewClient(cfg Config, creds CredentialsProvider, opts ...ClientOption) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("upstream base URL is required")
	}
	if creds == nil {
		return nil, fmt.Errorf("credentials provider is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	c := &Client{
		cfg:   cfg,
		creds: creds,
		http:  &http.Client{Timeout: cfg.RequestTimeout},
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// batchRequest is the wire format shared by all backend endpoints.
type batchRequest struct {
	Words          []string `json:"words"`
	TargetLanguage string   `json:"targetLanguage"`
}

// batchResponse is the wire format of the backend responses. Each
// endpoint populates the fields it serves.
type batchResponse struct {
	Translations map[string]string `json:"translations"`
	Contexts     map[string]string `json:"contexts"`
}

// Enriched pairs translations with usage context for the same words.
type Enriched struct {
	// Translations maps each requested word to its translation.
	Translations map[string]string

	// Contexts maps each requested word to a usage context sentence.
	Contexts map[string]string
}

// Translate requests translations for a batch of words.
//
// The returned map is keyed by the requested word. Words the backend
// could not translate are absent from the map; callers decide whether
// that is an error.
func (c *Client) Translate(ctx context.Context, words []string, targetLanguage string) (map[string]string, error) {
	if len(words) == 0 {
		return map[string]string{}, nil
	}

	decoded, err := c.post(ctx, "/translate", words, targetLanguage)
	if err != nil {
		return nil, err
	}
	return decoded.Translations, nil
}

// Context requests usage context for words that are already translated.
func (c *Client) Context(ctx context.Context, words []string, targetLanguage string) (map[string]string, error) {
	if len(words) == 0 {
		return map[string]string{}, nil
	}

	decoded, err := c.post(ctx, "/context", words, targetLanguage)
	if err != nil {
		return nil, err
	}
	return decoded.Contexts, nil
}

// TranslateWithContext requests translations and usage context in one
// round trip.
func (c *Client) TranslateWithContext(ctx context.Context, words []string, targetLanguage string) (*Enriched, error) {
	if len(words) == 0 {
		return &Enriched{
			Translations: map[string]string{},
			Contexts:     map[string]string{},
		}, nil
	}

	decoded, err := c.post(ctx, "/translate-with-context", words, targetLanguage)
	if err != nil {
		return nil, err
	}
	return &Enriched{
		Translations: decoded.Translations,
		Contexts:     decoded.Contexts,
	}, nil
}

// post sends an authorized batch request to the given endpoint and
// decodes the response. Non-2xx responses become a *StatusError.
func (c *Client) post(ctx context.Context, path string, words []string, targetLanguage string) (*batchResponse, error) {
	payload, err := json.Marshal(batchRequest{
		Words:          words,
		TargetLanguage: targetLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	var decoded batchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if decoded.Translations == nil {
		decoded.Translations = map[string]string{}
	}
	if decoded.Contexts == nil {
		decoded.Contexts = map[string]string{}
	}
	return &decoded, nil
}

// authorize attaches the bearer token and the HMAC request signature.
//
// The signature covers "<installationID>-<unix timestamp>" keyed with
// the auth token; the backend recomputes it and rejects stale or
// mismatched timestamps.
func (c *Client) authorize(req *http.Request) {
	creds := c.creds.Credentials()
	timestamp := strconv.FormatInt(c.clock().Unix(), 10)

	req.Header.Set("Authorization", "Bearer "+creds.AuthToken)
	req.Header.Set("X-Installation-Id", creds.InstallationID)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", Sign(creds.AuthToken, creds.InstallationID, timestamp))
}

// Sign computes the hex HMAC-SHA256 signature for an installation and
// timestamp. Exported so tests and tooling can verify request headers.
func Sign(token, installationID, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write([]byte(installationID + "-" + timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// truncate bounds error bodies included in messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
