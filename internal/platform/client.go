// Package platform talks to the messaging platform's Cloud API: media
// lookup, media download and outbound text messages.
package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// APIError is a non-2xx answer from the platform.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform returned status %d", e.Status)
	}
	return fmt.Sprintf("platform returned status %d: %s (code %d)", e.Status, e.Message, e.Code)
}

// MediaInfo is the answer to a media lookup. URL is short-lived and needs
// the bearer token to be fetched.
type MediaInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
}

type Options struct {
	BaseURL       string
	APIVersion    string
	Token         string
	PhoneNumberID string
	// APITimeout bounds lookups and message sends.
	APITimeout time.Duration
	// DownloadTimeout bounds a whole media transfer, body included.
	DownloadTimeout time.Duration
}

type Client struct {
	opts       Options
	api        *http.Client
	downloader *http.Client
	logger     *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Client {
	if opts.APITimeout <= 0 {
		opts.APITimeout = 10 * time.Second
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 10 * time.Minute
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 10,
	}
	return &Client{
		opts:       opts,
		api:        &http.Client{Timeout: opts.APITimeout, Transport: transport},
		downloader: &http.Client{Timeout: opts.DownloadTimeout, Transport: transport},
		logger:     logger.With(slog.String("component", "platform_client")),
	}
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.opts.BaseURL + "/" + c.opts.APIVersion + "/" + strings.Join(escaped, "/")
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.opts.Token)
}

// ResolveMedia exchanges a media id for a short-lived download URL.
func (c *Client) ResolveMedia(ctx context.Context, mediaID string) (*MediaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(mediaID), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build media lookup: %w", err)
	}
	c.authorize(req)

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media lookup %s: %w", mediaID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var info MediaInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode media lookup: %w", err)
	}
	if info.URL == "" {
		return nil, fmt.Errorf("media lookup %s: empty url", mediaID)
	}
	return &info, nil
}

// Fetch starts a streaming download of mediaURL. The caller owns resp.Body
// and must close it. Non-2xx answers are returned as *APIError with the
// body already closed.
func (c *Client) Fetch(ctx context.Context, mediaURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build media download: %w", err)
	}
	c.authorize(req)
	// The platform rejects downloads without a user agent.
	req.Header.Set("User-Agent", "mediadrop/1.0")

	resp, err := c.downloader.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media download: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendText sends a plain text message to the given recipient.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if c.opts.PhoneNumberID == "" {
		return fmt.Errorf("send text: phone number id is not configured")
	}

	msg := textMessage{MessagingProduct: "whatsapp", RecipientType: "individual", To: to, Type: "text"}
	msg.Text.Body = body
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.opts.PhoneNumberID, "messages"), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.api.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var body struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Error.Message
		apiErr.Code = body.Error.Code
	}
	return apiErr
}
