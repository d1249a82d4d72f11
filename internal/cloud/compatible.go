// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/util"
)

const (
	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024

	// EmptyReplyPlaceholder is returned when a successful response has no content.
	EmptyReplyPlaceholder = "API returned no content."

	// DefaultSiteURL and DefaultSiteName identify nova to aggregators.
	DefaultSiteURL  = "https://github.com/jeranaias/nova"
	DefaultSiteName = "nova"

	userAgent = "nova/1.0"
)

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model    string                  `json:"model"`
	Messages []model.OutboundMessage `json:"messages"`
}

// =============================================================================
// COMPATIBLE CLIENT
// =============================================================================

// CompatibleClient talks to an OpenAI-compatible chat completions endpoint.
type CompatibleClient struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	siteURL    string
	siteName   string
	log        logrus.FieldLogger
}

// NewCompatibleClient creates a client for the endpoint, key and model in
// settings. Key and model are trimmed.
func NewCompatibleClient(settings model.AISettings) *CompatibleClient {
	return &CompatibleClient{
		apiKey:     strings.TrimSpace(settings.APIKey),
		model:      strings.TrimSpace(settings.Model),
		endpoint:   NormalizeEndpoint(settings.BaseURL),
		httpClient: http.DefaultClient,
		siteURL:    DefaultSiteURL,
		siteName:   DefaultSiteName,
		log:        logrus.StandardLogger(),
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func (c *CompatibleClient) WithHTTPClient(hc *http.Client) *CompatibleClient {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithSite sets the informational HTTP-Referer and X-Title headers.
func (c *CompatibleClient) WithSite(siteURL, siteName string) *CompatibleClient {
	if siteURL != "" {
		c.siteURL = siteURL
	}
	if siteName != "" {
		c.siteName = siteName
	}
	return c
}

// WithLogger sets the logger.
func (c *CompatibleClient) WithLogger(log logrus.FieldLogger) *CompatibleClient {
	if log != nil {
		c.log = log
	}
	return c
}

// Endpoint returns the normalised chat completions URL.
func (c *CompatibleClient) Endpoint() string {
	return c.endpoint
}

// KeyFingerprint returns a loggable fingerprint of the API key.
func (c *CompatibleClient) KeyFingerprint() string {
	return util.KeyFingerprint(c.apiKey)
}

// Send posts messages and returns the first choice's content.
func (c *CompatibleClient) Send(ctx context.Context, messages []model.OutboundMessage) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", c.fail(KindProvider, 0, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		// Malformed base URL: nothing was sent.
		return "", c.fail(KindNetwork, 0, fmt.Sprintf("invalid endpoint %q", c.endpoint), err)
	}
	c.setHeaders(req)

	// CLOUD: Secure logging - never headers or bodies.
	start := time.Now()
	c.log.WithFields(logrus.Fields{
		"method": req.Method,
		"host":   req.URL.Host,
		"path":   req.URL.Path,
		"key":    c.KeyFingerprint(),
	}).Debug("API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.fail(KindNetwork, 0, "could not reach "+hostOf(c.endpoint)+": "+rootMessage(err), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return "", c.fail(KindNetwork, resp.StatusCode, "failed to read response: "+rootMessage(err), err)
	}

	c.log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("API response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.fail(KindProvider, resp.StatusCode, errorMessage(data, resp.StatusCode), nil)
	}

	if !gjson.ValidBytes(data) {
		return "", c.fail(KindProvider, resp.StatusCode, "provider returned an invalid response body", nil)
	}
	content := gjson.GetBytes(data, "choices.0.message.content").String()
	if content == "" {
		return EmptyReplyPlaceholder, nil
	}
	return content, nil
}

// setHeaders sets the request headers. HTTP-Referer and X-Title are
// informational attribution headers some aggregators display.
func (c *CompatibleClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("HTTP-Referer", c.siteURL)
	req.Header.Set("X-Title", c.siteName)
}

func (c *CompatibleClient) fail(kind Kind, status int, msg string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Route:   RouteUserConfigured,
		Status:  status,
		Message: msg,
		Err:     cause,
	}
}

// errorMessage extracts error.message from a failure body, falling back to
// the status code.
func errorMessage(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("server error: %d", status)
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}

// rootMessage strips the url.Error wrapper, which repeats the full URL.
func rootMessage(err error) string {
	if ue, ok := err.(*url.Error); ok && ue.Err != nil {
		return ue.Err.Error()
	}
	return err.Error()
}
