// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/jeranaias/nova/internal/model"
)

const (
	// DefaultHostedModel is the model used on the hosted fallback route.
	DefaultHostedModel = "gemini-3-flash-preview"

	// NoGenerationPlaceholder is returned when the hosted model produced no text.
	NoGenerationPlaceholder = "No response generated."

	hostedErrorPrefix = "hosted fallback request failed: "

	roleHostedUser  = "user"
	roleHostedModel = "model"
)

// hostedKeyEnv lists the environment variables checked for the operator key,
// in order.
var hostedKeyEnv = []string{"NOVA_HOSTED_API_KEY", "GEMINI_API_KEY", "API_KEY"}

// HostedKeyFromEnv returns the first non-blank operator key from the
// environment, or "".
// SECURITY: the key is never exposed through settings or the API.
func HostedKeyFromEnv() string {
	for _, name := range hostedKeyEnv {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// GENERATOR
// =============================================================================

// Generator performs one hosted generation call.
type Generator interface {
	Generate(ctx context.Context, modelName string, contents []*genai.Content) (string, error)
}

// GeneratorFactory builds a Generator for an operator key.
type GeneratorFactory func(ctx context.Context, apiKey string) (Generator, error)

// genaiGenerator calls the Gemini API through the genai SDK.
type genaiGenerator struct {
	client *genai.Client
}

// NewGenAIGenerator returns a Generator backed by the Gemini API. A nil
// httpClient uses the SDK default; baseURL overrides the API host for tests.
func NewGenAIGenerator(ctx context.Context, apiKey string, httpClient *http.Client, baseURL string) (Generator, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &genaiGenerator{client: client}, nil
}

// GenAIFactory returns a GeneratorFactory using NewGenAIGenerator.
func GenAIFactory(httpClient *http.Client, baseURL string) GeneratorFactory {
	return func(ctx context.Context, apiKey string) (Generator, error) {
		return NewGenAIGenerator(ctx, apiKey, httpClient, baseURL)
	}
}

// Generate implements Generator.
func (g *genaiGenerator) Generate(ctx context.Context, modelName string, contents []*genai.Content) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, modelName, contents, nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// =============================================================================
// HOSTED CLIENT
// =============================================================================

// HostedClient sends messages to the hosted fallback model.
type HostedClient struct {
	gen   Generator
	model string
	log   logrus.FieldLogger
}

// NewHostedClient wraps gen. An empty modelName means DefaultHostedModel.
func NewHostedClient(gen Generator, modelName string) *HostedClient {
	if modelName == "" {
		modelName = DefaultHostedModel
	}
	return &HostedClient{gen: gen, model: modelName, log: logrus.StandardLogger()}
}

// WithLogger sets the logger.
func (h *HostedClient) WithLogger(log logrus.FieldLogger) *HostedClient {
	if log != nil {
		h.log = log
	}
	return h
}

// Model returns the hosted model identifier.
func (h *HostedClient) Model() string {
	return h.model
}

// Send implements Provider.
func (h *HostedClient) Send(ctx context.Context, messages []model.OutboundMessage) (string, error) {
	h.log.WithFields(logrus.Fields{
		"model":    h.model,
		"messages": len(messages),
	}).Debug("Hosted generation request")

	text, err := h.gen.Generate(ctx, h.model, toContents(messages))
	if err != nil {
		return "", classifyHosted(err)
	}
	if text == "" {
		return NoGenerationPlaceholder, nil
	}
	return text, nil
}

// classifyHosted wraps a generation failure. Errors the API answered with
// are provider errors; anything else means the API was not reached.
func classifyHosted(err error) *Error {
	e := &Error{
		Kind:    KindNetwork,
		Route:   RouteHostedFallback,
		Message: hostedErrorPrefix + err.Error(),
		Err:     err,
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		e.Kind = KindProvider
		e.Status = apiErr.Code
		if apiErr.Message != "" {
			e.Message = hostedErrorPrefix + apiErr.Message
		}
	}
	return e
}

// toContents maps outbound messages onto the hosted role vocabulary: the
// assistant becomes "model" and everything else "user", one text part each.
func toContents(messages []model.OutboundMessage) []*genai.Content {
	contents := make([]*genai.Content, len(messages))
	for i, m := range messages {
		role := roleHostedUser
		if m.Role == model.RoleAssistant {
			role = roleHostedModel
		}
		contents[i] = &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		}
	}
	return contents
}
