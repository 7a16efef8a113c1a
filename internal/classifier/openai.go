// internal/classifier/openai.go
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/signalnine/logsentry/internal/protocol"
)

const maxTokens = 4096

// Endpoint represents a single LLM provider
type Endpoint struct {
	URL    string
	Model  string
	APIKey string
}

// Options tune the OpenAI-compatible client
type Options struct {
	// StrictSchema requests json_schema output; otherwise json_object is used,
	// which more OpenAI-compatible servers understand.
	StrictSchema bool
	Timeout      time.Duration
}

type endpointClient struct {
	Endpoint
	api *openai.Client
}

// OpenAIClient classifies batches against OpenAI-compatible chat completion
// endpoints, falling back through the list in order.
type OpenAIClient struct {
	endpoints []endpointClient
	opts      Options
}

// NewOpenAIClient creates a client with a fallback chain
func NewOpenAIClient(endpoints []Endpoint, opts Options) *OpenAIClient {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	httpClient := &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 5 * time.Second,
			}).DialContext,
		},
	}

	c := &OpenAIClient{opts: opts}
	for _, ep := range endpoints {
		cfg := openai.DefaultConfig(ep.APIKey)
		if ep.URL != "" {
			cfg.BaseURL = strings.TrimSuffix(ep.URL, "/")
		}
		cfg.HTTPClient = httpClient
		c.endpoints = append(c.endpoints, endpointClient{
			Endpoint: ep,
			api:      openai.NewClientWithConfig(cfg),
		})
	}
	return c
}

// Classify sends the batch to the first endpoint that answers.
// Unavailable endpoints fall through to the next one; any other failure is
// returned immediately.
func (c *OpenAIClient) Classify(ctx context.Context, batch []protocol.LogEntry) ([]Item, error) {
	if len(c.endpoints) == 0 {
		return nil, errors.New("no classifier endpoints configured")
	}

	var lastErr error
	for i, ep := range c.endpoints {
		start := time.Now()
		items, err := c.tryEndpoint(ctx, ep, batch)
		latency := time.Since(start).Milliseconds()

		if err == nil {
			if i > 0 {
				log.Printf("Classifier fallback: endpoint %d (%s) succeeded after %d failures", i+1, ep.Model, i)
			}
			log.Printf("Classified %d entries via %s in %dms", len(batch), ep.Model, latency)
			return items, nil
		}

		lastErr = err
		if IsTransient(err) {
			log.Printf("Classifier endpoint %d (%s) unavailable: %v, trying next...", i+1, ep.Model, err)
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

func (c *OpenAIClient) tryEndpoint(ctx context.Context, ep endpointClient, batch []protocol.LogEntry) ([]Item, error) {
	req := openai.ChatCompletionRequest{
		Model: ep.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(batch)},
		},
		ResponseFormat: c.responseFormat(),
	}
	// Reasoning models reject max_tokens
	if isReasoningModel(ep.Model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := ep.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyCallError(ep.URL, err)
	}

	if len(resp.Choices) == 0 {
		return nil, &ProtocolError{Msg: "empty response from API"}
	}

	return DecodeItems(resp.Choices[0].Message.Content)
}

func (c *OpenAIClient) responseFormat() *openai.ChatCompletionResponseFormat {
	if !c.opts.StrictSchema {
		return &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   "log_classifications",
			Schema: responseSchema(),
			Strict: true,
		},
	}
}

// DecodeItems parses the model's message content.
// A payload without a classifications array is a ProtocolError. Items that
// carry no logIndex come back with LogIndex set to NoIndex.
func DecodeItems(content string) ([]Item, error) {
	content = stripCodeFence(content)

	var payload struct {
		Classifications *[]wireItem `json:"classifications"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, &ProtocolError{Msg: "failed to parse classifier response", Err: err}
	}
	if payload.Classifications == nil {
		return nil, &ProtocolError{Msg: "response missing classifications array"}
	}

	items := make([]Item, 0, len(*payload.Classifications))
	for _, w := range *payload.Classifications {
		idx := NoIndex
		if w.LogIndex != nil {
			idx = *w.LogIndex
		}
		items = append(items, Item{Classification: w.Classification, Reason: w.Reason, LogIndex: idx})
	}
	return items, nil
}

// wireItem keeps a missing or null logIndex distinguishable from 0
type wireItem struct {
	Classification protocol.Classification `json:"classification"`
	Reason         string                  `json:"reason"`
	LogIndex       *int                    `json:"logIndex"`
}

// stripCodeFence removes a ```json ... ``` wrapper some models add
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// classifyCallError maps go-openai errors onto the transient/permanent split:
// 429, 502-504 and 5xx responses and connection failures are transient.
func classifyCallError(endpoint string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if retryableStatus(apiErr.HTTPStatusCode) {
			return &TransientError{Endpoint: endpoint, StatusCode: apiErr.HTTPStatusCode, Err: err}
		}
		return fmt.Errorf("endpoint %s: API error %d: %w", endpoint, apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if retryableStatus(reqErr.HTTPStatusCode) {
			return &TransientError{Endpoint: endpoint, StatusCode: reqErr.HTTPStatusCode, Err: err}
		}
		return fmt.Errorf("endpoint %s: request error %d: %w", endpoint, reqErr.HTTPStatusCode, err)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	// Anything else failed before a response arrived
	return &TransientError{Endpoint: endpoint, Err: fmt.Errorf("connection failed: %w", err)}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
