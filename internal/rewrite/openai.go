package rewrite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-5-chat-latest"
)

// OpenAIConfig holds configuration for the OpenAI rewrite client.
type OpenAIConfig struct {
	APIKey      string
	Model       string        // Default model when the request does not set one
	Timeout     time.Duration // Per-call HTTP timeout (default 120s)
	Temperature float64       // 0 leaves the provider default
	BaseURL     string        // Optional (tests)
	HTTPClient  *http.Client  // Optional (tests)
}

// OpenAIClient implements Rewriter using the official OpenAI SDK with a
// json_schema response format. SDK transport retries are disabled so the
// batch retry policy owns every reattempt.
type OpenAIClient struct {
	model       string
	temperature float64
	client      openai.Client
}

// NewOpenAIClient creates a new OpenAI rewrite client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      openai.NewClient(opts...),
	}, nil
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Rewrite sends one chat completion request carrying the structured
// response contract and extracts the rewritten HTML from the reply.
func (c *OpenAIClient) Rewrite(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, NewPermanent("rewrite request carries no text", nil)
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(req.Text)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   SchemaName,
					Schema: schemaAsMap(),
					Strict: openai.Bool(true),
				},
			},
		},
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(completion.Choices) == 0 {
		return nil, NewPermanent("response carries no choices", nil)
	}

	rewritten, err := extractRewrittenHTML(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	return &Response{
		RewrittenHTML:    rewritten,
		ModelUsed:        completion.Model,
		RequestID:        requestID,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
		Duration:         time.Since(start),
	}, nil
}

// classifyOpenAIError maps SDK errors onto the transient/permanent taxonomy.
// Timeouts, connection faults, 408/429 and 5xx are transient; everything
// else (auth, invalid request, content policy) is permanent.
func classifyOpenAIError(err error) *Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		e := &Error{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
		if e.Message == "" {
			e.Message = fmt.Sprintf("OpenAI request failed with status %d", apiErr.StatusCode)
		}
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode >= 500:
			e.Kind = FailureTransient
		default:
			e.Kind = FailurePermanent
		}
		return e
	}

	if errors.Is(err, context.Canceled) {
		return NewPermanent("request cancelled", err)
	}

	// Deadline expiry and transport-level faults (connection refused,
	// reset, DNS) arrive as plain errors from the HTTP layer.
	return NewTransient(err.Error(), err)
}

var _ Rewriter = (*OpenAIClient)(nil)
