package llm

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pythiastack/pythia-insights/internal/models"
)

const openaiSystemPrompt = `You are a data insights analyst. Respond with a single valid JSON object
containing the keys "summary", "severity", "confidence", "recommended_actions"
and "key_findings". Return ONLY the JSON object, no markdown formatting.`

// OpenAIClient calls the OpenAI chat completions API in JSON mode.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient constructs a client for the configured OpenAI model. A
// non-empty baseURL redirects calls to a compatible endpoint.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model}
}

// Name identifies the provider in results and error reports.
func (c *OpenAIClient) Name() string { return "openai" }

// Generate sends the rendered prompt and parses the structured JSON reply.
func (c *OpenAIClient) Generate(ctx context.Context, prompt models.Prompt, opts Options) (Candidate, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openaiSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt.Text},
		},
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Candidate{}, &GenerationError{Provider: c.Name(), Kind: openaiKind(err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return Candidate{}, &GenerationError{Provider: c.Name(), Kind: KindInvalidResponse, Err: errors.New("no choices in response")}
	}

	return parseCandidate(c.Name(), []byte(resp.Choices[0].Message.Content))
}

func openaiKind(err error) ErrorKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return KindRateLimited
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return KindUnavailable
		case apiErr.HTTPStatusCode == http.StatusRequestTimeout:
			return KindTimeout
		}
		return KindUnavailable
	}
	return transportKind(err)
}
