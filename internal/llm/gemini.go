package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/pythiastack/pythia-insights/internal/models"
)

// GeminiClient calls the Gemini generateContent API over HTTP/JSON.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGeminiClient constructs a client for the configured Gemini model.
func NewGeminiClient(baseURL, apiKey, model string) *GeminiClient {
	return &GeminiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
	}
}

// Name identifies the provider in results and error reports.
func (c *GeminiClient) Name() string { return "gemini" }

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends the rendered prompt and parses the structured JSON reply.
func (c *GeminiClient) Generate(ctx context.Context, prompt models.Prompt, opts Options) (Candidate, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return Candidate{}, &GenerationError{Provider: c.Name(), Kind: KindUnavailable, Err: errors.New("gemini client not configured")}
	}

	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt.Text}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      opts.Temperature,
			MaxOutputTokens:  opts.MaxTokens,
			ResponseMimeType: "application/json",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Candidate{}, &GenerationError{Provider: c.Name(), Kind: KindInvalidResponse, Err: fmt.Errorf("encode request: %w", err)}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Candidate{}, &GenerationError{Provider: c.Name(), Kind: KindUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Candidate{}, &GenerationError{Provider: c.Name(), Kind: transportKind(err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Candidate{}, &GenerationError{Provider: c.Name(), Kind: transportKind(err), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return Candidate{}, &GenerationError{Provider: c.Name(), Kind: statusKind(resp.StatusCode), Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 200))}
	}

	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Candidate{}, &GenerationError{Provider: c.Name(), Kind: KindInvalidResponse, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return Candidate{}, &GenerationError{Provider: c.Name(), Kind: KindInvalidResponse, Err: errors.New("no content in response")}
	}

	return parseCandidate(c.Name(), []byte(decoded.Candidates[0].Content.Parts[0].Text))
}

// transportKind distinguishes deadline hits from other transport failures.
func transportKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUnavailable
}

func statusKind(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindUnavailable
	}
}

func truncate(raw []byte, limit int) string {
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
