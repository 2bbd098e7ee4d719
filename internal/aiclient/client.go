package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/pagelens/internal/credentials"
	"github.com/ent0n29/pagelens/internal/pagedata"
	"github.com/ent0n29/pagelens/internal/policy"
	"github.com/ent0n29/pagelens/internal/reliability"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"
)

// Generation parameters per call shape.
const (
	chatMaxTokens       = 800
	chatTemperature     = 0.7
	analysisMaxTokens   = 500
	analysisTemperature = 0.7
	similarMaxTokens    = 400
	similarTemperature  = 0.8
)

// Client talks to an OpenAI-compatible API. It holds no credentials; every
// call receives the credentials to use, so one Client is safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func New(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 60 * time.Second,
		}
	}
	return &Client{
		baseURL: baseURL,
		client:  httpClient,
		now:     time.Now,
	}
}

// CheckCredentials lists models with the key and returns a classified error
// when the key is not accepted.
func (c *Client) CheckCredentials(ctx context.Context, creds credentials.Credentials) error {
	if !creds.Valid() {
		return ErrNoCredentials
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req, creds)

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return readStatusError(res)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

// ValidateCredentials reports whether the key is accepted. It never returns
// an error; any failure counts as invalid.
func (c *Client) ValidateCredentials(ctx context.Context, creds credentials.Credentials) bool {
	if err := c.CheckCredentials(ctx, creds); err != nil {
		log.Printf("credential validation failed: %v", err)
		return false
	}
	return true
}

// GenerateChatResponse answers userMessage in the context of page and the
// trailing history window.
func (c *Client) GenerateChatResponse(ctx context.Context, creds credentials.Credentials, userMessage string, page *pagedata.PageData, history []ChatMessage) (string, error) {
	if !creds.Valid() {
		return "", ErrNoCredentials
	}
	return c.complete(ctx, creds, completionRequest{
		Model:       modelFor(creds),
		Messages:    buildChatMessages(userMessage, page, history),
		MaxTokens:   chatMaxTokens,
		Temperature: chatTemperature,
	})
}

// AnalyzePageData asks for a structured analysis. An unparseable reply yields
// the fallback analysis with Degraded set; request failures are returned.
func (c *Client) AnalyzePageData(ctx context.Context, creds credentials.Credentials, page *pagedata.PageData) (Analysis, error) {
	if !creds.Valid() {
		return Analysis{}, ErrNoCredentials
	}
	reply, err := c.complete(ctx, creds, completionRequest{
		Model: modelFor(creds),
		Messages: []completionMessage{
			{Role: "system", Content: analysisSystemInstruction},
			{Role: "user", Content: analysisPrompt(page)},
		},
		MaxTokens:   analysisMaxTokens,
		Temperature: analysisTemperature,
	})
	if err != nil {
		return Analysis{}, err
	}
	return parseAnalysis(reply, c.now().UTC()), nil
}

// GetRecommendations returns the recommendations section of a fresh analysis.
func (c *Client) GetRecommendations(ctx context.Context, creds credentials.Credentials, page *pagedata.PageData) ([]string, bool, error) {
	analysis, err := c.AnalyzePageData(ctx, creds, page)
	if err != nil {
		return nil, false, err
	}
	out := make([]string, 0, len(analysis.Recommendations))
	for _, r := range analysis.Recommendations {
		out = append(out, string(r))
	}
	return out, analysis.Degraded, nil
}

// FindSimilarProducts asks for alternatives to product. Only missing or
// rejected credentials are returned as errors; any other failure degrades to
// a placeholder list.
func (c *Client) FindSimilarProducts(ctx context.Context, creds credentials.Credentials, product pagedata.Product) (SimilarProducts, error) {
	if !creds.Valid() {
		return SimilarProducts{}, ErrNoCredentials
	}
	reply, err := c.complete(ctx, creds, completionRequest{
		Model: modelFor(creds),
		Messages: []completionMessage{
			{Role: "system", Content: similarSystemInstruction},
			{Role: "user", Content: similarProductsPrompt(product)},
		},
		MaxTokens:   similarMaxTokens,
		Temperature: similarTemperature,
	})
	if err != nil {
		if reliability.Classify(err) == reliability.ClassBadCredentials {
			return SimilarProducts{}, err
		}
		log.Printf("similar products request failed: %v", err)
		return SimilarProducts{Products: fallbackSimilarProducts(), Degraded: true}, nil
	}

	products, ok := ParseOr(reply, fallbackAlternatives)
	if products == nil {
		products = []Alternative{}
	}
	return SimilarProducts{Products: products, Degraded: !ok}, nil
}

// GetProductReviews is a placeholder: review analysis is not implemented and
// the same canned list is returned for every product without a network call.
func (c *Client) GetProductReviews(_ pagedata.Product) []CannedReview {
	return []CannedReview{
		{Rating: 5, Text: "Great product, highly recommended!"},
		{Rating: 4, Text: "Good value for money"},
	}
}

func (c *Client) complete(ctx context.Context, creds credentials.Credentials, body completionRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.authorize(req, creds)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", readStatusError(res)
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil || parsed.Choices[0].Message.Content == nil {
		return "", ErrMalformedResponse
	}
	reply := *parsed.Choices[0].Message.Content
	if strings.TrimSpace(reply) == "" {
		return "", ErrMalformedResponse
	}
	return reply, nil
}

func (c *Client) authorize(req *http.Request, creds credentials.Credentials) {
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("Accept", "application/json")
}

func modelFor(creds credentials.Credentials) string {
	if m := strings.TrimSpace(creds.AIModel); m != "" {
		return m
	}
	return DefaultModel
}

func readStatusError(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return &StatusError{
		StatusCode: res.StatusCode,
		Body:       policy.Redact(strings.TrimSpace(string(body))),
	}
}

// IsStatus reports whether err carries the given upstream status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
