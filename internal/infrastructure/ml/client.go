package ml

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"PaperWatcher/internal/vectorizer"
)

// Config points the client at a sentence-embedding service.
type Config struct {
	Endpoint  string
	Model     string
	APIKey    string
	MaxLength int
	Timeout   time.Duration
}

// Client talks to an external embedding service. Endpoints ending in /v1/embeddings
// receive an OpenAI-style payload; anything else gets {"texts", "max_length"}.
type Client struct {
	cfg    Config
	openAI bool
	http   *http.Client
}

var _ vectorizer.Backend = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	openAI := false
	if parsed, err := url.Parse(strings.TrimSpace(cfg.Endpoint)); err == nil {
		openAI = strings.HasSuffix(parsed.Path, "/v1/embeddings")
	}
	return &Client{
		cfg:    cfg,
		openAI: openAI,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Name reports the configured model.
func (c *Client) Name() string {
	if c.cfg.Model != "" {
		return c.cfg.Model
	}
	return c.cfg.Endpoint
}

// Probe embeds a single word to confirm the service answers and learn the dimension.
func (c *Client) Probe(ctx context.Context) (int, error) {
	if strings.TrimSpace(c.cfg.Endpoint) == "" {
		return 0, fmt.Errorf("embedding endpoint is not configured")
	}
	vectors, err := c.Embed(ctx, []string{"probe"})
	if err != nil {
		return 0, err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("probe returned no vector")
	}
	return len(vectors[0]), nil
}

type embedRequest struct {
	Texts     []string `json:"texts,omitempty"`
	Input     []string `json:"input,omitempty"`
	Model     string   `json:"model,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Data       []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one raw vector per text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload := embedRequest{Texts: texts, MaxLength: c.cfg.MaxLength}
	if c.openAI {
		payload = embedRequest{Input: texts, Model: c.cfg.Model}
	}

	var resp embedResponse
	if err := c.post(ctx, payload, &resp); err != nil {
		return nil, err
	}

	vectors := resp.Embeddings
	if len(vectors) == 0 && len(resp.Data) > 0 {
		sort.Slice(resp.Data, func(i, j int) bool {
			return resp.Data[i].Index < resp.Data[j].Index
		})
		vectors = make([][]float32, 0, len(resp.Data))
		for _, row := range resp.Data {
			vectors = append(vectors, row.Embedding)
		}
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding response missing vectors")
	}
	return vectors, nil
}

func (c *Client) post(ctx context.Context, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
