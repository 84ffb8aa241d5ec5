package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"research-flowstream/pkg/embedding"
)

const (
	DefaultModel   = "sentence-transformers/all-MiniLM-L6-v2"
	defaultBaseURL = "https://api-inference.huggingface.co/pipeline/feature-extraction"
)

// Provider calls the Hugging Face feature-extraction pipeline.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ embedding.Embedder = (*Provider)(nil)

type featureRequest struct {
	Inputs  string         `json:"inputs"`
	Options map[string]any `json:"options,omitempty"`
}

func NewProvider(apiKey, model string, client *http.Client) *Provider {
	if model == "" {
		model = DefaultModel
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   model,
		client:  client,
	}
}

// WithBaseURL points the provider at another feature-extraction host.
func (p *Provider) WithBaseURL(baseURL string) *Provider {
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Provider) Dimension() int {
	return embedding.DefaultDimension
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(featureRequest{
		Inputs:  text,
		Options: map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface api error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	vec, err := decodeFeatures(bodyBytes)
	if err != nil {
		return nil, err
	}
	return embedding.Normalize(vec), nil
}

// decodeFeatures accepts a pooled sentence vector ([]float) or per-token
// vectors ([][]float). Token vectors are mean-pooled.
func decodeFeatures(body []byte) ([]float32, error) {
	var pooled []float32
	if err := json.Unmarshal(body, &pooled); err == nil && len(pooled) > 0 {
		return pooled, nil
	}

	var tokens [][]float32
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode features: %w", err)
	}
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, fmt.Errorf("empty features from huggingface api")
	}

	mean := make([]float32, len(tokens[0]))
	for _, tok := range tokens {
		if len(tok) != len(mean) {
			return nil, fmt.Errorf("ragged token features: %d vs %d", len(tok), len(mean))
		}
		for i, v := range tok {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float32(len(tokens))
	}
	return mean, nil
}
