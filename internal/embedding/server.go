package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ServerEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
// Determinism is delegated to the model: the contract requires stably
// equivalent vectors for identical input, which embedding models provide.
type ServerEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dim     int
	client  *http.Client
}

// ServerConfig configures the server-backed embedder.
type ServerConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// NewServerEmbedder creates an embedder against an OpenAI-compatible
// embeddings endpoint. The API key is read from the configured environment
// variable; an empty key is allowed for local servers that skip auth.
func NewServerEmbedder(cfg ServerConfig) *ServerEmbedder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ServerEmbedder{
		baseURL: cfg.BaseURL,
		apiKey:  os.Getenv(cfg.APIKeyEnv),
		model:   cfg.Model,
		dim:     cfg.Dimension,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *ServerEmbedder) Dimension() int { return e.dim }

func (e *ServerEmbedder) Model() string { return e.model }

type embeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed posts the normalized text to the embeddings endpoint. Empty input
// short-circuits to the zero vector without a network call.
func (e *ServerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	normalized := Normalize(text)
	if normalized == "" {
		return make([]float32, e.dim), nil
	}

	body, err := json.Marshal(embeddingsRequest{Model: e.model, Input: normalized})
	if err != nil {
		return nil, fmt.Errorf("marshalling embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embeddings endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, msg)
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding embeddings response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embeddings response contained no data")
	}

	vec := parsed.Data[0].Embedding
	if len(vec) != e.dim {
		return nil, fmt.Errorf("embeddings endpoint returned dimension %d, want %d", len(vec), e.dim)
	}
	return vec, nil
}
