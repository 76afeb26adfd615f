package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker"

	"voice-assistant/provisioner/internal/config"
	"voice-assistant/provisioner/internal/orchestrator"
)

const ollamaProbeName = "ollama"

// OllamaClient talks to the model service's HTTP API. Readiness and the
// model inventory use the native API; warm-up goes through the
// OpenAI-compatible endpoint the service also exposes.
type OllamaClient struct {
	baseURL      string
	healthPath   string
	http         *http.Client
	chat         openai.Client
	warmupPrompt string
	cb           *gobreaker.CircuitBreaker
}

// NewOllamaClient constructs an OllamaClient. Every native request is bounded
// by cfg.ProbeTimeout and the warm-up completion by cfg.WarmupTimeout.
func NewOllamaClient(cfg config.ModelConfig, cb *gobreaker.CircuitBreaker) *OllamaClient {
	base := strings.TrimRight(cfg.URL, "/")
	hc := &http.Client{Timeout: cfg.ProbeTimeout}

	chatOpts := []option.RequestOption{
		option.WithBaseURL(base + "/v1/"),
		// The service ignores the key but the SDK requires one.
		option.WithAPIKey("ollama"),
		option.WithMaxRetries(0),
	}
	if cfg.WarmupTimeout > 0 {
		chatOpts = append(chatOpts, option.WithRequestTimeout(cfg.WarmupTimeout))
	}

	return &OllamaClient{
		baseURL:      base,
		healthPath:   cfg.HealthPath,
		http:         hc,
		chat:         openai.NewClient(chatOpts...),
		warmupPrompt: cfg.WarmupPrompt,
		cb:           cb,
	}
}

// Ping succeeds when the health endpoint answers with a 2xx status.
func (c *OllamaClient) Ping(ctx context.Context) error {
	resp, err := c.get(ctx, c.healthPath)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ollama returned %s", resp.Status)
	}
	return nil
}

type tagsResponse struct {
	Models []struct {
		Name       string    `json:"name"`
		Size       int64     `json:"size"`
		Digest     string    `json:"digest"`
		ModifiedAt time.Time `json:"modified_at"`
	} `json:"models"`
}

// Models lists the models available locally in the service.
func (c *OllamaClient) Models(ctx context.Context) ([]orchestrator.ModelInfo, error) {
	resp, err := c.get(ctx, "/api/tags")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing models: ollama returned %s", resp.Status)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}

	models := make([]orchestrator.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, orchestrator.ModelInfo{
			Name:       m.Name,
			Size:       m.Size,
			Digest:     m.Digest,
			ModifiedAt: m.ModifiedAt,
		})
	}
	return models, nil
}

// Warmup sends a one-line chat completion so the model is loaded into memory
// before the first real request.
func (c *OllamaClient) Warmup(ctx context.Context, model string) error {
	resp, err := c.chat.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(c.warmupPrompt),
		},
		Model: openai.ChatModel(model),
	})
	if err != nil {
		return fmt.Errorf("warming up %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("warming up %s: no choices in response", model)
	}
	return nil
}

// Probe reports whether the service answers its health endpoint.
func (c *OllamaClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	return guardedProbe(ctx, c.cb, ollamaProbeName, func() error {
		return c.Ping(ctx)
	})
}

func (c *OllamaClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama at %s: %w", c.baseURL, err)
	}
	return resp, nil
}
