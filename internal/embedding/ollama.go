package embedding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/logging"
)

type OllamaConfig struct {
	BaseURL          string
	Model            string
	Token            string
	Timeout          time.Duration
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

// OllamaProvider calls POST {BaseURL}/api/embed behind a circuit breaker.
type OllamaProvider struct {
	cfg        OllamaConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]float32]
	log        zerolog.Logger
}

func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &domain.ConfigurationError{Component: "embedding", Msg: "base URL is not set"}
	}
	if cfg.Model == "" {
		return nil, &domain.ConfigurationError{Component: "embedding", Msg: "model is not set"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	log := logging.Component("embedding")
	settings := gobreaker.Settings{
		Name:    "ollama-embed",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Rejected credentials and caller cancellation say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || domain.IsConfigurationError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}

	return &OllamaProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker[[]float32](settings),
		log:        log,
	}, nil
}

func (o *OllamaProvider) Model() string {
	return o.cfg.Model
}

func (o *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := o.breaker.Execute(func() ([]float32, error) {
		return o.embed(ctx, text)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("ollama embed: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return vec, err
}

func (o *OllamaProvider) embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]any{
		"model": o.cfg.Model,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.ConfigurationError{Component: "embedding", Msg: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if o.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.Token)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("ollama embed read: %w: %v", domain.ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &domain.ConfigurationError{Component: "embedding", Msg: fmt.Sprintf("credentials rejected (status %d)", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ollama embed: %w: status %d: %s", domain.ErrUpstreamUnavailable, resp.StatusCode, truncate(body, 200))
	}

	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama embed: %w: empty response", domain.ErrUpstreamUnavailable)
	}
	return out.Embeddings[0], nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
