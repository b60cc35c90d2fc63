package trending

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
)

// Source fetches the current trending list.
type Source interface {
	FetchTrending(ctx context.Context) ([]domain.Item, error)
	Name() string
}

type HTTPConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// HTTPSource reads a JSON feed of the form {"items": [...]}.
type HTTPSource struct {
	cfg        HTTPConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]domain.Item]
}

func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, &domain.ConfigurationError{Component: "trending", Msg: "feed URL is not set"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTPSource{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[[]domain.Item](gobreaker.Settings{
			Name:    "trending-feed",
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}, nil
}

func (s *HTTPSource) Name() string { return "feed" }

func (s *HTTPSource) FetchTrending(ctx context.Context) ([]domain.Item, error) {
	items, err := s.breaker.Execute(func() ([]domain.Item, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, domain.ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("trending feed: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return items, nil
}

func (s *HTTPSource) fetch(ctx context.Context) ([]domain.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trending feed: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("trending feed: %w: status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var body struct {
		Items []domain.Item `json:"items"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("trending feed decode: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return body.Items, nil
}

// PopularLister is the catalog query behind CatalogSource.
type PopularLister interface {
	PopularContent(ctx context.Context, limit int) ([]domain.Item, error)
}

// CatalogSource treats the most popular catalog items as trending.
type CatalogSource struct {
	repo  PopularLister
	limit int
}

func NewCatalogSource(repo PopularLister, limit int) *CatalogSource {
	if limit <= 0 {
		limit = 100
	}
	return &CatalogSource{repo: repo, limit: limit}
}

func (s *CatalogSource) Name() string { return "catalog" }

func (s *CatalogSource) FetchTrending(ctx context.Context) ([]domain.Item, error) {
	items, err := s.repo.PopularContent(ctx, s.limit)
	if err != nil {
		return nil, fmt.Errorf("catalog trending: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return items, nil
}
