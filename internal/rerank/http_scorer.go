package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	DefaultScorerEndpoint = "http://localhost:9659"
	DefaultScorerModel    = "cross-encoder-small"
	DefaultScorerTimeout  = 30 * time.Second
)

// HTTPScorerConfig holds configuration for the cross-encoder sidecar client.
type HTTPScorerConfig struct {
	// Endpoint is the scoring server URL (default: http://localhost:9659)
	Endpoint string

	// Model is the cross-encoder model alias (default: cross-encoder-small)
	Model string

	// Timeout is the per-request timeout (default: 30s)
	Timeout time.Duration

	// Instruction is an optional task instruction passed to the model
	Instruction string

	// SkipHealthCheck skips the health check during creation (for testing)
	SkipHealthCheck bool
}

// HTTPScorer scores query/document pairs via a cross-encoder sidecar
// exposing a /rerank endpoint.
type HTTPScorer struct {
	client   *http.Client
	config   HTTPScorerConfig
	endpoint string
	mu       sync.RWMutex
	closed   bool
}

var _ Scorer = (*HTTPScorer)(nil)

// NewHTTPScorer creates a scorer client and verifies the sidecar is
// reachable unless SkipHealthCheck is set.
func NewHTTPScorer(ctx context.Context, cfg HTTPScorerConfig) (*HTTPScorer, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultScorerEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultScorerModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultScorerTimeout
	}

	s := &HTTPScorer{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config:   cfg,
		endpoint: cfg.Endpoint,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.healthCheck(checkCtx); err != nil {
			return nil, fmt.Errorf("scorer health check failed: %w", err)
		}
	}

	slog.Debug("http_scorer_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))

	return s, nil
}

func (s *HTTPScorer) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to scoring server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("scoring server unhealthy (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

type scoreRequest struct {
	Query       string   `json:"query"`
	Documents   []string `json:"documents"`
	Model       string   `json:"model,omitempty"`
	Instruction string   `json:"instruction,omitempty"`
}

type scoreResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
	Model            string  `json:"model"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// Score sends the full batch to the sidecar and maps the response back
// to input order. Indices the server omits keep a zero score.
func (s *HTTPScorer) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("scorer is closed")
	}
	s.mu.RUnlock()

	if len(documents) == 0 {
		return []float64{}, nil
	}

	reqBody := scoreRequest{
		Query:       query,
		Documents:   documents,
		Model:       s.config.Model,
		Instruction: s.config.Instruction,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, s.endpoint+"/rerank", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("score request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("scoring failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode score response: %w", err)
	}

	scores := make([]float64, len(documents))
	for _, r := range result.Results {
		if r.Index >= 0 && r.Index < len(scores) {
			scores[r.Index] = r.Score
		}
	}

	slog.Debug("scorer_http_timing",
		slog.Int("doc_count", len(documents)),
		slog.Duration("total", time.Since(start)),
		slog.Float64("server_time_ms", result.ProcessingTimeMs))

	return scores, nil
}

// Warm runs a minimal scoring call so the sidecar loads its model
// before real traffic arrives.
func (s *HTTPScorer) Warm(ctx context.Context) error {
	_, err := s.Score(ctx, "warm up", []string{"ready"})
	return err
}

func (s *HTTPScorer) Available(ctx context.Context) bool {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false
	}
	s.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.healthCheck(checkCtx) == nil
}

func (s *HTTPScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}
