package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// HTTPSource reads events from a JSON endpoint such as the one served by
// cmd/simulator: GET {endpoint}/events?from=RFC3339&to=RFC3339.
type HTTPSource struct {
	client   *http.Client
	endpoint string
}

type HTTPSourceConfig struct {
	Endpoint string
	Timeout  time.Duration
}

func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &HTTPSource{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
	}
}

type eventsResponse struct {
	From   time.Time         `json:"from"`
	To     time.Time         `json:"to"`
	Events []models.RawEvent `json:"events"`
}

func (s *HTTPSource) Fetch(ctx context.Context, from, to time.Time) ([]models.RawEvent, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339Nano))
	q.Set("to", to.UTC().Format(time.RFC3339Nano))
	target := s.endpoint + "/events?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var body eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	events := body.Events[:0]
	for _, e := range body.Events {
		// Keep the half-open contract even if the server is sloppy about bounds.
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			continue
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}

	logger.WithComponent("source").Debugf("Fetched %d events from %s", len(events), s.endpoint)
	return events, nil
}

func (s *HTTPSource) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
