// Package backend provides the client for the remote tour backend. The
// offline engine treats it as a black box: an entity-graph fetch by id and a
// raw image fetch by URL.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/simbavista/tour360-go/internal/domain/entities/tours"
	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
)

// Client fetches tour data from the remote backend. Network failures
// propagate as-is; retry policy lives with the caller's upload pipeline.
type Client interface {
	FetchTourGraph(ctx context.Context, tourID string) (*tours.TourSnapshot, error)
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// HTTPClient is the JSON-over-HTTP backend client.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.ChanneledLogger
}

// NewHTTPClient creates a backend client for the given base URL.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *logging.ChanneledLogger) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchTourGraph fetches the complete entity graph for a tour: the tour row,
// all of its floor plans, and every hotspot those floor plans carry.
func (c *HTTPClient) FetchTourGraph(ctx context.Context, tourID string) (*tours.TourSnapshot, error) {
	start := time.Now()

	endpoint := fmt.Sprintf("%s/tours/%s/graph", c.baseURL, url.PathEscape(tourID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tour graph request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tour graph fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tour graph fetch for %s returned status %d", tourID, resp.StatusCode)
	}

	var snapshot tours.TourSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode tour graph: %w", err)
	}

	if c.logger != nil {
		c.logger.Backend().Info("Tour graph fetched",
			"tourId", tourID,
			"floorPlans", len(snapshot.FloorPlans),
			"hotspots", len(snapshot.Hotspots),
			"duration", time.Since(start))
	}
	return &snapshot, nil
}

// FetchImage downloads raw image bytes from an absolute URL.
func (c *HTTPClient) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch %s returned status %d", imageURL, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
