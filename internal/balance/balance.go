// Package balance is the boundary to the earnings component, which owns the
// driver's accumulated balance. The payout service only asks "how much is
// available right now"; it never computes or caches the figure.
package balance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Source supplies a driver's available balance at call time.
type Source interface {
	Available(ctx context.Context, driverID string) (decimal.Decimal, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, driverID string) (decimal.Decimal, error)

func (f SourceFunc) Available(ctx context.Context, driverID string) (decimal.Decimal, error) {
	return f(ctx, driverID)
}

// HTTPSource queries the earnings service over HTTP.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds an HTTPSource for the given earnings service base URL.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type balanceResponse struct {
	DriverID  string `json:"driver_id"`
	Available string `json:"available"`
}

// Available GETs /internal/drivers/{id}/balance and returns the advertised
// available amount.
func (s *HTTPSource) Available(ctx context.Context, driverID string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/internal/drivers/%s/balance", s.baseURL, driverID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query earnings service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("earnings service returned %d for driver %s", resp.StatusCode, driverID)
	}
	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode balance response: %w", err)
	}
	avail, err := decimal.NewFromString(body.Available)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse available balance %q: %w", body.Available, err)
	}
	if avail.IsNegative() {
		return decimal.Zero, fmt.Errorf("earnings service reported negative balance %s for driver %s", avail, driverID)
	}
	return avail, nil
}
