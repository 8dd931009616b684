// Package oas is a client for an open accessibility service that computes
// per-cell reachability scores with a routing engine.
package oas

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/resilience"
)

const reachabilityPath = "/v1/accessibility/reachability"

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithBackoff sets the retry policy for transient failures.
func WithBackoff(b resilience.Backoff) Option {
	return func(c *Client) {
		c.backoff = b
	}
}

// WithBreaker sets the circuit breaker guarding the service.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// Client implements access.Provider against the accessibility service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	backoff    resilience.Backoff
	breaker    *resilience.Breaker
}

// NewClient creates a Client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		backoff:    resilience.DefaultBackoff(),
		breaker:    resilience.NewBreaker(resilience.DefaultBreakerConfig()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type supply struct {
	Locations [][2]float64 `json:"supply_locations"`
	Weights   []float64    `json:"supply_weights"`
}

type demand struct {
	Locations [][2]float64 `json:"demand_locations"`
	Weights   []int        `json:"demand_weights"`
}

type routing struct {
	Profile      string `json:"profile"`
	RangeType    string `json:"range_type"`
	LocationType string `json:"location_type"`
}

type responseOptions struct {
	Scale       bool    `json:"scale"`
	NoDataValue float64 `json:"no_data_value"`
}

type reachabilityBody struct {
	Supply   supply          `json:"supply"`
	Demand   demand          `json:"demand"`
	Decay    any             `json:"distance_decay"`
	Routing  routing         `json:"routing"`
	Response responseOptions `json:"response"`
}

type reachabilityResponse struct {
	Access []float64 `json:"access"`
	Count  []int     `json:"count"`
}

// Reachability posts one infrastructure's facilities and the population to
// the service. Transient failures are retried; repeated failures open the
// circuit.
func (c *Client) Reachability(ctx context.Context, req access.ReachabilityRequest) (*access.Reachability, error) {
	body, err := json.Marshal(newBody(req))
	if err != nil {
		return nil, eris.Wrap(err, "oas: encode request")
	}

	return resilience.Call(ctx, c.breaker, func(ctx context.Context) (*access.Reachability, error) {
		return resilience.Retry(ctx, c.backoff, "oas: reachability", func(ctx context.Context) (*access.Reachability, error) {
			return c.post(ctx, body)
		})
	})
}

func newBody(req access.ReachabilityRequest) reachabilityBody {
	weights := req.FacilityWeights
	if len(weights) != len(req.Facilities) {
		weights = make([]float64, len(req.Facilities))
		for i := range weights {
			weights[i] = 1
		}
	}
	return reachabilityBody{
		Supply: supply{Locations: pairs(req.Facilities), Weights: weights},
		Demand: demand{Locations: pairs(req.Population.Locations), Weights: req.Population.Weights},
		Decay:  req.Decay,
		Routing: routing{
			Profile:      req.TravelMode,
			RangeType:    "time",
			LocationType: "destination",
		},
		Response: responseOptions{NoDataValue: access.NoData},
	}
}

func (c *Client) post(ctx context.Context, body []byte) (*access.Reachability, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "oas: rate limit")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+reachabilityPath, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "oas: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "oas: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := eris.Errorf("oas: service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resilience.IsTransientStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var out reachabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "oas: parse response")
	}
	if out.Access == nil {
		return nil, eris.New("oas: response has no access values")
	}
	return &access.Reachability{Values: out.Access, Counts: out.Count}, nil
}

func pairs(points []access.Point) [][2]float64 {
	out := make([][2]float64, len(points))
	for i, p := range points {
		out[i] = [2]float64{p.Lon, p.Lat}
	}
	return out
}
