// Package httpsource implements nodesource.Source over a JSON HTTP API:
//
//	GET  {base}/v1/nodes/{id}          expand by id
//	GET  {base}/v1/nearest?lat=&lng=   expand by position
//	POST {base}/v1/nodes/{id}/settle   settle the viewer at a node
//
// Every endpoint answers with a node document; 404 maps to
// nodesource.ErrNotFound.
package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/panoroam/internal/httpx"
	"github.com/BaSui01/panoroam/nodesource"
	"github.com/BaSui01/panoroam/types"
)

const providerName = "node_source"

// Config configures the HTTP node source.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RequestsPerSecond throttles calls; zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

// Client is an HTTP nodesource.Source.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ nodesource.Source = (*Client)(nil)

// New creates a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:    cfg,
		http:   httpx.Client(cfg.Timeout),
		logger: logger.With(zap.String("component", "node_source")),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Expand implements nodesource.Source.
func (c *Client) Expand(ctx context.Context, q nodesource.Query) (*nodesource.Node, error) {
	switch {
	case q.Position != nil:
		v := url.Values{}
		v.Set("lat", strconv.FormatFloat(q.Position.Lat, 'f', -1, 64))
		v.Set("lng", strconv.FormatFloat(q.Position.Lng, 'f', -1, 64))
		return c.do(ctx, http.MethodGet, "/v1/nearest?"+v.Encode(), q.String())
	case q.NodeID != "":
		return c.do(ctx, http.MethodGet, "/v1/nodes/"+url.PathEscape(q.NodeID), q.String())
	default:
		return nil, types.NewError(types.ErrInvalidRequest, "empty node query")
	}
}

// Settle implements nodesource.Source.
func (c *Client) Settle(ctx context.Context, nodeID string) (*nodesource.Node, error) {
	if nodeID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty node id")
	}
	return c.do(ctx, http.MethodPost, "/v1/nodes/"+url.PathEscape(nodeID)+"/settle", nodeID)
}

func (c *Client) do(ctx context.Context, method, path, what string) (*nodesource.Node, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	httpx.TagRequest(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, httpx.TransportError(err, providerName)
	}
	defer httpx.SafeCloseBody(resp.Body)

	c.logger.Debug("node source call", append(httpx.StepFields(ctx),
		zap.String("method", method),
		zap.String("query", what),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))...)

	if resp.StatusCode == http.StatusNotFound {
		return nil, nodesource.ErrNotFound.WithMessage("no node found for %s", what)
	}
	if resp.StatusCode >= 400 {
		return nil, httpx.MapHTTPError(resp.StatusCode, httpx.ReadErrorMessage(resp.Body), providerName)
	}

	var node nodesource.Node
	if err := json.NewDecoder(resp.Body).Decode(&node); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "malformed node document").
			WithCause(err).WithProvider(providerName)
	}
	if node.ID == "" {
		return nil, types.NewError(types.ErrUpstreamError, "node document without id").
			WithProvider(providerName)
	}
	return &node, nil
}
