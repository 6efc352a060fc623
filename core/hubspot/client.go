package hubspot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lease-sync/core/apierr"
	"lease-sync/core/paginate"
	"lease-sync/core/retry"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	// MaxBatchSize is the largest number of inputs a batch endpoint accepts.
	MaxBatchSize = 100

	// maxSearchLimit is the largest page the search endpoint returns.
	maxSearchLimit = 100

	maxErrorBodySize = 64 * 1024
)

// Config holds connection settings for the target system.
type Config struct {
	BaseURL string        `mapstructure:"base_url" default:"https://api.hubapi.com"`
	Token   string        `mapstructure:"token" default:""`
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`

	// BatchSize is clamped to MaxBatchSize.
	BatchSize int `mapstructure:"batch_size" default:"100"`

	// Standard and Search override the retry policies when their Name is set.
	Standard retry.Policy
	Search   retry.Policy
}

// Client talks to the target system's REST API.
type Client struct {
	baseURL   string
	token     string
	http      *http.Client
	exec      *retry.Executor
	standard  retry.Policy
	search    retry.Policy
	batchSize int
	logger    *zap.Logger
}

// NewClient creates a client. A missing token is a configuration error.
func NewClient(cfg Config, exec *retry.Executor, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, apierr.Configuration("hubspot access token is required")
	}
	if cfg.BaseURL == "" {
		return nil, apierr.Configuration("hubspot base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		exec:      exec,
		standard:  cfg.Standard,
		search:    cfg.Search,
		batchSize: cfg.BatchSize,
		logger:    logger,
	}
	if c.standard.Name == "" {
		c.standard = retry.Standard()
	}
	if c.search.Name == "" {
		c.search = retry.Search()
	}
	if c.batchSize <= 0 || c.batchSize > MaxBatchSize {
		c.batchSize = MaxBatchSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c.http = &http.Client{Timeout: timeout}
	return c, nil
}

// requestConfig describes one API call.
type requestConfig struct {
	op     string
	method string
	path   string
	query  url.Values
	body   interface{}
	search bool
}

// call runs a request under the matching retry policy and decodes into out.
func (c *Client) call(ctx context.Context, rc requestConfig, out interface{}) error {
	policy := c.standard
	if rc.search {
		policy = c.search
	}

	var payload []byte
	if rc.body != nil {
		b, err := json.Marshal(rc.body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", rc.op, err)
		}
		payload = b
	}

	_, err := retry.Do(ctx, c.exec, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.do(ctx, rc, payload, out)
	})
	return err
}

func (c *Client) do(ctx context.Context, rc requestConfig, payload []byte, out interface{}) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, rc.method, c.baseURL+rc.path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(rc.query) > 0 {
		req.URL.RawQuery = rc.query.Encode()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &apierr.Error{Kind: apierr.KindTransientServer, Op: rc.op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return apierr.FromResponse(rc.op, resp.StatusCode, resp.Header, errorMessage(raw))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", rc.op, err)
	}
	return nil
}

// errorMessage extracts the "message" field of an error body, falling back
// to the raw body.
func errorMessage(raw []byte) []byte {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return []byte(e.Message)
	}
	return raw
}

// chunk splits n items into batches of at most size.
func chunk(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// cursorFetcher returns the fetcher used for cursor pagination.
func (c *Client) cursorFetcher(pageSize int) paginate.Fetcher {
	return paginate.Fetcher{PageSize: pageSize, Logger: c.logger}
}
