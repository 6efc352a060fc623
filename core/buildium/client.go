package buildium

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lease-sync/core/apierr"
	"lease-sync/core/paginate"
	"lease-sync/core/retry"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	// MaxPageSize is the largest limit the list endpoints accept.
	MaxPageSize = 1000

	// maxErrorBodySize bounds how much of an error response is kept.
	maxErrorBodySize = 64 * 1024
)

// Config holds connection settings for the source system.
type Config struct {
	BaseURL      string        `mapstructure:"base_url" default:"https://api.buildium.com"`
	ClientID     string        `mapstructure:"client_id" default:""`
	ClientSecret string        `mapstructure:"client_secret" default:""`
	Timeout      time.Duration `mapstructure:"timeout" default:"30s"`
	PageSize     int           `mapstructure:"page_size" default:"100"`
	MaxRecords   int           `mapstructure:"max_records" default:"50000"`
	// Policy overrides the standard retry policy when its Name is set.
	Policy retry.Policy
}

// Client talks to the source system's REST API.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client
	exec         *retry.Executor
	policy       retry.Policy
	fetcher      paginate.Fetcher
	logger       *zap.Logger
}

// NewClient creates a client. Missing credentials are a configuration error.
func NewClient(cfg Config, exec *retry.Executor, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, apierr.Configuration("buildium client id and secret are required")
	}
	if cfg.BaseURL == "" {
		return nil, apierr.Configuration("buildium base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := cfg.Policy
	if policy.Name == "" {
		policy = retry.Standard()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		http:         &http.Client{Timeout: timeout},
		exec:         exec,
		policy:       policy,
		fetcher: paginate.Fetcher{
			PageSize:    cfg.PageSize,
			MaxRecords:  cfg.MaxRecords,
			MaxPageSize: MaxPageSize,
			Logger:      logger,
		},
		logger: logger,
	}, nil
}

// get performs one GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	_, err := retry.Do(ctx, c.exec, c.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.do(ctx, op, path, query, out)
	})
	return err
}

func (c *Client) do(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-buildium-client-id", c.clientID)
	req.Header.Set("x-buildium-client-secret", c.clientSecret)
	req.Header.Set("Accept", "application/json")
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &apierr.Error{Kind: apierr.KindTransientServer, Op: op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return apierr.FromResponse(op, resp.StatusCode, resp.Header, body)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// walk pages through a list endpoint.
func walk[T any](ctx context.Context, c *Client, op, path string, filters *paginate.Filters, sizer func() int, visit paginate.VisitFunc[T]) (paginate.Result, error) {
	f := c.fetcher
	f.Sizer = sizer
	return paginate.Walk(ctx, f, op, func(ctx context.Context, limit, offset int) ([]T, error) {
		var page []T
		if err := c.get(ctx, op, path, filters.WithPage(limit, offset), &page); err != nil {
			return nil, err
		}
		return page, nil
	}, visit)
}

// list collects every record of a list endpoint.
func list[T any](ctx context.Context, c *Client, op, path string, filters *paginate.Filters) ([]T, error) {
	var all []T
	_, err := walk(ctx, c, op, path, filters, nil, func(page []T) (bool, error) {
		all = append(all, page...)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// UnitQuery filters the unit list.
type UnitQuery struct {
	PropertyIDs []int
}

func (q UnitQuery) filters() *paginate.Filters {
	return paginate.NewFilters().AddInts("propertyids", q.PropertyIDs...)
}

// LeaseQuery filters the lease list.
type LeaseQuery struct {
	PropertyIDs []int
	UnitIDs     []int
	Statuses    []string
	UpdatedFrom time.Time
}

func (q LeaseQuery) filters() *paginate.Filters {
	return paginate.NewFilters().
		AddInts("propertyids", q.PropertyIDs...).
		AddInts("unitids", q.UnitIDs...).
		AddArray("leasestatuses", q.Statuses...).
		SetTime("lastupdatedfrom", q.UpdatedFrom)
}

// TenantQuery filters the tenant list.
type TenantQuery struct {
	PropertyIDs []int
	UnitIDs     []int
}

func (q TenantQuery) filters() *paginate.Filters {
	return paginate.NewFilters().
		AddInts("propertyids", q.PropertyIDs...).
		AddInts("unitids", q.UnitIDs...)
}

// OwnerQuery filters the owner lists.
type OwnerQuery struct {
	PropertyIDs []int
	OwnerIDs    []int
}

func (q OwnerQuery) filters() *paginate.Filters {
	return paginate.NewFilters().
		AddInts("propertyids", q.PropertyIDs...).
		AddInts("ownerids", q.OwnerIDs...)
}

// ListProperties returns rental properties, optionally restricted to ids.
func (c *Client) ListProperties(ctx context.Context, ids []int) ([]Property, error) {
	return list[Property](ctx, c, "buildium.list properties", "/v1/rentals",
		paginate.NewFilters().AddInts("propertyids", ids...))
}

// ListUnits returns every unit matching q.
func (c *Client) ListUnits(ctx context.Context, q UnitQuery) ([]Unit, error) {
	return list[Unit](ctx, c, "buildium.list units", "/v1/rentals/units", q.filters())
}

// WalkUnits pages through units. sizer, when set, picks each page size.
func (c *Client) WalkUnits(ctx context.Context, q UnitQuery, sizer func() int, visit func([]Unit) (bool, error)) (paginate.Result, error) {
	return walk[Unit](ctx, c, "buildium.list units", "/v1/rentals/units", q.filters(), sizer, visit)
}

// ListLeases returns every lease matching q.
func (c *Client) ListLeases(ctx context.Context, q LeaseQuery) ([]Lease, error) {
	return list[Lease](ctx, c, "buildium.list leases", "/v1/leases", q.filters())
}

// WalkLeases pages through leases. sizer, when set, picks each page size.
func (c *Client) WalkLeases(ctx context.Context, q LeaseQuery, sizer func() int, visit func([]Lease) (bool, error)) (paginate.Result, error) {
	return walk[Lease](ctx, c, "buildium.list leases", "/v1/leases", q.filters(), sizer, visit)
}

// ListTenants returns every tenant matching q.
func (c *Client) ListTenants(ctx context.Context, q TenantQuery) ([]Tenant, error) {
	return list[Tenant](ctx, c, "buildium.list tenants", "/v1/leases/tenants", q.filters())
}

// ListRentalOwners returns every rental owner matching q.
func (c *Client) ListRentalOwners(ctx context.Context, q OwnerQuery) ([]RentalOwner, error) {
	return list[RentalOwner](ctx, c, "buildium.list rental owners", "/v1/rentals/owners", q.filters())
}

// ListAssociationOwners returns every association owner matching q.
func (c *Client) ListAssociationOwners(ctx context.Context, q OwnerQuery) ([]AssociationOwner, error) {
	return list[AssociationOwner](ctx, c, "buildium.list association owners", "/v1/associations/owners", q.filters())
}

// GetProperty returns one rental property.
func (c *Client) GetProperty(ctx context.Context, id int) (*Property, error) {
	var p Property
	if err := c.get(ctx, "buildium.get property", "/v1/rentals/"+strconv.Itoa(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetUnit returns one unit.
func (c *Client) GetUnit(ctx context.Context, id int) (*Unit, error) {
	var u Unit
	if err := c.get(ctx, "buildium.get unit", "/v1/rentals/units/"+strconv.Itoa(id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetLease returns one lease.
func (c *Client) GetLease(ctx context.Context, id int) (*Lease, error) {
	var l Lease
	if err := c.get(ctx, "buildium.get lease", "/v1/leases/"+strconv.Itoa(id), nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetTenant returns one tenant.
func (c *Client) GetTenant(ctx context.Context, id int) (*Tenant, error) {
	var t Tenant
	if err := c.get(ctx, "buildium.get tenant", "/v1/leases/tenants/"+strconv.Itoa(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
