package hubspot

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"lease-sync/core/paginate"
)

// Object is a CRM object.
type Object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Archived   bool              `json:"archived,omitempty"`
}

type propertiesBody struct {
	Properties map[string]string `json:"properties"`
}

func objectPath(objectType string) string {
	return "/crm/v3/objects/" + url.PathEscape(objectType)
}

// Create creates an object.
func (c *Client) Create(ctx context.Context, objectType string, props map[string]string) (*Object, error) {
	var out Object
	err := c.call(ctx, requestConfig{
		op:     "hubspot.create " + objectType,
		method: http.MethodPost,
		path:   objectPath(objectType),
		body:   propertiesBody{Properties: props},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Update patches an object's properties.
func (c *Client) Update(ctx context.Context, objectType, id string, props map[string]string) (*Object, error) {
	var out Object
	err := c.call(ctx, requestConfig{
		op:     "hubspot.update " + objectType,
		method: http.MethodPatch,
		path:   objectPath(objectType) + "/" + url.PathEscape(id),
		body:   propertiesBody{Properties: props},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete archives an object.
func (c *Client) Delete(ctx context.Context, objectType, id string) error {
	return c.call(ctx, requestConfig{
		op:     "hubspot.delete " + objectType,
		method: http.MethodDelete,
		path:   objectPath(objectType) + "/" + url.PathEscape(id),
	}, nil)
}

// GetByProperty reads an object by a unique property. A missing object
// returns an apierr NotFound error.
func (c *Client) GetByProperty(ctx context.Context, objectType, property, value string, props []string) (*Object, error) {
	q := url.Values{}
	q.Set("idProperty", property)
	for _, p := range props {
		q.Add("properties", p)
	}
	var out Object
	err := c.call(ctx, requestConfig{
		op:     "hubspot.get " + objectType,
		method: http.MethodGet,
		path:   objectPath(objectType) + "/" + url.PathEscape(value),
		query:  q,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Filter is one search condition.
type Filter struct {
	PropertyName string   `json:"propertyName"`
	Operator     string   `json:"operator"`
	Value        string   `json:"value,omitempty"`
	Values       []string `json:"values,omitempty"`
}

// FilterGroup ANDs its filters; groups are ORed.
type FilterGroup struct {
	Filters []Filter `json:"filters"`
}

// Eq returns a single-filter group matching property == value.
func Eq(property, value string) FilterGroup {
	return FilterGroup{Filters: []Filter{{PropertyName: property, Operator: "EQ", Value: value}}}
}

// SearchRequest is the body of a search call.
type SearchRequest struct {
	FilterGroups []FilterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	After        string        `json:"after,omitempty"`
}

// Paging carries the next cursor.
type Paging struct {
	Next struct {
		After string `json:"after"`
	} `json:"next"`
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Total   int      `json:"total"`
	Results []Object `json:"results"`
	Paging  *Paging  `json:"paging,omitempty"`
}

// NextAfter returns the cursor of the next page, empty at the end.
func (r SearchResponse) NextAfter() string {
	if r.Paging == nil {
		return ""
	}
	return r.Paging.Next.After
}

// Search runs one page of a filter-group search under the search policy.
func (c *Client) Search(ctx context.Context, objectType string, req SearchRequest) (*SearchResponse, error) {
	if req.Limit <= 0 || req.Limit > maxSearchLimit {
		req.Limit = maxSearchLimit
	}
	var out SearchResponse
	err := c.call(ctx, requestConfig{
		op:     "hubspot.search " + objectType,
		method: http.MethodPost,
		path:   objectPath(objectType) + "/search",
		body:   req,
		search: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchAll walks every page of a search.
func (c *Client) SearchAll(ctx context.Context, objectType string, req SearchRequest) ([]Object, error) {
	var all []Object
	_, err := paginate.WalkCursor(ctx, c.cursorFetcher(maxSearchLimit), "hubspot.search "+objectType,
		func(ctx context.Context, limit int, after string) ([]Object, string, error) {
			page := req
			page.Limit = limit
			page.After = after
			resp, err := c.Search(ctx, objectType, page)
			if err != nil {
				return nil, "", err
			}
			return resp.Results, resp.NextAfter(), nil
		},
		func(objs []Object) (bool, error) {
			all = append(all, objs...)
			return true, nil
		})
	if err != nil {
		return nil, err
	}
	return all, nil
}

type batchReadInput struct {
	ID string `json:"id"`
}

type batchReadBody struct {
	IDProperty string           `json:"idProperty,omitempty"`
	Inputs     []batchReadInput `json:"inputs"`
	Properties []string         `json:"properties,omitempty"`
}

type batchCreateBody struct {
	Inputs []propertiesBody `json:"inputs"`
}

type batchResponse struct {
	Status  string   `json:"status"`
	Results []Object `json:"results"`
}

// BatchRead reads objects by a unique property in chunks of the batch size.
// Ids that do not exist are absent from the result.
func (c *Client) BatchRead(ctx context.Context, objectType, idProperty string, ids []string, props []string) ([]Object, error) {
	var out []Object
	for _, span := range chunk(len(ids), c.batchSize) {
		body := batchReadBody{IDProperty: idProperty, Properties: props}
		for _, id := range ids[span[0]:span[1]] {
			body.Inputs = append(body.Inputs, batchReadInput{ID: id})
		}
		var resp batchResponse
		err := c.call(ctx, requestConfig{
			op:     "hubspot.batch read " + objectType,
			method: http.MethodPost,
			path:   objectPath(objectType) + "/batch/read",
			body:   body,
		}, &resp)
		if err != nil {
			return out, err
		}
		out = append(out, resp.Results...)
	}
	return out, nil
}

// BatchCreate creates objects in chunks of the batch size. On error the
// objects created by earlier chunks are returned with it.
func (c *Client) BatchCreate(ctx context.Context, objectType string, inputs []map[string]string) ([]Object, error) {
	var out []Object
	for _, span := range chunk(len(inputs), c.batchSize) {
		body := batchCreateBody{}
		for _, props := range inputs[span[0]:span[1]] {
			body.Inputs = append(body.Inputs, propertiesBody{Properties: props})
		}
		var resp batchResponse
		err := c.call(ctx, requestConfig{
			op:     "hubspot.batch create " + objectType,
			method: http.MethodPost,
			path:   objectPath(objectType) + "/batch/create",
			body:   body,
		}, &resp)
		if err != nil {
			return out, err
		}
		out = append(out, resp.Results...)
	}
	return out, nil
}

