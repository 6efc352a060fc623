package hubspot

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lease-sync/core/apierr"
	"lease-sync/core/lifecycle"
	"lease-sync/core/reconcile"
	"lease-sync/core/retry"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *sleepLog) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sl := &sleepLog{}
	exec := retry.NewExecutor(retry.Config{Name: "hubspot", Concurrency: 4}, zap.NewNop(), retry.WithSleep(sl.sleep))
	c, err := NewClient(Config{
		BaseURL:  srv.URL,
		Token:    "tok",
		Standard: retry.Standard().WithMinInterval(0),
		Search:   retry.Search().WithMinInterval(0),
	}, exec, zap.NewNop())
	require.NoError(t, err)
	return c, sl
}

func decodeBody(t *testing.T, r *http.Request, v interface{}) {
	t.Helper()
	b, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://x"}, nil, nil)
	require.Error(t, err)
	assert.True(t, apierr.IsConfiguration(err))
}

func TestListingFind_ByIDProperty(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/crm/v3/objects/p_listings/4021":
			assert.Equal(t, ListingKeyProperty, r.URL.Query().Get("idProperty"))
			assert.Contains(t, r.URL.Query()["properties"], "rent")
			writeJSON(w, http.StatusOK, Object{ID: "L1", Properties: map[string]string{ListingKeyProperty: "4021", "rent": "1500"}})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Object not found"})
		}
	})
	a := NewListingAdapter(c, "p_listings", []string{"rent"})

	rec, err := a.Find(context.Background(), "4021")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "L1", rec.ID)
	assert.Equal(t, "1500", rec.Properties["rent"])

	rec, err = a.Find(context.Background(), "9999")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestContactFind_BySearchUsesSearchPolicy(t *testing.T) {
	var calls atomic.Int32
	c, sl := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crm/v3/objects/contacts/search", r.URL.Path)
		if calls.Add(1) <= 2 {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": "secondly limit"})
			return
		}
		var req SearchRequest
		decodeBody(t, r, &req)
		require.Len(t, req.FilterGroups, 1)
		assert.Equal(t, Filter{PropertyName: "email", Operator: "EQ", Value: "ana@example.com"}, req.FilterGroups[0].Filters[0])
		writeJSON(w, http.StatusOK, SearchResponse{Total: 1, Results: []Object{{ID: "C1", Properties: map[string]string{"email": "ana@example.com"}}}})
	})

	rec, err := NewContactAdapter(c, nil).Find(context.Background(), " Ana@Example.com ")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "C1", rec.ID)
	assert.Equal(t, []time.Duration{550 * time.Millisecond, 1100 * time.Millisecond}, sl.delays)
}

func TestContactUpsert_RecoversFromDuplicate(t *testing.T) {
	var searches atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/crm/v3/objects/contacts/search":
			if searches.Add(1) == 1 {
				writeJSON(w, http.StatusOK, SearchResponse{})
				return
			}
			writeJSON(w, http.StatusOK, SearchResponse{Total: 1, Results: []Object{{
				ID:         "C9",
				Properties: map[string]string{"email": "ana@example.com", "firstname": "Ana"},
			}}})
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/contacts":
			writeJSON(w, http.StatusConflict, map[string]string{"message": "Contact already exists. Existing ID: C9"})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	rec := reconcile.New(NewContactAdapter(c, []string{"firstname"}), zap.NewNop())
	res, err := rec.Upsert(context.Background(), "ana@example.com", reconcile.Fields{"firstname": "Ana"}, reconcile.Options{})
	require.NoError(t, err)
	assert.True(t, res.Recovered)
	assert.Equal(t, reconcile.OutcomeSkipped, res.Outcome)
	assert.Equal(t, "C9", res.Record.ID)
}

func TestBatchRead_ChunksAtMax(t *testing.T) {
	var sizes []int
	var mu sync.Mutex
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crm/v3/objects/p_listings/batch/read", r.URL.Path)
		var body batchReadBody
		decodeBody(t, r, &body)
		assert.Equal(t, ListingKeyProperty, body.IDProperty)
		mu.Lock()
		sizes = append(sizes, len(body.Inputs))
		mu.Unlock()

		var results []Object
		for _, in := range body.Inputs {
			if strings.HasSuffix(in.ID, "0") {
				results = append(results, Object{ID: "L" + in.ID, Properties: map[string]string{ListingKeyProperty: in.ID}})
			}
		}
		writeJSON(w, http.StatusMultiStatus, batchResponse{Status: "COMPLETE", Results: results})
	})

	keys := make([]string, 250)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	found, err := NewListingAdapter(c, "p_listings", nil).FindBatch(context.Background(), keys)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 100, 50}, sizes)
	assert.Len(t, found, 25)
	assert.Equal(t, "L10", found["10"].ID)
}

func TestBatchCreate_Chunks(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body batchCreateBody
		decodeBody(t, r, &body)
		var results []Object
		for _, in := range body.Inputs {
			results = append(results, Object{ID: "L" + in.Properties[ListingKeyProperty], Properties: in.Properties})
		}
		writeJSON(w, http.StatusCreated, batchResponse{Status: "COMPLETE", Results: results})
	})

	inputs := make([]map[string]string, 101)
	for i := range inputs {
		inputs[i] = map[string]string{ListingKeyProperty: strconv.Itoa(i + 1)}
	}
	created, err := c.BatchCreate(context.Background(), "p_listings", inputs)
	require.NoError(t, err)
	assert.Len(t, created, 101)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDelete(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/crm/v3/objects/p_listings/L1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, NewListingAdapter(c, "p_listings", nil).Delete(context.Background(), "L1"))
}

func TestUpdate_ValidationErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Property values were not valid"})
	})
	_, err := c.Update(context.Background(), "contacts", "C1", map[string]string{"phone": "x"})
	require.Error(t, err)
	assert.Equal(t, apierr.KindClient, apierr.KindOf(err))
	assert.False(t, apierr.IsConflict(err))
	assert.Contains(t, err.Error(), "Property values were not valid")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAssociations(t *testing.T) {
	var created, archived []AssociationInput
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crm/v4/objects/contacts/501/associations/p_listings":
			_, _ = w.Write([]byte(`{"results":[` +
				`{"toObjectId":777,"associationTypes":[{"category":"USER_DEFINED","typeId":11,"label":"Future Tenant"},{"category":"HUBSPOT_DEFINED","typeId":1}]},` +
				`{"toObjectId":888,"associationTypes":[{"category":"USER_DEFINED","typeId":12}]}]}`))
		case "/crm/v4/associations/contacts/p_listings/batch/create":
			var body associationBatchBody
			decodeBody(t, r, &body)
			created = append(created, body.Inputs...)
			writeJSON(w, http.StatusCreated, map[string]string{"status": "COMPLETE"})
		case "/crm/v4/associations/contacts/p_listings/batch/labels/archive":
			var body associationBatchBody
			decodeBody(t, r, &body)
			archived = append(archived, body.Inputs...)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	a := NewAssociations(c, "p_listings")
	from := lifecycle.ObjectRef{Type: "contacts", ID: "501"}

	types, err := a.Types(context.Background(), from, "777")
	require.NoError(t, err)
	assert.Equal(t, []int{11}, types)

	require.NoError(t, a.Remove(context.Background(), from, "777", []int{11}))
	require.NoError(t, a.Add(context.Background(), from, "777", 12))
	require.NoError(t, a.Remove(context.Background(), from, "777", nil))

	require.Len(t, archived, 1)
	assert.Equal(t, "501", archived[0].From.ID)
	assert.Equal(t, "777", archived[0].To.ID)
	assert.Equal(t, []associationSpec{{Category: CategoryUserDefined, TypeID: 11}}, archived[0].Types)
	require.Len(t, created, 1)
	assert.Equal(t, 12, created[0].Types[0].TypeID)
}

func TestSearchAll_FollowsCursor(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		decodeBody(t, r, &req)
		resp := SearchResponse{Results: []Object{{ID: "c-" + req.After}}}
		if req.After == "" {
			resp.Paging = &Paging{}
			resp.Paging.Next.After = "100"
		}
		writeJSON(w, http.StatusOK, resp)
	})

	objs, err := c.SearchAll(context.Background(), "companies", SearchRequest{FilterGroups: []FilterGroup{Eq(OwnerKeyProperty, "9")}})
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "c-100", objs[1].ID)
}
