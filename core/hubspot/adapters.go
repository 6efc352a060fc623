package hubspot

import (
	"context"
	"strings"

	"lease-sync/core/apierr"
	"lease-sync/core/reconcile"
)

const (
	// ListingKeyProperty holds the source unit id on listings.
	ListingKeyProperty = "buildium_unit_id"
	// OwnerKeyProperty holds the source owner id on companies.
	OwnerKeyProperty = "buildium_owner_id"
	// EmailProperty is the contact natural key.
	EmailProperty = "email"
)

// ObjectAdapter plugs one object type into the reconciler.
type ObjectAdapter struct {
	client     *Client
	name       string
	objectType string
	key        string
	unique     bool
	properties []string
}

// NewListingAdapter returns the adapter for the custom listing object,
// addressed by its unique unit id property.
func NewListingAdapter(client *Client, objectType string, properties []string) *ObjectAdapter {
	return newObjectAdapter(client, "listings", objectType, ListingKeyProperty, true, properties)
}

// NewContactAdapter returns the adapter for contacts, resolved by email
// search.
func NewContactAdapter(client *Client, properties []string) *ObjectAdapter {
	return newObjectAdapter(client, "contacts", "contacts", EmailProperty, false, properties)
}

// NewCompanyAdapter returns the adapter for owner companies, resolved by
// owner id search.
func NewCompanyAdapter(client *Client, properties []string) *ObjectAdapter {
	return newObjectAdapter(client, "companies", "companies", OwnerKeyProperty, false, properties)
}

func newObjectAdapter(client *Client, name, objectType, key string, unique bool, properties []string) *ObjectAdapter {
	props := append([]string{key}, properties...)
	return &ObjectAdapter{
		client:     client,
		name:       name,
		objectType: objectType,
		key:        key,
		unique:     unique,
		properties: dedupe(props),
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Name returns the object type name used in logs and cache keys.
func (a *ObjectAdapter) Name() string { return a.name }

// ObjectType returns the API object type.
func (a *ObjectAdapter) ObjectType() string { return a.objectType }

// KeyProperty returns the natural key property.
func (a *ObjectAdapter) KeyProperty() string { return a.key }

// Unique reports whether the key property is a unique id property.
func (a *ObjectAdapter) Unique() bool { return a.unique }

func (a *ObjectAdapter) normalizeKey(key string) string {
	if a.key == EmailProperty {
		return strings.ToLower(strings.TrimSpace(key))
	}
	return key
}

// Find resolves key by id property or search.
func (a *ObjectAdapter) Find(ctx context.Context, key string) (*reconcile.Record, error) {
	key = a.normalizeKey(key)
	if a.unique {
		obj, err := a.client.GetByProperty(ctx, a.objectType, a.key, key, a.properties)
		if apierr.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return toRecord(obj), nil
	}

	resp, err := a.client.Search(ctx, a.objectType, SearchRequest{
		FilterGroups: []FilterGroup{Eq(a.key, key)},
		Properties:   a.properties,
		Limit:        1,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return toRecord(&resp.Results[0]), nil
}

// FindBatch resolves many keys at once.
func (a *ObjectAdapter) FindBatch(ctx context.Context, keys []string) (map[string]*reconcile.Record, error) {
	norm := make([]string, 0, len(keys))
	for _, k := range keys {
		norm = append(norm, a.normalizeKey(k))
	}

	var objs []Object
	if a.unique {
		found, err := a.client.BatchRead(ctx, a.objectType, a.key, norm, a.properties)
		if err != nil {
			return nil, err
		}
		objs = found
	} else {
		for _, span := range chunk(len(norm), maxSearchLimit) {
			found, err := a.client.SearchAll(ctx, a.objectType, SearchRequest{
				FilterGroups: []FilterGroup{{Filters: []Filter{{
					PropertyName: a.key,
					Operator:     "IN",
					Values:       norm[span[0]:span[1]],
				}}}},
				Properties: a.properties,
			})
			if err != nil {
				return nil, err
			}
			objs = append(objs, found...)
		}
	}

	out := make(map[string]*reconcile.Record, len(objs))
	for i := range objs {
		k := a.normalizeKey(objs[i].Properties[a.key])
		if k == "" {
			continue
		}
		if _, dup := out[k]; !dup {
			out[k] = toRecord(&objs[i])
		}
	}
	return out, nil
}

// Create creates an object from fields.
func (a *ObjectAdapter) Create(ctx context.Context, fields reconcile.Fields) (*reconcile.Record, error) {
	props := map[string]string(fields.Clone())
	if v, ok := props[a.key]; ok {
		props[a.key] = a.normalizeKey(v)
	}
	obj, err := a.client.Create(ctx, a.objectType, props)
	if err != nil {
		return nil, err
	}
	rec := toRecord(obj)
	for k, v := range props {
		if _, ok := rec.Properties[k]; !ok {
			rec.Properties[k] = v
		}
	}
	return rec, nil
}

// Update patches an object.
func (a *ObjectAdapter) Update(ctx context.Context, id string, fields reconcile.Fields) (*reconcile.Record, error) {
	obj, err := a.client.Update(ctx, a.objectType, id, map[string]string(fields))
	if err != nil {
		return nil, err
	}
	return toRecord(obj), nil
}

// Delete archives an object by id.
func (a *ObjectAdapter) Delete(ctx context.Context, id string) error {
	return a.client.Delete(ctx, a.objectType, id)
}

func toRecord(o *Object) *reconcile.Record {
	props := make(reconcile.Fields, len(o.Properties))
	for k, v := range o.Properties {
		props[k] = v
	}
	return &reconcile.Record{ID: o.ID, Properties: props, UpdatedAt: o.UpdatedAt}
}
