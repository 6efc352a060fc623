package hubspot

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"lease-sync/core/lifecycle"
)

// CategoryUserDefined is the category of custom association labels.
const CategoryUserDefined = "USER_DEFINED"

// AssociationType is a typed association label.
type AssociationType struct {
	Category string `json:"category"`
	TypeID   int    `json:"typeId"`
	Label    string `json:"label,omitempty"`
}

// AssociationResult lists the types linking to one object.
type AssociationResult struct {
	ToObjectID       FlexID            `json:"toObjectId"`
	AssociationTypes []AssociationType `json:"associationTypes"`
}

type associationPage struct {
	Results []AssociationResult `json:"results"`
	Paging  *Paging             `json:"paging,omitempty"`
}

type objectID struct {
	ID string `json:"id"`
}

type associationSpec struct {
	Category string `json:"associationCategory"`
	TypeID   int    `json:"associationTypeId"`
}

// AssociationInput is one from/to pair with its types.
type AssociationInput struct {
	From  objectID          `json:"from"`
	To    objectID          `json:"to"`
	Types []associationSpec `json:"types"`
}

// NewAssociationInput builds an input for user-defined type ids.
func NewAssociationInput(fromID, toID string, typeIDs ...int) AssociationInput {
	in := AssociationInput{From: objectID{ID: fromID}, To: objectID{ID: toID}}
	for _, id := range typeIDs {
		in.Types = append(in.Types, associationSpec{Category: CategoryUserDefined, TypeID: id})
	}
	return in
}

type associationBatchBody struct {
	Inputs []AssociationInput `json:"inputs"`
}

func associationsPath(fromType, toType string) string {
	return "/crm/v4/associations/" + url.PathEscape(fromType) + "/" + url.PathEscape(toType)
}

// ListAssociations returns every association from one object to objects of
// toType.
func (c *Client) ListAssociations(ctx context.Context, fromType, fromID, toType string) ([]AssociationResult, error) {
	var all []AssociationResult
	path := "/crm/v4/objects/" + url.PathEscape(fromType) + "/" + url.PathEscape(fromID) + "/associations/" + url.PathEscape(toType)
	after := ""
	for {
		q := url.Values{}
		q.Set("limit", "500")
		if after != "" {
			q.Set("after", after)
		}
		var page associationPage
		err := c.call(ctx, requestConfig{
			op:     "hubspot.list associations",
			method: http.MethodGet,
			path:   path,
			query:  q,
		}, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		if page.Paging == nil || page.Paging.Next.After == "" || page.Paging.Next.After == after {
			return all, nil
		}
		after = page.Paging.Next.After
	}
}

// CreateAssociations batch-creates typed associations in chunks.
func (c *Client) CreateAssociations(ctx context.Context, fromType, toType string, inputs []AssociationInput) error {
	return c.associationBatch(ctx, "hubspot.create associations", associationsPath(fromType, toType)+"/batch/create", inputs)
}

// ArchiveAssociationLabels batch-removes the given association types,
// leaving any other types between the same pair in place.
func (c *Client) ArchiveAssociationLabels(ctx context.Context, fromType, toType string, inputs []AssociationInput) error {
	return c.associationBatch(ctx, "hubspot.archive association labels", associationsPath(fromType, toType)+"/batch/labels/archive", inputs)
}

func (c *Client) associationBatch(ctx context.Context, op, path string, inputs []AssociationInput) error {
	for _, span := range chunk(len(inputs), c.batchSize) {
		err := c.call(ctx, requestConfig{
			op:     op,
			method: http.MethodPost,
			path:   path,
			body:   associationBatchBody{Inputs: inputs[span[0]:span[1]]},
		}, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

// Associations reads and writes typed associations to listings.
type Associations struct {
	client      *Client
	listingType string
}

// NewAssociations creates the associator for the given listing object type.
func NewAssociations(client *Client, listingType string) *Associations {
	return &Associations{client: client, listingType: listingType}
}

// Types returns the user-defined association type ids from one object to
// a listing.
func (a *Associations) Types(ctx context.Context, from lifecycle.ObjectRef, listingID string) ([]int, error) {
	results, err := a.client.ListAssociations(ctx, from.Type, from.ID, a.listingType)
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, r := range results {
		if string(r.ToObjectID) != listingID {
			continue
		}
		for _, t := range r.AssociationTypes {
			if t.Category == CategoryUserDefined {
				ids = append(ids, t.TypeID)
			}
		}
	}
	return ids, nil
}

// Add creates one typed association.
func (a *Associations) Add(ctx context.Context, from lifecycle.ObjectRef, listingID string, typeID int) error {
	return a.client.CreateAssociations(ctx, from.Type, a.listingType,
		[]AssociationInput{NewAssociationInput(from.ID, listingID, typeID)})
}

// Remove archives the given association types.
func (a *Associations) Remove(ctx context.Context, from lifecycle.ObjectRef, listingID string, typeIDs []int) error {
	if len(typeIDs) == 0 {
		return nil
	}
	return a.client.ArchiveAssociationLabels(ctx, from.Type, a.listingType,
		[]AssociationInput{NewAssociationInput(from.ID, listingID, typeIDs...)})
}

// FlexID is an object id sent either as a JSON number or a string.
type FlexID string

// UnmarshalJSON accepts 123 or "123".
func (f *FlexID) UnmarshalJSON(b []byte) error {
	*f = FlexID(strings.Trim(string(b), `"`))
	return nil
}
