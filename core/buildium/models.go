package buildium

import (
	"strconv"
	"strings"
	"time"

	"lease-sync/core/lifecycle"
)

// Address is a postal address.
type Address struct {
	AddressLine1 string `json:"AddressLine1"`
	AddressLine2 string `json:"AddressLine2"`
	City         string `json:"City"`
	State        string `json:"State"`
	PostalCode   string `json:"PostalCode"`
	Country      string `json:"Country"`
}

// Line returns the address as a single line.
func (a Address) Line() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.AddressLine1, a.AddressLine2, a.City, strings.TrimSpace(a.State + " " + a.PostalCode)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Phone is a typed phone number.
type Phone struct {
	Number string `json:"Number"`
	Type   string `json:"Type"`
}

// Property is a rental property.
type Property struct {
	ID             int     `json:"Id"`
	Name           string  `json:"Name"`
	IsActive       bool    `json:"IsActive"`
	Type           string  `json:"RentalType"`
	Address        Address `json:"Address"`
	RentalOwnerIDs []int   `json:"RentalOwnerIds"`
}

// Unit is a rentable unit of a property.
type Unit struct {
	ID            int     `json:"Id"`
	PropertyID    int     `json:"PropertyId"`
	BuildingName  string  `json:"BuildingName"`
	UnitNumber    string  `json:"UnitNumber"`
	Description   string  `json:"Description"`
	MarketRent    float64 `json:"MarketRent"`
	Address       Address `json:"Address"`
	UnitBedrooms  string  `json:"UnitBedrooms"`
	UnitBathrooms string  `json:"UnitBathrooms"`
	UnitSize      int     `json:"UnitSize"`
	IsUnitListed  bool    `json:"IsUnitListed"`
	IsOccupied    bool    `json:"IsUnitOccupied"`
}

// Key returns the unit's natural key in the target.
func (u Unit) Key() string {
	return strconv.Itoa(u.ID)
}

// LeaseTenant links a tenant to a lease.
type LeaseTenant struct {
	ID     int    `json:"Id"`
	Status string `json:"Status"`
}

// AccountDetails holds the lease's financial terms.
type AccountDetails struct {
	Rent            float64 `json:"Rent"`
	SecurityDeposit float64 `json:"SecurityDeposit"`
}

// Lease is a lease on a unit.
type Lease struct {
	ID             int            `json:"Id"`
	PropertyID     int            `json:"PropertyId"`
	UnitID         int            `json:"UnitId"`
	UnitNumber     string         `json:"UnitNumber"`
	LeaseFromDate  Date           `json:"LeaseFromDate"`
	LeaseToDate    Date           `json:"LeaseToDate"`
	LeaseType      string         `json:"LeaseType"`
	Status         string         `json:"LeaseStatus"`
	Tenants        []LeaseTenant  `json:"Tenants"`
	AccountDetails AccountDetails `json:"AccountDetails"`
	LastUpdated    time.Time      `json:"LastUpdatedDateTime"`
}

// LeaseStatus parses the lease status.
func (l Lease) LeaseStatus() (lifecycle.LeaseStatus, error) {
	return lifecycle.ParseLeaseStatus(l.Status)
}

// TenantIDs returns the ids of the lease's tenants.
func (l Lease) TenantIDs() []int {
	ids := make([]int, 0, len(l.Tenants))
	for _, t := range l.Tenants {
		ids = append(ids, t.ID)
	}
	return ids
}

// Tenant is a lease tenant.
type Tenant struct {
	ID             int     `json:"Id"`
	FirstName      string  `json:"FirstName"`
	LastName       string  `json:"LastName"`
	Email          string  `json:"Email"`
	AlternateEmail string  `json:"AlternateEmail"`
	PhoneNumbers   []Phone `json:"PhoneNumbers"`
	Address        Address `json:"PrimaryAddress"`
	LeaseIDs       []int   `json:"LeaseIds"`
}

// ContactEmail returns the primary email, or the alternate when the primary
// is empty.
func (t Tenant) ContactEmail() string {
	if e := strings.TrimSpace(t.Email); e != "" {
		return strings.ToLower(e)
	}
	return strings.ToLower(strings.TrimSpace(t.AlternateEmail))
}

// RentalOwner owns one or more rental properties.
type RentalOwner struct {
	ID           int     `json:"Id"`
	FirstName    string  `json:"FirstName"`
	LastName     string  `json:"LastName"`
	CompanyName  string  `json:"CompanyName"`
	IsCompany    bool    `json:"IsCompany"`
	Email        string  `json:"Email"`
	PhoneNumbers []Phone `json:"PhoneNumbers"`
	Address      Address `json:"PrimaryAddress"`
	PropertyIDs  []int   `json:"PropertyIds"`
}

// DisplayName returns the company name for companies, otherwise the full name.
func (o RentalOwner) DisplayName() string {
	if o.IsCompany && o.CompanyName != "" {
		return o.CompanyName
	}
	return strings.TrimSpace(o.FirstName + " " + o.LastName)
}

// OwnershipAccount ties an association owner to a unit.
type OwnershipAccount struct {
	ID            int `json:"Id"`
	AssociationID int `json:"AssociationId"`
	UnitID        int `json:"UnitId"`
}

// AssociationOwner owns units within a homeowners association.
type AssociationOwner struct {
	ID                int                `json:"Id"`
	FirstName         string             `json:"FirstName"`
	LastName          string             `json:"LastName"`
	Email             string             `json:"Email"`
	PhoneNumbers      []Phone            `json:"PhoneNumbers"`
	Address           Address            `json:"PrimaryAddress"`
	OwnershipAccounts []OwnershipAccount `json:"OwnershipAccounts"`
}

// UnitIDs returns the units the owner holds.
func (o AssociationOwner) UnitIDs() []int {
	ids := make([]int, 0, len(o.OwnershipAccounts))
	for _, a := range o.OwnershipAccounts {
		ids = append(ids, a.UnitID)
	}
	return ids
}

// Date is a calendar date sent as "2006-01-02".
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// UnmarshalJSON accepts a date, a full timestamp, or null.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// MarshalJSON writes the date as "2006-01-02", or null when zero.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// String returns the date as "2006-01-02", empty when zero.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}
