package sync

import (
	"sort"
	"strconv"
	"strings"

	"lease-sync/core/buildium"
	"lease-sync/core/hubspot"
	"lease-sync/core/lifecycle"
	"lease-sync/core/reconcile"
	"lease-sync/core/utils"
)

const (
	entityListing     = "listing"
	entityContact     = "contact"
	entityCompany     = "company"
	entityAssociation = "association"
	entityUnit        = "unit"
	entityLease       = "lease"
	entityTenant      = "tenant"
)

// Target properties written by the sync.
const (
	PropListingName = "listing_name"
	PropPropertyID  = "buildium_property_id"
	PropUnitNumber  = "unit_number"
	PropBuilding    = "building_name"
	PropAddress     = "address"
	PropCity        = "city"
	PropState       = "state"
	PropPostalCode  = "zip"
	PropBedrooms    = "bedrooms"
	PropBathrooms   = "bathrooms"
	PropSquareFeet  = "square_footage"
	PropMarketRent  = "market_rent"
	PropRent        = "rent"
	PropLeaseStart  = "lease_start"
	PropLeaseEnd    = "lease_end"
	PropLeaseStatus = "lease_status"
	PropLeaseID     = "buildium_lease_id"
	PropLeaseStamp  = "lease_modified_at"
	PropTenantID    = "buildium_tenant_id"
	PropFirstName   = "firstname"
	PropLastName    = "lastname"
	PropPhone       = "phone"
	PropCompanyName = "name"
	PropContactRole = "buildium_role"
)

const (
	roleTenant     = "tenant"
	roleOwner      = "owner"
	roleAssocOwner = "association_owner"
)

// contactSets are the contact properties several flows or co-tenants add
// values to. They accumulate instead of overwriting each other.
var contactSets = []string{PropTenantID, hubspot.OwnerKeyProperty, PropContactRole}

// leaseFields are the listing properties derived from the governing lease.
var leaseFields = []string{PropRent, PropLeaseStart, PropLeaseEnd, PropLeaseStatus, PropLeaseID}

// ListingProperties lists the listing properties the sync reads back.
func ListingProperties() []string {
	return []string{
		PropListingName, PropPropertyID, PropUnitNumber, PropBuilding, PropAddress, PropCity,
		PropState, PropPostalCode, PropBedrooms, PropBathrooms, PropSquareFeet, PropMarketRent,
		PropRent, PropLeaseStart, PropLeaseEnd, PropLeaseStatus, PropLeaseID, PropLeaseStamp,
	}
}

// ContactProperties lists the contact properties the sync reads back.
func ContactProperties() []string {
	return []string{PropFirstName, PropLastName, PropPhone, PropAddress, PropCity, PropState,
		PropPostalCode, PropTenantID, hubspot.OwnerKeyProperty, PropContactRole}
}

// CompanyProperties lists the company properties the sync reads back.
func CompanyProperties() []string {
	return []string{PropCompanyName, hubspot.EmailProperty, PropPhone, PropAddress, PropCity, PropState, PropPostalCode}
}

func listingName(u buildium.Unit) string {
	base := u.Address.AddressLine1
	if base == "" {
		base = u.BuildingName
	}
	if u.UnitNumber == "" {
		return base
	}
	if base == "" {
		return "Unit " + u.UnitNumber
	}
	return base + " #" + u.UnitNumber
}

// listingFields maps a unit and its governing lease, if any, to listing
// properties. The gate is nil when there is no lease.
func listingFields(u buildium.Unit, lease *buildium.Lease) (reconcile.Fields, *reconcile.ChangeGate) {
	f := reconcile.Fields{
		PropListingName: listingName(u),
		PropPropertyID:  utils.FormatPositive(u.PropertyID),
		PropUnitNumber:  u.UnitNumber,
		PropBuilding:    u.BuildingName,
		PropAddress:     utils.JoinNonEmpty(" ", u.Address.AddressLine1, u.Address.AddressLine2),
		PropCity:        u.Address.City,
		PropState:       u.Address.State,
		PropPostalCode:  u.Address.PostalCode,
		PropBedrooms:    u.UnitBedrooms,
		PropBathrooms:   u.UnitBathrooms,
		PropSquareFeet:  utils.FormatPositive(u.UnitSize),
		PropMarketRent:  utils.FormatMoney(u.MarketRent),
	}
	if lease == nil {
		return f, nil
	}

	f[PropRent] = utils.FormatMoney(lease.AccountDetails.Rent)
	f[PropLeaseStart] = lease.LeaseFromDate.String()
	f[PropLeaseEnd] = lease.LeaseToDate.String()
	f[PropLeaseStatus] = lease.Status
	f[PropLeaseID] = strconv.Itoa(lease.ID)
	f[PropLeaseStamp] = reconcile.FormatStamp(lease.LastUpdated)

	return f, &reconcile.ChangeGate{
		TimestampProperty: PropLeaseStamp,
		ModifiedAt:        lease.LastUpdated,
		Tracked:           leaseFields,
	}
}

// governingLease picks the lease whose terms a listing shows: the highest
// lifecycle precedence, then the latest start. Leases with unknown statuses
// are ignored.
func governingLease(leases []buildium.Lease) *buildium.Lease {
	var best *buildium.Lease
	var bestStatus lifecycle.LeaseStatus
	for i := range leases {
		l := &leases[i]
		status, err := l.LeaseStatus()
		if err != nil {
			continue
		}
		if best == nil {
			best, bestStatus = l, status
			continue
		}
		switch {
		case outranks(status, bestStatus):
			best, bestStatus = l, status
		case outranks(bestStatus, status):
		case l.LeaseFromDate.After(best.LeaseFromDate.Time):
			best, bestStatus = l, status
		}
	}
	return best
}

// outranks reports whether a strictly beats b.
func outranks(a, b lifecycle.LeaseStatus) bool {
	return a != b && lifecycle.Precedence(b, a) == a
}

// tenantStatuses returns, per tenant, the governing status across the given
// leases of one unit.
func tenantStatuses(leases []buildium.Lease) map[int]lifecycle.LeaseStatus {
	all := make(map[int][]lifecycle.LeaseStatus)
	for _, l := range leases {
		status, err := l.LeaseStatus()
		if err != nil {
			continue
		}
		for _, id := range l.TenantIDs() {
			all[id] = append(all[id], status)
		}
	}
	out := make(map[int]lifecycle.LeaseStatus, len(all))
	for id, statuses := range all {
		out[id] = lifecycle.Precedence(statuses...)
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func firstPhone(phones []buildium.Phone) string {
	for _, p := range phones {
		if p.Number != "" {
			return p.Number
		}
	}
	return ""
}

func addressFields(f reconcile.Fields, a buildium.Address) {
	f[PropAddress] = utils.JoinNonEmpty(" ", a.AddressLine1, a.AddressLine2)
	f[PropCity] = a.City
	f[PropState] = a.State
	f[PropPostalCode] = a.PostalCode
}

// tenantFields maps a tenant to contact properties. The email is the key
// and is set by the reconciler.
func tenantFields(t buildium.Tenant) reconcile.Fields {
	f := reconcile.Fields{
		PropFirstName:   t.FirstName,
		PropLastName:    t.LastName,
		PropPhone:       firstPhone(t.PhoneNumbers),
		PropTenantID:    strconv.Itoa(t.ID),
		PropContactRole: roleTenant,
	}
	addressFields(f, t.Address)
	return f
}

// groupTenants groups tenants sharing a contact email, keeping the order of
// first appearance. Tenants without an email are kept alone.
func groupTenants(tenants []buildium.Tenant) [][]buildium.Tenant {
	var groups [][]buildium.Tenant
	index := make(map[string]int)
	for _, t := range tenants {
		email := t.ContactEmail()
		if email == "" {
			groups = append(groups, []buildium.Tenant{t})
			continue
		}
		if i, ok := index[email]; ok {
			groups[i] = append(groups[i], t)
			continue
		}
		index[email] = len(groups)
		groups = append(groups, []buildium.Tenant{t})
	}
	return groups
}

// tenantGroupFields maps tenants sharing one contact to its properties. The
// lowest tenant id supplies the names and blanks are filled from the others.
// Tenant ids are merged into one set.
func tenantGroupFields(group []buildium.Tenant) reconcile.Fields {
	sorted := append([]buildium.Tenant(nil), group...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	f := tenantFields(sorted[0])
	ids := make([]string, 0, len(sorted))
	for _, t := range sorted {
		ids = append(ids, strconv.Itoa(t.ID))
		for k, v := range tenantFields(t) {
			if f[k] == "" {
				f[k] = v
			}
		}
	}
	f[PropTenantID] = reconcile.JoinSet(ids...)
	return f
}

// ownerContactFields maps an individual rental owner to contact properties.
func ownerContactFields(o buildium.RentalOwner) reconcile.Fields {
	f := reconcile.Fields{
		PropFirstName:            o.FirstName,
		PropLastName:             o.LastName,
		PropPhone:                firstPhone(o.PhoneNumbers),
		hubspot.OwnerKeyProperty: strconv.Itoa(o.ID),
		PropContactRole:          roleOwner,
	}
	addressFields(f, o.Address)
	return f
}

// companyFields maps a company rental owner to company properties.
func companyFields(o buildium.RentalOwner) reconcile.Fields {
	f := reconcile.Fields{
		PropCompanyName:       o.DisplayName(),
		hubspot.EmailProperty: strings.ToLower(strings.TrimSpace(o.Email)),
		PropPhone:             firstPhone(o.PhoneNumbers),
	}
	addressFields(f, o.Address)
	return f
}

// associationOwnerFields maps an association owner to contact properties.
func associationOwnerFields(o buildium.AssociationOwner) reconcile.Fields {
	f := reconcile.Fields{
		PropFirstName:            o.FirstName,
		PropLastName:             o.LastName,
		PropPhone:                firstPhone(o.PhoneNumbers),
		hubspot.OwnerKeyProperty: strconv.Itoa(o.ID),
		PropContactRole:          roleAssocOwner,
	}
	addressFields(f, o.Address)
	return f
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
