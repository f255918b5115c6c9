package identity

import (
	"sort"
)

// Vendor classifies an external identity record on the wire.
type Vendor string

const (
	VendorShopify    Vendor = "0"
	VendorKlaviyo    Vendor = "1"
	VendorClientUser Vendor = "2"
	VendorCustomUser Vendor = "6"
)

// ExternalVendorID is one entry of the "evs" query parameter.
type ExternalVendorID struct {
	ID     string `json:"id"`
	Vendor Vendor `json:"vendor"`
	Name   string `json:"name,omitempty"`
}

// VendorIDs lists the identifiers that map to external vendors, skipping absent ones.
// Custom identifiers are ordered by name so that request URLs are stable.
func VendorIDs(ids UserIdentifiers) []ExternalVendorID {
	out := make([]ExternalVendorID, 0, 3+len(ids.custom))

	if v, ok := ids.ClientUserID(); ok {
		out = append(out, ExternalVendorID{ID: v, Vendor: VendorClientUser})
	}
	if v, ok := ids.ShopifyID(); ok {
		out = append(out, ExternalVendorID{ID: v, Vendor: VendorShopify})
	}
	if v, ok := ids.KlaviyoID(); ok {
		out = append(out, ExternalVendorID{ID: v, Vendor: VendorKlaviyo})
	}

	names := make([]string, 0, len(ids.custom))
	for name := range ids.custom {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, ExternalVendorID{ID: ids.custom[name], Vendor: VendorCustomUser, Name: name})
	}

	return out
}
