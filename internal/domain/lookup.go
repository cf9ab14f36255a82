package domain

import (
	"context"
	"fmt"
	"net/netip"
)

// ContinentAttributes is the continent object of an attribute bag.
type ContinentAttributes struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Attributes is the bag of geolocation attributes a Locator returns for one
// address. Bogon marks private and reserved addresses; every other field is
// empty in that case.
type Attributes struct {
	IP          string               `json:"ip"`
	Bogon       bool                 `json:"bogon,omitempty"`
	Loc         string               `json:"loc,omitempty"` // "lat,long"
	City        string               `json:"city,omitempty"`
	Region      string               `json:"region,omitempty"`
	Country     string               `json:"country,omitempty"` // ISO 3166-1 alpha-2
	CountryName string               `json:"country_name,omitempty"`
	Continent   *ContinentAttributes `json:"continent,omitempty"`
	Org         string               `json:"org,omitempty"`
	Postal      string               `json:"postal,omitempty"`
	Timezone    string               `json:"timezone,omitempty"`
}

// Locator resolves an IPv4 address to geolocation attributes.
type Locator interface {
	Lookup(ctx context.Context, ip netip.Addr) (Attributes, error)
}

// LookupError is returned by Locator implementations. Retryable errors
// (timeouts, throttling, server errors) may succeed if the call is repeated;
// the rest (bad credentials, exhausted quota) will not.
type LookupError struct {
	IP        string
	Retryable bool
	Err       error
}

func (e *LookupError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("lookup %s (%s): %v", e.IP, kind, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
