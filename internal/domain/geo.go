package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Position is a WGS-84 coordinate pair.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewPosition parses a "lat,long" location string, e.g. "37.751,-97.822".
func NewPosition(loc string) (Position, error) {
	parts := strings.Split(loc, ",")
	if len(parts) != 2 {
		return Position{}, fieldError("loc", loc, ErrPositionFormat)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Position{}, fieldError("loc", loc, ErrPositionFormat)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Position{}, fieldError("loc", loc, ErrPositionFormat)
	}
	return Position{Latitude: lat, Longitude: lon}, nil
}

// Fields returns latitude and longitude in their shortest decimal form.
func (p Position) Fields() []string {
	return []string{
		strconv.FormatFloat(p.Latitude, 'f', -1, 64),
		strconv.FormatFloat(p.Longitude, 'f', -1, 64),
	}
}

type Continent struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Fields returns code and name.
func (c Continent) Fields() []string {
	return []string{c.Code, c.Name}
}

type Country struct {
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Continent Continent `json:"continent"`
}

// Fields returns name, code, then the continent fields.
func (c Country) Fields() []string {
	return append([]string{c.Name, c.Code}, c.Continent.Fields()...)
}

type City struct {
	Name     string   `json:"name"`
	Region   string   `json:"region"`
	Country  Country  `json:"country"`
	Position Position `json:"position"`
}

// Fields returns name, region, the country fields and the position fields.
func (c City) Fields() []string {
	out := make([]string, 0, 8)
	out = append(out, c.Name, c.Region)
	out = append(out, c.Country.Fields()...)
	return append(out, c.Position.Fields()...)
}

// NewCity projects an attribute bag into a City tree. The caller must check
// attrs.Bogon first; bogon bags carry no location and are rejected here as
// incomplete.
//
// City and region may be empty: country-level results are common for mobile
// and hosting ranges.
func NewCity(attrs Attributes) (City, error) {
	var missing []string
	if attrs.Loc == "" {
		missing = append(missing, "loc")
	}
	if attrs.Country == "" {
		missing = append(missing, "country")
	}
	if attrs.CountryName == "" {
		missing = append(missing, "country_name")
	}
	if attrs.Continent == nil || attrs.Continent.Code == "" {
		missing = append(missing, "continent.code")
	}
	if attrs.Continent == nil || attrs.Continent.Name == "" {
		missing = append(missing, "continent.name")
	}
	if len(missing) > 0 {
		return City{}, fmt.Errorf("%w for %s: missing %s", ErrIncompleteGeoData, attrs.IP, strings.Join(missing, ", "))
	}

	position, err := NewPosition(attrs.Loc)
	if err != nil {
		return City{}, err
	}

	return City{
		Name:   attrs.City,
		Region: attrs.Region,
		Country: Country{
			Name: attrs.CountryName,
			Code: attrs.Country,
			Continent: Continent{
				Code: attrs.Continent.Code,
				Name: attrs.Continent.Name,
			},
		},
		Position: position,
	}, nil
}
