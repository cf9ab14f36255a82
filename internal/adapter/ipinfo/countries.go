package ipinfo

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
)

var continentNames = map[string]string{
	"AF": "Africa",
	"AN": "Antarctica",
	"AS": "Asia",
	"EU": "Europe",
	"NA": "North America",
	"OC": "Oceania",
	"SA": "South America",
}

// continentGroups maps UN M.49 groupings to continent codes. South America
// must be tested before the Americas group that contains it.
var continentGroups = []struct {
	region language.Region
	code   string
}{
	{language.MustParseRegion("005"), "SA"},
	{language.MustParseRegion("019"), "NA"},
	{language.MustParseRegion("002"), "AF"},
	{language.MustParseRegion("142"), "AS"},
	{language.MustParseRegion("150"), "EU"},
	{language.MustParseRegion("009"), "OC"},
}

var antarctica = language.MustParseRegion("AQ")

// withCountryDetails fills CountryName and Continent from the ISO country code.
// Unknown codes leave both empty, which NewCity reports as incomplete data.
func withCountryDetails(attrs domain.Attributes) domain.Attributes {
	if attrs.Country == "" {
		return attrs
	}
	region, err := language.ParseRegion(attrs.Country)
	if err != nil {
		return attrs
	}
	attrs.CountryName = display.English.Regions().Name(region)
	if code := continentOf(region); code != "" {
		attrs.Continent = &domain.ContinentAttributes{Code: code, Name: continentNames[code]}
	}
	return attrs
}

func continentOf(region language.Region) string {
	if region == antarctica {
		return "AN"
	}
	for _, g := range continentGroups {
		if g.region.Contains(region) {
			return g.code
		}
	}
	return ""
}
