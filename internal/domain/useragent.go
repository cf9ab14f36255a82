package domain

import (
	"strings"

	"github.com/mssola/useragent"
)

// Unknown fills user agent descriptors that could not be derived.
const Unknown = "unknown"

// UserAgent holds the descriptors derived from a raw User-Agent header.
type UserAgent struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Device  string `json:"device"`
}

// ParseUserAgent decomposes a User-Agent string. It never fails; descriptors
// that cannot be derived are set to Unknown.
//
// Device is "Spider" for crawlers, the platform token (e.g. "iPhone") for
// mobile agents and "Other" for everything else.
func ParseUserAgent(raw string) UserAgent {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == noValue {
		return UserAgent{Browser: Unknown, OS: Unknown, Device: Unknown}
	}

	ua := useragent.New(raw)
	name, version := ua.Browser()

	return UserAgent{
		Browser: orUnknown(strings.TrimSpace(name + " " + version)),
		OS:      orUnknown(strings.TrimSpace(ua.OS())),
		Device:  deviceOf(ua),
	}
}

func deviceOf(ua *useragent.UserAgent) string {
	switch {
	case ua.Bot():
		return "Spider"
	case ua.Mobile():
		if p := strings.TrimSpace(ua.Platform()); p != "" {
			return p
		}
		return "Mobile"
	default:
		return "Other"
	}
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
