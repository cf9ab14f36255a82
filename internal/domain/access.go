package domain

import (
	"encoding/json"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the nginx $time_local format.
const TimeLayout = "02/Jan/2006:15:04:05 -0700"

// noValue is the placeholder nginx writes for an empty field.
const noValue = "-"

// Access is one parsed access log entry. Build it with NewAccess.
type Access struct {
	IP        netip.Addr
	Time      time.Time
	Method    string
	Path      string
	Protocol  string
	Query     map[string][]string
	Status    int
	Bytes     int64
	Size      string
	Referer   *string
	UserAgent UserAgent
}

// NewAccess converts the seven raw fields returned by ParseLine into an Access.
func NewAccess(fields []string) (Access, error) {
	if len(fields) != fieldCount {
		return Access{}, fieldError("fields", strconv.Itoa(len(fields)), ErrFieldCount)
	}
	rawIP, rawTime, rawRequest, rawStatus, rawSize, rawReferer, rawAgent :=
		fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[6]

	ip, err := parseIPv4(rawIP)
	if err != nil {
		return Access{}, err
	}

	ts, err := time.Parse(TimeLayout, rawTime)
	if err != nil {
		return Access{}, fieldError("time", rawTime, ErrTimestampFormat)
	}

	method, target, protocol, err := splitRequestLine(rawRequest)
	if err != nil {
		return Access{}, err
	}
	path, rawQuery := splitTarget(target)

	status, err := strconv.Atoi(rawStatus)
	if err != nil {
		return Access{}, fieldError("status", rawStatus, ErrStatusFormat)
	}

	n, err := strconv.ParseInt(rawSize, 10, 64)
	if err != nil || n < 0 {
		return Access{}, fieldError("size", rawSize, ErrSizeFormat)
	}

	var referer *string
	if rawReferer != noValue {
		referer = &rawReferer
	}

	return Access{
		IP:        ip,
		Time:      ts,
		Method:    method,
		Path:      path,
		Protocol:  protocol,
		Query:     parseQuery(rawQuery),
		Status:    status,
		Bytes:     n,
		Size:      FormatSize(n),
		Referer:   referer,
		UserAgent: ParseUserAgent(rawAgent),
	}, nil
}

func parseIPv4(s string) (netip.Addr, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil || !ip.Is4() {
		return netip.Addr{}, fieldError("ip", s, ErrAddressFormat)
	}
	return ip, nil
}

// splitRequestLine splits `GET /path?x=1 HTTP/1.1` into its three tokens.
func splitRequestLine(request string) (method, target, protocol string, err error) {
	parts := strings.Fields(request)
	if len(parts) != 3 {
		return "", "", "", fieldError("request", request, ErrRequestLineFormat)
	}
	return parts[0], parts[1], parts[2], nil
}

// splitTarget separates the request target into path and raw query, dropping
// any fragment.
func splitTarget(target string) (path, rawQuery string) {
	target, _, _ = strings.Cut(target, "#")
	path, rawQuery, _ = strings.Cut(target, "?")
	return path, rawQuery
}

// parseQuery decodes a query string into a multi-valued map. Values keep their
// order of appearance. Pairs without "=" and pairs with an empty value are
// dropped, and undecodable escapes are kept verbatim rather than failing.
func parseQuery(rawQuery string) map[string][]string {
	query := make(map[string][]string)
	for _, pair := range strings.Split(rawQuery, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || value == "" {
			continue
		}
		key = unescapeQuery(key)
		query[key] = append(query[key], unescapeQuery(value))
	}
	return query
}

func unescapeQuery(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return strings.ReplaceAll(s, "+", " ")
}

// Fields returns the serialized access columns in row order:
// ip, time, query, status, size, referer, user_agent.
func (a Access) Fields() []string {
	referer := ""
	if a.Referer != nil {
		referer = *a.Referer
	}
	return []string{
		a.IP.String(),
		a.Time.Format(time.RFC3339),
		compactJSON(a.Query),
		strconv.Itoa(a.Status),
		a.Size,
		referer,
		compactJSON(a.UserAgent),
	}
}

// MarshalJSON writes the access record with the same field names as the row
// columns.
func (a Access) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IP        string              `json:"ip"`
		Time      string              `json:"time"`
		Method    string              `json:"method"`
		Path      string              `json:"path"`
		Protocol  string              `json:"protocol"`
		Query     map[string][]string `json:"query"`
		Status    int                 `json:"status"`
		Bytes     int64               `json:"bytes"`
		Size      string              `json:"size"`
		Referer   *string             `json:"referer"`
		UserAgent UserAgent           `json:"user_agent"`
	}{
		IP:        a.IP.String(),
		Time:      a.Time.Format(time.RFC3339),
		Method:    a.Method,
		Path:      a.Path,
		Protocol:  a.Protocol,
		Query:     a.Query,
		Status:    a.Status,
		Bytes:     a.Bytes,
		Size:      a.Size,
		Referer:   a.Referer,
		UserAgent: a.UserAgent,
	})
}

// compactJSON marshals maps and flat structs; neither can fail.
func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
