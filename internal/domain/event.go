package domain

import (
	"encoding/json"
	"strconv"
)

// RowSchemaVersion identifies the column layout produced by Event.Row.
const RowSchemaVersion = 1

// Columns lists the output row columns in order.
var Columns = []string{
	"ip", "time", "query", "status", "size", "referer", "user_agent",
	"city", "region", "country_name", "country_code", "continent_code", "continent_name",
	"latitude", "longitude",
}

// Event is one fully enriched access log entry.
type Event struct {
	Access Access `json:"access"`
	City   City   `json:"city"`
}

// Assemble combines an access record with the lookup result for its address.
// It reports skipped=true, with a nil error, when the address is a bogon.
func Assemble(access Access, attrs Attributes) (event Event, skipped bool, err error) {
	if attrs.Bogon {
		return Event{}, true, nil
	}
	city, err := NewCity(attrs)
	if err != nil {
		return Event{}, false, err
	}
	return Event{Access: access, City: city}, false, nil
}

// Row flattens the event into the column order given by Columns.
func (e Event) Row() []string {
	row := make([]string, 0, len(Columns))
	row = append(row, e.Access.Fields()...)
	return append(row, e.City.Fields()...)
}

// Key identifies the event on keyed sinks.
func (e Event) Key() []byte {
	return []byte(e.Access.IP.String())
}

// Headers carries sink metadata alongside the serialized event.
func (e Event) Headers() map[string]string {
	return map[string]string{
		"schema_version": strconv.Itoa(RowSchemaVersion),
		"status":         strconv.Itoa(e.Access.Status),
	}
}

// Encode serializes the event as JSON.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
