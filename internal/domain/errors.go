package domain

import (
	"errors"
	"fmt"
)

// Per-line errors. All of them are recoverable: the offending line is rejected
// and processing continues with the next one unless the driver runs in strict mode.
var (
	ErrLineFormat        = errors.New("line does not match access log format")
	ErrFieldCount        = errors.New("unexpected field count")
	ErrAddressFormat     = errors.New("invalid IPv4 address")
	ErrTimestampFormat   = errors.New("invalid timestamp")
	ErrRequestLineFormat = errors.New("invalid request line")
	ErrStatusFormat      = errors.New("invalid status code")
	ErrSizeFormat        = errors.New("invalid size")
	ErrPositionFormat    = errors.New("invalid location")
	ErrIncompleteGeoData = errors.New("incomplete geo data")
)

// FieldError reports which raw field failed to convert.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldError(field, value string, err error) error {
	return &FieldError{Field: field, Value: value, Err: err}
}

// ErrorKind returns a short label for the per-line sentinel wrapped by err, or
// "other" when err is not one of them. Used as a metrics label.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrLineFormat):
		return "line_format"
	case errors.Is(err, ErrFieldCount):
		return "field_count"
	case errors.Is(err, ErrAddressFormat):
		return "address_format"
	case errors.Is(err, ErrTimestampFormat):
		return "timestamp_format"
	case errors.Is(err, ErrRequestLineFormat):
		return "request_line_format"
	case errors.Is(err, ErrStatusFormat):
		return "status_format"
	case errors.Is(err, ErrSizeFormat):
		return "size_format"
	case errors.Is(err, ErrPositionFormat):
		return "position_format"
	case errors.Is(err, ErrIncompleteGeoData):
		return "incomplete_geo_data"
	default:
		var lerr *LookupError
		if errors.As(err, &lerr) {
			return "lookup"
		}
		return "other"
	}
}
