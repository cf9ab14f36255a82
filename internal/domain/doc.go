// Package domain models web-server access-log entries enriched with IP
// geolocation data.
//
// # Input Format
//
// Each accepted line is an nginx "combined" entry followed by one extra quoted
// field that must be the literal "-" (the X-Forwarded-For slot in the default
// log_format of the servers this tool was written for):
//
//	203.0.113.5 - - [10/Oct/2023:13:55:36 +0000] "GET /search?q=test HTTP/1.1" 200 2326 "-" "Mozilla/5.0" "-"
//
// Lines without the trailing "-" field are rejected by [ParseLine]. The seven
// captured fields are, in order: address, timestamp, request line, status,
// size, referer and user agent.
//
// Timestamp format:
//
//	dd/Mon/yyyy:HH:MM:SS ±hhmm, e.g. "10/Oct/2023:13:55:36 +0000".
//	Serialized as RFC 3339; a zero offset is written as "Z".
//
// Size format:
//
//	Byte counts are written with binary (IEC) units and at most two decimals,
//	trailing zeros trimmed: 0 -> "0 bytes", 1024 -> "1 KiB", 2326 -> "2.27 KiB".
//
// Referer:
//
//	The placeholder "-" means "no referer" and is stored as nil.
//
// # Geolocation
//
// The client address is resolved by a [Locator] into an [Attributes] bag. A bag
// whose Bogon flag is set describes a private or reserved address; the entry is
// skipped without an error. Otherwise the bag is projected into the owned tree
// City -> Country -> Continent plus Position.
//
// # Output Rows
//
// [Event.Row] flattens one event into the column order given by [Columns].
// The layout is versioned by [RowSchemaVersion]; change the version whenever a
// column is added, removed or reordered.
//
// # Errors
//
// Every construction failure wraps one of the sentinel errors in errors.go, so
// callers classify failures with errors.Is and keep processing later lines.
package domain
