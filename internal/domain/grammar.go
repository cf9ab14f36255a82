package domain

import (
	"fmt"
	"regexp"
)

// fieldCount is the number of positional fields captured from one log line.
const fieldCount = 7

var (
	ipPattern     = `((?:\d{1,3}\.?){4})`
	datePattern   = `\[([^\]]+)\]`
	stringPattern = `"([^"]+)"`
	statusPattern = `(\d{3})`
	sizePattern   = `(\d+)`

	// lineRe matches one access log entry. The trailing `"-"` is the discarded
	// forwarded-for field and is mandatory.
	lineRe = regexp.MustCompile(ipPattern + ` - - ` + datePattern + ` ` + stringPattern + ` ` +
		statusPattern + ` ` + sizePattern + ` ` + stringPattern + ` ` + stringPattern + ` "-"`)
)

// RawLine is one line read from the log source.
type RawLine struct {
	Number int
	Text   string
}

// ParseLine matches a log line and returns its seven raw fields in order:
// address, timestamp, request line, status, size, referer, user agent.
func ParseLine(line string) ([]string, error) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return nil, ErrLineFormat
	}
	groups := m[1:]
	if len(groups) != fieldCount {
		return nil, fmt.Errorf("%w: got %d groups", ErrLineFormat, len(groups))
	}
	return groups, nil
}
