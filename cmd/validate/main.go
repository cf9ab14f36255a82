// Command validate checks a CSV produced by accesslog-etl against the access
// log it was built from. It verifies row shape, that every row traces back to
// an accepted input line in input order, and field formats. Country codes are
// cross-checked against an embedded IP-to-country table; disagreements are
// reported but never fail validation, since providers differ.
//
// Usage:
//
//	go run ./cmd/validate -input access.txt -output access.csv [-header]
package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
	"github.com/phuslu/iploc"
)

// Column indexes into domain.Columns.
const (
	colIP          = 0
	colTime        = 1
	colQuery       = 2
	colStatus      = 3
	colUserAgent   = 6
	colCountryCode = 10
	colLatitude    = 13
	colLongitude   = 14
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// inputLine is an input line that parsed into an access record.
type inputLine struct {
	number int
	ip     string
	time   string
}

// row is a CSV data row with its 1-based record number in the file.
type row struct {
	record int
	fields []string
}

func main() {
	input := flag.String("input", "", "access log that was enriched")
	output := flag.String("output", "", "CSV produced by accesslog-etl")
	header := flag.Bool("header", false, "the CSV starts with a header row")
	flag.Parse()

	if *input == "" || *output == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*input, *output, *header, os.Stdout))
}

func run(inputPath, outputPath string, header bool, w io.Writer) int {
	fmt.Fprintln(w, "=== Access Log Enrichment Validation ===")
	fmt.Fprintln(w)

	accepted, total, err := loadInput(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load input: %v\n", err)
		return 1
	}
	records, err := loadCSV(outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load output: %v\n", err)
		return 1
	}

	shape, rows := validateShape(records, header)
	phases := []*phase{
		shape,
		validateProvenance(rows, accepted),
		validateFormats(rows),
		crossCheckCountries(rows),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Lines: %d input, %d parseable, %d output rows\n", total, len(accepted), len(rows))

	for _, p := range phases {
		for _, n := range p.notes {
			fmt.Fprintf(w, "  Note: %s\n", n)
		}
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

// ── Data loading ──

// loadInput re-parses the access log and returns the lines that build a valid
// access record, plus the number of non-blank lines.
func loadInput(path string) ([]inputLine, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var accepted []inputLine
	total, number := 0, 0
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for s.Scan() {
		number++
		if strings.TrimSpace(s.Text()) == "" {
			continue
		}
		total++
		fields, err := domain.ParseLine(s.Text())
		if err != nil {
			continue
		}
		access, err := domain.NewAccess(fields)
		if err != nil {
			continue
		}
		accepted = append(accepted, inputLine{number: number, ip: access.IP.String(), time: access.Time.Format(time.RFC3339)})
	}
	return accepted, total, s.Err()
}

func loadCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

// ── Validation phases ──

func validateShape(records [][]string, header bool) (*phase, []row) {
	p := &phase{name: "Row shape"}
	start := 0
	if header {
		if len(records) == 0 {
			p.errorf("expected a header row, file is empty")
			return p, nil
		}
		if !slices.Equal(records[0], domain.Columns) {
			p.errorf("header %v does not match %v", records[0], domain.Columns)
		}
		start = 1
	}

	rows := make([]row, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		if len(records[i]) != len(domain.Columns) {
			p.errorf("record %d: %d columns, want %d", i+1, len(records[i]), len(domain.Columns))
			continue
		}
		rows = append(rows, row{record: i + 1, fields: records[i]})
	}
	return p, rows
}

// validateProvenance matches rows against accepted input lines as an ordered
// subsequence: skipped and rejected lines leave gaps, but rows never reorder.
func validateProvenance(rows []row, accepted []inputLine) *phase {
	p := &phase{name: "Row provenance and order"}
	next := 0
	for _, r := range rows {
		ip, ts := r.fields[colIP], r.fields[colTime]
		found := false
		for j := next; j < len(accepted); j++ {
			if accepted[j].ip == ip && accepted[j].time == ts {
				next = j + 1
				found = true
				break
			}
		}
		if found {
			continue
		}
		if slices.ContainsFunc(accepted, func(l inputLine) bool { return l.ip == ip && l.time == ts }) {
			p.errorf("record %d (%s at %s) is out of input order", r.record, ip, ts)
		} else {
			p.errorf("record %d (%s at %s) matches no input line", r.record, ip, ts)
		}
	}
	return p
}

func validateFormats(rows []row) *phase {
	p := &phase{name: "Field formats"}
	for _, r := range rows {
		f := r.fields
		if _, err := time.Parse(time.RFC3339, f[colTime]); err != nil {
			p.errorf("record %d: time %q is not RFC 3339", r.record, f[colTime])
		}
		var query map[string][]string
		if err := json.Unmarshal([]byte(f[colQuery]), &query); err != nil {
			p.errorf("record %d: query is not a JSON object: %v", r.record, err)
		}
		if status, err := strconv.Atoi(f[colStatus]); err != nil || status < 100 || status > 999 {
			p.errorf("record %d: status %q is not a 3-digit code", r.record, f[colStatus])
		}
		var ua domain.UserAgent
		if err := json.Unmarshal([]byte(f[colUserAgent]), &ua); err != nil {
			p.errorf("record %d: user_agent is not a JSON object: %v", r.record, err)
		} else if ua.Browser == "" || ua.OS == "" || ua.Device == "" {
			p.errorf("record %d: user_agent has empty descriptors", r.record)
		}
		if err := checkCoordinate(f[colLatitude], 90); err != nil {
			p.errorf("record %d: latitude: %v", r.record, err)
		}
		if err := checkCoordinate(f[colLongitude], 180); err != nil {
			p.errorf("record %d: longitude: %v", r.record, err)
		}
	}
	return p
}

func checkCoordinate(s string, limit float64) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%q is not a number", s)
	}
	if v < -limit || v > limit {
		return errors.New("out of range")
	}
	return nil
}

// crossCheckCountries compares each row's country code with the embedded
// table. It only produces notes.
func crossCheckCountries(rows []row) *phase {
	p := &phase{name: "Country cross-check (advisory)"}
	mismatches := 0
	for _, r := range rows {
		ip := net.ParseIP(r.fields[colIP])
		if ip == nil {
			continue
		}
		want := iploc.Country(ip)
		if want != "" && want != r.fields[colCountryCode] {
			mismatches++
		}
	}
	if mismatches > 0 {
		p.notef("%d of %d row(s) disagree with the embedded country table", mismatches, len(rows))
	}
	return p
}
