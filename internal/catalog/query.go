package catalog

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tj/go-naturaldate"
)

// Filter selects catalog records
type Filter struct {
	// Since is a preset ("today", "yesterday", "week", "month", "all") or a
	// natural language date such as "3 days ago"
	Since string

	Container string
	Codec     string
	Area      string

	Limit int
}

// BuildWhereClause constructs the SQL WHERE clause and arguments for the filter
func (f Filter) BuildWhereClause(now time.Time) (string, []interface{}, error) {
	var clauses []string
	var args []interface{}

	slog.Debug("building where clause",
		"since", f.Since,
		"container", f.Container,
		"codec", f.Codec,
		"area", f.Area)

	if f.Since != "" {
		start, err := ParseSince(f.Since, now)
		if err != nil {
			return "", nil, err
		}
		if !start.IsZero() {
			clauses = append(clauses, "scanned_at >= ?")
			args = append(args, start.Unix())
		}
	}

	if f.Container != "" {
		clauses = append(clauses, "container = ?")
		args = append(args, f.Container)
	}

	if f.Codec != "" {
		clauses = append(clauses, "codec = ?")
		args = append(args, strings.ToUpper(f.Codec))
	}

	if f.Area != "" {
		clauses = append(clauses, "area = ?")
		args = append(args, f.Area)
	}

	where := strings.Join(clauses, " AND ")
	slog.Debug("built where clause", "clause", where, "arg_count", len(args))
	return where, args, nil
}

// ParseSince turns a preset or natural language date into the lower bound of
// a time range. The zero time means no lower bound.
func ParseSince(since string, now time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(since)) {
	case "", "all", "all-time":
		return time.Time{}, nil
	case "today":
		return beginningOfDay(now), nil
	case "yesterday":
		return beginningOfDay(now.AddDate(0, 0, -1)), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, -1, 0), nil
	}

	result, err := naturaldate.Parse(since, now)
	if err != nil {
		slog.Warn("failed to parse natural language date", "input", since, "error", err)
		return time.Time{}, fmt.Errorf("failed to parse date '%s': %w", since, err)
	}

	slog.Debug("parsed natural language date", "input", since, "result", result)
	return result, nil
}

func beginningOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
