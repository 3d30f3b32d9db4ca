package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrFieldCount     = errors.New("expected 4 comma-separated fields")
	ErrBadDate        = errors.New("unrecognized date token")
	ErrBadTime        = errors.New("unrecognized time token")
	ErrInvalidInstant = errors.New("date and time do not form a valid instant")
)

var (
	// clockTimeRe matches 12-hour clock tokens such as "2:30 PM" or "11:05 am".
	clockTimeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*([AaPp][Mm])$`)

	// dateRe matches M/D/YYYY with one- or two-digit month and day.
	dateRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

// Ingest splits a raw text corpus into lines and normalizes them.
// Blank lines are ignored rather than counted as skipped.
func Ingest(rawText string, logger *slog.Logger) IngestResult {
	return Normalize(strings.Split(rawText, "\n"), logger)
}

// Normalize converts raw sighting lines into canonical sightings. Lines are
// deduplicated after cleanup; malformed lines are logged and counted in
// Skipped, never returned.
func Normalize(lines []string, logger *slog.Logger) IngestResult {
	seen := make(map[string]struct{}, len(lines))
	result := IngestResult{
		Sightings:  make([]Sighting, 0, len(lines)),
		IngestedAt: clock.Now().UTC(),
	}

	for _, line := range lines {
		cleaned := CleanLine(line)
		if cleaned == "" {
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}

		s, err := ParseLine(cleaned)
		if err != nil {
			result.Skipped++
			logger.Debug("skipping sighting line", "line", cleaned, "reason", err)
			continue
		}
		result.Sightings = append(result.Sightings, s)
	}

	return result
}

// CleanLine trims whitespace, trailing commas and surrounding quotes from a
// raw feed line, e.g. `"123,LOC,1430,3/5/2024",` -> `123,LOC,1430,3/5/2024`.
func CleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimRight(line, ",")
	line = strings.TrimSpace(line)
	line = strings.Trim(line, `"'`)
	return strings.TrimSpace(line)
}

// ParseLine parses one cleaned line into a Sighting.
func ParseLine(line string) (Sighting, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return Sighting{}, fmt.Errorf("%w: got %d", ErrFieldCount, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	year, month, day, err := parseDate(fields[3])
	if err != nil {
		return Sighting{}, err
	}
	hour, minute, err := parseTimeToken(fields[2])
	if err != nil {
		return Sighting{}, err
	}
	occurredAt, err := composeInstant(year, month, day, hour, minute)
	if err != nil {
		return Sighting{}, err
	}

	return Sighting{
		CitationNumber: orUnavailable(fields[0]),
		LocationLabel:  orUnavailable(fields[1]),
		OccurredAt:     occurredAt,
	}, nil
}

func orUnavailable(s string) string {
	if s == "" {
		return Unavailable
	}
	return s
}

// parseDate parses M/D/YYYY or MM/DD/YYYY.
func parseDate(token string) (year, month, day int, err error) {
	m := dateRe.FindStringSubmatch(token)
	if m == nil {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrBadDate, token)
	}
	month, _ = strconv.Atoi(m[1])
	day, _ = strconv.Atoi(m[2])
	year, _ = strconv.Atoi(m[3])
	return year, month, day, nil
}

// parseTimeToken accepts "HHmm"/"Hmm" (zero-padded, e.g. "930" -> 09:30) and
// "H:MM AM|PM". Range checks happen in composeInstant.
func parseTimeToken(token string) (hour, minute int, err error) {
	if isDigits(token) && (len(token) == 3 || len(token) == 4) {
		if len(token) == 3 {
			token = "0" + token
		}
		hour, _ = strconv.Atoi(token[:2])
		minute, _ = strconv.Atoi(token[2:])
		return hour, minute, nil
	}

	m := clockTimeRe.FindStringSubmatch(token)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadTime, token)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	switch period := strings.ToUpper(m[3]); {
	case period == "AM" && hour == 12:
		hour = 0
	case period == "PM" && hour != 12:
		hour += 12
	}
	return hour, minute, nil
}

// composeInstant builds the UTC instant and rejects values time.Date would
// silently normalize, such as hour 24 or February 30.
func composeInstant(year, month, day, hour, minute int) (time.Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidInstant, hour, minute)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %d/%d/%d", ErrInvalidInstant, month, day, year)
	}
	return t, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
