// Command normalize reads a raw TAPS sighting feed and writes the normalized
// sightings as a JSON fixture. It runs the same normalizer the tracker uses so
// the fixture matches real ingestion output.
//
// Usage:
//
//	go run ./cmd/normalize \
//	  -feed data/sample/sightings.txt \
//	  -out data/sample/sightings.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/taps-tracker-service/internal/domain"
)

// fixtureTime is stamped as the ingestion time for reproducible output.
var fixtureTime = time.Date(2024, time.October, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	IngestedAt time.Time         `json:"ingested_at"`
	Skipped    int               `json:"skipped"`
	Sightings  []domain.Sighting `json:"sightings"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	feed := flag.String("feed", "", "path to the raw sighting feed")
	out := flag.String("out", "", "output path for the normalized JSON fixture")
	flag.Parse()

	if *feed == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -feed, -out")
	}

	raw, err := os.ReadFile(*feed)
	if err != nil {
		return fmt.Errorf("reading feed: %w", err)
	}

	domain.SetClock(clockwork.NewFakeClockAt(fixtureTime))
	defer domain.SetClock(nil)

	res := domain.Ingest(string(raw), slog.New(slog.NewTextHandler(io.Discard, nil)))
	log.Printf("%d sightings, %d skipped", len(res.Sightings), res.Skipped)

	if err := writeJSON(*out, fixture{
		IngestedAt: res.IngestedAt,
		Skipped:    res.Skipped,
		Sightings:  domain.SortByRecency(res.Sightings),
	}); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote fixture: %s", *out)

	printStats(res.Sightings)
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

type labelCount struct {
	label string
	count int
}

// printStats reports sightings per location and per display hour.
func printStats(sightings []domain.Sighting) {
	byLabel := map[string]int{}
	var hours [domain.HoursPerDay]int
	for _, s := range sightings {
		byLabel[s.LocationLabel]++
		hours[domain.DisplayHour(s.OccurredAt)]++
	}

	counts := make([]labelCount, 0, len(byLabel))
	for label, n := range byLabel {
		counts = append(counts, labelCount{label, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].label < counts[j].label
	})

	fmt.Println("\nSightings by location:")
	for i, c := range counts {
		if i == 10 {
			fmt.Printf("  ... %d more\n", len(counts)-10)
			break
		}
		fmt.Printf("  %-40s %d\n", c.label, c.count)
	}

	fmt.Println("\nSightings by display hour:")
	for h, n := range hours {
		if n > 0 {
			fmt.Printf("  %02d:00  %d\n", h, n)
		}
	}
}
