// Command validate checks a raw sighting feed and the location table for
// problems the tracker would otherwise absorb silently: rejected lines,
// labels no table entry resolves, and table entries that can never match.
// With -fixture it also checks that a normalized fixture still matches what
// the feed normalizes to.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -feed data/sample/sightings.txt \
//	  -locations internal/config/locations.yaml \
//	  -fixture data/sample/sightings.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/couchcryptid/taps-tracker-service/internal/config"
	"github.com/couchcryptid/taps-tracker-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	feed := flag.String("feed", "", "path to the raw sighting feed")
	locations := flag.String("locations", "", "location table YAML (default: embedded table)")
	fixture := flag.String("fixture", "", "optional normalized JSON fixture to compare against")
	flag.Parse()

	if *feed == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*feed, *locations, *fixture))
}

func run(feedPath, locationsPath, fixturePath string) int {
	fmt.Println("=== TAPS Feed Validation ===")
	fmt.Println()

	raw, err := os.ReadFile(feedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read feed: %v\n", err)
		return 1
	}
	table, err := config.LoadLocations(locationsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load location table: %v\n", err)
		return 1
	}

	lines := strings.Split(string(raw), "\n")
	res := domain.Normalize(lines, slog.New(slog.NewTextHandler(io.Discard, nil)))
	resolver := domain.NewResolver(table.Locations)

	phases := []*phase{
		validateLines(lines),
		validateCoverage(res.Sightings, resolver),
		validateTable("locations", table.Locations),
		validateTable("parking_lots", table.ParkingLots),
	}
	if fixturePath != "" {
		phases = append(phases, validateFixture(fixturePath, res.Sightings))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Feed: %d lines, %d sightings, %d skipped. Table: %d locations, %d parking lots\n",
		len(lines), len(res.Sightings), res.Skipped, len(table.Locations), len(table.ParkingLots))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateLines reports every non-blank line the normalizer rejects.
func validateLines(lines []string) *phase {
	p := &phase{name: "Phase 1: Feed Lines (parse)"}
	for i, line := range lines {
		cleaned := domain.CleanLine(line)
		if cleaned == "" {
			continue
		}
		if _, err := domain.ParseLine(cleaned); err != nil {
			p.errorf("line %d: %v: %q", i+1, err, cleaned)
		}
	}
	return p
}

// validateCoverage reports labels the location table cannot place on the map.
func validateCoverage(sightings []domain.Sighting, resolver *domain.Resolver) *phase {
	p := &phase{name: "Phase 2: Location Coverage (table)"}

	unresolved := map[string]int{}
	for _, s := range sightings {
		if s.LocationLabel == domain.Unavailable {
			continue
		}
		if _, ok := resolver.Resolve(s.LocationLabel); !ok {
			unresolved[s.LocationLabel]++
		}
	}

	labels := make([]string, 0, len(unresolved))
	for l := range unresolved {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		p.errorf("%q (%d sightings) matches no table entry", l, unresolved[l])
	}
	return p
}

// validateTable reports duplicate names and entries shadowed by an earlier
// entry whose name they contain, since first match wins.
func validateTable(section string, locs []domain.NamedLocation) *phase {
	p := &phase{name: fmt.Sprintf("Phase 3: Table Integrity (%s)", section)}

	seen := map[string]int{}
	for i, loc := range locs {
		if j, dup := seen[loc.Name]; dup {
			p.errorf("%s[%d] %q duplicates entry %d", section, i, loc.Name, j)
			continue
		}
		seen[loc.Name] = i

		for j := range i {
			if locs[j].Name != loc.Name && strings.Contains(loc.Name, locs[j].Name) {
				p.errorf("%s[%d] %q is shadowed by earlier entry %q", section, i, loc.Name, locs[j].Name)
				break
			}
		}
	}
	return p
}

type fixtureFile struct {
	Sightings []domain.Sighting `json:"sightings"`
}

// validateFixture compares a fixture against the feed's normalized output,
// ignoring order.
func validateFixture(path string, sightings []domain.Sighting) *phase {
	p := &phase{name: "Phase 4: Fixture Parity (JSON)"}

	data, err := os.ReadFile(path)
	if err != nil {
		p.errorf("read fixture: %v", err)
		return p
	}
	var fx fixtureFile
	if err := json.Unmarshal(data, &fx); err != nil {
		p.errorf("decode fixture: %v", err)
		return p
	}

	want := domain.SortByRecency(sightings)
	got := domain.SortByRecency(fx.Sightings)
	if diff := cmp.Diff(want, got); diff != "" {
		p.errorf("fixture differs from feed (-feed +fixture):\n%s", diff)
	}
	return p
}
