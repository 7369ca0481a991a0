// Package location describes the places a user keeps clocks for.
package location

import (
	"fmt"
	"strings"
	"time"
)

// Location is one configured place. Label is a display name such as
// "Wellington, New Zealand"; TZ is an IANA timezone name.
type Location struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	TZ          string `json:"tz"`
	CountryCode string `json:"countryCode"`
	// Region is an ISO 3166-2 subdivision code, e.g. "DE-BY". Empty means none.
	Region string `json:"region,omitempty"`
}

// City returns the label up to its first comma.
func (l Location) City() string {
	city, _, _ := strings.Cut(l.Label, ",")
	return strings.TrimSpace(city)
}

// DateLayout is the calendar-day format used for cache keys.
const DateLayout = "2006-01-02"

// Today formats now as YYYY-MM-DD in the named timezone.
func Today(tz string, now time.Time) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return now.In(loc).Format(DateLayout), nil
}

// Catalog is the set of configured locations, in configuration order.
type Catalog struct {
	locations []Location
	byID      map[string]Location
}

// NewCatalog validates the locations and indexes them by id.
func NewCatalog(locations []Location) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Location, len(locations))}
	for _, l := range locations {
		if l.ID == "" {
			return nil, fmt.Errorf("location %q has no id", l.Label)
		}
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("duplicate location id %q", l.ID)
		}
		if _, err := time.LoadLocation(l.TZ); err != nil {
			return nil, fmt.Errorf("location %q: unknown timezone %q: %w", l.ID, l.TZ, err)
		}
		c.byID[l.ID] = l
		c.locations = append(c.locations, l)
	}
	return c, nil
}

// Lookup returns the location with the given id.
func (c *Catalog) Lookup(id string) (Location, bool) {
	l, ok := c.byID[id]
	return l, ok
}

// All returns every location in configuration order.
func (c *Catalog) All() []Location {
	return append([]Location(nil), c.locations...)
}

// Labels returns every location's label, in configuration order.
func (c *Catalog) Labels() []string {
	labels := make([]string, 0, len(c.locations))
	for _, l := range c.locations {
		labels = append(labels, l.Label)
	}
	return labels
}

// Len reports the number of locations.
func (c *Catalog) Len() int {
	return len(c.locations)
}
