package background

import (
	"math/rand/v2"
	"strings"
)

// DefaultQuery is used when no clocks are configured.
const DefaultQuery = "New Zealand Nature"

// QueryOptions are the themes appended to a clock's city.
var QueryOptions = []string{"nature", "city", "art", "sightseeing"}

// QueryPicker builds the daily search query from the configured clock labels.
type QueryPicker struct {
	labels []string
	intN   func(n int) int
}

// NewQueryPicker creates a picker. A nil intN uses math/rand/v2.
func NewQueryPicker(labels []string, intN func(n int) int) *QueryPicker {
	if intN == nil {
		intN = rand.IntN
	}
	return &QueryPicker{labels: labels, intN: intN}
}

// Pick returns "<city of a random clock> <random theme>", or DefaultQuery when
// there are no clocks.
func (p *QueryPicker) Pick() string {
	if len(p.labels) == 0 {
		return DefaultQuery
	}
	option := QueryOptions[p.intN(len(QueryOptions))]
	label := p.labels[p.intN(len(p.labels))]
	city, _, _ := strings.Cut(label, ",")
	return city + " " + option
}
