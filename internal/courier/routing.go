package courier

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"search-courier/internal/models"
)

const msPerDay = 86_400_000

// DefaultThresholdDays is the age after which data is assumed to live only
// in the secondary archive.
const DefaultThresholdDays = 30

// RoutingContext describes where a search comes from.
type RoutingContext struct {
	// Discover is set for the document exploration view, the only view
	// whose searches are routed to the secondary backend.
	Discover bool
	Hostname string
}

// RoutingDecider applies the cold-data heuristic.
type RoutingDecider struct {
	thresholdDays int
	eligibleHosts []string
}

// NewRoutingDecider builds a decider. An empty host list admits every host.
func NewRoutingDecider(thresholdDays int, eligibleHosts []string) *RoutingDecider {
	if thresholdDays <= 0 {
		thresholdDays = DefaultThresholdDays
	}
	return &RoutingDecider{
		thresholdDays: thresholdDays,
		eligibleHosts: eligibleHosts,
	}
}

// Decide inspects the last range filter of the last resolved request.
// A start older than the threshold queries the secondary; results are
// merged only when the end still falls inside the threshold. The result
// depends on nothing but its arguments.
func (d *RoutingDecider) Decide(params []models.FetchParams, rc RoutingContext, now time.Time) models.RoutingDecision {
	if !d.eligible(rc) || len(params) == 0 {
		return models.RoutingDecision{}
	}

	bounds, ok := lastRangeFilter(params[len(params)-1].Filters)
	if !ok {
		return models.RoutingDecision{}
	}

	// No start means the range is not bounded in the past.
	gte, ok := toEpochMillis(bounds.Gte)
	if !ok {
		return models.RoutingDecision{}
	}

	nowMs := now.UnixMilli()
	lte, ok := toEpochMillis(bounds.Lte)
	if !ok {
		lte = nowMs
	}

	daysSinceGte := daysBetween(gte, nowMs)
	daysSinceLte := daysBetween(lte, nowMs)

	if daysSinceGte > int64(d.thresholdDays) {
		return models.RoutingDecision{
			QuerySecondary: true,
			Merge:          daysSinceLte <= int64(d.thresholdDays),
		}
	}
	return models.RoutingDecision{}
}

func (d *RoutingDecider) eligible(rc RoutingContext) bool {
	if !rc.Discover {
		return false
	}
	if len(d.eligibleHosts) == 0 {
		return true
	}
	for _, host := range d.eligibleHosts {
		if host != "" && strings.Contains(rc.Hostname, host) {
			return true
		}
	}
	return false
}

func lastRangeFilter(filters []models.Filter) (models.RangeBounds, bool) {
	for i := len(filters) - 1; i >= 0; i-- {
		if bounds, ok := filters[i].Range(); ok {
			return bounds, true
		}
	}
	return models.RangeBounds{}, false
}

func daysBetween(fromMs, toMs int64) int64 {
	return int64(math.Floor(float64(toMs-fromMs) / msPerDay))
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// toEpochMillis accepts epoch milliseconds (number or numeric string) and
// ISO-8601 timestamps. Zone-less timestamps are read as UTC.
func toEpochMillis(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case time.Time:
		return t.UnixMilli(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		for _, layout := range isoLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UnixMilli(), true
			}
		}
	}
	return 0, false
}
