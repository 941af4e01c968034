package courier

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"search-courier/internal/models"
)

// MergedAggregationID is the date histogram whose buckets are combined.
const MergedAggregationID = "2"

var ErrMalformedAggregation = stderrors.New("courier: aggregation has no bucket list")

// MergeResponses combines the two backends' replies for response index 0.
// With decision.Merge the hits, totals and histogram buckets are
// concatenated primary first; without it the secondary's first response
// replaces the primary's. Every other index is the primary's. Empty inputs
// yield the primary unchanged. Neither input is modified.
func MergeResponses(primary, secondary []models.Response, decision models.RoutingDecision) ([]models.Response, error) {
	out := models.CloneResponses(primary)
	if len(primary) == 0 || len(secondary) == 0 {
		return out, nil
	}

	if !decision.Merge {
		out[0] = secondary[0].Clone()
		return out, nil
	}

	first := out[0]
	extra := secondary[0]

	if raw, ok := first.Aggregations[MergedAggregationID]; ok {
		merged, err := appendBuckets(raw, extra.Aggregations[MergedAggregationID])
		if err != nil {
			return nil, fmt.Errorf("aggregation %q: %w", MergedAggregationID, err)
		}
		first.Aggregations[MergedAggregationID] = merged
	}

	first.Hits.Hits = append(first.Hits.Hits, extra.Hits.Hits...)
	first.Hits.Total += extra.Hits.Total
	out[0] = first

	return out, nil
}

func appendBuckets(primaryRaw, secondaryRaw json.RawMessage) (json.RawMessage, error) {
	agg, buckets, err := splitBuckets(primaryRaw)
	if err != nil {
		return nil, err
	}
	if len(secondaryRaw) == 0 {
		return primaryRaw, nil
	}

	_, extra, err := splitBuckets(secondaryRaw)
	if err != nil {
		return nil, err
	}

	combined, err := json.Marshal(append(buckets, extra...))
	if err != nil {
		return nil, err
	}
	agg["buckets"] = combined
	return json.Marshal(agg)
}

func splitBuckets(raw json.RawMessage) (map[string]json.RawMessage, []json.RawMessage, error) {
	var agg map[string]json.RawMessage
	if err := json.Unmarshal(raw, &agg); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedAggregation, err)
	}
	rawBuckets, ok := agg["buckets"]
	if !ok {
		return nil, nil, ErrMalformedAggregation
	}
	var buckets []json.RawMessage
	if err := json.Unmarshal(rawBuckets, &buckets); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedAggregation, err)
	}
	return agg, buckets, nil
}
