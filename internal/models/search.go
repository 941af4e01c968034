// internal/models/search.go
package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// IndexPatternTypeRollup marks rollup index patterns. The empty type is the
// default kind served by the default search strategy.
const IndexPatternTypeRollup = "rollup"

type IndexPattern struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Type  string `json:"type,omitempty"`
}

// IsDefault reports whether p is a plain (non-rollup, non-specialized) pattern.
func (p *IndexPattern) IsDefault() bool {
	return p != nil && p.Type == ""
}

// Filter is a raw filter object as built by the UI, e.g.
// {"range": {"@timestamp": {"gte": "...", "lte": "...", "format": "..."}}}.
type Filter map[string]interface{}

// RangeBounds is the single-field body of a range filter.
type RangeBounds struct {
	Field  string
	Gte    interface{}
	Lte    interface{}
	Format string
}

// Range returns the bounds of a range filter. The field name key is
// stripped; filters over several fields are not treated as ranges.
func (f Filter) Range() (RangeBounds, bool) {
	raw, ok := f["range"].(map[string]interface{})
	if !ok || len(raw) != 1 {
		return RangeBounds{}, false
	}
	for field, v := range raw {
		body, ok := v.(map[string]interface{})
		if !ok {
			return RangeBounds{}, false
		}
		format, _ := body["format"].(string)
		return RangeBounds{
			Field:  field,
			Gte:    body["gte"],
			Lte:    body["lte"],
			Format: format,
		}, true
	}
	return RangeBounds{}, false
}

// FetchParams is the resolved query definition of one search request.
type FetchParams struct {
	Index      IndexPattern           `json:"index"`
	Body       map[string]interface{} `json:"body,omitempty"`
	Filters    []Filter               `json:"filters,omitempty"`
	Query      map[string]interface{} `json:"query,omitempty"`
	Preference interface{}            `json:"preference,omitempty"`
	SearchType string                 `json:"searchType,omitempty"`
}

// SearchRequest is a caller-owned pending search. GetFetchParams may fail
// (or panic); HandleFailure is told why.
type SearchRequest interface {
	GetFetchParams(ctx context.Context) (*FetchParams, error)
	HandleFailure(err error)
}

// FetchParamsSetter is implemented by requests that keep their resolved params.
type FetchParamsSetter interface {
	SetFetchParams(params *FetchParams)
}

// RoutingDecision is computed once per search invocation.
type RoutingDecision struct {
	QuerySecondary bool `json:"querySecondary"`
	Merge          bool `json:"merge"`
}

// Route names the result shape the decision asks for.
func (d RoutingDecision) Route() string {
	switch {
	case !d.QuerySecondary:
		return "primary"
	case d.Merge:
		return "merged"
	default:
		return "secondary"
	}
}

// Response is one entry of a multi-search reply. Fields keeps every key
// exactly as received; Hits and Aggregations are decoded views the merger
// edits and are written back over their keys on encode.
type Response struct {
	Hits         Hits
	Aggregations map[string]json.RawMessage
	Fields       map[string]json.RawMessage
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	out := Response{Fields: fields}
	if raw, ok := fields["hits"]; ok {
		if err := json.Unmarshal(raw, &out.Hits); err != nil {
			return fmt.Errorf("hits: %w", err)
		}
	}
	if raw, ok := fields["aggregations"]; ok {
		if err := json.Unmarshal(raw, &out.Aggregations); err != nil {
			return fmt.Errorf("aggregations: %w", err)
		}
	}
	*r = out
	return nil
}

func (r Response) MarshalJSON() ([]byte, error) {
	out := copyFields(r.Fields)
	if !r.Hits.isZero() {
		raw, err := json.Marshal(r.Hits)
		if err != nil {
			return nil, err
		}
		out["hits"] = raw
	}
	if r.Aggregations != nil {
		raw, err := json.Marshal(r.Aggregations)
		if err != nil {
			return nil, err
		}
		out["aggregations"] = raw
	}
	return json.Marshal(out)
}

// Hits mirrors Response: Fields holds the received keys (max_score and
// anything else), Total and Hits override theirs on encode.
type Hits struct {
	Total  HitsTotal
	Hits   []json.RawMessage
	Fields map[string]json.RawMessage
}

func (h *Hits) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	out := Hits{Fields: fields}
	if raw, ok := fields["total"]; ok {
		if err := json.Unmarshal(raw, &out.Total); err != nil {
			return fmt.Errorf("total: %w", err)
		}
	}
	if raw, ok := fields["hits"]; ok {
		if err := json.Unmarshal(raw, &out.Hits); err != nil {
			return err
		}
	}
	*h = out
	return nil
}

func (h Hits) MarshalJSON() ([]byte, error) {
	out := copyFields(h.Fields)
	if _, ok := h.Fields["total"]; ok || h.Total != 0 {
		raw, err := h.encodeTotal()
		if err != nil {
			return nil, err
		}
		out["total"] = raw
	}
	if _, ok := h.Fields["hits"]; ok || h.Hits != nil {
		raw, err := json.Marshal(h.Hits)
		if err != nil {
			return nil, err
		}
		out["hits"] = raw
	}
	return json.Marshal(out)
}

func (h Hits) isZero() bool {
	return h.Total == 0 && h.Hits == nil && h.Fields == nil
}

// encodeTotal keeps the received shape of hits.total: the object form
// retains its relation with value replaced.
func (h Hits) encodeTotal() (json.RawMessage, error) {
	raw := bytes.TrimSpace(h.Fields["total"])
	if len(raw) == 0 || raw[0] != '{' {
		return json.Marshal(int64(h.Total))
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	value, err := json.Marshal(int64(h.Total))
	if err != nil {
		return nil, err
	}
	obj["value"] = value
	return json.Marshal(obj)
}

// HitsTotal decodes both the integer form and the {"value","relation"}
// object form of hits.total.
type HitsTotal int64

func (t *HitsTotal) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = 0
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*t = HitsTotal(n)
		return nil
	}
	var obj struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*t = HitsTotal(obj.Value)
	return nil
}

func copyFields(in map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Clone copies r deeply enough that appending to hits or replacing
// aggregations on the copy never touches r.
func (r Response) Clone() Response {
	out := r
	if r.Hits.Hits != nil {
		out.Hits.Hits = append([]json.RawMessage(nil), r.Hits.Hits...)
	}
	if r.Hits.Fields != nil {
		out.Hits.Fields = copyFields(r.Hits.Fields)
	}
	if r.Fields != nil {
		out.Fields = copyFields(r.Fields)
	}
	if r.Aggregations != nil {
		out.Aggregations = make(map[string]json.RawMessage, len(r.Aggregations))
		for k, v := range r.Aggregations {
			out.Aggregations[k] = v
		}
	}
	return out
}

// CloneResponses clones every element of rs.
func CloneResponses(rs []Response) []Response {
	if rs == nil {
		return nil
	}
	out := make([]Response, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}

// SearchInput is the transport payload accepted by the job worker and the
// HTTP API.
type SearchInput struct {
	Requests                   []FetchParams `json:"requests"`
	IncludeFrozen              bool          `json:"includeFrozen,omitempty"`
	MaxConcurrentShardRequests int           `json:"maxConcurrentShardRequests,omitempty"`
	Discover                   bool          `json:"discover,omitempty"`
	Hostname                   string        `json:"hostname,omitempty"`
}

// FailedRequest reports a request whose fetch params could not be resolved.
type FailedRequest struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// SearchOutput is the transport reply.
type SearchOutput struct {
	InvocationID   string          `json:"invocationId"`
	Route          string          `json:"route"`
	Responses      []Response      `json:"responses"`
	FailedRequests []FailedRequest `json:"failedRequests"`
}
