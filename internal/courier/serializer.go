package courier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"search-courier/internal/models"
)

// Serializer turns resolved fetch params into one multi-search payload.
type Serializer func(ctx context.Context, params []models.FetchParams) (string, error)

type msearchHeader struct {
	Index             string      `json:"index"`
	IgnoreUnavailable bool        `json:"ignore_unavailable"`
	Preference        interface{} `json:"preference,omitempty"`
	SearchType        string      `json:"search_type,omitempty"`
}

// MsearchSerializer writes one header line and one body line per request.
// A top-level query is folded into the body unless the body has its own.
func MsearchSerializer(_ context.Context, params []models.FetchParams) (string, error) {
	var sb strings.Builder
	for i, p := range params {
		header, err := json.Marshal(msearchHeader{
			Index:             p.Index.Title,
			IgnoreUnavailable: true,
			Preference:        p.Preference,
			SearchType:        p.SearchType,
		})
		if err != nil {
			return "", fmt.Errorf("request %d header: %w", i, err)
		}

		body := make(map[string]interface{}, len(p.Body)+1)
		for k, v := range p.Body {
			body[k] = v
		}
		if _, ok := body["query"]; !ok && p.Query != nil {
			body["query"] = p.Query
		}
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("request %d body: %w", i, err)
		}

		sb.Write(header)
		sb.WriteByte('\n')
		sb.Write(bodyJSON)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// buildBody terminates the payload with the newline _msearch requires.
func buildBody(payload string) string {
	if strings.HasSuffix(payload, "\n") {
		return payload
	}
	return payload + "\n"
}
