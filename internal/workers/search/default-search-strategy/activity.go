package defaultsearchstrategy

import (
	"encoding/json"
	"fmt"
	"sort"

	"search-courier/internal/common/errors"
	"search-courier/internal/common/validation"
	"search-courier/pkg/registry"
)

// OutputSchema is the shape of the variables a completed job carries.
const OutputSchema = `{
	"type": "object",
	"required": ["invocationId", "route", "responses"],
	"properties": {
		"invocationId": {"type": "string"},
		"route": {"type": "string", "enum": ["primary", "secondary", "merged", "short_circuited"]},
		"responses": {"type": "array", "items": {"type": "object"}},
		"failedRequests": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["index", "error"],
				"properties": {
					"index": {"type": "integer", "minimum": 0},
					"error": {"type": "string"}
				}
			}
		}
	}
}`

// Activity describes this worker for the activity registry.
func Activity(cfg *Config) (registry.Activity, error) {
	var input, output map[string]interface{}
	if err := json.Unmarshal([]byte(validation.SearchInputSchema), &input); err != nil {
		return registry.Activity{}, fmt.Errorf("input schema: %w", err)
	}
	if err := json.Unmarshal([]byte(OutputSchema), &output); err != nil {
		return registry.Activity{}, fmt.Errorf("output schema: %w", err)
	}

	codes := make([]string, 0, len(errors.BPMNErrorMapping))
	for _, code := range errors.BPMNErrorMapping {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	return registry.Activity{
		ID:                   TaskType,
		DisplayName:          "Default Search Strategy",
		Description:          "Runs a batch of search requests against Elasticsearch and, for long-range discover queries, the Hive archive, merging the results.",
		Category:             "search",
		Version:              "1.0.0",
		TaskType:             TaskType,
		ImplementationStatus: "completed",
		InputSchema:          input,
		OutputSchema:         output,
		ErrorCodes:           codes,
		Timeout:              cfg.Timeout.String(),
		Retries:              errors.GetRetryCount(errors.ErrCodeSearchQueryFailed),
		Workflows:            []string{},
		Tags:                 []string{"search", "elasticsearch", "hive"},
	}, nil
}
