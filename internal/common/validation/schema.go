package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SearchInputSchema describes the search payload accepted by the job worker
// and the HTTP API.
const SearchInputSchema = `{
	"type": "object",
	"required": ["requests"],
	"properties": {
		"requests": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["index"],
				"properties": {
					"index": {
						"type": "object",
						"required": ["title"],
						"properties": {
							"id":    {"type": "string"},
							"title": {"type": "string", "minLength": 1},
							"type":  {"type": "string"}
						}
					},
					"body":       {"type": "object"},
					"filters":    {"type": "array", "items": {"type": "object"}},
					"query":      {"type": "object"},
					"preference": {"type": ["string", "number", "null"]},
					"searchType": {"type": "string"}
				}
			}
		},
		"includeFrozen":              {"type": "boolean"},
		"maxConcurrentShardRequests": {"type": "integer", "minimum": 0},
		"discover":                   {"type": "boolean"},
		"hostname":                   {"type": "string"}
	}
}`

var searchInputSchema = gojsonschema.NewStringLoader(SearchInputSchema)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ValidateSearchInput checks a decoded search payload.
func ValidateSearchInput(input interface{}) (*ValidationResult, error) {
	return validate(searchInputSchema, gojsonschema.NewGoLoader(input))
}

// ValidateSearchInputJSON checks a raw JSON search payload.
func ValidateSearchInputJSON(raw []byte) (*ValidationResult, error) {
	return validate(searchInputSchema, gojsonschema.NewBytesLoader(raw))
}

// ValidateAgainst checks a document against an arbitrary schema.
func ValidateAgainst(schemaJSON string, document interface{}) (*ValidationResult, error) {
	return validate(gojsonschema.NewStringLoader(schemaJSON), gojsonschema.NewGoLoader(document))
}

func validate(schema, document gojsonschema.JSONLoader) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(schema, document)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	vr := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return vr, nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			return true
		}
	}
	return false
}

// ValidateBaseURL accepts absolute http(s) URLs, as stored for hive_path.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}
