package courier

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	httpclient "search-courier/internal/common/http"
	"search-courier/internal/common/logger"
	"search-courier/internal/models"
)

// DefaultSecondaryPath is appended to the secondary base URL.
const DefaultSecondaryPath = "/v1/hive"

var ErrMalformedSecondaryResponse = stderrors.New("courier: secondary response has no responses array")

// HivePathSource supplies the persisted secondary base URL.
type HivePathSource interface {
	HivePath(ctx context.Context) (string, error)
}

// SecondaryDispatcher posts the payload to the archival query proxy.
type SecondaryDispatcher struct {
	client         *httpclient.Client
	defaultBaseURL string
	path           string
	settings       HivePathSource
	logger         logger.Logger
}

// NewSecondaryDispatcher builds a dispatcher. settings may be nil, in which
// case defaultBaseURL is always used.
func NewSecondaryDispatcher(client *httpclient.Client, defaultBaseURL, path string, settings HivePathSource, log logger.Logger) *SecondaryDispatcher {
	if path == "" {
		path = DefaultSecondaryPath
	}
	return &SecondaryDispatcher{
		client:         client,
		defaultBaseURL: defaultBaseURL,
		path:           path,
		settings:       settings,
		logger:         log.WithFields(map[string]interface{}{"component": "secondary"}),
	}
}

// BaseURL prefers the persisted setting over the configured default.
func (s *SecondaryDispatcher) BaseURL(ctx context.Context) string {
	if s.settings != nil {
		v, err := s.settings.HivePath(ctx)
		if err != nil {
			s.logger.Warn("hive_path lookup failed, using default", map[string]interface{}{
				"error": err,
			})
		} else if v != "" {
			return v
		}
	}
	return s.defaultBaseURL
}

// Query sends the serialized payload and normalizes the reply.
func (s *SecondaryDispatcher) Query(ctx context.Context, payload string) ([]models.Response, error) {
	url := strings.TrimRight(s.BaseURL(ctx), "/") + s.path

	data, err := s.client.PostJSON(ctx, url, []byte(buildBody(payload)))
	if err != nil {
		return nil, fmt.Errorf("secondary query: %w", err)
	}
	return decodeSecondaryResponses(data)
}

// decodeSecondaryResponses accepts {"responses":[...]} as well as the
// proxy's {"data":{"responses":[...]}} envelope.
func decodeSecondaryResponses(data []byte) ([]models.Response, error) {
	var envelope struct {
		Responses []models.Response `json:"responses"`
		Data      *struct {
			Responses []models.Response `json:"responses"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode secondary response: %w", err)
	}

	switch {
	case envelope.Data != nil && envelope.Data.Responses != nil:
		return envelope.Data.Responses, nil
	case envelope.Responses != nil:
		return envelope.Responses, nil
	default:
		return nil, ErrMalformedSecondaryResponse
	}
}
