package courier

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"search-courier/internal/common/errors"
	"search-courier/internal/models"
)

const msearchPath = "/_msearch"

// MsearchOptions are the per-invocation primary backend knobs.
type MsearchOptions struct {
	IncludeFrozen              bool
	MaxConcurrentShardRequests int
}

// PrimaryDispatcher sends multi-search payloads to Elasticsearch.
type PrimaryDispatcher struct {
	es *elasticsearch.Client
}

func NewPrimaryDispatcher(es *elasticsearch.Client) *PrimaryDispatcher {
	return &PrimaryDispatcher{es: es}
}

type msearchResponse struct {
	Responses []models.Response `json:"responses"`
}

// Msearch runs the payload. Canceling ctx cancels the transport request.
// Failures are *errors.BackendError values.
func (p *PrimaryDispatcher) Msearch(ctx context.Context, payload string, opts MsearchOptions) ([]models.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msearchPath, strings.NewReader(buildBody(payload)))
	if err != nil {
		return nil, &errors.BackendError{DisplayName: "RequestError", Message: err.Error(), Path: msearchPath}
	}
	req.URL.RawQuery = msearchQuery(opts).Encode()
	req.Header.Set("Content-Type", "application/x-ndjson")

	res, err := p.es.Perform(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer res.Body.Close()

	if res.StatusCode > 299 {
		return nil, errors.NewBackendError(res.StatusCode, msearchPath, errorReason(res.Body))
	}

	var decoded msearchResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, &errors.BackendError{
			StatusCode:  res.StatusCode,
			DisplayName: "ResponseError",
			Message:     fmt.Sprintf("decode msearch response: %v", err),
			Path:        msearchPath,
		}
	}
	return decoded.Responses, nil
}

// msearchQuery carries ignore_throttled, which the typed esapi request
// does not expose.
func msearchQuery(opts MsearchOptions) url.Values {
	q := url.Values{}
	q.Set("rest_total_hits_as_int", "true")
	q.Set("ignore_throttled", strconv.FormatBool(!opts.IncludeFrozen))
	if opts.MaxConcurrentShardRequests != 0 {
		q.Set("max_concurrent_shard_requests", strconv.Itoa(opts.MaxConcurrentShardRequests))
	}
	return q
}

func transportError(ctx context.Context, err error) *errors.BackendError {
	name := "ConnectionError"
	switch {
	case stderrors.Is(ctx.Err(), context.Canceled):
		name = "AbortError"
	case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		name = "RequestTimeout"
	}
	return &errors.BackendError{DisplayName: name, Message: err.Error(), Path: msearchPath}
}

// errorReason extracts error.reason from an Elasticsearch error body,
// falling back to the raw text.
func errorReason(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return err.Error()
	}
	var e struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error.Reason != "" {
		if e.Error.Type != "" {
			return e.Error.Type + ": " + e.Error.Reason
		}
		return e.Error.Reason
	}
	return strings.TrimSpace(string(raw))
}
