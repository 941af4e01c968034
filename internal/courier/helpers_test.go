package courier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/require"

	"search-courier/internal/models"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(days int) string {
	return testNow.Add(-time.Duration(days) * 24 * time.Hour).Format(time.RFC3339Nano)
}

func rangeFilter(gte, lte interface{}) models.Filter {
	body := map[string]interface{}{"format": "strict_date_optional_time"}
	if gte != nil {
		body["gte"] = gte
	}
	if lte != nil {
		body["lte"] = lte
	}
	return models.Filter{"range": map[string]interface{}{"@timestamp": body}}
}

func discoverParams(title string, filters ...models.Filter) models.FetchParams {
	return models.FetchParams{
		Index:   models.IndexPattern{ID: title, Title: title},
		Body:    map[string]interface{}{"size": 500},
		Filters: filters,
	}
}

// fakeRequest is a scripted SearchRequest.
type fakeRequest struct {
	params *models.FetchParams
	err    error
	panics bool
	delay  time.Duration

	mu         sync.Mutex
	failures   []error
	annotated  *models.FetchParams
	fetchCalls int
}

func okRequest(p models.FetchParams) *fakeRequest { return &fakeRequest{params: &p} }

func failingRequest(err error) *fakeRequest { return &fakeRequest{err: err} }

func (r *fakeRequest) GetFetchParams(ctx context.Context) (*models.FetchParams, error) {
	r.mu.Lock()
	r.fetchCalls++
	r.mu.Unlock()
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.panics {
		panic("boom")
	}
	return r.params, r.err
}

func (r *fakeRequest) HandleFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func (r *fakeRequest) SetFetchParams(p *models.FetchParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.annotated = p
}

func (r *fakeRequest) failureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

func requests(rs ...*fakeRequest) []models.SearchRequest {
	out := make([]models.SearchRequest, len(rs))
	for i, r := range rs {
		out[i] = r
	}
	return out
}

// backend is an httptest server that counts hits and records the last
// request it saw.
type backend struct {
	*httptest.Server
	hits      atomic.Int32
	mu        sync.Mutex
	lastBody  string
	lastQuery map[string][]string
	lastPath  string
	lastCType string
}

func (b *backend) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastBody = string(body)
	b.lastQuery = r.URL.Query()
	b.lastPath = r.URL.Path
	b.lastCType = r.Header.Get("Content-Type")
}

func (b *backend) body() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastBody
}

func (b *backend) path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPath
}

func (b *backend) contentType() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastCType
}

func (b *backend) query(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v := b.lastQuery[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (b *backend) hasQuery(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.lastQuery[key]
	return ok
}

func newBackend(t *testing.T, handler http.HandlerFunc) *backend {
	t.Helper()
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		b.record(r)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(b.Close)
	return b
}

func staticJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// blockUntilCanceled holds the response until the client goes away.
func blockUntilCanceled(started chan<- struct{}) http.HandlerFunc {
	var once sync.Once
	return func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-r.Context().Done()
	}
}

func newESClient(t *testing.T, url string) *elasticsearch.Client {
	t.Helper()
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{url},
		DisableRetry: true,
	})
	require.NoError(t, err)
	return es
}

func responsesJSON(t *testing.T, rs []models.Response) string {
	t.Helper()
	out, err := json.Marshal(rs)
	require.NoError(t, err)
	return string(out)
}

func decodeResponses(t *testing.T, raw string) []models.Response {
	t.Helper()
	var env struct {
		Responses []models.Response `json:"responses"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	return env.Responses
}

// rawResponses returns the responses array of a reply exactly as sent.
func rawResponses(t *testing.T, reply string) string {
	t.Helper()
	var env struct {
		Responses json.RawMessage `json:"responses"`
		Data      *struct {
			Responses json.RawMessage `json:"responses"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(reply), &env))
	if env.Data != nil {
		return string(env.Data.Responses)
	}
	return string(env.Responses)
}

// verbosePrimaryReply carries keys the merger never reads.
const verbosePrimaryReply = `{"responses":[
	{"took":0,"timed_out":false,"terminated_early":true,"_scroll_id":"abc",
	 "_shards":{"total":1,"successful":1,"skipped":0,"failed":0},
	 "_clusters":{"total":1,"successful":1,"skipped":0},
	 "hits":{"total":1,"max_score":0.5,"hits":[{"_id":"p1","_score":0.5}]},
	 "suggest":{"s":[{"text":"helo","offset":0,"length":4,"options":[{"text":"hello","score":0.8}]}]},
	 "profile":{"shards":[]},"status":200},
	{"error":{"type":"index_not_found_exception","reason":"no such index [gone]"},"status":404}
]}`

const primaryReply = `{"responses":[
	{"took":5,"timed_out":false,"hits":{"total":2,"max_score":null,"hits":[{"_id":"p1"},{"_id":"p2"}]},
	 "aggregations":{"2":{"buckets":[{"key":1000,"doc_count":2}]}},"status":200},
	{"took":3,"timed_out":false,"hits":{"total":1,"max_score":1.0,"hits":[{"_id":"q1"}]},"status":200}
]}`

const secondaryReply = `{"data":{"responses":[
	{"took":40,"timed_out":false,"hits":{"total":3,"max_score":null,"hits":[{"_id":"s1"},{"_id":"s2"},{"_id":"s3"}]},
	 "aggregations":{"2":{"buckets":[{"key":500,"doc_count":1},{"key":600,"doc_count":2}]}}}
]}}`
