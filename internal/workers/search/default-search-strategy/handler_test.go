package defaultsearchstrategy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"search-courier/internal/common/config"
	"search-courier/internal/common/errors"
	httpclient "search-courier/internal/common/http"
	"search-courier/internal/common/logger"
	"search-courier/internal/courier"
	"search-courier/internal/models"
)

const msearchReply = `{"responses":[{"took":2,"timed_out":false,"hits":{"total":1,"max_score":1.0,"hits":[{"_id":"a"}]},"status":200}]}`

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func createFakeElasticsearch(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func createTestHandler(t *testing.T, esURL string) *Handler {
	t.Helper()
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{esURL}, DisableRetry: true})
	require.NoError(t, err)

	log := logger.NewNoOpLogger()
	strategy := courier.NewDefaultStrategy(courier.Dependencies{
		Primary:   courier.NewPrimaryDispatcher(es),
		Secondary: courier.NewSecondaryDispatcher(httpclient.NewClient(time.Second), "http://127.0.0.1:1", "", nil, log),
		Logger:    log,
	})
	executor := courier.NewExecutor(courier.NewRegistry(strategy, courier.NoOpStrategy{}), courier.ExecutorDefaults{}, log)
	return NewHandler(createTestConfig(), executor, logger.NewTestLogger(t))
}

func TestHandler_Execute_Success(t *testing.T) {
	srv := createFakeElasticsearch(t, http.StatusOK, msearchReply)
	h := createTestHandler(t, srv.URL)

	out, err := h.Execute(context.Background(), &Input{
		Requests: []models.FetchParams{{Index: models.IndexPattern{Title: "logs-*"}, Body: map[string]interface{}{"size": 10}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "primary", out.Route)
	require.Len(t, out.Responses, 1)
	assert.Equal(t, models.HitsTotal(1), out.Responses[0].Hits.Total)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		input    *Input
		wantCode errors.ErrorCode
	}{
		{
			name:     "nil input",
			status:   http.StatusOK,
			body:     msearchReply,
			input:    nil,
			wantCode: errors.ErrCodeInvalidSearchInput,
		},
		{
			name:     "backend rejects query",
			status:   http.StatusBadRequest,
			body:     `{"error":{"type":"parsing_exception","reason":"bad query"}}`,
			input:    &Input{Requests: []models.FetchParams{{Index: models.IndexPattern{Title: "logs-*"}}}},
			wantCode: errors.ErrCodeSearchQueryFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := createFakeElasticsearch(t, tt.status, tt.body)
			h := createTestHandler(t, srv.URL)

			out, err := h.Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Equal(t, tt.wantCode, errors.Normalize(err).Code)
		})
	}
}

func TestHandler_Execute_SearchErrorDetails(t *testing.T) {
	srv := createFakeElasticsearch(t, http.StatusNotFound,
		`{"error":{"type":"index_not_found_exception","reason":"no such index [nope]"}}`)
	h := createTestHandler(t, srv.URL)

	_, err := h.Execute(context.Background(), &Input{
		Requests: []models.FetchParams{{Index: models.IndexPattern{Title: "nope"}}},
	})
	stdErr := errors.Normalize(err)
	assert.Equal(t, errors.ErrCodeSearchQueryFailed, stdErr.Code)
	assert.Contains(t, stdErr.Details, "no such index [nope]")

	bpmn := errors.ConvertToBPMNError(stdErr)
	assert.Equal(t, "SEARCH_QUERY_FAILED", bpmn.Code)
	// client errors are not retried
	assert.Zero(t, bpmn.Retries)
	assert.False(t, bpmn.Retryable)
}

func TestHandler_ParseInput(t *testing.T) {
	h := createTestHandler(t, "http://127.0.0.1:1")

	tests := []struct {
		name      string
		variables string
		wantErr   bool
	}{
		{"valid", `{"requests":[{"index":{"title":"logs-*"},"body":{"size":5}}],"discover":true,"hostname":"localhost"}`, false},
		{"extra process variables", `{"requests":[],"correlationId":"abc"}`, false},
		{"missing requests", `{"discover":true}`, true},
		{"missing title", `{"requests":[{"index":{}}]}`, true},
		{"wrong type", `{"requests":"logs-*"}`, true},
		{"not json", `{`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.ParseInput(tt.variables)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidSearchInput, errors.Normalize(err).Code)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, input.Requests)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, 30*time.Second, LoadConfig(nil).Timeout)

	cfg := &config.Config{Courier: config.CourierConfig{SearchTimeout: 15000}}
	assert.Equal(t, 15*time.Second, LoadConfig(cfg).Timeout)

	cfg.Workers = map[string]config.WorkerConfig{TaskType: {Enabled: true, Timeout: 45000}}
	assert.Equal(t, 45*time.Second, LoadConfig(cfg).Timeout)
}

// recordingGateway captures the context each complete-job call is sent with.
type recordingGateway struct {
	pb.GatewayClient

	mu        sync.Mutex
	completed []int64
	ctxErrs   []error
}

func (g *recordingGateway) CompleteJob(ctx context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed = append(g.completed, in.JobKey)
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &pb.CompleteJobResponse{}, nil
}

type testJobClient struct {
	gateway *recordingGateway
}

func noRetry(context.Context, error) bool { return false }

func (c testJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gateway, noRetry)
}

func (c testJobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gateway, noRetry)
}

func (c testJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gateway, noRetry)
}

// deadlineSearcher holds the search until the job timeout fires, then succeeds.
type deadlineSearcher struct{}

func (deadlineSearcher) Execute(ctx context.Context, _ *Input) (*Output, error) {
	<-ctx.Done()
	return &Output{InvocationID: "inv-1", Route: "primary", Responses: []models.Response{}}, nil
}

func TestHandler_Handle_CompletesAfterSlowSearch(t *testing.T) {
	gw := &recordingGateway{}
	h := NewHandler(&Config{Timeout: 50 * time.Millisecond}, deadlineSearcher{}, logger.NewTestLogger(t))

	h.Handle(testJobClient{gateway: gw}, entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       42,
		Variables: `{"requests":[{"index":{"title":"logs-*"}}]}`,
	}})

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Equal(t, []int64{42}, gw.completed)
	assert.Equal(t, []error{nil}, gw.ctxErrs)
}
