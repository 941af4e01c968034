// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-courier/internal/audit"
	"search-courier/internal/common/config"
	"search-courier/internal/common/database"
	httpclient "search-courier/internal/common/http"
	"search-courier/internal/common/logger"
	"search-courier/internal/courier"
	"search-courier/internal/models"
	"search-courier/internal/server"
	"search-courier/internal/settings"
)

// The suite runs against the services in configs/config.yaml and is opt-in:
//
//	COURIER_E2E=1 go test ./test/e2e/...
var (
	cfg      *config.Config
	esClient *database.ElasticsearchClient
	rdb      *database.RedisClient
	pg       *database.PostgresClient
)

func TestMain(m *testing.M) {
	if os.Getenv("COURIER_E2E") == "" {
		fmt.Println("COURIER_E2E not set, skipping end-to-end suite")
		os.Exit(0)
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("config load failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err == nil {
		err = esClient.Ping(ctx)
	}
	if err != nil {
		fmt.Printf("elasticsearch unavailable: %v\n", err)
		os.Exit(1)
	}

	rdb = database.NewRedis(cfg.Database.Redis)
	if err := rdb.Ping(ctx); err != nil {
		fmt.Printf("redis unavailable: %v\n", err)
		os.Exit(1)
	}

	if cfg.Database.Postgres.Enabled {
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err == nil {
			err = pg.Ping(ctx)
		}
		if err != nil {
			fmt.Printf("postgres unavailable, audit checks disabled: %v\n", err)
			pg = nil
		}
	}

	code := m.Run()

	_ = rdb.Close()
	if pg != nil {
		_ = pg.Close()
	}
	os.Exit(code)
}

type stack struct {
	handler   http.Handler
	settings  *settings.RedisStore
	auditRows *audit.PostgresStore
	hiveHits  *atomic.Int32
	hiveURL   string
}

// newStack wires the HTTP API exactly as the service binary does, with a
// fake archive proxy standing in for Hive.
func newStack(t *testing.T) *stack {
	t.Helper()
	log := logger.NewTestLogger(t)

	var hits atomic.Int32
	hive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"responses":[{"took":9,"timed_out":false,"hits":{"total":2,"max_score":0,"hits":[{"_id":"archived-1"},{"_id":"archived-2"}]},"status":200}]}}`)
	}))
	t.Cleanup(hive.Close)

	prefix := "courier-e2e:" + uuid.NewString() + ":"
	store := settings.NewRedisStore(rdb.Client, prefix, log)
	t.Cleanup(func() {
		keys, _ := rdb.Client.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			rdb.Client.Del(context.Background(), keys...)
		}
	})

	deps := courier.Dependencies{
		Primary:   courier.NewPrimaryDispatcher(esClient.Client),
		Secondary: courier.NewSecondaryDispatcher(httpclient.NewClient(5*time.Second), hive.URL, cfg.Courier.Secondary.Path, store, log),
		Decider:   courier.NewRoutingDecider(cfg.Courier.Routing.ThresholdDays, nil),
		Loading:   store,
		Logger:    log,
	}

	s := &stack{settings: store, hiveHits: &hits, hiveURL: hive.URL}
	if pg != nil {
		s.auditRows = audit.NewPostgresStore(pg.DB)
		require.NoError(t, s.auditRows.EnsureSchema(context.Background()))
		deps.Audit = s.auditRows
	}

	executor := courier.NewExecutor(courier.NewRegistry(courier.NewDefaultStrategy(deps), courier.NoOpStrategy{}), courier.ExecutorDefaults{}, log)
	s.handler = server.New(server.Options{
		Searcher:      executor,
		Settings:      store,
		SearchTimeout: 20 * time.Second,
		Logger:        log,
	}).Router()
	return s
}

// seedIndex creates a throwaway index holding docs recent documents.
func seedIndex(t *testing.T, docs int) string {
	t.Helper()
	ctx := context.Background()
	index := "courier-e2e-" + strings.ReplaceAll(uuid.NewString(), "-", "")

	for i := 0; i < docs; i++ {
		doc, _ := json.Marshal(map[string]interface{}{
			"@timestamp": time.Now().Add(-time.Duration(i) * time.Hour).UTC().Format(time.RFC3339),
			"message":    fmt.Sprintf("event %d", i),
		})
		res, err := esClient.Client.Index(index, bytes.NewReader(doc),
			esClient.Client.Index.WithContext(ctx),
			esClient.Client.Index.WithRefresh("true"),
		)
		require.NoError(t, err)
		require.False(t, res.IsError(), res.String())
		res.Body.Close()
	}

	t.Cleanup(func() {
		res, err := esClient.Client.Indices.Delete([]string{index})
		if err == nil {
			res.Body.Close()
		}
	})
	return index
}

func search(t *testing.T, h http.Handler, input models.SearchInput) (*httptest.ResponseRecorder, models.SearchOutput) {
	t.Helper()
	body, err := json.Marshal(input)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/courier/search", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out models.SearchOutput
	if rr.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr, out
}

func discoverInput(index string, gte, lte time.Time) models.SearchInput {
	return models.SearchInput{
		Discover: true,
		Hostname: "localhost",
		Requests: []models.FetchParams{{
			Index: models.IndexPattern{ID: index, Title: index},
			Body:  map[string]interface{}{"size": 50},
			Filters: []models.Filter{{"range": map[string]interface{}{
				"@timestamp": map[string]interface{}{
					"gte":    gte.UTC().Format(time.RFC3339),
					"lte":    lte.UTC().Format(time.RFC3339),
					"format": "strict_date_optional_time",
				},
			}}},
		}},
	}
}

func TestE2E_RecentRangeStaysOnPrimary(t *testing.T) {
	s := newStack(t)
	index := seedIndex(t, 3)

	rr, out := search(t, s.handler, discoverInput(index, time.Now().Add(-24*time.Hour), time.Now()))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, "primary", out.Route)
	require.Len(t, out.Responses, 1)
	assert.Equal(t, models.HitsTotal(3), out.Responses[0].Hits.Total)
	assert.Zero(t, s.hiveHits.Load())

	loading, err := s.settings.Loading(context.Background())
	require.NoError(t, err)
	assert.False(t, loading)
}

func TestE2E_LongRangeMergesArchive(t *testing.T) {
	s := newStack(t)
	index := seedIndex(t, 3)

	rr, out := search(t, s.handler, discoverInput(index, time.Now().Add(-60*24*time.Hour), time.Now()))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, "merged", out.Route)
	require.Len(t, out.Responses, 1)
	assert.Equal(t, models.HitsTotal(5), out.Responses[0].Hits.Total)
	assert.Len(t, out.Responses[0].Hits.Hits, 5)
	assert.EqualValues(t, 1, s.hiveHits.Load())

	if s.auditRows != nil {
		var route string
		err := pg.DB.QueryRowContext(context.Background(),
			`SELECT route FROM search_audit WHERE id = $1`, out.InvocationID).Scan(&route)
		require.NoError(t, err)
		assert.Equal(t, "merged", route)
	}
}

func TestE2E_ArchivedRangeReplacesPrimary(t *testing.T) {
	s := newStack(t)
	index := seedIndex(t, 1)

	rr, out := search(t, s.handler, discoverInput(index, time.Now().Add(-90*24*time.Hour), time.Now().Add(-60*24*time.Hour)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, "secondary", out.Route)
	require.Len(t, out.Responses, 1)
	assert.Equal(t, models.HitsTotal(2), out.Responses[0].Hits.Total)
}

func TestE2E_HivePathSettingRedirectsArchive(t *testing.T) {
	s := newStack(t)
	index := seedIndex(t, 1)

	var redirected atomic.Int32
	alt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		redirected.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"responses":[{"took":1,"hits":{"total":0,"hits":[]},"status":200}]}`)
	}))
	t.Cleanup(alt.Close)

	req := httptest.NewRequest(http.MethodPut, "/api/courier/settings/hive-path", strings.NewReader(`{"url":"`+alt.URL+`"}`))
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr, out := search(t, s.handler, discoverInput(index, time.Now().Add(-60*24*time.Hour), time.Now()))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, "merged", out.Route)
	assert.EqualValues(t, 1, redirected.Load())
	assert.Zero(t, s.hiveHits.Load())
}

func TestE2E_MissingIndexSurfacesBackendError(t *testing.T) {
	s := newStack(t)

	rr, _ := search(t, s.handler, models.SearchInput{
		Requests: []models.FetchParams{{Index: models.IndexPattern{Title: "courier-e2e-does-not-exist"}}},
	})
	// msearch reports a missing index per item, so the batch itself succeeds.
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "index_not_found_exception")
}
