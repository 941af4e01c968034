package database

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-courier/internal/common/config"
)

func TestElasticsearch_Ping(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(status)
	}))
	defer srv.Close()

	es, err := NewElasticsearch(config.ElasticsearchConfig{URL: srv.URL, DisableRetry: true})
	require.NoError(t, err)
	assert.NoError(t, es.Ping(context.Background()))

	status = http.StatusServiceUnavailable
	err = es.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestElasticsearch_NoAddresses(t *testing.T) {
	_, err := NewElasticsearch(config.ElasticsearchConfig{})
	assert.Error(t, err)
}

func TestRedis_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb := NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer rdb.Close()
	require.NoError(t, rdb.Ping(context.Background()))

	mr.Close()
	assert.Error(t, rdb.Ping(context.Background()))
}

func TestPostgres_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	pg := &PostgresClient{DB: db}
	mock.ExpectPing()
	require.NoError(t, pg.Ping(context.Background()))

	mock.ExpectClose()
	require.NoError(t, pg.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgres_AppliesPoolLimits(t *testing.T) {
	pg, err := NewPostgres(config.PostgresConfig{
		Host: "localhost", Port: 5432, Database: "courier", User: "courier",
		MaxConnections: 7, MaxIdle: 1, SSLMode: "disable",
	})
	require.NoError(t, err)
	defer pg.Close()

	assert.Equal(t, 7, pg.DB.Stats().MaxOpenConnections)
}
