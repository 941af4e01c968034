package settings

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-courier/internal/common/errors"
	"search-courier/internal/common/logger"
)

const testPrefix = "courier:settings:"

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, testPrefix, logger.NewTestLogger(t)), mr
}

func TestRedisStore_HivePath(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	path, err := store.HivePath(ctx)
	require.NoError(t, err)
	assert.Empty(t, path)

	require.NoError(t, store.SetHivePath(ctx, "http://hive-proxy:8000"))
	got, err := mr.Get(testPrefix + KeyHivePath)
	require.NoError(t, err)
	assert.Equal(t, "http://hive-proxy:8000", got)

	path, err = store.HivePath(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://hive-proxy:8000", path)
}

func TestRedisStore_SetHivePath_RejectsInvalidURL(t *testing.T) {
	store, mr := newMiniredisStore(t)

	err := store.SetHivePath(context.Background(), "not a url")
	require.Error(t, err)

	var stdErr *errors.StandardError
	require.True(t, stderrors.As(err, &stdErr))
	assert.Equal(t, errors.ErrCodeInvalidSearchInput, stdErr.Code)
	assert.False(t, mr.Exists(testPrefix+KeyHivePath))
}

func TestRedisStore_TracePath(t *testing.T) {
	store, mr := newMiniredisStore(t)
	require.NoError(t, mr.Set(testPrefix+KeyTracePath, "http://jaeger.internal/trace"))

	path, err := store.TracePath(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://jaeger.internal/trace", path)
}

func TestRedisStore_Loading(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	loading, err := store.Loading(ctx)
	require.NoError(t, err)
	assert.False(t, loading)

	require.NoError(t, store.SetLoading(ctx, true))
	v, _ := mr.Get(testPrefix + KeyLoading)
	assert.Equal(t, "true", v)

	loading, err = store.Loading(ctx)
	require.NoError(t, err)
	assert.True(t, loading)

	require.NoError(t, store.SetLoading(ctx, false))
	loading, err = store.Loading(ctx)
	require.NoError(t, err)
	assert.False(t, loading)

	require.NoError(t, mr.Set(testPrefix+KeyLoading, "garbage"))
	loading, err = store.Loading(ctx)
	require.NoError(t, err)
	assert.False(t, loading)
}

func TestRedisStore_Errors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, testPrefix, logger.NewNoOpLogger())
	ctx := context.Background()

	mock.ExpectGet(testPrefix + KeyHivePath).SetErr(stderrors.New("connection reset by peer"))
	_, err := store.HivePath(ctx)
	require.Error(t, err)

	var stdErr *errors.StandardError
	require.True(t, stderrors.As(err, &stdErr))
	assert.Equal(t, errors.ErrCodeSettingsStoreFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)

	mock.ExpectSet(testPrefix+KeyLoading, "true", 0).SetErr(stderrors.New("READONLY"))
	assert.Error(t, store.SetLoading(ctx, true))

	mock.ExpectGet(testPrefix + KeyTracePath).RedisNil()
	path, err := store.TracePath(ctx)
	require.NoError(t, err)
	assert.Empty(t, path)

	assert.NoError(t, mock.ExpectationsWereMet())
}
