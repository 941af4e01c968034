// Package settings persists the courier's client-side settings (secondary
// base URL, trace viewer URL, loading indicator) in Redis.
package settings

import (
	"context"
	stderrors "errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"search-courier/internal/common/errors"
	"search-courier/internal/common/logger"
	"search-courier/internal/common/validation"
)

const (
	KeyHivePath  = "hive_path"
	KeyTracePath = "trace_path"
	KeyLoading   = "loading"
)

// RedisStore keeps each setting under <prefix><key> without expiry.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	logger logger.Logger
}

func NewRedisStore(client redis.Cmdable, prefix string, log logger.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: log.WithFields(map[string]interface{}{"component": "settings"}),
	}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

// Get returns the raw value; ok is false when the key is unset.
func (s *RedisStore) Get(ctx context.Context, name string) (value string, ok bool, err error) {
	value, err = s.client.Get(ctx, s.key(name)).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewSettingsStoreFailedError(s.key(name), err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, name, value string) error {
	if err := s.client.Set(ctx, s.key(name), value, 0).Err(); err != nil {
		return errors.NewSettingsStoreFailedError(s.key(name), err)
	}
	return nil
}

// HivePath returns the persisted secondary base URL, or "" when unset.
func (s *RedisStore) HivePath(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, KeyHivePath)
	return v, err
}

// SetHivePath stores a new secondary base URL after validating it.
func (s *RedisStore) SetHivePath(ctx context.Context, baseURL string) error {
	if err := validation.ValidateBaseURL(baseURL); err != nil {
		return errors.NewInvalidSearchInputError(err.Error())
	}
	return s.Set(ctx, KeyHivePath, baseURL)
}

// TracePath returns the trace viewer base URL, or "" when unset.
func (s *RedisStore) TracePath(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, KeyTracePath)
	return v, err
}

func (s *RedisStore) SetLoading(ctx context.Context, loading bool) error {
	err := s.Set(ctx, KeyLoading, strconv.FormatBool(loading))
	if err != nil {
		s.logger.Warn("failed to update loading flag", map[string]interface{}{
			"loading": loading,
			"error":   err,
		})
	}
	return err
}

// Loading reports the indicator; unset or unparsable values read as false.
func (s *RedisStore) Loading(ctx context.Context) (bool, error) {
	v, ok, err := s.Get(ctx, KeyLoading)
	if err != nil || !ok {
		return false, err
	}
	loading, perr := strconv.ParseBool(v)
	if perr != nil {
		return false, nil
	}
	return loading, nil
}
