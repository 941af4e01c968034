package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON(t *testing.T) {
	var gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotType = r.Header.Get("Content-Type")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	data, err := NewClient(time.Second).PostJSON(context.Background(), srv.URL, []byte(`{"q":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
	assert.Equal(t, `{"q":1}`, gotBody)
	assert.Equal(t, "application/json", gotType)
}

func TestPostJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, strings.Repeat("x", 1000))
	}))
	defer srv.Close()

	_, err := NewClient(time.Second).PostJSON(context.Background(), srv.URL, nil)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Len(t, statusErr.Body, 512)
}

func TestPostJSON_Canceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(5*time.Second).PostJSON(ctx, srv.URL, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostJSON_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"responses":[`+strings.Repeat(" ", 64)+`]}`)
	}))
	defer srv.Close()

	_, err := NewClient(time.Second).WithMaxResponseBytes(32).PostJSON(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, ErrResponseTooLarge)

	data, err := NewClient(time.Second).WithMaxResponseBytes(1024).PostJSON(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"responses":[]}`, string(data))
}
