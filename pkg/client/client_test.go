package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/fastconfig/pkg/schema"
)

func fakeServer(t *testing.T, version *atomic.Value, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(schema.Fail(http.StatusUnauthorized, "token revoked or not found",
				map[string]any{"error_code": schema.ErrCodeUnauthorized}))
			return
		}
		assert.Equal(t, "/api/v1/pull/svc1/prod", r.URL.Path)
		v := version.Load().(string)
		w.Header().Set("ETag", v)
		if r.Header.Get("If-None-Match") == v {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_ = json.NewEncoder(w).Encode(schema.OK(schema.PullResponse{
			ServiceCode: "svc1",
			Env:         "prod",
			Format:      schema.FormatJSON,
			Version:     v,
			ETag:        v,
			Content:     map[string]any{"A": "1", "V": v},
		}))
	}))
}

func TestPull_CachesByETag(t *testing.T) {
	var version atomic.Value
	version.Store("1.0.0")
	var hits atomic.Int32
	srv := fakeServer(t, &version, &hits)
	defer srv.Close()

	c, err := New(srv.URL+"/", "tok")
	require.NoError(t, err)
	ctx := context.Background()

	resp, changed, err := c.Pull(ctx, "svc1", "prod")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "1.0.0", resp.Version)

	again, changed, err := c.Pull(ctx, "svc1", "prod")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, resp, again)

	version.Store("1.0.1")
	updated, changed, err := c.Pull(ctx, "svc1", "prod")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "1.0.1", updated.Content["V"])
	assert.Equal(t, int32(3), hits.Load())
}

func TestPull_ErrorEnvelope(t *testing.T) {
	var version atomic.Value
	version.Store("1.0.0")
	var hits atomic.Int32
	srv := fakeServer(t, &version, &hits)
	defer srv.Close()

	c, err := New(srv.URL, "wrong")
	require.NoError(t, err)

	_, _, err = c.Pull(context.Background(), "svc1", "prod")
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, http.StatusUnauthorized, cerr.Status)
	assert.Equal(t, schema.ErrCodeUnauthorized, cerr.ErrorCode)
	assert.Equal(t, "token revoked or not found", cerr.Message)
}

func TestPull_NonEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "tok")
	require.NoError(t, err)
	_, _, err = c.Pull(context.Background(), "svc1", "prod")
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, http.StatusBadGateway, cerr.Status)
}

func TestNew_Validation(t *testing.T) {
	_, err := New("not a url", "tok")
	assert.Error(t, err)
	_, err = New("http://localhost:9530", " ")
	assert.Error(t, err)
}

func TestValues(t *testing.T) {
	got := Values(&schema.PullResponse{Content: map[string]any{"s": "x", "n": nil, "f": 1.5}})
	assert.Equal(t, map[string]string{"s": "x", "n": "", "f": "1.5"}, got)
}
