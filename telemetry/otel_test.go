package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/agentuity/go-terminals/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOTLPBearerToken(t *testing.T) {
	token, err := GenerateOTLPBearerToken("test-shared-secret", "test-token")
	assert.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 2)
	assert.True(t, strings.HasPrefix(token, "test-token."))

	again, err := GenerateOTLPBearerToken("test-shared-secret", "test-token")
	assert.NoError(t, err)
	assert.Equal(t, token, again)
}

func TestNewExportsSpans(t *testing.T) {
	var requests atomic.Int32
	var auth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/traces" {
			requests.Add(1)
			auth.Store(r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider, shutdown, err := New(context.Background(), server.URL, "test-token", "terminals-test", logger.NewTestLogger())
	require.NoError(t, err)
	require.NotNil(t, provider)

	_, span := provider.Tracer("test").Start(context.Background(), "GET /api/terminals")
	span.End()
	shutdown()

	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, "Bearer test-token", auth.Load())
}

func TestNewInvalidURL(t *testing.T) {
	_, _, err := New(context.Background(), "ftp://nope", "", "terminals-test", logger.NewTestLogger())
	assert.Error(t, err)
	_, _, err = New(context.Background(), "://bad", "", "terminals-test", logger.NewTestLogger())
	assert.Error(t, err)
}
