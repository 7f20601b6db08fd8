package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cloudfin/finance/internal/config"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/httpclient"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, issued *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := issued.Add(1)
		if n == 1 {
			_, _ = w.Write([]byte(`{"token":"first"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"second"}`))
	}))
}

func newSource(url string) TokenSource {
	cfg := config.GetDefaultConfig()
	cfg.Auth = config.AuthConfig{TokenURL: url, Username: "finance", Password: "secret"}
	return NewTokenSource(httpclient.NewDefaultClient(httpclient.ClientConfig{}, logger.NewNopLogger()), cfg)
}

func TestTokenIsCached(t *testing.T) {
	var issued atomic.Int32
	srv := newTokenServer(t, &issued)
	defer srv.Close()

	ts := newSource(srv.URL)
	for i := 0; i < 3; i++ {
		token, err := ts.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "first", token)
	}
	assert.Equal(t, int32(1), issued.Load())
}

func TestWithTokenRetriesOnceOnUnauthorized(t *testing.T) {
	var issued atomic.Int32
	srv := newTokenServer(t, &issued)
	defer srv.Close()

	ts := newSource(srv.URL)
	var seen []string
	err := WithToken(context.Background(), ts, func(token string) error {
		seen = append(seen, token)
		if token == "first" {
			return ierr.NewError("expired").Mark(ierr.ErrUnauthorized)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestWithTokenGivesUpAfterOneRetry(t *testing.T) {
	calls := 0
	err := WithToken(context.Background(), StaticTokenSource("t"), func(string) error {
		calls++
		return ierr.NewError("expired").Mark(ierr.ErrUnauthorized)
	})
	assert.True(t, ierr.IsUnauthorized(err))
	assert.Equal(t, 2, calls)
}

func TestWithTokenDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	err := WithToken(context.Background(), StaticTokenSource("t"), func(string) error {
		calls++
		return ierr.NewError("down").Mark(ierr.ErrUnavailable)
	})
	assert.True(t, ierr.IsUnavailable(err))
	assert.Equal(t, 1, calls)
}
