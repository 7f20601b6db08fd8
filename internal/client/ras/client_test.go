package ras

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cloudfin/finance/internal/client/auth"
	"github.com/cloudfin/finance/internal/config"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/httpclient"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newClient(baseURL string) Client {
	cfg := config.GetDefaultConfig()
	cfg.RAS.BaseURL = baseURL + "/"
	return NewClient(
		httpclient.NewDefaultClient(httpclient.ClientConfig{}, logger.NewNopLogger()),
		auth.StaticTokenSource("token"),
		cfg,
		logger.NewNopLogger(),
	)
}

func TestClientRoutes(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Method + " " + r.URL.RequestURI())
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	ctx := context.Background()
	require.NoError(t, c.PauseResourcesByUser(ctx, "alice"))
	require.NoError(t, c.ResumeResourcesByUser(ctx, "alice"))
	require.NoError(t, c.PurgeUser(ctx, "alice", "keystone"))

	assert.Equal(t, []string{
		"POST /users/alice/pause",
		"POST /users/alice/resume",
		"DELETE /users/alice?provider=keystone",
	}, rec.all())
}

func TestUnauthorizedIsRetriedOnceThenUnavailable(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := newClient(srv.URL).PauseResourcesByUser(context.Background(), "alice")
	assert.True(t, ierr.IsUnavailable(err))
	assert.Len(t, rec.all(), 2)
}
