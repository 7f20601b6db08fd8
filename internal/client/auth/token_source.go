// Package auth obtains the bearer token the finance service presents to the
// accounting and resource management services.
package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/cloudfin/finance/internal/config"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/httpclient"
	jsoniter "github.com/json-iterator/go"
)

// TokenSource hands out a cached token until it is invalidated
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

type passwordTokenSource struct {
	client httpclient.Client
	cfg    config.AuthConfig

	mu    sync.Mutex
	token string
}

// NewTokenSource exchanges the configured credentials for a token
func NewTokenSource(client httpclient.Client, cfg *config.Configuration) TokenSource {
	return &passwordTokenSource{
		client: client,
		cfg:    cfg.Auth,
	}
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *passwordTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return s.token, nil
	}

	body, err := jsoniter.Marshal(tokenRequest{Username: s.cfg.Username, Password: s.cfg.Password})
	if err != nil {
		return "", ierr.WithError(err).Mark(ierr.ErrInternal)
	}

	resp, err := s.client.Send(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    s.cfg.TokenURL,
		Body:   body,
	})
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to obtain an authentication token").
			Mark(ierr.ErrUnavailable)
	}

	var tr tokenResponse
	if err := jsoniter.Unmarshal(resp.Body, &tr); err != nil || tr.Token == "" {
		return "", ierr.NewError("invalid token response").
			WithHint("The authentication service returned no token").
			Mark(ierr.ErrUnavailable)
	}

	s.token = tr.Token
	return s.token, nil
}

func (s *passwordTokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// StaticTokenSource always returns the same token
type StaticTokenSource string

func (t StaticTokenSource) Token(context.Context) (string, error) {
	return string(t), nil
}

func (StaticTokenSource) Invalidate() {}

// WithToken calls fn with a token. When fn reports an expired token the token
// is invalidated and fn is retried once with a fresh one.
func WithToken(ctx context.Context, ts TokenSource, fn func(token string) error) error {
	token, err := ts.Token(ctx)
	if err != nil {
		return err
	}

	err = fn(token)
	if err == nil || !ierr.IsUnauthorized(err) {
		return err
	}

	ts.Invalidate()
	token, err = ts.Token(ctx)
	if err != nil {
		return err
	}
	return fn(token)
}

// BearerHeader builds the Authorization header for token
func BearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
