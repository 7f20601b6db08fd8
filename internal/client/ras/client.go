// Package ras talks to the resource allocation service that owns the
// resources the finance service pauses and resumes.
package ras

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/cloudfin/finance/internal/client/auth"
	"github.com/cloudfin/finance/internal/config"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/httpclient"
	"github.com/cloudfin/finance/internal/logger"
)

type Client interface {
	PauseResourcesByUser(ctx context.Context, userID string) error
	ResumeResourcesByUser(ctx context.Context, userID string) error
	PurgeUser(ctx context.Context, userID, provider string) error
}

type client struct {
	http    httpclient.Client
	tokens  auth.TokenSource
	baseURL string
	logger  *logger.Logger
}

func NewClient(http httpclient.Client, tokens auth.TokenSource, cfg *config.Configuration, logger *logger.Logger) Client {
	return &client{
		http:    http,
		tokens:  tokens,
		baseURL: strings.TrimRight(cfg.RAS.BaseURL, "/"),
		logger:  logger,
	}
}

func (c *client) PauseResourcesByUser(ctx context.Context, userID string) error {
	return c.call(ctx, "pause", http.MethodPost, "/users/"+url.PathEscape(userID)+"/pause", userID)
}

func (c *client) ResumeResourcesByUser(ctx context.Context, userID string) error {
	return c.call(ctx, "resume", http.MethodPost, "/users/"+url.PathEscape(userID)+"/resume", userID)
}

func (c *client) PurgeUser(ctx context.Context, userID, provider string) error {
	path := "/users/" + url.PathEscape(userID) + "?provider=" + url.QueryEscape(provider)
	return c.call(ctx, "purge", http.MethodDelete, path, userID)
}

func (c *client) call(ctx context.Context, action, method, path, userID string) error {
	err := auth.WithToken(ctx, c.tokens, func(token string) error {
		_, err := c.http.Send(ctx, &httpclient.Request{
			Method:  method,
			URL:     c.baseURL + path,
			Headers: auth.BearerHeader(token),
		})
		return err
	})
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to %s the user resources", action).
			WithReportableDetails(map[string]any{
				"user_id": userID,
				"action":  action,
			}).
			Mark(ierr.ErrUnavailable)
	}

	c.logger.Infow("resource allocation request succeeded",
		"user_id", userID,
		"action", action,
	)
	return nil
}
