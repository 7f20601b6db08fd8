// Package accounting fetches usage records from the accounting service
package accounting

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudfin/finance/internal/client/auth"
	"github.com/cloudfin/finance/internal/config"
	"github.com/cloudfin/finance/internal/domain/record"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/httpclient"
	"github.com/cloudfin/finance/internal/logger"
	jsoniter "github.com/json-iterator/go"
)

// Client returns the usage of a user over a period
type Client interface {
	GetUserRecords(ctx context.Context, userID, provider string, start, end time.Time) ([]*record.Record, error)
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
		baseURL: strings.TrimRight(cfg.Accounting.BaseURL, "/"),
		logger:  logger,
	}
}

func (c *client) GetUserRecords(ctx context.Context, userID, provider string, start, end time.Time) ([]*record.Record, error) {
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("provider", provider)
	query.Set("startDate", start.UTC().Format(time.RFC3339))
	query.Set("endDate", end.UTC().Format(time.RFC3339))

	var records []*record.Record
	err := auth.WithToken(ctx, c.tokens, func(token string) error {
		resp, err := c.http.Send(ctx, &httpclient.Request{
			Method:  http.MethodGet,
			URL:     c.baseURL + "/records?" + query.Encode(),
			Headers: auth.BearerHeader(token),
		})
		if err != nil {
			return err
		}
		return jsoniter.Unmarshal(resp.Body, &records)
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("The accounting service is unavailable").
			WithReportableDetails(map[string]any{
				"user_id":  userID,
				"provider": provider,
			}).
			Mark(ierr.ErrUnavailable)
	}

	c.logger.Debugw("fetched usage records",
		"user_id", userID,
		"provider", provider,
		"count", len(records),
	)
	return records, nil
}
