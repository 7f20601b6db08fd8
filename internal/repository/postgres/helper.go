package postgres

import (
	"context"
	"database/sql"

	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/getsentry/sentry-go"
)

// StartRepositorySpan creates a new span for a repository operation
// Returns nil if Sentry is not available in the context
func StartRepositorySpan(ctx context.Context, repository, operation string, params map[string]interface{}) *sentry.Span {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		return nil
	}

	span := sentry.StartSpan(ctx, "repository."+repository+"."+operation)
	if span != nil {
		span.Description = "repository." + repository + "." + operation
		span.Op = "db.postgres"
		span.SetData("repository", repository)
		span.SetData("operation", operation)
		for k, v := range params {
			span.SetData(k, v)
		}
	}
	return span
}

// FinishSpan safely finishes a span, handling nil spans
func FinishSpan(span *sentry.Span) {
	if span != nil {
		span.Finish()
	}
}

// SetSpanError marks a span as failed and adds error information
func SetSpanError(span *sentry.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.Status = sentry.SpanStatusInternalError
	span.SetData("error", err.Error())
}

// SetSpanSuccess marks a span as successful
func SetSpanSuccess(span *sentry.Span) {
	if span != nil {
		span.Status = sentry.SpanStatusOK
	}
}

// queryError marks sql.ErrNoRows as not found and everything else as a
// database failure
func queryError(err error, hint string, details map[string]any) error {
	if ierr.Is(err, sql.ErrNoRows) {
		return ierr.WithError(err).
			WithHint(hint + " was not found").
			WithReportableDetails(details).
			Mark(ierr.ErrNotFound)
	}
	return ierr.WithError(err).
		WithHint("Failed to access " + hint).
		WithReportableDetails(details).
		Mark(ierr.ErrDatabase)
}

// expectRows turns a zero row count into a not found error
func expectRows(res sql.Result, hint string, details map[string]any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return queryError(err, hint, details)
	}
	if n == 0 {
		return ierr.NewError("no rows affected").
			WithHint(hint + " was not found").
			WithReportableDetails(details).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
