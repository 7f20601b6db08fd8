package postgres

import (
	"context"
	"time"

	"github.com/cloudfin/finance/internal/domain/invoice"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/postgres"
	"github.com/cloudfin/finance/internal/types"
)

const invoiceColumns = `id, user_id, provider_id, state, items, total, start_time, end_time, created_at, updated_at`

type invoiceRepository struct {
	client postgres.IClient
	log    *logger.Logger
}

func NewInvoiceRepository(client postgres.IClient, log *logger.Logger) invoice.Repository {
	return &invoiceRepository{client: client, log: log}
}

// Save inserts the invoice. Invoices are immutable apart from their state.
func (r *invoiceRepository) Save(ctx context.Context, inv *invoice.Invoice) error {
	span := StartRepositorySpan(ctx, "invoice", "save", map[string]interface{}{
		"invoice_id": inv.ID,
	})
	defer FinishSpan(span)

	if err := inv.Validate(); err != nil {
		SetSpanError(span, err)
		return err
	}

	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES (
			:id, :user_id, :provider_id, :state, :items, :total,
			:start_time, :end_time, :created_at, :updated_at
		)`

	if _, err := r.client.Querier(ctx).NamedExecContext(ctx, query, inv); err != nil {
		SetSpanError(span, err)
		return queryError(err, "Invoice", map[string]any{
			"invoice_id": inv.ID,
			"user_id":    inv.UserID,
		})
	}

	r.log.Debugw("invoice saved", "invoice_id", inv.ID, "user_id", inv.UserID, "total", inv.Total.String())
	SetSpanSuccess(span)
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	span := StartRepositorySpan(ctx, "invoice", "get", map[string]interface{}{
		"invoice_id": id,
	})
	defer FinishSpan(span)

	var inv invoice.Invoice
	err := r.client.Querier(ctx).GetContext(ctx, &inv,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	if err != nil {
		SetSpanError(span, err)
		return nil, queryError(err, "Invoice", map[string]any{"invoice_id": id})
	}

	SetSpanSuccess(span)
	return &inv, nil
}

func (r *invoiceRepository) ListByUser(ctx context.Context, userID, provider string) ([]*invoice.Invoice, error) {
	span := StartRepositorySpan(ctx, "invoice", "list_by_user", map[string]interface{}{
		"user_id":  userID,
		"provider": provider,
	})
	defer FinishSpan(span)

	var invoices []*invoice.Invoice
	err := r.client.Querier(ctx).SelectContext(ctx, &invoices,
		`SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1 AND provider_id = $2 ORDER BY created_at, id`,
		userID, provider)
	if err != nil {
		SetSpanError(span, err)
		return nil, queryError(err, "Invoices", map[string]any{
			"user_id":  userID,
			"provider": provider,
		})
	}

	SetSpanSuccess(span)
	return invoices, nil
}

func (r *invoiceRepository) UpdateState(ctx context.Context, id string, state types.InvoiceState) error {
	span := StartRepositorySpan(ctx, "invoice", "update_state", map[string]interface{}{
		"invoice_id": id,
		"state":      state,
	})
	defer FinishSpan(span)

	details := map[string]any{"invoice_id": id, "state": state}
	res, err := r.client.Querier(ctx).ExecContext(ctx,
		`UPDATE invoices SET state = $1, updated_at = $2 WHERE id = $3`,
		state, time.Now().UTC(), id)
	if err != nil {
		SetSpanError(span, err)
		return queryError(err, "Invoice", details)
	}
	if err := expectRows(res, "Invoice", details); err != nil {
		SetSpanError(span, err)
		return err
	}

	SetSpanSuccess(span)
	return nil
}

func (r *invoiceRepository) DeleteByUser(ctx context.Context, userID, provider string) error {
	span := StartRepositorySpan(ctx, "invoice", "delete_by_user", map[string]interface{}{
		"user_id":  userID,
		"provider": provider,
	})
	defer FinishSpan(span)

	_, err := r.client.Querier(ctx).ExecContext(ctx,
		`DELETE FROM invoices WHERE user_id = $1 AND provider_id = $2`, userID, provider)
	if err != nil {
		SetSpanError(span, err)
		return queryError(err, "Invoices", map[string]any{
			"user_id":  userID,
			"provider": provider,
		})
	}

	SetSpanSuccess(span)
	return nil
}
