package testutil

import (
	"context"

	"github.com/cloudfin/finance/internal/domain/invoice"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/types"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[invoice.Invoice]
}

var _ invoice.Repository = (*InMemoryInvoiceStore)(nil)

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[invoice.Invoice](),
	}
}

func (s *InMemoryInvoiceStore) Save(ctx context.Context, inv *invoice.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	return s.InMemoryStore.Create(ctx, inv.ID, copyInvoice(inv))
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := copyInvoice(&inv)
	return &out, nil
}

func (s *InMemoryInvoiceStore) ListByUser(ctx context.Context, userID, provider string) ([]*invoice.Invoice, error) {
	invoices, err := s.InMemoryStore.List(ctx, func(_ context.Context, inv invoice.Invoice) bool {
		return inv.UserID == userID && inv.ProviderID == provider
	}, func(i, j invoice.Invoice) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*invoice.Invoice, len(invoices))
	for i := range invoices {
		inv := copyInvoice(&invoices[i])
		out[i] = &inv
	}
	return out, nil
}

func (s *InMemoryInvoiceStore) UpdateState(ctx context.Context, id string, state types.InvoiceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.items[id]
	if !ok {
		return ierr.NewError("invoice not found").
			Mark(ierr.ErrNotFound)
	}
	inv.State = state
	s.items[id] = inv
	return nil
}

func (s *InMemoryInvoiceStore) DeleteByUser(ctx context.Context, userID, provider string) error {
	s.InMemoryStore.DeleteWhere(ctx, func(_ context.Context, inv invoice.Invoice) bool {
		return inv.UserID == userID && inv.ProviderID == provider
	})
	return nil
}

func copyInvoice(inv *invoice.Invoice) invoice.Invoice {
	out := *inv
	out.Items = append(invoice.Items{}, inv.Items...)
	return out
}
