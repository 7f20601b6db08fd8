package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/cloudfin/finance/internal/client/accounting"
	"github.com/cloudfin/finance/internal/domain/record"
	"github.com/cloudfin/finance/internal/domain/user"
)

// InMemoryAccountingClient serves records registered per user. Records are
// returned when they overlap the requested period.
type InMemoryAccountingClient struct {
	mu      sync.Mutex
	records map[string][]*record.Record
	errs    map[string]error
	calls   map[string]int
}

var _ accounting.Client = (*InMemoryAccountingClient)(nil)

func NewInMemoryAccountingClient() *InMemoryAccountingClient {
	return &InMemoryAccountingClient{
		records: make(map[string][]*record.Record),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (c *InMemoryAccountingClient) AddRecords(userID, provider string, records ...*record.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := user.Key(userID, provider)
	c.records[key] = append(c.records[key], records...)
}

// FailFor makes every request for the user return err
func (c *InMemoryAccountingClient) FailFor(userID, provider string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[user.Key(userID, provider)] = err
}

// Calls returns how many times records were requested for the user
func (c *InMemoryAccountingClient) Calls(userID, provider string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[user.Key(userID, provider)]
}

func (c *InMemoryAccountingClient) GetUserRecords(ctx context.Context, userID, provider string, start, end time.Time) ([]*record.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := user.Key(userID, provider)
	c.calls[key]++
	if err, ok := c.errs[key]; ok {
		return nil, err
	}

	var out []*record.Record
	for _, r := range c.records[key] {
		if !r.StartTime.Before(end) {
			continue
		}
		if r.EndTime != nil && !r.EndTime.After(start) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
