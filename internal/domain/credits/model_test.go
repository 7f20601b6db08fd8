package credits

import (
	"testing"

	"github.com/cloudfin/finance/internal/domain/resource"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeductAndAdd(t *testing.T) {
	c := New("alice", "lfs")
	c.AddCredits(decimal.NewFromInt(5))

	err := c.Deduct(resource.ComputeItem{VCPU: 2, RAM: 4}, decimal.NewFromInt(1), decimal.NewFromInt(3))
	assert.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2).Equal(c.Balance))
	assert.True(t, c.HasPaid())

	err = c.Deduct(resource.VolumeItem{Size: 1}, decimal.RequireFromString("1.5"), decimal.NewFromInt(2))
	assert.NoError(t, err)
	assert.True(t, decimal.NewFromInt(-1).Equal(c.Balance))
	assert.False(t, c.HasPaid())
}

func TestHasPaidBoundary(t *testing.T) {
	c := New("alice", "lfs")
	assert.True(t, c.HasPaid(), "zero balance has paid")

	c.AddCredits(decimal.RequireFromString("-0.0001"))
	assert.False(t, c.HasPaid())

	c.AddCredits(decimal.RequireFromString("0.0001"))
	assert.True(t, c.HasPaid())
}

func TestDeductRejectsBadInput(t *testing.T) {
	c := New("alice", "lfs")
	assert.True(t, ierr.IsValidation(c.Deduct(nil, decimal.NewFromInt(1), decimal.NewFromInt(1))))
	assert.True(t, ierr.IsValidation(c.Deduct(resource.VolumeItem{Size: 1}, decimal.NewFromInt(-1), decimal.NewFromInt(1))))
	assert.True(t, c.Balance.IsZero())
}
