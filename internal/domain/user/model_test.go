package user

import (
	"testing"
	"time"

	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidates(t *testing.T) {
	now := time.Now().UTC()

	u, err := New("alice", "lfs", types.PluginKindPrepaid, time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, "alice@lfs", u.Key())
	assert.Equal(t, now, u.LastBillingTime)
	assert.False(t, u.StoppedResources)

	_, err = New("", "lfs", types.PluginKindPrepaid, time.Hour, now)
	assert.True(t, ierr.IsValidation(err))

	_, err = New("alice", "lfs", "barter", time.Hour, now)
	assert.True(t, ierr.IsValidation(err))

	_, err = New("alice", "lfs", types.PluginKindPostpaid, 0, now)
	assert.True(t, ierr.IsValidation(err))
}

func TestIsBillingDue(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	u, err := New("alice", "lfs", types.PluginKindPrepaid, time.Hour, start)
	require.NoError(t, err)

	assert.False(t, u.IsBillingDue(start.Add(59*time.Minute)))
	assert.True(t, u.IsBillingDue(start.Add(time.Hour)))
	assert.True(t, u.IsBillingDue(start.Add(2*time.Hour)))
}

func TestSnapshotIsIndependent(t *testing.T) {
	u, err := New("alice", "lfs", types.PluginKindPrepaid, time.Hour, time.Now())
	require.NoError(t, err)
	u.Properties["k"] = "v"

	snap := u.Snapshot()
	snap.Properties["k"] = "changed"
	snap.StoppedResources = true

	assert.Equal(t, "v", u.Properties["k"])
	assert.False(t, u.StoppedResources)
}

func TestWithLockSerialises(t *testing.T) {
	u, err := New("alice", "lfs", types.PluginKindPrepaid, time.Hour, time.Now())
	require.NoError(t, err)

	done := make(chan struct{})
	counter := 0
	for i := 0; i < 10; i++ {
		go func() {
			_ = u.WithLock(func() error {
				counter++
				return nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	assert.Equal(t, 10, counter)
}
