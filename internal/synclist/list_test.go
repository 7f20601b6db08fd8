package synclist

import (
	"sync"
	"sync/atomic"
	"testing"

	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ListSuite struct {
	suite.Suite
	list *List[string]
}

func TestList(t *testing.T) {
	suite.Run(t, new(ListSuite))
}

func (s *ListSuite) SetupTest() {
	s.list = New[string]()
	s.list.Add("a")
	s.list.Add("b")
	s.list.Add("c")
}

func (s *ListSuite) drain(id int) []string {
	var out []string
	for {
		v, ok, err := s.list.GetNext(id)
		s.Require().NoError(err)
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func (s *ListSuite) TestIterateInOrder() {
	id := s.list.StartIterating()
	defer s.list.StopIterating(id)

	s.Equal([]string{"a", "b", "c"}, s.drain(id))
}

func (s *ListSuite) TestIndependentConsumers() {
	first := s.list.StartIterating()
	second := s.list.StartIterating()
	s.NotEqual(first, second)

	v, ok, err := s.list.GetNext(first)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("a", v)

	s.Equal([]string{"a", "b", "c"}, s.drain(second))
	s.Equal([]string{"b", "c"}, s.drain(first))
	s.Equal(2, s.list.Consumers())
}

func (s *ListSuite) TestModificationInvalidatesCursor() {
	id := s.list.StartIterating()
	_, _, err := s.list.GetNext(id)
	s.Require().NoError(err)

	s.list.Add("d")

	_, ok, err := s.list.GetNext(id)
	s.False(ok)
	s.ErrorIs(err, ErrModifiedList)
	s.True(ierr.Is(err, ierr.ErrInvalidOperation))

	s.Require().NoError(s.list.ResetPointer(id))
	s.Equal([]string{"a", "b", "c", "d"}, s.drain(id))
}

func (s *ListSuite) TestRemove() {
	s.Require().NoError(s.list.Remove("b"))
	s.Equal([]string{"a", "c"}, s.list.Snapshot())
	s.NotContains(s.list.Snapshot(), "b")

	err := s.list.Remove("b")
	s.True(ierr.IsNotFound(err))
}

func (s *ListSuite) TestUnknownConsumer() {
	_, _, err := s.list.GetNext(42)
	s.ErrorIs(err, ErrInvalidConsumer)
	s.ErrorIs(s.list.StopIterating(42), ErrInvalidConsumer)
	s.ErrorIs(s.list.ResetPointer(42), ErrInvalidConsumer)

	id := s.list.StartIterating()
	s.Require().NoError(s.list.StopIterating(id))
	_, _, err = s.list.GetNext(id)
	s.ErrorIs(err, ErrInvalidConsumer)
}

func (s *ListSuite) TestSnapshotIsACopy() {
	snap := s.list.Snapshot()
	snap[0] = "z"
	s.Equal("a", s.list.Snapshot()[0])
}

// Readers either observe ErrModifiedList or finish a pass that saw every
// element of a consistent state exactly once. The base elements 0..99 are
// never removed, so every completed pass contains all of them.
func TestConcurrentConsumersAndWriters(t *testing.T) {
	const base = 100

	list := New[int]()
	for i := 0; i < base; i++ {
		list.Add(i)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				v := 1000 + w*1000 + i
				list.Add(v)
				if i%2 == 0 {
					assert.NoError(t, list.Remove(v))
				}
			}
		}(w)
	}

	var completed atomic.Int32
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pass := 0; pass < 50; pass++ {
				id := list.StartIterating()
				seen := make(map[int]int)
				complete := false
				for {
					v, ok, err := list.GetNext(id)
					if err != nil {
						assert.ErrorIs(t, err, ErrModifiedList)
						break
					}
					if !ok {
						complete = true
						break
					}
					seen[v]++
				}
				assert.NoError(t, list.StopIterating(id))

				if !complete {
					continue
				}
				completed.Add(1)
				for v, n := range seen {
					assert.Equal(t, 1, n, "element %d seen %d times in one pass", v, n)
				}
				for i := 0; i < base; i++ {
					assert.Contains(t, seen, i, "base element %d missing from a completed pass", i)
				}
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, base+4*100, list.Len())
	assert.Zero(t, list.Consumers())

	// once writers are done every pass completes
	id := list.StartIterating()
	seen := make(map[int]bool)
	for {
		v, ok, err := list.GetNext(id)
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.False(t, seen[v], "element %d repeated", v)
		seen[v] = true
	}
	require.NoError(t, list.StopIterating(id))
	assert.Len(t, seen, base+4*100)
	t.Logf("%d concurrent passes completed", completed.Load())
}
