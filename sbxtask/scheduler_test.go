package sbxtask

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineRunsSynchronously(t *testing.T) {
	s := &Inline{}
	var order []int
	s.Go(func() error { order = append(order, 1); return nil })
	s.Go(func() error { order = append(order, 2); return nil })
	require.NoError(t, s.Wait())
	assert.Equal(t, []int{1, 2}, order)
}

func TestInlineKeepsFirstError(t *testing.T) {
	s := &Inline{}
	boom := errors.New("boom")
	s.Go(func() error { return boom })
	s.Go(func() error { return errors.New("second") })
	assert.ErrorIs(t, s.Wait(), boom)
}

func TestGroupRunsAllUnitsAndWaits(t *testing.T) {
	s := NewGroup()
	var n int32
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		s.Go(func() error {
			defer wg.Done()
			atomic.AddInt32(&n, 1)
			return nil
		})
	}
	require.NoError(t, s.Wait())
	wg.Wait()
	assert.EqualValues(t, 5, n)
}

func TestGroupSurfacesError(t *testing.T) {
	s := NewGroup()
	boom := errors.New("boom")
	s.Go(func() error { return boom })
	s.Go(func() error { return nil })
	assert.ErrorIs(t, s.Wait(), boom)
}
