package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry[string]()

	require.NoError(t, r.Register("b", "beta"))
	require.NoError(t, r.Register("a", "alpha"))
	assert.ErrorIs(t, r.Register("a", "again"), ErrAlreadyRegistered)

	v, err := r.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", v)

	assert.Equal(t, []string{"a", "b"}, r.IDs())
	assert.Equal(t, []string{"alpha", "beta"}, r.List())
	assert.Equal(t, 2, r.Len())

	v, err = r.Unregister("a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", v)

	_, err = r.Lookup("a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Unregister("a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("entry-%02d", i)
			_ = r.Register(id, i)
			_, _ = r.Lookup(id)
			_ = r.List()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
	assert.Equal(t, "entry-00", r.IDs()[0])
}
