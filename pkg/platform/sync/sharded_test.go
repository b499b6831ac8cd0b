package sync

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SameKeySerializes(t *testing.T) {
	m := NewKeyedMutex()
	counter := 0
	var wg sync.WaitGroup

	for range 200 {
		wg.Go(func() {
			_ = m.Do("session-1", func() error {
				counter++
				return nil
			})
		})
	}
	wg.Wait()

	assert.Equal(t, 200, counter)
}

func TestKeyedMutex_ReadersShareShard(t *testing.T) {
	m := NewKeyedMutex()

	m.RLock("US")
	m.RLock("US")
	m.RUnlock("US")
	m.RUnlock("US")

	m.Lock("")
	m.Unlock("")
}

func TestKeyedMutex_DoReturnsError(t *testing.T) {
	m := NewKeyedMutex()
	want := errors.New("boom")

	err := m.Do("k", func() error { return want })
	require.ErrorIs(t, err, want)

	// lock released after error
	m.Lock("k")
	m.Unlock("k")
}

func TestKeyedMutex_ShardDistribution(t *testing.T) {
	m := NewKeyedMutex()
	seen := make(map[int]struct{})
	for i := range 500 {
		idx := m.shardFor(fmt.Sprintf("code-%d", i))
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, shardCount)
		seen[idx] = struct{}{}
	}
	assert.Greater(t, len(seen), shardCount/2)
	assert.Equal(t, 0, m.shardFor(""))
}
