package utils

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("a")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_TryLock(t *testing.T) {
	km := NewKeyedMutex()
	unlock, ok := km.TryLock("acct")
	require.True(t, ok)

	_, ok = km.TryLock("acct")
	assert.False(t, ok)

	other, ok := km.TryLock("other")
	require.True(t, ok)
	other()

	unlock()
	unlock2, ok := km.TryLock("acct")
	require.True(t, ok)
	unlock2()
	assert.Equal(t, 0, km.Len())
}
