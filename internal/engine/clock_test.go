package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_Counts(t *testing.T) {
	c := NewClock()
	assert.Equal(t, uint64(1), c.admit())
	assert.Equal(t, uint64(2), c.admit())
	c.commit()

	admitted, committed := c.Stats()
	assert.Equal(t, uint64(2), admitted)
	assert.Equal(t, uint64(1), committed)
}

func TestClock_ConcurrentAdmit(t *testing.T) {
	c := NewClock()
	const workers, each = 16, 64

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uint64]bool)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				step := c.admit()
				mu.Lock()
				assert.False(t, seen[step], "step %d numbered twice", step)
				seen[step] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	admitted, _ := c.Stats()
	assert.Equal(t, uint64(workers*each), admitted)
}
