package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLockIndependentKeys(t *testing.T) {
	locks := newKeyedLock()
	unlockA := locks.Lock("a")

	acquired := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on b waited for a")
	}
	unlockA()
	assert.Zero(t, locks.size())
}

func TestKeyedLockSerializesSameKey(t *testing.T) {
	locks := newKeyedLock()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer locks.Lock("req_1")()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Zero(t, locks.size())
}
