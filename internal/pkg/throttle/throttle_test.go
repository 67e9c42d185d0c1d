package throttle

import (
	"sync"
	"testing"
	"time"
)

func TestCooldownLimiter_Coalesces(t *testing.T) {
	l := NewMemoryLimiter(100 * time.Millisecond)

	if !l.Acquire("order:42") {
		t.Fatalf("first acquire must succeed")
	}
	if l.Acquire("order:42") {
		t.Fatalf("second acquire inside the window must be dropped")
	}
	if !l.Acquire("order:43") {
		t.Fatalf("different keys gate independently")
	}

	time.Sleep(150 * time.Millisecond)
	if !l.Acquire("order:42") {
		t.Fatalf("acquire after lease expiry must succeed")
	}
}

func TestCooldownLimiter_ConcurrentSingleWinner(t *testing.T) {
	l := NewMemoryLimiter(time.Second)

	const attempts = 16
	var wg sync.WaitGroup
	acquired := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acquired[i] = l.Acquire("order:42")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range acquired {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestCooldownLimiter_DefaultWindow(t *testing.T) {
	l := NewCooldownLimiter(nil, 0)
	if l.cooldown != 5*time.Second {
		t.Fatalf("default cooldown = %v", l.cooldown)
	}
}
