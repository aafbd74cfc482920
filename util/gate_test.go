package util

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateMaximum(t *testing.T) {
	// run 10 goroutines through a gate that can only hold 3
	g := NewGate(3)
	var inside, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Enter()
			defer g.Leave()
			n := atomic.AddInt64(&inside, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&inside, -1)
		}()
	}
	wg.Wait()

	if peak > 3 {
		t.Errorf("Saw %d goroutines inside the gate, expected at most 3", peak)
	}
}
