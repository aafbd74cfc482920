// Package util holds small concurrency helpers.
package util

// A Gate limits concurrency. Every gate has a maximum number of goroutines
// to allow through at a time. Goroutines enter the gate by calling Enter(),
// and signal that they are done by calling Leave(). The bagger uses one to
// cap concurrent file copies so very large trees cannot exhaust file
// descriptors.
type Gate chan struct{}

// NewGate returns a Gate which admits at most n entries at a time.
func NewGate(n int) Gate {
	return Gate(make(chan struct{}, n))
}

// Enter blocks the calling goroutine until fewer than n goroutines are
// inside the gate. It is safe to call from multiple goroutines.
func (g Gate) Enter() {
	g <- struct{}{}
}

// Leave marks a goroutine outside the protected section. Each call to Enter
// must be balanced by a call to Leave, though not necessarily from the same
// goroutine.
func (g Gate) Leave() {
	<-g
}
