package engine

import (
	"sync"
	"time"
)

// Scheduler runs fn every d until the returned cancel func is called.
// Cancel must be safe to call more than once and must not block on fn.
type Scheduler interface {
	Every(d time.Duration, fn func()) (cancel func())
}

type tickerScheduler struct{}

// NewTickerScheduler returns a Scheduler backed by time.Ticker.
func NewTickerScheduler() Scheduler { return tickerScheduler{} }

func (tickerScheduler) Every(d time.Duration, fn func()) func() {
	t := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
