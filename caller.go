package main

import "time"

// Pacer spaces out remote calls with a fixed pause after each one.
// A nil Pacer or a zero Delay never sleeps.
type Pacer struct {
	Delay time.Duration
	sleep func(time.Duration)
}

// NewPacer creates a pacer that sleeps delay after every call
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{Delay: delay, sleep: time.Sleep}
}

// Pause blocks for the configured delay
func (p *Pacer) Pause() {
	if p == nil || p.Delay <= 0 {
		return
	}
	debugLog("pacer: sleeping %s", p.Delay)
	if p.sleep == nil {
		time.Sleep(p.Delay)
		return
	}
	p.sleep(p.Delay)
}

// Call runs fn and then pauses, whether fn failed or not. The result and
// error of fn are returned unchanged.
func Call[R any](p *Pacer, fn func() (R, error)) (R, error) {
	result, err := fn()
	p.Pause()
	return result, err
}
