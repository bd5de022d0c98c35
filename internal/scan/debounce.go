// Package scan turns camera decodes, typed codes and USB wedge keystrokes into ScanEvents.
package scan

import (
	"sync"
	"time"

	"kasir/m/domain"
)

const (
	// CameraWindow drops a camera re-decode of the same code from the same frame run.
	CameraWindow = 500 * time.Millisecond
	// BatchWindow guards batch and USB workflows that scan many identical units in a row.
	BatchWindow = time.Second
)

// Filter decides whether an event is dispatched.
type Filter interface {
	Accept(ev domain.ScanEvent) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(ev domain.ScanEvent) bool

func (f FilterFunc) Accept(ev domain.ScanEvent) bool { return f(ev) }

// Debouncer rejects a code identical to the last accepted one when it arrives within the window.
// Time is taken from ScanEvent.At.
type Debouncer struct {
	window time.Duration

	mu     sync.Mutex
	last   string
	lastAt time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

func (d *Debouncer) Accept(ev domain.ScanEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ev.Code == d.last && ev.At.Sub(d.lastAt) < d.window {
		return false
	}
	d.last = ev.Code
	d.lastAt = ev.At
	return true
}

// Reset forgets the last accepted code.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	d.last = ""
	d.lastAt = time.Time{}
	d.mu.Unlock()
}

// Chain accepts an event only when every filter accepts it, in order.
// Later filters do not see events an earlier filter rejected.
func Chain(filters ...Filter) Filter {
	return FilterFunc(func(ev domain.ScanEvent) bool {
		for _, f := range filters {
			if f != nil && !f.Accept(ev) {
				return false
			}
		}
		return true
	})
}
