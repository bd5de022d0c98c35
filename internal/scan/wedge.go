package scan

import (
	"sync"
	"time"

	"kasir/m/domain"
)

const (
	// WedgeSilence ends a code when the scanner stops typing without sending Enter.
	WedgeSilence = 100 * time.Millisecond
	// MinCodeLength is the shortest buffer treated as a code; shorter ones are stray keypresses.
	MinCodeLength = 4
)

// Wedge reassembles codes typed by a USB keyboard-wedge scanner.
type Wedge struct {
	emit    func(domain.ScanEvent)
	silence time.Duration
	now     func() time.Time

	// emitMu orders emits against Close: a flush in progress finishes before Close returns.
	emitMu sync.Mutex
	mu     sync.Mutex
	buf    []rune
	timer  *time.Timer
	gen    uint64
	closed bool
}

type WedgeOption func(*Wedge)

func WithSilence(d time.Duration) WedgeOption {
	return func(w *Wedge) { w.silence = d }
}

func WithWedgeClock(now func() time.Time) WedgeOption {
	return func(w *Wedge) { w.now = now }
}

// NewWedge returns a Wedge that calls emit for every completed code. emit may be called from
// the silence timer's goroutine and must not call Close.
func NewWedge(emit func(domain.ScanEvent), opts ...WedgeOption) *Wedge {
	w := &Wedge{emit: emit, silence: WedgeSilence, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Feed handles one keystroke.
func (w *Wedge) Feed(k Key) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	switch k.Kind {
	case KeyEnter:
		w.stopTimer()
		ev, ok := w.event()
		w.mu.Unlock()
		w.dispatch(ev, ok)
		return
	case KeyRune:
		w.buf = append(w.buf, k.Rune)
		w.arm()
	}
	w.mu.Unlock()
}

// Close cancels a pending flush. Nothing is emitted afterwards.
func (w *Wedge) Close() {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	w.mu.Lock()
	w.closed = true
	w.stopTimer()
	w.buf = nil
	w.mu.Unlock()
}

// Pending returns the buffered, not yet flushed characters.
func (w *Wedge) Pending() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}

func (w *Wedge) arm() {
	w.stopTimer()
	w.gen++
	gen := w.gen
	w.timer = time.AfterFunc(w.silence, func() { w.expire(gen) })
}

func (w *Wedge) stopTimer() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
}

func (w *Wedge) expire(gen uint64) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	w.mu.Lock()
	if w.closed || gen != w.gen {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	ev, ok := w.event()
	w.mu.Unlock()
	w.dispatch(ev, ok)
}

// take empties the buffer and returns it when it is long enough to be a code.
func (w *Wedge) take() string {
	code := string(w.buf)
	w.buf = w.buf[:0]
	if len([]rune(code)) < MinCodeLength {
		return ""
	}
	return code
}

// event takes the buffer as a scan event. Called with mu held.
func (w *Wedge) event() (domain.ScanEvent, bool) {
	code := w.take()
	if code == "" {
		return domain.ScanEvent{}, false
	}
	return domain.ScanEvent{Code: code, Source: domain.SourceUSB, At: w.now()}, true
}

// dispatch runs with emitMu held, so Close cannot complete while an event is being emitted.
func (w *Wedge) dispatch(ev domain.ScanEvent, ok bool) {
	if !ok || w.emit == nil {
		return
	}
	w.emit(ev)
}
