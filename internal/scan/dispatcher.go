package scan

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"kasir/m/domain"
)

// Handler receives every accepted scan.
type Handler func(ctx context.Context, ev domain.ScanEvent)

// Dispatcher is the single consumer of scan events from all sources. It filters per source,
// beeps on acceptance and forwards to the handler one event at a time.
type Dispatcher struct {
	handle  Handler
	filters map[domain.ScanSource]Filter
	beeper  Beeper
	tone    Tone
	logger  *zap.Logger

	mu    sync.Mutex
	count int
}

type DispatcherOption func(*Dispatcher)

// WithFilter sets the filter for one source. Sources without a filter accept everything.
func WithFilter(source domain.ScanSource, f Filter) DispatcherOption {
	return func(d *Dispatcher) { d.filters[source] = f }
}

func WithBeeper(b Beeper) DispatcherOption {
	return func(d *Dispatcher) { d.beeper = b }
}

// WithTone replaces the tone played when a scan is accepted.
func WithTone(t Tone) DispatcherOption {
	return func(d *Dispatcher) { d.tone = t }
}

func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

func NewDispatcher(handle Handler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handle:  handle,
		filters: make(map[domain.ScanSource]Filter),
		beeper:  NopBeeper{},
		tone:    ToneAccepted,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch reports whether ev passed its source filter and was handled.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.ScanEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f, ok := d.filters[ev.Source]; ok && f != nil && !f.Accept(ev) {
		d.logger.Debug("scan dropped", zap.String("code", ev.Code), zap.String("source", string(ev.Source)))
		return false
	}
	d.count++
	Play(d.beeper, d.tone)
	d.logger.Debug("scan accepted", zap.String("code", ev.Code), zap.String("source", string(ev.Source)))
	if d.handle != nil {
		d.handle(ctx, ev)
	}
	return true
}

// Consume dispatches events until the channel is closed or ctx is done.
func (d *Dispatcher) Consume(ctx context.Context, events <-chan domain.ScanEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Dispatch(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// Count returns how many events have been accepted.
func (d *Dispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
