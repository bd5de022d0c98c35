package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"kasir/m/domain"
)

type Mode int

const (
	ModeOff Mode = iota
	ModeCamera
	ModeUSB
)

func (m Mode) String() string {
	switch m {
	case ModeCamera:
		return "camera"
	case ModeUSB:
		return "usb"
	}
	return "off"
}

var ErrUnsupportedMode = errors.New("scan mode not available")

// StartFunc acquires the resources for one mode. lost is called, at most once and possibly from
// another goroutine, when the session ends on its own (device failure, user exit); err is nil for
// a clean exit.
type StartFunc func(ctx context.Context, lost func(err error)) (io.Closer, error)

// Switcher keeps at most one scanning mode active.
type Switcher struct {
	starters map[Mode]StartFunc
	onStop   func(mode Mode, err error)

	mu     sync.Mutex
	mode   Mode
	active io.Closer
	gen    uint64
}

// NewSwitcher builds a Switcher. onStop, if set, is told when a mode ends without Deactivate.
func NewSwitcher(starters map[Mode]StartFunc, onStop func(mode Mode, err error)) *Switcher {
	return &Switcher{starters: starters, onStop: onStop}
}

// Activate releases the current mode before starting the requested one. On a start failure the
// switcher is left off.
func (s *Switcher) Activate(ctx context.Context, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == s.mode && s.active != nil {
		return nil
	}
	s.teardown()
	if mode == ModeOff {
		return nil
	}
	start, ok := s.starters[mode]
	if !ok || start == nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}

	gen := s.gen
	closer, err := start(ctx, func(err error) {
		go s.lost(gen, mode, err)
	})
	if err != nil {
		return err
	}
	s.mode = mode
	s.active = closer
	return nil
}

// Toggle turns mode off when it is active, otherwise activates it.
func (s *Switcher) Toggle(ctx context.Context, mode Mode) error {
	if s.Mode() == mode {
		return s.Deactivate()
	}
	return s.Activate(ctx, mode)
}

func (s *Switcher) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardown()
}

func (s *Switcher) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Close releases the active mode.
func (s *Switcher) Close() error {
	return s.Deactivate()
}

func (s *Switcher) teardown() error {
	s.gen++
	closer := s.active
	s.active = nil
	s.mode = ModeOff
	if closer == nil {
		return nil
	}
	return closer.Close()
}

func (s *Switcher) lost(gen uint64, mode Mode, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	_ = s.teardown()
	s.mu.Unlock()
	if s.onStop != nil {
		s.onStop(mode, err)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// CameraStarter opens cam and feeds its events into d until closed.
func CameraStarter(cam Camera, d *Dispatcher, opts ...CameraOption) StartFunc {
	return func(ctx context.Context, lost func(error)) (io.Closer, error) {
		sess, err := OpenCamera(ctx, cam, opts...)
		if err != nil {
			return nil, err
		}
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		go func() {
			defer close(done)
			d.Consume(runCtx, sess.Events())
			if err := sess.Err(); err != nil {
				lost(err)
			}
		}()
		return closerFunc(func() error {
			cancel()
			err := sess.Close()
			<-done
			return err
		}), nil
	}
}

// USBStarter listens on kb and feeds completed wedge codes into d. Escape leaves the mode.
func USBStarter(kb *Keyboard, d *Dispatcher, opts ...WedgeOption) StartFunc {
	return func(ctx context.Context, lost func(error)) (io.Closer, error) {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		emit := func(ev domain.ScanEvent) {
			if runCtx.Err() != nil {
				return
			}
			d.Dispatch(runCtx, ev)
		}
		sess := ListenUSB(kb, emit, func() { lost(nil) }, opts...)
		return closerFunc(func() error {
			cancel()
			return sess.Close()
		}), nil
	}
}
