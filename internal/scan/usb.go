package scan

import (
	"sync"

	"kasir/m/domain"
)

// USBSession routes keystrokes from a Keyboard into a Wedge until Escape, Ctrl-C or Close.
type USBSession struct {
	wedge  *Wedge
	stop   func()
	done   chan struct{}
	closed sync.Once
}

// ListenUSB starts listening on kb. onExit is called once when the user leaves USB mode with
// Escape or Ctrl-C; it must not block.
func ListenUSB(kb *Keyboard, emit func(domain.ScanEvent), onExit func(), opts ...WedgeOption) *USBSession {
	keys, stop := kb.Listen()
	s := &USBSession{
		wedge: NewWedge(emit, opts...),
		stop:  stop,
		done:  make(chan struct{}),
	}
	go s.run(keys, onExit)
	return s
}

// run keeps draining keys after Escape until the listener is removed, so a Keyboard delivering
// into a full channel never blocks the Close that removes it.
func (s *USBSession) run(keys <-chan Key, onExit func()) {
	defer close(s.done)
	exited := false
	for k := range keys {
		if exited {
			continue
		}
		switch k.Kind {
		case KeyEscape, KeyInterrupt:
			exited = true
			s.wedge.Close()
			if onExit != nil {
				onExit()
			}
		default:
			s.wedge.Feed(k)
		}
	}
}

// Pending exposes the partially typed code.
func (s *USBSession) Pending() string {
	return s.wedge.Pending()
}

func (s *USBSession) Close() error {
	s.closed.Do(func() {
		s.stop()
		<-s.done
		s.wedge.Close()
	})
	return nil
}
