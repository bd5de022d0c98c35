package scan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"kasir/m/domain"
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoCamera         = errors.New("no camera found")
	ErrCameraBusy       = errors.New("camera is in use by another application")
	// ErrNoCode is returned by a Decoder for a frame without a readable code.
	ErrNoCode = errors.New("no code in frame")
)

// Camera lists video inputs and opens decoders on them.
type Camera interface {
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, deviceID string) (Decoder, error)
}

// Decoder yields decoded codes from a running video stream. Close releases the device and
// unblocks a pending Next.
type Decoder interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

type FailureKind int

const (
	FailureOther FailureKind = iota
	FailurePermission
	FailureNoCamera
	FailureBusy
)

// Classify maps a camera error onto the categories shown to the cashier.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return FailurePermission
	case errors.Is(err, ErrNoCamera):
		return FailureNoCamera
	case errors.Is(err, ErrCameraBusy):
		return FailureBusy
	}
	return FailureOther
}

// Failure is a classified camera error.
type Failure struct {
	Kind FailureKind
	Err  error
}

func newFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: Classify(err), Err: err}
}

func (f *Failure) Error() string { return f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

// Message is the text shown to the cashier.
func (f *Failure) Message() string {
	switch f.Kind {
	case FailurePermission:
		return "Camera permission denied. Allow camera access for this user and try again."
	case FailureNoCamera:
		return "No camera found."
	case FailureBusy:
		return "The camera is being used by another application."
	}
	return "Camera failed: " + f.Err.Error()
}

// CameraSession exclusively owns one open Decoder. Events is consumed by a single subscriber and
// is closed when decoding stops. Close must be called on every exit path.
type CameraSession struct {
	Device Device

	decoder Decoder
	events  chan domain.ScanEvent
	cancel  context.CancelFunc
	done    chan struct{}
	logger  *zap.Logger
	now     func() time.Time

	closeOnce sync.Once
	closeErr  error

	mu  sync.Mutex
	err error
}

// CameraOption configures OpenCamera.
type CameraOption func(*CameraSession)

func WithCameraLogger(logger *zap.Logger) CameraOption {
	return func(s *CameraSession) { s.logger = logger }
}

func WithCameraClock(now func() time.Time) CameraOption {
	return func(s *CameraSession) { s.now = now }
}

// OpenCamera selects the preferred device and starts decoding from it. Errors are *Failure.
func OpenCamera(ctx context.Context, cam Camera, opts ...CameraOption) (*CameraSession, error) {
	s := &CameraSession{
		events: make(chan domain.ScanEvent),
		done:   make(chan struct{}),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	devices, err := cam.Devices(ctx)
	if err != nil {
		return nil, newFailure(err)
	}
	device, ok := SelectPreferredDevice(devices)
	if !ok {
		return nil, newFailure(ErrNoCamera)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	decoder, err := cam.Open(runCtx, device.ID)
	if err != nil {
		cancel()
		return nil, newFailure(err)
	}

	s.Device = device
	s.decoder = decoder
	s.cancel = cancel
	s.logger.Info("camera opened", zap.String("device", device.ID), zap.String("label", device.Label))

	go s.run(runCtx)
	return s, nil
}

func (s *CameraSession) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	for {
		code, err := s.decoder.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrNoCode) {
			continue
		}
		if err != nil {
			s.mu.Lock()
			s.err = newFailure(err)
			s.mu.Unlock()
			s.logger.Warn("camera decode stopped", zap.Error(err))
			return
		}
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		ev := domain.ScanEvent{Code: code, Source: domain.SourceCamera, At: s.now()}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Events streams decoded codes until the session is closed or the decoder fails.
func (s *CameraSession) Events() <-chan domain.ScanEvent {
	return s.events
}

// Err returns the failure that ended decoding, or nil.
func (s *CameraSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops decoding and releases the device. It is safe to call more than once.
func (s *CameraSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.decoder.Close()
		<-s.done
		s.logger.Info("camera released", zap.String("device", s.Device.ID))
	})
	return s.closeErr
}
