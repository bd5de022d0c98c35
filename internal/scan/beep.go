package scan

import (
	"io"
	"time"
)

type Tone struct {
	Hz       int
	Duration time.Duration
}

var (
	ToneAccepted = Tone{Hz: 1200, Duration: 150 * time.Millisecond}
	ToneAdded    = Tone{Hz: 1000, Duration: 150 * time.Millisecond}
	ToneRejected = Tone{Hz: 400, Duration: 100 * time.Millisecond}
)

// Beeper plays audible feedback. Implementations may ignore the frequency.
type Beeper interface {
	Beep(t Tone) error
}

// BellBeeper rings the terminal bell.
type BellBeeper struct {
	W io.Writer
}

func (b BellBeeper) Beep(Tone) error {
	if b.W == nil {
		return nil
	}
	_, err := b.W.Write([]byte{'\a'})
	return err
}

type NopBeeper struct{}

func (NopBeeper) Beep(Tone) error { return nil }

// Play is best effort: errors and panics from the beeper never reach the caller.
func Play(b Beeper, t Tone) {
	if b == nil {
		return
	}
	defer func() { _ = recover() }()
	_ = b.Beep(t)
}
