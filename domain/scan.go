package domain

import "time"

// ScanSource names the input a code was read from.
type ScanSource string

const (
	SourceCamera ScanSource = "camera"
	SourceManual ScanSource = "manual"
	SourceUSB    ScanSource = "usb"
)

// ScanEvent is a single code read from any source. It is never persisted.
type ScanEvent struct {
	Code   string
	Source ScanSource
	At     time.Time
}
