package scan

import (
	"strings"
	"time"

	"kasir/m/domain"
)

// Manual turns typed text into a scan event. Blank input yields false.
func Manual(text string, at time.Time) (domain.ScanEvent, bool) {
	code := strings.TrimSpace(text)
	if code == "" {
		return domain.ScanEvent{}, false
	}
	return domain.ScanEvent{Code: code, Source: domain.SourceManual, At: at}, true
}
