package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kasir/m/domain"
)

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func camEvent(code string, offset time.Duration) domain.ScanEvent {
	return domain.ScanEvent{Code: code, Source: domain.SourceCamera, At: epoch.Add(offset)}
}

func TestDebouncerDropsRepeatWithinWindow(t *testing.T) {
	d := NewDebouncer(CameraWindow)

	assert.True(t, d.Accept(camEvent("8991234567", 0)))
	assert.False(t, d.Accept(camEvent("8991234567", 200*time.Millisecond)))
	assert.True(t, d.Accept(camEvent("8991234567", 700*time.Millisecond)))
}

func TestDebouncerRejectedEventDoesNotExtendWindow(t *testing.T) {
	d := NewDebouncer(CameraWindow)

	assert.True(t, d.Accept(camEvent("A123", 0)))
	assert.False(t, d.Accept(camEvent("A123", 400*time.Millisecond)))
	assert.True(t, d.Accept(camEvent("A123", 500*time.Millisecond)))
}

func TestDebouncerDifferentCodePasses(t *testing.T) {
	d := NewDebouncer(BatchWindow)

	assert.True(t, d.Accept(camEvent("A123", 0)))
	assert.True(t, d.Accept(camEvent("B456", 10*time.Millisecond)))
	assert.True(t, d.Accept(camEvent("A123", 20*time.Millisecond)))
}

func TestDebouncerReset(t *testing.T) {
	d := NewDebouncer(BatchWindow)
	assert.True(t, d.Accept(camEvent("A123", 0)))
	d.Reset()
	assert.True(t, d.Accept(camEvent("A123", time.Millisecond)))
}

func TestChainStopsAtFirstRejection(t *testing.T) {
	var seen int
	counter := FilterFunc(func(domain.ScanEvent) bool {
		seen++
		return true
	})
	f := Chain(NewDebouncer(CameraWindow), counter)

	assert.True(t, f.Accept(camEvent("A123", 0)))
	assert.False(t, f.Accept(camEvent("A123", time.Millisecond)))
	assert.Equal(t, 1, seen)
}

func TestSelectPreferredDevice(t *testing.T) {
	tests := []struct {
		name    string
		devices []Device
		want    string
		ok      bool
	}{
		{name: "empty", devices: nil, ok: false},
		{
			name:    "rear label wins",
			devices: []Device{{ID: "0", Label: "Front Camera"}, {ID: "1", Label: "Back Camera"}},
			want:    "1",
			ok:      true,
		},
		{
			name:    "localized label",
			devices: []Device{{ID: "0", Label: "kamera depan"}, {ID: "1", Label: "Kamera Belakang"}},
			want:    "1",
			ok:      true,
		},
		{
			name:    "environment facing",
			devices: []Device{{ID: "0", Label: "user"}, {ID: "1", Label: "camera2 0, facing ENVIRONMENT"}},
			want:    "1",
			ok:      true,
		},
		{
			name:    "falls back to first",
			devices: []Device{{ID: "0", Label: "HD Webcam"}, {ID: "1", Label: "Integrated"}},
			want:    "0",
			ok:      true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectPreferredDevice(tt.devices)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestManual(t *testing.T) {
	ev, ok := Manual("  8991234567 \n", epoch)
	assert.True(t, ok)
	assert.Equal(t, "8991234567", ev.Code)
	assert.Equal(t, domain.SourceManual, ev.Source)

	_, ok = Manual("   ", epoch)
	assert.False(t, ok)
}
