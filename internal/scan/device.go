package scan

import "strings"

// Device is a video input the camera can decode from.
type Device struct {
	ID    string
	Label string
}

var rearCameraHints = []string{"back", "rear", "belakang", "environment"}

// SelectPreferredDevice picks the first rear-facing camera by label, falling back to the first
// device. It returns false when devices is empty.
func SelectPreferredDevice(devices []Device) (Device, bool) {
	if len(devices) == 0 {
		return Device{}, false
	}
	for _, d := range devices {
		label := strings.ToLower(d.Label)
		for _, hint := range rearCameraHints {
			if strings.Contains(label, hint) {
				return d, true
			}
		}
	}
	return devices[0], true
}
