package gphoto

import "strings"

// ErrorClass buckets a finished invocation for retry decisions.
type ErrorClass int

const (
	// ClassOK means the invocation succeeded.
	ClassOK ErrorClass = iota
	// ClassTransient errors are expected to clear on retry: busy devices,
	// USB claim conflicts, I/O timeouts.
	ClassTransient
	// ClassDeviceNotFound means the requested port or device is gone; never
	// retried.
	ClassDeviceNotFound
	// ClassFatal covers every other failure; never retried.
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassTransient:
		return "transient"
	case ClassDeviceNotFound:
		return "device_not_found"
	default:
		return "fatal"
	}
}

var transientMarkers = []string{
	"could not claim the usb device",
	"could not lock the device",
	"camera is busy",
	"device busy",
	"ptp i/o error",
	"i/o error",
	"timeout reading from or writing to the port",
	TimeoutStderr,
}

var notFoundMarkers = []string{
	"unknown port",
	"could not find the requested device",
	"device not found",
}

// criticalMarkers flag failures that gphoto2 sometimes reports alongside a
// zero exit code, e.g. a capture that never happened.
var criticalMarkers = []string{
	"error: could not capture",
	"ptp i/o error",
}

// Classify maps an exit code plus captured stderr to an ErrorClass. A zero
// exit code is still classified as a failure when stderr carries a known
// critical marker, because the tool may report success after failing to
// capture.
func Classify(exitCode int, stderr string) ErrorClass {
	lower := strings.ToLower(stderr)
	if exitCode == 0 && !containsAny(lower, criticalMarkers) {
		return ClassOK
	}
	if containsAny(lower, transientMarkers) {
		return ClassTransient
	}
	if containsAny(lower, notFoundMarkers) {
		return ClassDeviceNotFound
	}
	return ClassFatal
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
