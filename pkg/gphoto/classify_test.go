package gphoto

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		exitCode int
		stderr   string
		want     ErrorClass
	}{
		{"clean success", 0, "", ClassOK},
		{"success with benign stderr", 0, "Deleting file from camera", ClassOK},
		{"busy device", 1, "*** Error: Could not claim the USB device ***", ClassTransient},
		{"camera busy", 1, "Camera is busy", ClassTransient},
		{"locked device", 1, "Could not lock the device", ClassTransient},
		{"ptp io error", 1, "PTP I/O Error", ClassTransient},
		{"port timeout", 1, "Timeout reading from or writing to the port", ClassTransient},
		{"subprocess timeout sentinel", -1, TimeoutStderr, ClassTransient},
		{"unknown port", 1, "*** Error: Unknown port 'usb:9,9' ***", ClassDeviceNotFound},
		{"missing device", 1, "Could not find the requested device on the USB port", ClassDeviceNotFound},
		{"generic failure", 1, "An error occurred in the io-library", ClassFatal},
		{"nonzero without stderr", 2, "", ClassFatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.exitCode, tc.stderr); got != tc.want {
				t.Fatalf("Classify(%d, %q) = %s, want %s", tc.exitCode, tc.stderr, got, tc.want)
			}
		})
	}
}

func TestClassifyZeroExitWithCriticalStderr(t *testing.T) {
	// gphoto2 sometimes exits zero after failing to capture; the stderr
	// marker must override the exit code.
	if got := Classify(0, "ERROR: Could not capture image"); got == ClassOK {
		t.Fatal("critical stderr with zero exit must not classify as ok")
	}
	if got := Classify(0, "PTP I/O Error"); got != ClassTransient {
		t.Fatalf("zero exit with PTP I/O Error = %s, want transient", got)
	}
}
