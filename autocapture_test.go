package tethercam

import (
	"testing"
	"time"

	"github.com/tethercam/tethercam/pkg/gphoto"
)

func TestAutoCaptureFiresCountTimesThenStops(t *testing.T) {
	sim := gphoto.NewSimRunner("Sim Cam", "usb:001,004")
	mgr := newTestManager(t, sim)
	events, unsub := mgr.Subscribe()
	defer unsub()
	get, _ := collectEvents(events)
	defer mgr.StopAll()

	mgr.Start("usb:001,004")
	if !mgr.StartAutoCapture("usb:001,004", 20*time.Millisecond, 3) {
		t.Fatal("auto-capture start failed")
	}

	// Each trigger leaves a file on the sim camera; the monitor loop turns
	// them into FileAdded events.
	waitFor(t, 5*time.Second, "three captures detected", func() bool {
		return len(eventsOf(get(), "usb:001,004", EventFileAdded)) >= 3
	})

	// The schedule self-stops after the third trigger: no explicit stop, a
	// fresh StartAutoCapture must be accepted and StopAutoCapture on the old
	// one must report nothing running.
	waitFor(t, 2*time.Second, "schedule self-stop", func() bool {
		mgr2 := mgr.StartAutoCapture("usb:001,004", time.Hour, 1)
		if mgr2 {
			mgr.StopAutoCapture("usb:001,004")
		}
		return mgr2
	})

	time.Sleep(100 * time.Millisecond)
	if got := len(eventsOf(get(), "usb:001,004", EventFileAdded)); got != 3 {
		t.Fatalf("expected exactly 3 captured files, got %d", got)
	}
}

func TestAutoCaptureRequiresActiveSession(t *testing.T) {
	mgr := newTestManager(t, gphoto.NewSimRunner("Sim Cam", "usb:001,004"))
	if mgr.StartAutoCapture("usb:001,004", time.Second, 1) {
		t.Fatal("auto-capture must reject ports without an active session")
	}
}

func TestAutoCaptureRejectsSecondSchedule(t *testing.T) {
	sim := gphoto.NewSimRunner("Sim Cam", "usb:001,004")
	mgr := newTestManager(t, sim)
	defer mgr.StopAll()

	mgr.Start("usb:001,004")
	if !mgr.StartAutoCapture("usb:001,004", time.Hour, 0) {
		t.Fatal("first schedule must start")
	}
	if mgr.StartAutoCapture("usb:001,004", time.Hour, 0) {
		t.Fatal("second schedule for the same port must be rejected")
	}
	if !mgr.StopAutoCapture("usb:001,004") {
		t.Fatal("stop must find the running schedule")
	}
	if mgr.StopAutoCapture("usb:001,004") {
		t.Fatal("second stop must return false")
	}
}

func TestSessionStopCancelsAutoCapture(t *testing.T) {
	sim := gphoto.NewSimRunner("Sim Cam", "usb:001,004")
	mgr := newTestManager(t, sim)

	mgr.Start("usb:001,004")
	mgr.StartAutoCapture("usb:001,004", time.Hour, 0)
	mgr.Stop("usb:001,004")

	if mgr.StopAutoCapture("usb:001,004") {
		t.Fatal("stopping the session must tear down its auto-capture schedule")
	}
}
