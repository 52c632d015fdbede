package tethercam

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tethercam/tethercam/pkg/gphoto"
)

// verbRunner answers by gphoto2 verb, recording call counts. Unconfigured
// verbs succeed with empty output.
type verbRunner struct {
	mu      sync.Mutex
	results map[string]gphoto.Result
	counts  map[string]int
}

func newVerbRunner() *verbRunner {
	return &verbRunner{
		results: make(map[string]gphoto.Result),
		counts:  make(map[string]int),
	}
}

func (v *verbRunner) set(verb string, res gphoto.Result) {
	v.mu.Lock()
	v.results[verb] = res
	v.mu.Unlock()
}

func (v *verbRunner) count(verb string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counts[verb]
}

func (v *verbRunner) Run(_ context.Context, req gphoto.Request) gphoto.Result {
	verb := ""
	if len(req.Args) > 0 {
		verb = req.Args[0]
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[verb]++
	if res, ok := v.results[verb]; ok {
		return res
	}
	return gphoto.Result{Succeeded: true}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// collectEvents drains a subscription into an ordered, locked slice.
func collectEvents(events <-chan Event) (get func() []Event, stop func()) {
	var mu sync.Mutex
	var seen []Event
	done := make(chan struct{})
	go func() {
		for ev := range events {
			mu.Lock()
			seen = append(seen, ev)
			mu.Unlock()
		}
		close(done)
	}()
	get = func() []Event {
		mu.Lock()
		defer mu.Unlock()
		out := make([]Event, len(seen))
		copy(out, seen)
		return out
	}
	return get, func() { <-done }
}

func newTestManager(t *testing.T, runner gphoto.Runner) *Manager {
	t.Helper()
	return NewManager(ManagerConfig{
		Runner:       runner,
		Paths:        NewDateOrganizer(t.TempDir(), false),
		PollInterval: 10 * time.Millisecond,
		JoinTimeout:  time.Second,
	})
}

func eventsOf(all []Event, port string, evtType EventType) []Event {
	var out []Event
	for _, ev := range all {
		if ev.Port == port && ev.Type == evtType {
			out = append(out, ev)
		}
	}
	return out
}

func TestFileAddedPrecedesFileDownloaded(t *testing.T) {
	sim := gphoto.NewSimRunner("Sim Cam", "usb:001,004")
	mgr := newTestManager(t, sim)
	events, unsub := mgr.Subscribe()
	get, drained := collectEvents(events)

	if !mgr.Start("usb:001,004") {
		t.Fatal("start failed")
	}
	defer mgr.StopAll()

	remote := sim.AddFile("IMG_0001.JPG")
	waitFor(t, 3*time.Second, "file downloaded", func() bool {
		return len(eventsOf(get(), "usb:001,004", EventFileDownloaded)) > 0
	})
	mgr.StopAll()
	unsub()
	drained()

	all := get()
	addedIdx, downloadedIdx := -1, -1
	for i, ev := range all {
		switch {
		case ev.Type == EventFileAdded && ev.Payload["path"] == remote && addedIdx == -1:
			addedIdx = i
		case ev.Type == EventFileDownloaded && ev.Payload["remote_path"] == remote && downloadedIdx == -1:
			downloadedIdx = i
		}
	}
	if addedIdx == -1 || downloadedIdx == -1 {
		t.Fatalf("missing events: added=%d downloaded=%d (%d events)", addedIdx, downloadedIdx, len(all))
	}
	if addedIdx >= downloadedIdx {
		t.Fatalf("FileAdded (%d) must precede FileDownloaded (%d)", addedIdx, downloadedIdx)
	}
	if ev := all[downloadedIdx]; ev.Payload["local_path"] == "" {
		t.Fatal("FileDownloaded must carry the local path")
	}
}

func TestKnownFileReportedOncePerSession(t *testing.T) {
	sim := gphoto.NewSimRunner("Sim Cam", "usb:001,004")
	remote := sim.AddFile("IMG_0001.JPG")
	mgr := newTestManager(t, sim)
	events, unsub := mgr.Subscribe()
	defer unsub()
	get, _ := collectEvents(events)

	mgr.Start("usb:001,004")
	defer mgr.StopAll()

	waitFor(t, 3*time.Second, "first detection", func() bool {
		return len(eventsOf(get(), "usb:001,004", EventFileAdded)) > 0
	})
	// Several more poll cycles must not re-report the same file.
	time.Sleep(100 * time.Millisecond)

	added := eventsOf(get(), "usb:001,004", EventFileAdded)
	count := 0
	for _, ev := range added {
		if ev.Payload["path"] == remote {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("file reported %d times, want exactly 1", count)
	}
}

func TestBusyReadyBracketEachDownload(t *testing.T) {
	sim := gphoto.NewSimRunner("Sim Cam", "usb:001,004")
	mgr := newTestManager(t, sim)
	events, unsub := mgr.Subscribe()
	get, drained := collectEvents(events)

	mgr.Start("usb:001,004")
	sim.AddFile("IMG_0001.JPG")
	waitFor(t, 3*time.Second, "download", func() bool {
		return len(eventsOf(get(), "usb:001,004", EventFileDownloaded)) > 0
	})
	mgr.StopAll()
	unsub()
	drained()

	all := get()
	busyIdx, readyIdx, downloadedIdx := -1, -1, -1
	for i, ev := range all {
		switch ev.Type {
		case EventDeviceBusy:
			if busyIdx == -1 {
				busyIdx = i
			}
		case EventFileDownloaded:
			downloadedIdx = i
		case EventDeviceReady:
			if busyIdx != -1 && readyIdx == -1 && i > busyIdx {
				readyIdx = i
			}
		}
	}
	if busyIdx == -1 || readyIdx == -1 || downloadedIdx == -1 {
		t.Fatalf("missing bracket events: busy=%d ready=%d downloaded=%d", busyIdx, readyIdx, downloadedIdx)
	}
	if !(busyIdx < readyIdx && readyIdx < downloadedIdx) {
		t.Fatalf("want busy < ready < downloaded, got %d %d %d", busyIdx, readyIdx, downloadedIdx)
	}
}

func TestListFailureEmitsErrorAndKeepsPolling(t *testing.T) {
	runner := newVerbRunner()
	runner.set("--list-files", gphoto.Result{ExitCode: 1, Stderr: "PTP I/O Error"})
	mgr := newTestManager(t, runner)
	events, unsub := mgr.Subscribe()
	defer unsub()
	get, _ := collectEvents(events)

	mgr.Start("usb:001,004")
	defer mgr.StopAll()

	waitFor(t, 3*time.Second, "repeated poll errors", func() bool {
		return len(eventsOf(get(), "usb:001,004", EventError)) >= 2
	})
	if !mgr.IsActive("usb:001,004") {
		t.Fatal("poll failures must not end the session")
	}
	if mgr.State("usb:001,004") == StateError {
		t.Fatal("transient poll failure must not latch the error state")
	}
}

func TestDeviceNotFoundLatchesErrorState(t *testing.T) {
	runner := newVerbRunner()
	runner.set("--list-files", gphoto.Result{ExitCode: 1, Stderr: "*** Error: Unknown port 'usb:9,9' ***"})
	mgr := newTestManager(t, runner)

	mgr.Start("usb:001,004")
	defer mgr.StopAll()

	waitFor(t, 3*time.Second, "error state", func() bool {
		return mgr.State("usb:001,004") == StateError
	})
	// Error is cleared only by a stop/start cycle.
	mgr.Stop("usb:001,004")
	if mgr.State("usb:001,004") != StateStopped {
		t.Fatal("stopped session must report StateStopped")
	}
}

func TestDownloadFailureKeepsQueueDraining(t *testing.T) {
	sim := gphoto.NewSimRunner("Sim Cam", "usb:001,004")
	runner := newVerbRunner()
	runner.set("--get-file", gphoto.Result{ExitCode: 1, Stderr: "ERROR: Could not capture"})
	// Listing comes from the sim, fetching always fails.
	listThrough := &listProxy{sim: sim, inner: runner}

	mgr := newTestManager(t, listThrough)
	events, unsub := mgr.Subscribe()
	defer unsub()
	get, _ := collectEvents(events)

	mgr.Start("usb:001,004")
	defer mgr.StopAll()

	sim.AddFile("IMG_0001.JPG")
	sim.AddFile("IMG_0002.JPG")

	waitFor(t, 3*time.Second, "two failed downloads", func() bool {
		return len(eventsOf(get(), "usb:001,004", EventError)) >= 2
	})
	if !mgr.IsActive("usb:001,004") {
		t.Fatal("failed downloads must not end the session")
	}
	if len(eventsOf(get(), "usb:001,004", EventFileDownloaded)) != 0 {
		t.Fatal("no FileDownloaded may be emitted for failed fetches")
	}
}

// listProxy serves listings from the sim and everything else from inner.
type listProxy struct {
	sim   *gphoto.SimRunner
	inner *verbRunner
}

func (p *listProxy) Run(ctx context.Context, req gphoto.Request) gphoto.Result {
	if len(req.Args) > 0 && req.Args[0] == "--list-files" {
		return p.sim.Run(ctx, req)
	}
	return p.inner.Run(ctx, req)
}
