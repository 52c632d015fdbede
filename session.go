package tethercam

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tethercam/tethercam/pkg/gphoto"
)

// State is a session's lifecycle state. Busy holds exactly while a dequeued
// file is in flight; Error is sticky until the session is stopped and
// restarted.
type State string

const (
	StateStopped State = "stopped"
	StateReady   State = "ready"
	StateBusy    State = "busy"
	StateError   State = "error"
)

// deviceSession owns the two loops for one camera: the monitor loop polls the
// device's file listing and feeds the queue, the download loop drains it.
// The monitor loop is the sole writer of known; the queue is the only other
// state shared between the loops.
type deviceSession struct {
	port   string
	runner gphoto.Runner
	paths  PathResolver
	bus    *Bus

	pollInterval time.Duration
	joinTimeout  time.Duration

	mu    sync.Mutex
	state State
	known map[string]struct{}

	queue        chan string
	stop         chan struct{}
	stopOnce     sync.Once
	monitorDone  chan struct{}
	downloadDone chan struct{}
}

func newDeviceSession(port string, runner gphoto.Runner, paths PathResolver, bus *Bus, pollInterval, joinTimeout time.Duration) *deviceSession {
	return &deviceSession{
		port:         port,
		runner:       runner,
		paths:        paths,
		bus:          bus,
		pollInterval: pollInterval,
		joinTimeout:  joinTimeout,
		state:        StateStopped,
		known:        make(map[string]struct{}),
		queue:        make(chan string, 256),
		stop:         make(chan struct{}),
		monitorDone:  make(chan struct{}),
		downloadDone: make(chan struct{}),
	}
}

func (s *deviceSession) start() {
	s.setState(StateReady)
	go s.monitorLoop()
	go s.downloadLoop()
	s.bus.Publish(EventDeviceReady, s.port, nil)
	log.Info().Str("port", s.port).Msg("tethering started")
}

// halt signals both loops and joins each with a bounded wait. A loop that
// does not come back within the timeout is abandoned, not killed; returns
// false in that case.
func (s *deviceSession) halt() bool {
	s.stopOnce.Do(func() { close(s.stop) })

	clean := true
	for name, done := range map[string]chan struct{}{
		"monitor":  s.monitorDone,
		"download": s.downloadDone,
	} {
		select {
		case <-done:
		case <-time.After(s.joinTimeout):
			log.Warn().Str("port", s.port).Str("loop", name).Msg("loop did not stop within join timeout, abandoning")
			clean = false
		}
	}
	s.setState(StateStopped)
	log.Info().Str("port", s.port).Bool("clean", clean).Msg("tethering stopped")
	return clean
}

func (s *deviceSession) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState applies the transition rules: Error is only left by a stop, and
// Stopped is terminal for this session instance.
func (s *deviceSession) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateError && next != StateStopped {
		return
	}
	s.state = next
}

func (s *deviceSession) monitorLoop() {
	defer close(s.monitorDone)
	log.Debug().Str("port", s.port).Msg("monitor loop started")

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// First poll immediately so files already on the camera surface without
	// waiting a full interval. They are reported as new: session state is
	// discarded on stop, so a restart rediscovers them by design.
	s.pollOnce()
	for {
		select {
		case <-s.stop:
			log.Debug().Str("port", s.port).Msg("monitor loop stopped")
			return
		case <-ticker.C:
			s.pollOnce()
		}
	}
}

// pollOnce lists the camera's files and enqueues anything not seen before.
// Failures emit an Error event and leave the loop running; the next tick is
// the retry.
func (s *deviceSession) pollOnce() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	res := s.runner.Run(ctx, gphoto.Request{Args: []string{"--list-files"}, Port: s.port})
	if !res.Succeeded {
		class := gphoto.Classify(res.ExitCode, res.Stderr)
		log.Error().Str("port", s.port).Str("class", class.String()).Str("stderr", res.Stderr).Msg("list files failed")
		if class == gphoto.ClassDeviceNotFound {
			s.setState(StateError)
		}
		s.bus.Publish(EventError, s.port, map[string]string{"message": "list files failed: " + res.Stderr})
		return
	}

	for _, file := range gphoto.ParseListFiles(res.Stdout) {
		if _, seen := s.known[file]; seen {
			continue
		}
		s.known[file] = struct{}{}
		log.Info().Str("port", s.port).Str("file", file).Msg("new file on camera")
		s.bus.Publish(EventFileAdded, s.port, map[string]string{"path": file})
		select {
		case s.queue <- file:
		case <-s.stop:
			return
		}
	}
}

func (s *deviceSession) downloadLoop() {
	defer close(s.downloadDone)
	log.Debug().Str("port", s.port).Msg("download loop started")

	for {
		select {
		case <-s.stop:
			log.Debug().Str("port", s.port).Msg("download loop stopped")
			return
		case file := <-s.queue:
			s.downloadOne(file)
		}
	}
}

// downloadOne fetches a single remote file. Busy/Ready bracket every attempt;
// a failed fetch emits Error after the bracket closes and the queue keeps
// draining.
func (s *deviceSession) downloadOne(remote string) {
	s.setState(StateBusy)
	s.bus.Publish(EventDeviceBusy, s.port, nil)

	dest, destErr := Destination(s.paths, remote, time.Now())

	var res gphoto.Result
	fetched := false
	if destErr == nil {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-s.stop:
				cancel()
			case <-ctx.Done():
			}
		}()
		res = s.runner.Run(ctx, gphoto.Request{
			Args:       []string{"--get-file", remote, "--filename", dest, "--force-overwrite"},
			Port:       s.port,
			Retries:    1,
			RetryDelay: time.Second,
		})
		cancel()
		fetched = gphoto.ConfirmSaved(res, dest)
	}

	s.setState(StateReady)
	s.bus.Publish(EventDeviceReady, s.port, nil)

	switch {
	case destErr != nil:
		log.Error().Err(destErr).Str("port", s.port).Str("file", remote).Msg("resolve destination failed")
		s.bus.Publish(EventError, s.port, map[string]string{"message": destErr.Error(), "path": remote})
	case !fetched:
		class := gphoto.Classify(res.ExitCode, res.Stderr)
		log.Error().Str("port", s.port).Str("file", remote).Str("class", class.String()).Str("stderr", res.Stderr).Msg("download failed")
		if class == gphoto.ClassDeviceNotFound {
			s.setState(StateError)
		}
		s.bus.Publish(EventError, s.port, map[string]string{"message": "download failed: " + res.Stderr, "path": remote})
	default:
		log.Info().Str("port", s.port).Str("file", remote).Str("dest", dest).Msg("file downloaded")
		s.bus.Publish(EventFileDownloaded, s.port, map[string]string{"remote_path": remote, "local_path": dest})
	}
}
