package tethercam

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tethercam/tethercam/pkg/gphoto"
)

// autoCapture fires the shutter on a timer. It is decoupled from the
// session's loops: a triggered frame reaches the consumer only through the
// camera's own storage and the monitor loop's polling.
type autoCapture struct {
	port      string
	interval  time.Duration
	remaining int // <= 0 means unbounded

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// StartAutoCapture begins a timed capture schedule for port: one shutter
// trigger each interval, count times (count <= 0 runs until stopped). The
// schedule self-stops when the count is exhausted or the session goes away.
// Returns false when the session is not active or a schedule already runs.
func (m *Manager) StartAutoCapture(port string, interval time.Duration, count int) bool {
	if interval <= 0 {
		log.Warn().Str("port", port).Msg("auto-capture rejected: interval must be positive")
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, active := m.sessions[port]; !active {
		log.Warn().Str("port", port).Msg("auto-capture rejected: no active session")
		return false
	}
	if _, running := m.schedules[port]; running {
		log.Warn().Str("port", port).Msg("auto-capture already running")
		return false
	}

	ac := &autoCapture{
		port:      port,
		interval:  interval,
		remaining: count,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	m.schedules[port] = ac
	go m.runAutoCapture(ac)
	log.Info().Str("port", port).Dur("interval", interval).Int("count", count).Msg("auto-capture started")
	return true
}

// StopAutoCapture cancels the schedule for port. Returns false when none is
// running.
func (m *Manager) StopAutoCapture(port string) bool {
	m.mu.Lock()
	ac, running := m.schedules[port]
	delete(m.schedules, port)
	m.mu.Unlock()
	if !running {
		return false
	}
	ac.halt()
	return true
}

func (ac *autoCapture) halt() {
	ac.stopOnce.Do(func() { close(ac.stop) })
	select {
	case <-ac.stopped:
	case <-time.After(3 * time.Second):
		log.Warn().Str("port", ac.port).Msg("auto-capture loop did not stop in time")
	}
}

func (m *Manager) runAutoCapture(ac *autoCapture) {
	defer close(ac.stopped)

	ticker := time.NewTicker(ac.interval)
	defer ticker.Stop()

	fired := 0
	for {
		select {
		case <-ac.stop:
			log.Debug().Str("port", ac.port).Int("fired", fired).Msg("auto-capture stopped")
			return
		case <-ticker.C:
			if !m.IsActive(ac.port) {
				log.Info().Str("port", ac.port).Msg("auto-capture ending: session stopped")
				m.removeSchedule(ac)
				return
			}
			if err := gphoto.TriggerCapture(context.Background(), m.runner, ac.port); err != nil {
				log.Error().Err(err).Str("port", ac.port).Msg("auto-capture trigger failed")
				m.bus.Publish(EventError, ac.port, map[string]string{"message": err.Error()})
			}
			fired++
			if ac.remaining > 0 && fired >= ac.remaining {
				log.Info().Str("port", ac.port).Int("fired", fired).Msg("auto-capture complete")
				m.removeSchedule(ac)
				return
			}
		}
	}
}

// removeSchedule unregisters a self-terminating schedule so a later
// StartAutoCapture is accepted.
func (m *Manager) removeSchedule(ac *autoCapture) {
	m.mu.Lock()
	if current, ok := m.schedules[ac.port]; ok && current == ac {
		delete(m.schedules, ac.port)
	}
	m.mu.Unlock()
}
