package tethercam

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tethercam/tethercam/internal/env"
	"github.com/tethercam/tethercam/pkg/gphoto"
)

const (
	// EnvSaveDir is the base directory for downloaded captures.
	EnvSaveDir = "TETHERCAM_SAVE_DIR"
	// EnvPollInterval overrides the detection poll interval.
	EnvPollInterval = "TETHERCAM_POLL_INTERVAL"
	// EnvJoinTimeout overrides the loop join timeout on stop.
	EnvJoinTimeout = "TETHERCAM_JOIN_TIMEOUT"
	// EnvOrganizeByFormat toggles RAW/JPEG/TIFF subdirectories.
	EnvOrganizeByFormat = "TETHERCAM_ORGANIZE_BY_FORMAT"

	defaultPollInterval = time.Second
	defaultJoinTimeout  = 3 * time.Second
)

// ManagerConfig wires a Manager. Zero-value fields fall back to environment
// variables and defaults.
type ManagerConfig struct {
	Runner       gphoto.Runner
	Paths        PathResolver
	Resolver     *gphoto.Resolver
	PollInterval time.Duration
	JoinTimeout  time.Duration
}

// Manager owns at most one tethering session per device port and multiplexes
// every session's events onto a single bus. Sessions share no mutable state
// with each other; the manager map is the only cross-device structure.
type Manager struct {
	runner       gphoto.Runner
	paths        PathResolver
	resolver     *gphoto.Resolver
	bus          *Bus
	pollInterval time.Duration
	joinTimeout  time.Duration

	mu        sync.Mutex
	sessions  map[string]*deviceSession
	schedules map[string]*autoCapture
}

// NewManager builds a Manager from cfg.
func NewManager(cfg ManagerConfig) *Manager {
	runner := cfg.Runner
	if runner == nil {
		runner = gphoto.NewExecRunner()
	}
	paths := cfg.Paths
	if paths == nil {
		paths = NewDateOrganizer(
			env.String(EnvSaveDir, "captures"),
			env.Bool(EnvOrganizeByFormat, false),
		)
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = env.Duration(EnvPollInterval, defaultPollInterval)
	}
	join := cfg.JoinTimeout
	if join <= 0 {
		join = env.Duration(EnvJoinTimeout, defaultJoinTimeout)
	}
	return &Manager{
		runner:       runner,
		paths:        paths,
		resolver:     cfg.Resolver,
		bus:          NewBus(),
		pollInterval: poll,
		joinTimeout:  join,
		sessions:     make(map[string]*deviceSession),
		schedules:    make(map[string]*autoCapture),
	}
}

// Subscribe returns the multiplexed event stream and its cleanup func.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.bus.Subscribe()
}

// Start begins tethering for port. Returns false when a session for the port
// is already active; the existing session is untouched.
func (m *Manager) Start(port string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, active := m.sessions[port]; active {
		log.Warn().Str("port", port).Msg("tethering already active")
		return false
	}
	session := newDeviceSession(port, m.runner, m.paths, m.bus, m.pollInterval, m.joinTimeout)
	m.sessions[port] = session
	session.start()
	return true
}

// Stop ends tethering for port and discards all of its state: known files,
// pending queue, and the port's resolved-setting cache. A later Start
// rediscovers files already on the device. Returns false when no session is
// active for port.
func (m *Manager) Stop(port string) bool {
	m.mu.Lock()
	session, active := m.sessions[port]
	if !active {
		m.mu.Unlock()
		log.Warn().Str("port", port).Msg("tethering not active")
		return false
	}
	delete(m.sessions, port)
	schedule := m.schedules[port]
	delete(m.schedules, port)
	m.mu.Unlock()

	if schedule != nil {
		schedule.halt()
	}
	session.halt()
	if m.resolver != nil {
		m.resolver.Forget(port)
	}
	return true
}

// StopAll stops every active session. A session that fails to join cleanly
// does not keep the others from stopping.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ports := make([]string, 0, len(m.sessions))
	for port := range m.sessions {
		ports = append(ports, port)
	}
	m.mu.Unlock()
	for _, port := range ports {
		m.Stop(port)
	}
}

// IsActive reports whether a session exists for port.
func (m *Manager) IsActive(port string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, active := m.sessions[port]
	return active
}

// State returns the session state for port, StateStopped when none exists.
func (m *Manager) State(port string) State {
	m.mu.Lock()
	session, active := m.sessions[port]
	m.mu.Unlock()
	if !active {
		return StateStopped
	}
	return session.currentState()
}

// ActivePorts lists the ports with a running session.
func (m *Manager) ActivePorts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ports := make([]string, 0, len(m.sessions))
	for port := range m.sessions {
		ports = append(ports, port)
	}
	return ports
}
