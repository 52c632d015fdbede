package gphoto

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ScriptRunner replays a fixed sequence of results and records every request
// it receives. When the script runs out, the last result repeats. It backs
// the unit tests and any consumer that wants fully deterministic behavior.
type ScriptRunner struct {
	mu      sync.Mutex
	script  []Result
	calls   []Request
	OnRun   func(req Request) // optional observation hook
	nextIdx int
}

// NewScriptRunner builds a runner that returns the given results in order.
func NewScriptRunner(script ...Result) *ScriptRunner {
	return &ScriptRunner{script: script}
}

// Run records the request and returns the next scripted result.
func (s *ScriptRunner) Run(_ context.Context, req Request) Result {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	idx := s.nextIdx
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	} else {
		s.nextIdx++
	}
	hook := s.OnRun
	var res Result
	if idx >= 0 {
		res = s.script[idx]
	}
	s.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	return res
}

// Calls returns a copy of every request seen so far.
func (s *ScriptRunner) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many requests have been run.
func (s *ScriptRunner) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// SimRunner simulates a single attached camera without touching gphoto2: the
// file listing grows when a capture command fires, get-file writes a small
// placeholder payload, and config commands answer from an in-memory table.
// It lets the session and manager code run end to end with no hardware
// (`tethercam run --mock`).
type SimRunner struct {
	Model string
	Port  string

	mu       sync.Mutex
	files    []string
	folder   string
	nextShot int
	config   map[string]string
}

// NewSimRunner creates a simulated camera answering on port.
func NewSimRunner(model, port string) *SimRunner {
	return &SimRunner{
		Model:    model,
		Port:     port,
		folder:   "/store_00010001/DCIM/100SIM",
		nextShot: 1,
		config: map[string]string{
			"/main/imgsettings/iso":              "200",
			"/main/capturesettings/aperture":     "f/4",
			"/main/capturesettings/shutterspeed": "1/125",
		},
	}
}

// AddFile places a file on the simulated camera storage, as if the shutter
// had been pressed by hand.
func (s *SimRunner) AddFile(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.folder + "/" + name
	s.files = append(s.files, path)
	return path
}

// Run answers the subset of gphoto2 verbs the agent uses.
func (s *SimRunner) Run(_ context.Context, req Request) Result {
	if req.Port != "" && req.Port != s.Port {
		return Result{ExitCode: 1, Stderr: "*** Error: Unknown port 'usb:' ***"}
	}
	verb := ""
	if len(req.Args) > 0 {
		verb = req.Args[0]
	}
	switch verb {
	case "--auto-detect":
		return Result{Succeeded: true, Stdout: s.detectTable()}
	case "--list-files":
		return Result{Succeeded: true, Stdout: s.listing()}
	case "--capture-image", "--capture-image-and-download":
		s.mu.Lock()
		name := fmt.Sprintf("IMG_%04d.JPG", s.nextShot)
		s.nextShot++
		path := s.folder + "/" + name
		s.files = append(s.files, path)
		s.mu.Unlock()
		if verb == "--capture-image-and-download" {
			if dest := flagValue(req.Args, "--filename"); dest != "" {
				if err := os.WriteFile(dest, []byte("simulated frame "+name), 0o644); err != nil {
					return Result{ExitCode: 1, Stderr: err.Error()}
				}
				return Result{Succeeded: true, Stdout: "Saving file as " + dest}
			}
		}
		return Result{Succeeded: true, Stdout: "New file is in location " + path + " on the camera"}
	case "--get-file":
		if len(req.Args) < 2 {
			return Result{ExitCode: 1, Stderr: "get-file: missing path"}
		}
		remote := req.Args[1]
		dest := flagValue(req.Args, "--filename")
		if dest == "" {
			return Result{ExitCode: 1, Stderr: "get-file: missing --filename"}
		}
		if !s.hasFile(remote) {
			return Result{ExitCode: 1, Stderr: "*** Error: Could not find the requested device ***"}
		}
		if err := os.WriteFile(dest, []byte("simulated frame "+remote), 0o644); err != nil {
			return Result{ExitCode: 1, Stderr: err.Error()}
		}
		return Result{Succeeded: true, Stdout: "Saving file as " + dest}
	case "--list-config":
		s.mu.Lock()
		keys := make([]string, 0, len(s.config))
		for key := range s.config {
			keys = append(keys, key)
		}
		s.mu.Unlock()
		return Result{Succeeded: true, Stdout: strings.Join(keys, "\n")}
	case "--get-config":
		if len(req.Args) < 2 {
			return Result{ExitCode: 1, Stderr: "get-config: missing key"}
		}
		s.mu.Lock()
		value, ok := s.config[req.Args[1]]
		s.mu.Unlock()
		if !ok {
			return Result{ExitCode: 1, Stderr: "*** Error: config key not found ***"}
		}
		return Result{Succeeded: true, Stdout: "Label: " + req.Args[1] + "\nCurrent: " + value}
	case "--set-config":
		if len(req.Args) < 2 || !strings.Contains(req.Args[1], "=") {
			return Result{ExitCode: 1, Stderr: "set-config: expected key=value"}
		}
		kv := strings.SplitN(req.Args[1], "=", 2)
		s.mu.Lock()
		if _, ok := s.config[kv[0]]; !ok {
			s.mu.Unlock()
			return Result{ExitCode: 1, Stderr: "*** Error: config key not found ***"}
		}
		s.config[kv[0]] = kv[1]
		s.mu.Unlock()
		return Result{Succeeded: true}
	default:
		return Result{ExitCode: 1, Stderr: "unsupported verb: " + verb}
	}
}

func (s *SimRunner) detectTable() string {
	return "Model                          Port\n" +
		"----------------------------------------------------------\n" +
		fmt.Sprintf("%-30s %s\n", s.Model, s.Port)
}

func (s *SimRunner) listing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "There are %d files in folder '%s'.\n", len(s.files), s.folder)
	for i, path := range s.files {
		name := path
		if idx := strings.LastIndex(path, "/"); idx != -1 {
			name = path[idx+1:]
		}
		fmt.Fprintf(&b, "#%-4d %s rd 2048 KB image/jpeg\n", i+1, name)
	}
	return b.String()
}

func (s *SimRunner) hasFile(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f == path {
			return true
		}
	}
	return false
}

func flagValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
