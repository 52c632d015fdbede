package gphoto

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// DetectedCamera is one row of `gphoto2 --auto-detect` output.
type DetectedCamera struct {
	Model string
	Port  string
}

// AutoDetect lists currently attached cameras.
func AutoDetect(ctx context.Context, runner Runner) ([]DetectedCamera, error) {
	res := runner.Run(ctx, Request{Args: []string{"--auto-detect"}, Retries: 2})
	if !res.Succeeded {
		return nil, errors.Errorf("auto-detect failed (%s): %s", Classify(res.ExitCode, res.Stderr), res.Stderr)
	}
	return ParseAutoDetect(res.Stdout), nil
}

// ParseAutoDetect parses the two-column Model/Port table printed by
// `gphoto2 --auto-detect`. A row is valid only when its last
// whitespace-separated token starts with "usb:"; everything before that token
// is the model name.
func ParseAutoDetect(output string) []DetectedCamera {
	lines := strings.Split(output, "\n")
	headerIdx := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Model") && strings.Contains(trimmed, "Port") {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 || headerIdx+2 > len(lines) {
		return nil
	}

	var cameras []DetectedCamera
	for _, line := range lines[headerIdx+1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "---") {
			continue
		}
		parts := strings.Fields(trimmed)
		if len(parts) < 2 {
			continue
		}
		port := parts[len(parts)-1]
		if !strings.HasPrefix(port, "usb:") {
			continue
		}
		model := strings.TrimSpace(strings.Join(parts[:len(parts)-1], " "))
		if model == "" {
			continue
		}
		cameras = append(cameras, DetectedCamera{Model: model, Port: port})
	}
	return cameras
}
