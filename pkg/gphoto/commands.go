package gphoto

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// savedMarkers are the stdout phrasings gphoto2 uses when a file landed on
// disk. Exit code alone does not confirm a download.
var savedMarkers = []string{
	"saving file as",
	"downloading",
	"new file is in location",
}

// ConfirmSaved reports whether a capture or download actually produced
// localPath: either stdout carries a known "saved" phrasing, or the file
// exists and is non-empty.
func ConfirmSaved(res Result, localPath string) bool {
	if !res.Succeeded {
		return false
	}
	if containsAny(strings.ToLower(res.Stdout), savedMarkers) {
		return true
	}
	info, err := os.Stat(localPath)
	return err == nil && info.Size() > 0
}

// GetFile downloads remotePath from the camera at port into localPath.
func GetFile(ctx context.Context, runner Runner, port, remotePath, localPath string) error {
	res := runner.Run(ctx, Request{
		Args: []string{"--get-file", remotePath, "--filename", localPath, "--force-overwrite"},
		Port: port,
	})
	if !ConfirmSaved(res, localPath) {
		return errors.Errorf("get-file %s failed (%s): %s", remotePath, Classify(res.ExitCode, res.Stderr), res.Stderr)
	}
	return nil
}

// TriggerCapture fires the shutter, leaving the frame on the camera's own
// storage for the tethering loop to pick up.
func TriggerCapture(ctx context.Context, runner Runner, port string) error {
	res := runner.Run(ctx, Request{
		Args:       []string{"--capture-image"},
		Port:       port,
		Retries:    2,
		RetryDelay: time.Second,
	})
	if !res.Succeeded {
		return errors.Errorf("capture failed (%s): %s", Classify(res.ExitCode, res.Stderr), res.Stderr)
	}
	return nil
}

// CaptureAndDownload fires the shutter and downloads the frame straight to
// localPath. An incomplete file left behind by a failed attempt is removed.
func CaptureAndDownload(ctx context.Context, runner Runner, port, localPath string) error {
	res := runner.Run(ctx, Request{
		Args:       []string{"--capture-image-and-download", "--filename", localPath, "--force-overwrite"},
		Port:       port,
		Timeout:    60 * time.Second,
		Retries:    2,
		RetryDelay: time.Second,
	})
	if ConfirmSaved(res, localPath) {
		return nil
	}
	if info, err := os.Stat(localPath); err == nil && info.Size() == 0 {
		_ = os.Remove(localPath)
	}
	return errors.Errorf("capture-and-download failed (%s): %s", Classify(res.ExitCode, res.Stderr), res.Stderr)
}

// ConfigValue is the parsed output of `--get-config`.
type ConfigValue struct {
	Current string
	Choices []string
}

// GetConfig reads the current value and choice list of a concrete config key.
func GetConfig(ctx context.Context, runner Runner, port, key string) (ConfigValue, error) {
	res := runner.Run(ctx, Request{
		Args:    []string{"--get-config", key},
		Port:    port,
		Timeout: 15 * time.Second,
		Retries: 1,
	})
	if !res.Succeeded {
		return ConfigValue{}, errors.Errorf("get-config %s failed (%s): %s", key, Classify(res.ExitCode, res.Stderr), res.Stderr)
	}
	return ParseConfigValue(res.Stdout), nil
}

// SetConfig writes value to a concrete config key.
func SetConfig(ctx context.Context, runner Runner, port, key, value string) error {
	res := runner.Run(ctx, Request{
		Args:       []string{"--set-config", key + "=" + value},
		Port:       port,
		Timeout:    20 * time.Second,
		Retries:    1,
		RetryDelay: time.Second,
	})
	if !res.Succeeded {
		return errors.Errorf("set-config %s=%s failed (%s): %s", key, value, Classify(res.ExitCode, res.Stderr), res.Stderr)
	}
	return nil
}

// ParseConfigValue extracts "Current:" and "Choice: N value" lines. When the
// reported current value is a bare index into the choice list, it is mapped
// to the choice text.
func ParseConfigValue(output string) ConfigValue {
	var cv ConfigValue
	raw := ""
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, "current:"):
			raw = strings.TrimSpace(trimmed[len("current:"):])
		case strings.HasPrefix(lower, "choice:"):
			parts := strings.SplitN(trimmed, " ", 3)
			choice := ""
			if len(parts) == 3 {
				choice = strings.TrimSpace(parts[2])
			} else if len(parts) == 2 {
				if _, err := strconv.Atoi(parts[1]); err != nil {
					choice = strings.TrimSpace(parts[1])
				}
			}
			if choice != "" && !contains(cv.Choices, choice) {
				cv.Choices = append(cv.Choices, choice)
			}
		}
	}
	cv.Current = raw
	if len(cv.Choices) > 0 && raw != "" && !contains(cv.Choices, raw) {
		if idx, err := strconv.Atoi(raw); err == nil && idx >= 0 && idx < len(cv.Choices) {
			cv.Current = cv.Choices[idx]
		}
	}
	return cv
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
