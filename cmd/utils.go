package main

import (
	"strings"

	"github.com/tethercam/tethercam/internal/env"
	"github.com/tethercam/tethercam/pkg/gphoto"
)

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// simPort is the port the simulated camera answers on under --mock.
const simPort = "usb:001,042"

// buildRunner picks the real or simulated backend. The sim camera stores
// nothing until something fires its shutter.
func buildRunner(mock bool) gphoto.Runner {
	if mock {
		return gphoto.NewSimRunner("Simulated Camera", simPort)
	}
	runner := gphoto.NewExecRunner()
	if bin := firstNonEmpty(rootGphotoBin, env.String(gphoto.EnvBinary, "")); bin != "" {
		runner.Binary = bin
	}
	return runner
}

// portSafe flattens a device port into a filename-safe fragment.
func portSafe(port string) string {
	replacer := strings.NewReplacer(":", "-", ",", "_", "/", "_")
	return replacer.Replace(port)
}
