package gphoto

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ListFiles returns the full remote paths of every file currently stored on
// the camera at port, in listing order.
func ListFiles(ctx context.Context, runner Runner, port string) ([]string, error) {
	res := runner.Run(ctx, Request{Args: []string{"--list-files"}, Port: port})
	if !res.Succeeded {
		return nil, errors.Errorf("list files failed (%s): %s", Classify(res.ExitCode, res.Stderr), res.Stderr)
	}
	return ParseListFiles(res.Stdout), nil
}

// ParseListFiles extracts remote file paths from `gphoto2 --list-files`
// output. The listing interleaves folder headers
// ("There are 2 files in folder '/store/DCIM'.") with numbered entries
// ("#1  IMG_0001.JPG  rd  2034 KB  image/jpeg"); each entry is joined onto
// the most recent folder.
func ParseListFiles(output string) []string {
	var files []string
	folder := "/"
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if idx := strings.Index(trimmed, "in folder '"); idx != -1 {
			rest := trimmed[idx+len("in folder '"):]
			if end := strings.Index(rest, "'"); end != -1 {
				folder = rest[:end]
			}
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		parts := strings.Fields(trimmed)
		if len(parts) < 2 {
			continue
		}
		name := parts[1]
		if strings.Contains(name, "/") {
			// Some cameras report the full path directly.
			files = append(files, name)
			continue
		}
		files = append(files, joinRemote(folder, name))
	}
	return files
}

func joinRemote(folder, name string) string {
	if folder == "" || folder == "/" {
		return "/" + name
	}
	return strings.TrimSuffix(folder, "/") + "/" + name
}
