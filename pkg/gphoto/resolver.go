package gphoto

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultAliases maps generic setting names to the concrete config key names
// cameras are known to use, in priority order.
var DefaultAliases = map[string][]string{
	"iso":          {"iso", "iso speed", "iso sensitivity", "isonumber"},
	"aperture":     {"aperture", "f-number", "fnumber"},
	"shutterspeed": {"shutterspeed", "shutter speed", "exptime", "exposure time"},
}

// Resolver maps generic setting names ("iso") to the device-specific config
// key ("/main/imgsettings/iso"), listing the camera's configuration once per
// port and caching successful resolutions until Forget is called.
type Resolver struct {
	runner  Runner
	aliases map[string][]string

	mu    sync.Mutex
	cache map[string]map[string]string // port -> generic name -> config key
}

// NewResolver builds a resolver over runner. aliases may be nil to use
// DefaultAliases; entries present in aliases override the default table per
// generic name.
func NewResolver(runner Runner, aliases map[string][]string) *Resolver {
	merged := make(map[string][]string, len(DefaultAliases))
	for name, list := range DefaultAliases {
		merged[name] = list
	}
	for name, list := range aliases {
		merged[strings.ToLower(name)] = list
	}
	return &Resolver{
		runner:  runner,
		aliases: merged,
		cache:   make(map[string]map[string]string),
	}
}

// Resolve returns the concrete config key for genericName on the camera at
// port. Matching is exact and case-insensitive: each alias is first tried
// against the last path segment of every key, then against the full key.
// Failures are not retried here; callers surface them.
func (r *Resolver) Resolve(ctx context.Context, port, genericName string) (string, error) {
	generic := strings.ToLower(strings.TrimSpace(genericName))
	if port == "" || generic == "" {
		return "", errors.New("resolver: port and setting name are required")
	}

	r.mu.Lock()
	if key, ok := r.cache[port][generic]; ok {
		r.mu.Unlock()
		return key, nil
	}
	r.mu.Unlock()

	aliases, ok := r.aliases[generic]
	if !ok {
		return "", errors.Errorf("resolver: no known aliases for setting %q", genericName)
	}

	keys, err := r.listConfigKeys(ctx, port)
	if err != nil {
		return "", err
	}

	key := matchConfigKey(aliases, keys)
	if key == "" {
		return "", errors.Errorf("resolver: no config key for setting %q on %s (tried %v)", genericName, port, aliases)
	}

	r.mu.Lock()
	if r.cache[port] == nil {
		r.cache[port] = make(map[string]string)
	}
	r.cache[port][generic] = key
	r.mu.Unlock()

	log.Debug().Str("port", port).Str("setting", generic).Str("key", key).Msg("resolved config key")
	return key, nil
}

// Forget drops all cached resolutions for port. A reconnect may expose
// different keys, so sessions call this when they stop.
func (r *Resolver) Forget(port string) {
	r.mu.Lock()
	delete(r.cache, port)
	r.mu.Unlock()
}

func (r *Resolver) listConfigKeys(ctx context.Context, port string) ([]string, error) {
	res := r.runner.Run(ctx, Request{
		Args:    []string{"--list-config"},
		Port:    port,
		Retries: 1,
	})
	if !res.Succeeded {
		return nil, errors.Errorf("list-config failed (%s): %s", Classify(res.ExitCode, res.Stderr), res.Stderr)
	}
	var keys []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "/") {
			keys = append(keys, trimmed)
		}
	}
	return keys, nil
}

// matchConfigKey runs the two matching passes: every alias against last path
// segments first, then every alias against full key names. The first alias
// with a matching key wins.
func matchConfigKey(aliases, keys []string) string {
	for _, alias := range aliases {
		lower := strings.ToLower(alias)
		for _, key := range keys {
			segment := key
			if idx := strings.LastIndex(key, "/"); idx != -1 {
				segment = key[idx+1:]
			}
			if strings.ToLower(segment) == lower {
				return key
			}
		}
	}
	for _, alias := range aliases {
		lower := strings.ToLower(alias)
		for _, key := range keys {
			if strings.ToLower(key) == lower {
				return key
			}
		}
	}
	return ""
}
