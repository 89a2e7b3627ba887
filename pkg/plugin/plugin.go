// Package plugin implements connector discovery.
//
// Providers register themselves at init time, the way database/sql drivers
// do; Iterate then walks them in registration order. There is no portable
// way to scan shared objects off a search path in Go, so the search-path
// concept maps onto the provider registry, optionally seeded from a
// manifest file.
package plugin

import (
	"sync"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/logger"
	"go.uber.org/zap"
)

// Action tells Iterate whether to keep scanning
type Action int

const (
	// Continue moves on to the next candidate
	Continue Action = iota
	// Stop ends the scan; the current candidate was chosen
	Stop
)

// ProviderFunc produces a candidate connector class descriptor
type ProviderFunc func() *core.ConnectorClass

type provider struct {
	name string
	fn   ProviderFunc
}

var (
	mu        sync.RWMutex
	providers []provider
)

// Register adds a discoverable connector provider. Typically called from a
// connector package's init function; the caller blank-imports the package
// to make it discoverable.
func Register(name string, fn ProviderFunc) {
	if fn == nil {
		panic("plugin: nil provider func")
	}

	mu.Lock()
	defer mu.Unlock()
	providers = append(providers, provider{name: name, fn: fn})
	logger.Get().Debug("connector plugin registered", zap.String("name", name))
}

// Reset removes all providers (mainly for testing)
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	providers = nil
}

// Names returns the registered provider names in order
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, len(providers))
	for n, p := range providers {
		out[n] = p.name
	}
	return out
}

// Iterate visits each candidate class in registration order. The callback
// decides per candidate whether to continue or stop; a callback error
// aborts the scan and is propagated.
func Iterate(fn func(class *core.ConnectorClass) (Action, error)) error {
	mu.RLock()
	snapshot := make([]provider, len(providers))
	copy(snapshot, providers)
	mu.RUnlock()

	for _, p := range snapshot {
		class := p.fn()
		if class == nil {
			return errors.Newf(errors.ErrorTypePlugin, "provider %s produced no class", p.name)
		}

		action, err := fn(class)
		if err != nil {
			return errors.Wrapf(err, errors.ErrorTypePlugin, "plugin iteration failed at %s", p.name)
		}
		if action == Stop {
			return nil
		}
	}
	return nil
}
