// Package registry manages connector class registration and instantiation.
//
// Registering a ConnectorClass produces a ref-counted Instance. Multiple
// instances of the same class may coexist; they are keyed by instance
// identity, not by class identity, so a plugin can be tentatively
// registered during discovery without colliding with an earlier
// registration of the same class.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/logger"
	"github.com/ajitpratap0/stratum/pkg/metrics"
	"go.uber.org/zap"
)

// Instance is one registered connector. It owns a private copy of the
// identifying class fields and a reference count; the count reaches zero
// when the final Unref runs, which triggers the class's Terminate hook.
type Instance struct {
	class *core.ConnectorClass
	refs  atomic.Int64
	id    uint64
	owner *Registry
}

// Class returns the connector class descriptor
func (i *Instance) Class() *core.ConnectorClass {
	return i.class
}

// Name returns the connector name
func (i *Instance) Name() string {
	return i.class.Name
}

// Value returns the connector's numeric identity
func (i *Instance) Value() int {
	return i.class.Value
}

// ID returns the instance identity assigned at registration
func (i *Instance) ID() uint64 {
	return i.id
}

// Refs returns the current reference count
func (i *Instance) Refs() int64 {
	return i.refs.Load()
}

// Ref acquires one reference to the instance
func (i *Instance) Ref() {
	i.refs.Add(1)
}

// Unref releases one reference. When the count reaches zero the class's
// Terminate hook runs; a terminate failure is surfaced but does not stop
// resource reclamation.
func (i *Instance) Unref() error {
	n := i.refs.Add(-1)
	if n > 0 {
		return nil
	}
	if n < 0 {
		panic(fmt.Sprintf("connector instance %q: reference count underflow", i.class.Name))
	}

	var terr error
	if i.class.Terminate != nil {
		if err := i.class.Terminate(); err != nil {
			terr = errors.Wrapf(err, errors.ErrorTypeRegistry, "connector %s terminate failed", i.class.Name)
		}
	}

	if i.owner != nil {
		i.owner.remove(i)
	}
	if terr != nil {
		return terr
	}
	return nil
}

// DiscoveryKey selects how a class is matched during plugin discovery
type DiscoveryKey struct {
	ByName bool
	Name   string
	Value  int
}

// KeyByName returns a discovery key matching on connector name
func KeyByName(name string) DiscoveryKey {
	return DiscoveryKey{ByName: true, Name: name}
}

// KeyByValue returns a discovery key matching on numeric value
func KeyByValue(value int) DiscoveryKey {
	return DiscoveryKey{Value: value}
}

// Registry manages connector registration and lookup
type Registry struct {
	mu        sync.RWMutex
	instances []*Instance
	nextID    uint64
	logger    *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		logger: logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// Register validates the class, runs its Initialize hook and produces a new
// Instance holding one reference. Duplicate names or values are allowed on
// purpose: discovery registers candidates tentatively and unregisters the
// losers, so instances are keyed by identity.
func (r *Registry) Register(class *core.ConnectorClass, initInfo interface{}) (*Instance, error) {
	if class == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "connector class is nil")
	}
	if class.Name == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "connector class has no name")
	}
	if class.Version != core.ClassVersion {
		return nil, errors.Newf(errors.ErrorTypeRegistry,
			"connector %s has descriptor version %d, expected %d", class.Name, class.Version, core.ClassVersion)
	}

	// Private copy of the descriptor; the registry owns the identifying
	// fields, the callback tables stay shared.
	owned := *class

	inst := &Instance{class: &owned, owner: r}
	inst.refs.Store(1)

	if owned.Initialize != nil {
		if err := owned.Initialize(context.Background(), initInfo); err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeRegistry, "cannot initialize connector %s", owned.Name)
		}
	}

	r.mu.Lock()
	r.nextID++
	inst.id = r.nextID
	r.instances = append(r.instances, inst)
	r.mu.Unlock()

	metrics.RegisteredConnectors.Inc()
	r.logger.Info("connector registered",
		zap.String("name", owned.Name),
		zap.Int("value", owned.Value),
		zap.Uint64("instance", inst.id))
	return inst, nil
}

// Unregister releases the registration reference of an instance. Terminate
// failure is reported but the instance is removed regardless.
func (r *Registry) Unregister(inst *Instance) error {
	if inst == nil {
		return errors.New(errors.ErrorTypeValidation, "connector instance is nil")
	}
	return inst.Unref()
}

// remove drops an instance whose reference count reached zero
func (r *Registry) remove(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for n, candidate := range r.instances {
		if candidate == inst {
			r.instances = append(r.instances[:n], r.instances[n+1:]...)
			metrics.RegisteredConnectors.Dec()
			return
		}
	}
}

// Match reports whether a class satisfies a discovery key. A name or value
// match with an incompatible descriptor version is not an error, it is
// simply no match, so discovery keeps scanning other candidates.
func (r *Registry) Match(class *core.ConnectorClass, key DiscoveryKey) bool {
	if class == nil {
		return false
	}
	if class.Version != core.ClassVersion {
		return false
	}
	if key.ByName {
		return class.Name == key.Name
	}
	return class.Value == key.Value
}

// LookupByName returns the most recently registered instance with the
// given name, or nil
func (r *Registry) LookupByName(name string) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for n := len(r.instances) - 1; n >= 0; n-- {
		if r.instances[n].class.Name == name {
			return r.instances[n]
		}
	}
	return nil
}

// LookupByValue returns the most recently registered instance with the
// given numeric value, or nil
func (r *Registry) LookupByValue(value int) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for n := len(r.instances) - 1; n >= 0; n-- {
		if r.instances[n].class.Value == value {
			return r.instances[n]
		}
	}
	return nil
}

// IsRegistered reports whether any instance with the given name exists
func (r *Registry) IsRegistered(name string) bool {
	return r.LookupByName(name) != nil
}

// List returns the registered instances in registration order
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Instance, len(r.instances))
	copy(out, r.instances)
	return out
}

// Clear removes all registered instances without running terminate hooks
// (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	metrics.RegisteredConnectors.Sub(float64(len(r.instances)))
	r.instances = nil
}

// Global registry functions

// Register registers a connector class in the global registry
func Register(class *core.ConnectorClass, initInfo interface{}) (*Instance, error) {
	return globalRegistry.Register(class, initInfo)
}

// Unregister releases an instance from the global registry
func Unregister(inst *Instance) error {
	return globalRegistry.Unregister(inst)
}

// Match checks a class against a discovery key using the global registry
func Match(class *core.ConnectorClass, key DiscoveryKey) bool {
	return globalRegistry.Match(class, key)
}

// LookupByName finds an instance by name in the global registry
func LookupByName(name string) *Instance {
	return globalRegistry.LookupByName(name)
}

// LookupByValue finds an instance by value in the global registry
func LookupByValue(value int) *Instance {
	return globalRegistry.LookupByValue(value)
}

// IsRegistered checks the global registry for a name
func IsRegistered(name string) bool {
	return globalRegistry.IsRegistered(name)
}

// List returns the global registry's instances
func List() []*Instance {
	return globalRegistry.List()
}

// GetRegistry returns the global registry instance.
// This is the primary way to access the connector registry.
func GetRegistry() *Registry {
	return globalRegistry
}
