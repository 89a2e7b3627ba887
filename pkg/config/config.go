// Package config provides the configuration objects the dispatch layer
// carries through calls.
//
// An AccessConfig is the access-configuration object a caller supplies when
// creating or opening a container: it names the connector, carries the
// connector-specific info blob, and, once resolved against a registry,
// holds the connector property (instance + info) used for every dispatch
// on that container.
//
// A TransferConfig travels with individual data operations and carries the
// per-call flags, most notably the wrapped-parameter mode used by nested
// dispatch calls.
package config

import (
	"os"
	"sync"

	"github.com/ajitpratap0/stratum/pkg/connector/registry"
	"github.com/ajitpratap0/stratum/pkg/errors"
)

// EnvConnector overrides the process-default connector name
const EnvConnector = "STRATUM_CONNECTOR"

// builtinDefault is the connector assumed when nothing else is configured
const builtinDefault = "native"

var (
	defaultMu        sync.RWMutex
	defaultConnector string
)

// DefaultConnectorName returns the process-default connector name. The
// precedence is SetDefaultConnector, then the environment, then "native".
func DefaultConnectorName() string {
	defaultMu.RLock()
	name := defaultConnector
	defaultMu.RUnlock()
	if name != "" {
		return name
	}
	if env := os.Getenv(EnvConnector); env != "" {
		return env
	}
	return builtinDefault
}

// SetDefaultConnector overrides the process-default connector name.
// An empty name restores the environment/builtin default.
func SetDefaultConnector(name string) {
	defaultMu.Lock()
	defaultConnector = name
	defaultMu.Unlock()
}

// AccessConfig configures access to a container
type AccessConfig struct {
	// Connector names the connector to open the container with
	Connector string `mapstructure:"connector" yaml:"connector" json:"connector"`

	// Info is the connector-specific configuration blob
	Info interface{} `mapstructure:"info" yaml:"info" json:"info"`

	// resolved connector property, owned by this config
	property *registry.Property
}

// NewAccessConfig creates an access configuration targeting the
// process-default connector
func NewAccessConfig() *AccessConfig {
	return &AccessConfig{Connector: DefaultConnectorName()}
}

// Validate validates the configuration for correctness
func (ac *AccessConfig) Validate() error {
	if ac.Connector == "" {
		return errors.New(errors.ErrorTypeConfig, "connector name is required")
	}
	return nil
}

// IsDefaultConnector reports whether this config targets the
// process-default connector. Fallback discovery only second-guesses the
// default; an explicit choice is never substituted.
func (ac *AccessConfig) IsDefaultConnector() bool {
	return ac.Connector == DefaultConnectorName()
}

// Resolve binds the configuration to a registered connector instance,
// acquiring the property that every dispatch on the container will use
func (ac *AccessConfig) Resolve(r *registry.Registry) error {
	if err := ac.Validate(); err != nil {
		return err
	}
	if ac.property != nil {
		return nil
	}

	inst := r.LookupByName(ac.Connector)
	if inst == nil {
		return errors.Newf(errors.ErrorTypeNotFound, "connector %s is not registered", ac.Connector)
	}

	prop, err := registry.NewProperty(inst, ac.Info)
	if err != nil {
		return err
	}
	ac.property = prop
	return nil
}

// Property returns the resolved connector property, or nil before Resolve
func (ac *AccessConfig) Property() *registry.Property {
	return ac.property
}

// SetProperty replaces the resolved property; ownership transfers to the
// config. Used by fallback discovery to retarget a cloned config at a
// candidate connector.
func (ac *AccessConfig) SetProperty(p *registry.Property) {
	ac.property = p
	if p != nil {
		ac.Connector = p.Instance.Name()
	}
}

// Copy deep-copies the configuration, cloning the resolved property when
// one exists
func (ac *AccessConfig) Copy() (*AccessConfig, error) {
	clone := &AccessConfig{Connector: ac.Connector, Info: ac.Info}
	if ac.property != nil {
		prop, err := ac.property.Copy()
		if err != nil {
			return nil, err
		}
		clone.property = prop
		clone.Info = prop.Info
	}
	return clone, nil
}

// Free releases the resolved property. The config may be resolved again
// afterwards.
func (ac *AccessConfig) Free() error {
	if ac.property == nil {
		return nil
	}
	err := ac.property.Free()
	ac.property = nil
	return err
}

// TransferConfig carries per-operation flags
type TransferConfig struct {
	// WrappedParams signals that object parameters of this call are
	// dispatch-layer handles rather than raw backend pointers, and that
	// the call must run under a fresh execution context. The dispatch
	// core resets the flag before delegating downwards and restores it
	// on return so recursive calls never inherit it unintentionally.
	WrappedParams bool `mapstructure:"wrapped_params" yaml:"wrapped_params" json:"wrapped_params"`
}

// NewTransferConfig creates a transfer configuration with defaults
func NewTransferConfig() *TransferConfig {
	return &TransferConfig{}
}
