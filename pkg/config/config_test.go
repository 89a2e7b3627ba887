package config

import (
	"testing"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/connector/registry"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConnectorPrecedence(t *testing.T) {
	t.Setenv(EnvConnector, "")
	SetDefaultConnector("")
	assert.Equal(t, "native", DefaultConnectorName())

	t.Setenv(EnvConnector, "from-env")
	assert.Equal(t, "from-env", DefaultConnectorName())

	SetDefaultConnector("explicit")
	defer SetDefaultConnector("")
	assert.Equal(t, "explicit", DefaultConnectorName())
}

func TestIsDefaultConnector(t *testing.T) {
	SetDefaultConnector("mem")
	defer SetDefaultConnector("")

	acfg := NewAccessConfig()
	assert.Equal(t, "mem", acfg.Connector)
	assert.True(t, acfg.IsDefaultConnector())

	acfg.Connector = "native"
	assert.False(t, acfg.IsDefaultConnector())
}

func TestValidateRequiresConnector(t *testing.T) {
	acfg := &AccessConfig{}
	err := acfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestResolveBindsProperty(t *testing.T) {
	r := registry.NewRegistry()
	inst, err := r.Register(&core.ConnectorClass{Name: "mem", Value: 1, Version: core.ClassVersion}, nil)
	require.NoError(t, err)

	acfg := &AccessConfig{Connector: "mem", Info: "blob"}
	require.NoError(t, acfg.Resolve(r))
	require.NotNil(t, acfg.Property())
	assert.Same(t, inst, acfg.Property().Instance)
	assert.Equal(t, "blob", acfg.Property().Info)
	assert.Equal(t, int64(2), inst.Refs())

	// resolving again is a no-op
	require.NoError(t, acfg.Resolve(r))
	assert.Equal(t, int64(2), inst.Refs())

	require.NoError(t, acfg.Free())
	assert.Nil(t, acfg.Property())
	assert.Equal(t, int64(1), inst.Refs())
}

func TestResolveUnknownConnector(t *testing.T) {
	acfg := &AccessConfig{Connector: "ghost"}
	err := acfg.Resolve(registry.NewRegistry())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestCopyClonesResolvedProperty(t *testing.T) {
	r := registry.NewRegistry()
	inst, err := r.Register(&core.ConnectorClass{Name: "mem", Value: 1, Version: core.ClassVersion}, nil)
	require.NoError(t, err)

	acfg := &AccessConfig{Connector: "mem"}
	require.NoError(t, acfg.Resolve(r))

	clone, err := acfg.Copy()
	require.NoError(t, err)
	require.NotNil(t, clone.Property())
	assert.NotSame(t, acfg.Property(), clone.Property())
	assert.Equal(t, int64(3), inst.Refs())

	require.NoError(t, clone.Free())
	require.NoError(t, acfg.Free())
	assert.Equal(t, int64(1), inst.Refs())
}

func TestSetPropertyRetargetsConnectorName(t *testing.T) {
	r := registry.NewRegistry()
	inst, err := r.Register(&core.ConnectorClass{Name: "other", Value: 2, Version: core.ClassVersion}, nil)
	require.NoError(t, err)

	prop, err := registry.NewProperty(inst, nil)
	require.NoError(t, err)

	acfg := &AccessConfig{Connector: "mem"}
	acfg.SetProperty(prop)
	assert.Equal(t, "other", acfg.Connector)
	require.NoError(t, acfg.Free())
}
