package registry

import (
	"context"
	"testing"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClass(name string, value int) *core.ConnectorClass {
	return &core.ConnectorClass{Name: name, Value: value, Version: core.ClassVersion}
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	inst, err := r.Register(testClass("alpha", 100), nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha", inst.Name())
	assert.Equal(t, 100, inst.Value())
	assert.Equal(t, int64(1), inst.Refs())

	assert.Same(t, inst, r.LookupByName("alpha"))
	assert.Same(t, inst, r.LookupByValue(100))
	assert.True(t, r.IsRegistered("alpha"))
	assert.Nil(t, r.LookupByName("missing"))
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(nil, nil)
	require.Error(t, err)

	_, err = r.Register(&core.ConnectorClass{Version: core.ClassVersion}, nil)
	require.Error(t, err)

	_, err = r.Register(&core.ConnectorClass{Name: "v2", Version: core.ClassVersion + 1}, nil)
	require.Error(t, err)
}

func TestRegisterCopiesDescriptor(t *testing.T) {
	r := NewRegistry()
	cls := testClass("alpha", 100)

	inst, err := r.Register(cls, nil)
	require.NoError(t, err)

	// mutating the caller's descriptor after registration has no effect
	cls.Name = "mutated"
	assert.Equal(t, "alpha", inst.Name())
}

func TestInitializeHookRuns(t *testing.T) {
	r := NewRegistry()
	cls := testClass("alpha", 100)

	var gotInfo interface{}
	cls.Initialize = func(ctx context.Context, initInfo interface{}) error {
		gotInfo = initInfo
		return nil
	}

	_, err := r.Register(cls, "init-blob")
	require.NoError(t, err)
	assert.Equal(t, "init-blob", gotInfo)
}

func TestDuplicateRegistrationsCoexist(t *testing.T) {
	r := NewRegistry()

	first, err := r.Register(testClass("alpha", 100), nil)
	require.NoError(t, err)
	second, err := r.Register(testClass("alpha", 100), nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID())
	// latest registration wins lookups
	assert.Same(t, second, r.LookupByName("alpha"))

	require.NoError(t, r.Unregister(second))
	assert.Same(t, first, r.LookupByName("alpha"))
}

func TestTerminateRunsOnceAtZeroRefs(t *testing.T) {
	r := NewRegistry()
	cls := testClass("alpha", 100)
	terminated := 0
	cls.Terminate = func() error {
		terminated++
		return nil
	}

	inst, err := r.Register(cls, nil)
	require.NoError(t, err)

	inst.Ref()
	inst.Ref()
	require.NoError(t, inst.Unref())
	require.NoError(t, inst.Unref())
	assert.Equal(t, 0, terminated)
	assert.True(t, r.IsRegistered("alpha"))

	require.NoError(t, inst.Unref())
	assert.Equal(t, 1, terminated)
	assert.False(t, r.IsRegistered("alpha"))
}

func TestUnrefUnderflowPanics(t *testing.T) {
	r := NewRegistry()
	inst, err := r.Register(testClass("alpha", 100), nil)
	require.NoError(t, err)

	require.NoError(t, inst.Unref())
	assert.Panics(t, func() { _ = inst.Unref() })
}

func TestMatchGatesOnVersion(t *testing.T) {
	r := NewRegistry()

	current := testClass("alpha", 100)
	assert.True(t, r.Match(current, KeyByName("alpha")))
	assert.True(t, r.Match(current, KeyByValue(100)))
	assert.False(t, r.Match(current, KeyByName("beta")))
	assert.False(t, r.Match(current, KeyByValue(101)))

	stale := testClass("alpha", 100)
	stale.Version = core.ClassVersion + 1
	assert.False(t, r.Match(stale, KeyByName("alpha")), "version mismatch is no match, not an error")
	assert.False(t, r.Match(nil, KeyByName("alpha")))
}

func TestPropertyLifetime(t *testing.T) {
	r := NewRegistry()
	cls := testClass("alpha", 100)
	terminated := 0
	cls.Terminate = func() error {
		terminated++
		return nil
	}

	inst, err := r.Register(cls, nil)
	require.NoError(t, err)

	prop, err := NewProperty(inst, "info")
	require.NoError(t, err)
	assert.Equal(t, int64(2), inst.Refs())

	clone, err := prop.Copy()
	require.NoError(t, err)
	assert.Equal(t, int64(3), inst.Refs())
	assert.Equal(t, "info", clone.Info)

	require.NoError(t, clone.Free())
	require.NoError(t, prop.Free())
	assert.Equal(t, 0, terminated)

	require.NoError(t, r.Unregister(inst))
	assert.Equal(t, 1, terminated)
}

func TestPropertyCopyUsesInfoCallback(t *testing.T) {
	r := NewRegistry()
	cls := testClass("alpha", 100)
	cls.Info = &core.InfoTable{
		Copy: func(info interface{}) (interface{}, error) {
			return info.(string) + "-copy", nil
		},
	}

	inst, err := r.Register(cls, nil)
	require.NoError(t, err)

	prop, err := NewProperty(inst, "blob")
	require.NoError(t, err)
	clone, err := prop.Copy()
	require.NoError(t, err)
	assert.Equal(t, "blob-copy", clone.Info)

	require.NoError(t, clone.Free())
	require.NoError(t, prop.Free())
	require.NoError(t, r.Unregister(inst))
}

func TestConnectorGaugeTracksLifecycle(t *testing.T) {
	r := NewRegistry()
	base := testutil.ToFloat64(metrics.RegisteredConnectors)

	inst, err := r.Register(testClass("alpha", 100), nil)
	require.NoError(t, err)
	assert.Equal(t, base+1, testutil.ToFloat64(metrics.RegisteredConnectors))

	// extra references keep the instance, and the gauge, alive
	inst.Ref()
	require.NoError(t, r.Unregister(inst))
	assert.Equal(t, base+1, testutil.ToFloat64(metrics.RegisteredConnectors))

	require.NoError(t, inst.Unref())
	assert.Equal(t, base, testutil.ToFloat64(metrics.RegisteredConnectors))
}

func TestListAndClear(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(testClass("a", 1), nil)
	require.NoError(t, err)
	_, err = r.Register(testClass("b", 2), nil)
	require.NoError(t, err)

	assert.Len(t, r.List(), 2)
	r.Clear()
	assert.Empty(t, r.List())
}
