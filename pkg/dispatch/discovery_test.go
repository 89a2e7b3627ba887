package dispatch

import (
	"context"
	"testing"

	"github.com/ajitpratap0/stratum/pkg/config"
	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/connector/registry"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingOpenClass always fails its open; the shape of the process-default
// connector in the discovery scenarios
func failingOpenClass(name string) *core.ConnectorClass {
	cls := minimalClass(name)
	cls.File = &core.FileTable{
		Open: func(ctx context.Context, fname string, flags core.FileFlags, info interface{}, ts *core.TokenSlot) (interface{}, error) {
			return nil, errors.Newf(errors.ErrorTypeBackend, "cannot read %s", fname)
		},
	}
	return cls
}

// probeClass answers accessibility probes with a fixed verdict and counts
// how often it was asked
func probeClass(name string, accessible bool, probes *int, root interface{}) *core.ConnectorClass {
	cls := minimalClass(name)
	cls.File = &core.FileTable{
		Specific: func(ctx context.Context, obj interface{}, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
			if args.Op != core.OpFileIsAccessible {
				return 0, errors.Newf(errors.ErrorTypeUnsupported, "unknown file operation %s", args.Op)
			}
			*probes++
			*(args.Out.(*bool)) = accessible
			return 0, nil
		},
		Open: func(ctx context.Context, fname string, flags core.FileFlags, info interface{}, ts *core.TokenSlot) (interface{}, error) {
			return root, nil
		},
		Close: func(ctx context.Context, file interface{}, ts *core.TokenSlot) error {
			return nil
		},
	}
	return cls
}

func TestDiscoveryPicksFirstAccessibleConnector(t *testing.T) {
	plugin.Reset()
	defer plugin.Reset()
	config.SetDefaultConnector("primary")
	defer config.SetDefaultConnector("")

	primaryInst, err := registry.Register(failingOpenClass("primary"), nil)
	require.NoError(t, err)
	defer func() { _ = registry.Unregister(primaryInst) }()

	var aProbes, bProbes, cProbes int
	root := &fakeRoot{name: "discovered"}
	plugin.Register("cand-a", func() *core.ConnectorClass { return probeClass("cand-a", false, &aProbes, nil) })
	plugin.Register("cand-b", func() *core.ConnectorClass { return probeClass("cand-b", true, &bProbes, root) })
	plugin.Register("cand-c", func() *core.ConnectorClass { return probeClass("cand-c", true, &cProbes, nil) })

	errors.ClearStack()
	acfg := config.NewAccessConfig()
	file, err := FileOpen(context.Background(), "some.dat", core.FlagReadOnly, acfg, nil)
	require.NoError(t, err)

	assert.Equal(t, "cand-b", file.Container().ConnectorName())
	assert.Same(t, root, file.Container().Root())

	// the losing candidate was probed and unregistered; the scan stopped
	// before the third candidate
	assert.Equal(t, 1, aProbes)
	assert.Equal(t, 1, bProbes)
	assert.Equal(t, 0, cProbes)
	assert.False(t, registry.IsRegistered("cand-a"))
	assert.False(t, registry.IsRegistered("cand-c"))

	// the failed first attempt is not left on the error stack
	assert.True(t, errors.DefaultStack().Empty())

	// the winner lives exactly as long as the container
	assert.True(t, registry.IsRegistered("cand-b"))
	require.NoError(t, FileClose(context.Background(), file, nil))
	assert.False(t, registry.IsRegistered("cand-b"))

	require.NoError(t, acfg.Free())
}

func TestDiscoveryReportsOriginalErrorWhenNothingMatches(t *testing.T) {
	plugin.Reset()
	defer plugin.Reset()
	config.SetDefaultConnector("primary")
	defer config.SetDefaultConnector("")

	primaryInst, err := registry.Register(failingOpenClass("primary"), nil)
	require.NoError(t, err)
	defer func() { _ = registry.Unregister(primaryInst) }()

	var probes int
	plugin.Register("cand", func() *core.ConnectorClass { return probeClass("cand", false, &probes, nil) })

	acfg := config.NewAccessConfig()
	_, err = FileOpen(context.Background(), "some.dat", core.FlagReadOnly, acfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read some.dat")
	assert.Equal(t, 1, probes)
	assert.False(t, registry.IsRegistered("cand"))

	errors.ClearStack()
	require.NoError(t, acfg.Free())
}

func TestDiscoverySkippedForExplicitConnector(t *testing.T) {
	plugin.Reset()
	defer plugin.Reset()
	config.SetDefaultConnector("native")
	defer config.SetDefaultConnector("")

	inst, err := registry.Register(failingOpenClass("chosen"), nil)
	require.NoError(t, err)
	defer func() { _ = registry.Unregister(inst) }()

	var probes int
	plugin.Register("cand", func() *core.ConnectorClass { return probeClass("cand", true, &probes, &fakeRoot{}) })

	acfg := config.NewAccessConfig()
	acfg.Connector = "chosen"
	_, err = FileOpen(context.Background(), "some.dat", core.FlagReadOnly, acfg, nil)
	require.Error(t, err)
	assert.Equal(t, 0, probes, "an explicit connector choice must not trigger discovery")

	errors.ClearStack()
	require.NoError(t, acfg.Free())
}

func TestDiscoverySkipsIncompatibleDescriptorVersion(t *testing.T) {
	plugin.Reset()
	defer plugin.Reset()
	config.SetDefaultConnector("primary")
	defer config.SetDefaultConnector("")

	primaryInst, err := registry.Register(failingOpenClass("primary"), nil)
	require.NoError(t, err)
	defer func() { _ = registry.Unregister(primaryInst) }()

	var oldProbes, newProbes int
	root := &fakeRoot{}
	plugin.Register("old", func() *core.ConnectorClass {
		cls := probeClass("old", true, &oldProbes, root)
		cls.Version = core.ClassVersion + 1
		return cls
	})
	plugin.Register("new", func() *core.ConnectorClass { return probeClass("new", true, &newProbes, root) })

	acfg := config.NewAccessConfig()
	file, err := FileOpen(context.Background(), "some.dat", core.FlagReadOnly, acfg, nil)
	require.NoError(t, err)
	defer func() { _ = FileClose(context.Background(), file, nil) }()

	assert.Equal(t, 0, oldProbes, "a version-mismatched candidate is never probed")
	assert.Equal(t, 1, newProbes)
	assert.Equal(t, "new", file.Container().ConnectorName())

	require.NoError(t, acfg.Free())
}
