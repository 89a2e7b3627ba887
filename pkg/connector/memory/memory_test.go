package memory

import (
	"context"
	"testing"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassDescriptor(t *testing.T) {
	cls := Class()
	assert.Equal(t, Name, cls.Name)
	assert.Equal(t, Value, cls.Value)
	assert.Equal(t, core.ClassVersion, cls.Version)
	assert.True(t, cls.Capabilities.Has(core.CapAsync))
	assert.Nil(t, cls.Token, "token ordering is left to the byte-wise fallback")
}

func TestContainerSurvivesCloseWithinProcess(t *testing.T) {
	ctx := context.Background()
	cls := Class()

	raw, err := cls.File.Create(ctx, "survives", core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)

	ds, err := cls.Dataset.Create(ctx, raw, core.Self(), "d", nil)
	require.NoError(t, err)
	require.NoError(t, cls.Dataset.Write(ctx, ds, &core.IOArgs{Buf: []byte{5, 6}}, nil))
	require.NoError(t, cls.File.Close(ctx, raw, nil))

	reopened, err := cls.File.Open(ctx, "survives", core.FlagReadOnly, nil, nil)
	require.NoError(t, err)
	ds, err = cls.Dataset.Open(ctx, reopened, core.Self(), "d", nil)
	require.NoError(t, err)

	buf := make([]byte, 2)
	require.NoError(t, cls.Dataset.Read(ctx, ds, &core.IOArgs{Buf: buf, Offset: 0}, nil))
	assert.Equal(t, []byte{5, 6}, buf)
}

func TestExclusiveCreateFails(t *testing.T) {
	ctx := context.Background()
	cls := Class()

	_, err := cls.File.Create(ctx, "excl", core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)

	_, err = cls.File.Create(ctx, "excl", core.FlagReadWrite|core.FlagExclusive, nil, nil)
	require.Error(t, err)
}

func TestOpenMissingContainer(t *testing.T) {
	cls := Class()
	_, err := cls.File.Open(context.Background(), "never-created", core.FlagReadOnly, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestIsAccessibleProbe(t *testing.T) {
	ctx := context.Background()
	cls := Class()

	_, err := cls.File.Create(ctx, "probed", core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)

	check := func(name string) bool {
		out := false
		_, err := cls.File.Specific(ctx, nil, &core.OpArgs{
			Op:  core.OpFileIsAccessible,
			In:  &core.AccessibleArgs{Name: name},
			Out: &out,
		}, nil)
		require.NoError(t, err)
		return out
	}
	assert.True(t, check("probed"))
	assert.False(t, check("unknown"))
}

func TestGroupHierarchyAndLocations(t *testing.T) {
	ctx := context.Background()
	cls := Class()

	raw, err := cls.File.Create(ctx, "tree", core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)

	outer, err := cls.Group.Create(ctx, raw, core.Self(), "outer", nil)
	require.NoError(t, err)
	_, err = cls.Group.Create(ctx, outer, core.Self(), "inner", nil)
	require.NoError(t, err)

	// open the nested group by path from the root
	inner, err := cls.Group.Open(ctx, raw, core.ByName("outer"), "inner", nil)
	require.NoError(t, err)

	var n int
	require.NoError(t, cls.Group.Get(ctx, inner, &core.OpArgs{Op: "group.nchildren", Out: &n}, nil))
	assert.Equal(t, 0, n)

	// tokens are absolute paths; opening by token works from anywhere
	ds, err := cls.Dataset.Create(ctx, inner, core.Self(), "leaf", nil)
	require.NoError(t, err)
	opened, err := cls.Dataset.Open(ctx, raw,
		&core.Location{Kind: core.LocToken, Token: core.Token("/outer/inner")}, "leaf", nil)
	require.NoError(t, err)
	assert.Same(t, ds, opened)
}

func TestDatasetWriteGrowsBuffer(t *testing.T) {
	ctx := context.Background()
	cls := Class()

	raw, err := cls.File.Create(ctx, "grow", core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)
	ds, err := cls.Dataset.Create(ctx, raw, core.Self(), "d", nil)
	require.NoError(t, err)

	require.NoError(t, cls.Dataset.Write(ctx, ds, &core.IOArgs{Buf: []byte{1, 2}, Offset: 0}, nil))
	require.NoError(t, cls.Dataset.Write(ctx, ds, &core.IOArgs{Buf: []byte{9}, Offset: 4}, nil))

	var size int64
	require.NoError(t, cls.Dataset.Get(ctx, ds, &core.OpArgs{Op: "dataset.size", Out: &size}, nil))
	assert.Equal(t, int64(5), size)

	buf := make([]byte, 5)
	require.NoError(t, cls.Dataset.Read(ctx, ds, &core.IOArgs{Buf: buf}, nil))
	assert.Equal(t, []byte{1, 2, 0, 0, 9}, buf)
}

func TestLinkIterationStopsOnPositiveReturn(t *testing.T) {
	ctx := context.Background()
	cls := Class()

	raw, err := cls.File.Create(ctx, "links", core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c"} {
		_, err = cls.Group.Create(ctx, raw, core.Self(), name, nil)
		require.NoError(t, err)
	}

	visited := 0
	ret, err := cls.Link.Specific(ctx, raw, core.Self(), &core.OpArgs{
		Op: core.OpLinkIterate,
		In: &core.LinkIterateArgs{Visit: func(info *core.LinkInfo) (int, error) {
			visited++
			return 7, nil
		}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, ret, "the visitor's positive return is propagated verbatim")
	assert.Equal(t, 1, visited)
}

func TestHardLinkSharesTarget(t *testing.T) {
	ctx := context.Background()
	cls := Class()

	raw, err := cls.File.Create(ctx, "hardlink", core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)
	ds, err := cls.Dataset.Create(ctx, raw, core.Self(), "orig", nil)
	require.NoError(t, err)
	require.NoError(t, cls.Dataset.Write(ctx, ds, &core.IOArgs{Buf: []byte{1}}, nil))

	err = cls.Link.Create(ctx,
		&core.LinkCreateArgs{Type: core.LinkHard, TargetToken: core.Token("/orig")},
		raw, core.ByName("alias"), nil)
	require.NoError(t, err)

	alias, err := cls.Dataset.Open(ctx, raw, core.Self(), "alias", nil)
	require.NoError(t, err)
	assert.Same(t, ds, alias)
}

func TestAttributeLifecycle(t *testing.T) {
	ctx := context.Background()
	cls := Class()

	raw, err := cls.File.Create(ctx, "attrs", core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)

	attr, err := cls.Attribute.Create(ctx, raw, core.Self(), "units", nil)
	require.NoError(t, err)
	require.NoError(t, cls.Attribute.Write(ctx, attr, &core.IOArgs{Value: "kg"}, nil))

	var got interface{}
	require.NoError(t, cls.Attribute.Read(ctx, attr, &core.IOArgs{Value: &got}, nil))
	assert.Equal(t, "kg", got)

	exists := false
	_, err = cls.Attribute.Specific(ctx, raw, core.Self(),
		&core.OpArgs{Op: "attribute.exists", In: "units", Out: &exists}, nil)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = cls.Attribute.Specific(ctx, raw, core.Self(),
		&core.OpArgs{Op: "attribute.delete", In: "units"}, nil)
	require.NoError(t, err)

	_, err = cls.Attribute.Open(ctx, raw, core.Self(), "units", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestAsyncSlotGetsFinishedToken(t *testing.T) {
	ctx := context.Background()
	cls := Class()

	slot := &core.TokenSlot{}
	_, err := cls.File.Create(ctx, "async-slot", core.FlagReadWrite|core.FlagTruncate, nil, slot)
	require.NoError(t, err)
	require.NotNil(t, slot.Token)

	status, err := cls.Request.Wait(ctx, slot.Token, 0)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSucceeded, status)
}
