package dispatch

import (
	"context"
	"testing"

	"github.com/ajitpratap0/stratum/pkg/callctx"
	"github.com/ajitpratap0/stratum/pkg/config"
	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/connector/registry"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoot struct{ name string }
type fakeGroup struct{ id int }
type fakeDataset struct{ buf []byte }

// minimalClass is a bare descriptor with no tables; tests attach what they
// need
func minimalClass(name string) *core.ConnectorClass {
	return &core.ConnectorClass{Name: name, Value: 7000, Version: core.ClassVersion}
}

func newTestContainer(t *testing.T, cls *core.ConnectorClass, root interface{}) (*Container, *registry.Instance) {
	t.Helper()

	r := registry.NewRegistry()
	inst, err := r.Register(cls, nil)
	require.NoError(t, err)

	prop, err := registry.NewProperty(inst, nil)
	require.NoError(t, err)
	require.NoError(t, inst.Unref()) // drop the registration ref, the property keeps it alive

	cont, err := NewContainer(root, prop)
	require.NoError(t, err)
	return cont, inst
}

func TestFileObjectResolvesThroughContainer(t *testing.T) {
	root := &fakeRoot{name: "root"}
	cls := minimalClass("fake")

	var got interface{}
	cls.File = &core.FileTable{
		Get: func(ctx context.Context, file interface{}, args *core.OpArgs, ts *core.TokenSlot) error {
			got = file
			return nil
		},
	}

	cont, _ := newTestContainer(t, cls, root)
	fileObj := NewObject(core.KindFile, nil, cont)

	require.NoError(t, FileGet(context.Background(), fileObj, &core.OpArgs{Op: "file.name"}, nil))
	assert.Same(t, root, got)
}

func TestNonFileObjectResolvesToOwnPointer(t *testing.T) {
	root := &fakeRoot{name: "root"}
	grp := &fakeGroup{id: 1}
	cls := minimalClass("fake")

	var got interface{}
	cls.Group = &core.GroupTable{
		Get: func(ctx context.Context, obj interface{}, args *core.OpArgs, ts *core.TokenSlot) error {
			got = obj
			return nil
		},
	}

	cont, _ := newTestContainer(t, cls, root)
	grpObj := NewObject(core.KindGroup, grp, cont)

	require.NoError(t, GroupGet(context.Background(), grpObj, &core.OpArgs{Op: "group.nchildren"}, nil))
	assert.Same(t, grp, got)
}

func TestNilCallbackYieldsUnsupported(t *testing.T) {
	cls := minimalClass("fake")
	cont, _ := newTestContainer(t, cls, &fakeRoot{})
	obj := NewObject(core.KindDataset, &fakeDataset{}, cont)

	err := DatasetRead(context.Background(), obj, &core.IOArgs{}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsUnsupported(err))

	err = DatasetGet(context.Background(), obj, &core.OpArgs{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsUnsupported(err))
}

func TestClosedObjectRejected(t *testing.T) {
	cls := minimalClass("fake")
	cls.Group = &core.GroupTable{
		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error { return nil },
		Get:   func(ctx context.Context, obj interface{}, args *core.OpArgs, ts *core.TokenSlot) error { return nil },
	}

	cont, _ := newTestContainer(t, cls, &fakeRoot{})
	obj := NewObject(core.KindGroup, &fakeGroup{}, cont)

	require.NoError(t, GroupClose(context.Background(), obj, nil))

	err := GroupGet(context.Background(), obj, &core.OpArgs{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeHandle))
}

func TestContextBoundDuringInvoke(t *testing.T) {
	cls := minimalClass("fake")

	var cont *Container
	depthBefore := callctx.Default().Depth()
	cls.Group = &core.GroupTable{
		Get: func(ctx context.Context, obj interface{}, args *core.OpArgs, ts *core.TokenSlot) error {
			assert.Equal(t, depthBefore+1, callctx.Default().Depth())
			assert.Same(t, cont, callctx.Default().Primary())
			return nil
		},
	}
	cont, _ = newTestContainer(t, cls, &fakeRoot{})

	obj := NewObject(core.KindGroup, &fakeGroup{}, cont)
	require.NoError(t, GroupGet(context.Background(), obj, &core.OpArgs{}, nil))
	assert.Equal(t, depthBefore, callctx.Default().Depth())
}

func TestContextUnwindsOnCallbackFailure(t *testing.T) {
	cls := minimalClass("fake")
	cls.Group = &core.GroupTable{
		Get: func(ctx context.Context, obj interface{}, args *core.OpArgs, ts *core.TokenSlot) error {
			return errors.New(errors.ErrorTypeBackend, "boom")
		},
	}

	cont, _ := newTestContainer(t, cls, &fakeRoot{})
	obj := NewObject(core.KindGroup, &fakeGroup{}, cont)

	depthBefore := callctx.Default().Depth()
	require.Error(t, GroupGet(context.Background(), obj, &core.OpArgs{}, nil))
	assert.Equal(t, depthBefore, callctx.Default().Depth())
	errors.ClearStack()
}

func TestWrapFailureClosesBackendExactlyOnce(t *testing.T) {
	cls := minimalClass("fake")
	grp := &fakeGroup{id: 42}
	closeCalls := 0

	cls.Group = &core.GroupTable{
		Create: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			return grp, nil
		},
		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error {
			assert.Same(t, grp, obj)
			closeCalls++
			return nil
		},
	}
	cls.Wrap = &core.WrapTable{
		GetContainer: func(ctx context.Context, obj interface{}) (interface{}, error) {
			return nil, errors.New(errors.ErrorTypeBackend, "container lookup broken")
		},
	}

	cont, _ := newTestContainer(t, cls, &fakeRoot{})
	parent := NewObject(core.KindFile, nil, cont)

	obj, err := GroupCreate(context.Background(), parent, core.Self(), "g", nil)
	require.Error(t, err)
	assert.Nil(t, obj)
	assert.Equal(t, 1, closeCalls)
	errors.ClearStack()
}

func TestAccommodationCreatesNewContainer(t *testing.T) {
	cls := minimalClass("fake")
	homeRoot := &fakeRoot{name: "home"}
	otherRoot := &fakeRoot{name: "other"}
	grp := &fakeGroup{id: 7}

	cls.Group = &core.GroupTable{
		Open: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			return grp, nil
		},
		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error { return nil },
	}
	cls.Wrap = &core.WrapTable{
		GetContainer: func(ctx context.Context, obj interface{}) (interface{}, error) {
			return otherRoot, nil
		},
	}

	cont, inst := newTestContainer(t, cls, homeRoot)
	parent := NewObject(core.KindFile, nil, cont)
	refsBefore := inst.Refs()

	obj, err := GroupOpen(context.Background(), parent, core.Self(), "g", nil)
	require.NoError(t, err)
	require.NotSame(t, cont, obj.Container())
	assert.Same(t, otherRoot, obj.Container().Root())
	assert.Equal(t, refsBefore+1, inst.Refs())

	// closing the accommodated handle releases its private container
	require.NoError(t, GroupClose(context.Background(), obj, nil))
	assert.Equal(t, refsBefore, inst.Refs())
}

func TestAccommodationReusesContainerForSameRoot(t *testing.T) {
	cls := minimalClass("fake")
	homeRoot := &fakeRoot{name: "home"}

	cls.Group = &core.GroupTable{
		Open: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			return &fakeGroup{}, nil
		},
	}
	cls.Wrap = &core.WrapTable{
		GetContainer: func(ctx context.Context, obj interface{}) (interface{}, error) {
			return homeRoot, nil
		},
	}

	cont, inst := newTestContainer(t, cls, homeRoot)
	parent := NewObject(core.KindFile, nil, cont)
	refsBefore := inst.Refs()

	obj, err := GroupOpen(context.Background(), parent, core.Self(), "g", nil)
	require.NoError(t, err)
	assert.Same(t, cont, obj.Container())
	assert.Equal(t, refsBefore, inst.Refs())
}

func TestSpecificPropagatesRawReturn(t *testing.T) {
	cls := minimalClass("fake")
	cls.Dataset = &core.DatasetTable{
		Specific: func(ctx context.Context, ds interface{}, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
			return 3, nil
		},
	}

	cont, _ := newTestContainer(t, cls, &fakeRoot{})
	obj := NewObject(core.KindDataset, &fakeDataset{}, cont)

	ret, err := DatasetSpecific(context.Background(), obj, &core.OpArgs{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, ret)
}

func TestWrappedModeResetsAndRestoresFlag(t *testing.T) {
	cls := minimalClass("fake")
	cls.Dataset = &core.DatasetTable{
		Read: func(ctx context.Context, ds interface{}, io *core.IOArgs, ts *core.TokenSlot) error {
			return nil
		},
	}

	cont, _ := newTestContainer(t, cls, &fakeRoot{})
	obj := NewObject(core.KindDataset, &fakeDataset{}, cont)

	tcfg := &config.TransferConfig{WrappedParams: true}
	require.NoError(t, DatasetRead(context.Background(), obj, &core.IOArgs{}, tcfg, nil))
	assert.True(t, tcfg.WrappedParams, "flag must be restored after the call")
}

func TestWrappedModeRejectsRawPointer(t *testing.T) {
	tcfg := &config.TransferConfig{WrappedParams: true}
	_, _, err := enterWrappedMode(&fakeDataset{}, tcfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestLinkTransferRejectsMixedConnectors(t *testing.T) {
	clsA := minimalClass("conn-a")
	clsB := minimalClass("conn-b")

	contA, _ := newTestContainer(t, clsA, &fakeRoot{name: "a"})
	contB, _ := newTestContainer(t, clsB, &fakeRoot{name: "b"})
	src := NewObject(core.KindGroup, &fakeGroup{}, contA)
	dst := NewObject(core.KindGroup, &fakeGroup{}, contB)

	err := LinkCopy(context.Background(), src, core.ByName("x"), dst, core.ByName("y"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	errors.ClearStack()
}

func TestLinkTransferBindsBothContainers(t *testing.T) {
	cls := minimalClass("fake")

	// two handles on one container; accommodation would create a second one
	var source, dest callctx.Binding
	cls.Link = &core.LinkTable{
		Move: func(ctx context.Context, srcObj interface{}, srcLoc *core.Location, dstObj interface{}, dstLoc *core.Location, ts *core.TokenSlot) error {
			source = callctx.Default().Source()
			dest = callctx.Default().Dest()
			return nil
		},
	}
	cont, _ := newTestContainer(t, cls, &fakeRoot{name: "src"})

	src := NewObject(core.KindGroup, &fakeGroup{id: 1}, cont)
	dst := NewObject(core.KindGroup, &fakeGroup{id: 2}, cont)

	require.NoError(t, LinkMove(context.Background(), src, core.ByName("x"), dst, core.ByName("y"), nil))
	assert.Same(t, cont, source)
	assert.Same(t, cont, dest)
}

func TestObjectOpenReportsKind(t *testing.T) {
	cls := minimalClass("fake")
	ds := &fakeDataset{}
	cls.Object = &core.ObjectTable{
		Open: func(ctx context.Context, obj interface{}, loc *core.Location, ts *core.TokenSlot) (interface{}, core.ObjectKind, error) {
			return ds, core.KindDataset, nil
		},
	}

	cont, _ := newTestContainer(t, cls, &fakeRoot{})
	parent := NewObject(core.KindFile, nil, cont)

	obj, kind, err := ObjectOpen(context.Background(), parent, core.ByName("d"), nil)
	require.NoError(t, err)
	assert.Equal(t, core.KindDataset, kind)
	assert.Equal(t, core.KindDataset, obj.Kind())
	assert.Same(t, ds, obj.Data())
}

func TestTokenCompareFallback(t *testing.T) {
	cls := minimalClass("fake") // no token table
	cont, _ := newTestContainer(t, cls, &fakeRoot{})
	obj := NewObject(core.KindFile, nil, cont)

	cases := []struct {
		a, b core.Token
		want int
	}{
		{nil, nil, 0},
		{nil, core.Token("x"), -1},
		{core.Token("x"), nil, 1},
		{core.Token("abc"), core.Token("abc"), 0},
		{core.Token("abc"), core.Token("abd"), -1},
		{core.Token("b"), core.Token("a"), 1},
	}
	for _, tc := range cases {
		cmp, err := TokenCompare(obj, tc.a, tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.want, cmp)
	}
}

func TestTokenCompareUsesConnectorWhenPresent(t *testing.T) {
	cls := minimalClass("fake")
	cls.Token = &core.TokenTable{
		Compare: func(a, b core.Token) (int, error) { return 99, nil },
	}

	cont, _ := newTestContainer(t, cls, &fakeRoot{})
	obj := NewObject(core.KindFile, nil, cont)

	cmp, err := TokenCompare(obj, core.Token("a"), core.Token("a"))
	require.NoError(t, err)
	assert.Equal(t, 99, cmp)
}

func TestTokenStringWithoutStringForm(t *testing.T) {
	cls := minimalClass("fake")
	cont, _ := newTestContainer(t, cls, &fakeRoot{})
	obj := NewObject(core.KindFile, nil, cont)
	errors.ClearStack()

	// no string form is not a failure: empty string and nil token come
	// back without an error and nothing lands on the error stack
	s, err := TokenToString(obj, core.Token("t"))
	require.NoError(t, err)
	assert.Empty(t, s)

	tok, err := TokenFromString(obj, "/t")
	require.NoError(t, err)
	assert.Nil(t, tok)
	assert.True(t, errors.DefaultStack().Empty())
}

func TestRequestHoldsInstanceReference(t *testing.T) {
	cls := minimalClass("fake")
	terminated := 0
	cls.Terminate = func() error {
		terminated++
		return nil
	}
	cls.Request = &core.RequestTable{
		Free: func(ctx context.Context, token interface{}) error { return nil },
	}

	r := registry.NewRegistry()
	inst, err := r.Register(cls, nil)
	require.NoError(t, err)

	req, err := NewRequest("token", inst)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inst.Refs())

	// dropping the registration ref keeps the connector alive through the request
	require.NoError(t, inst.Unref())
	assert.Equal(t, 0, terminated)

	require.NoError(t, req.Free(context.Background()))
	assert.Equal(t, 1, terminated)
}

func TestRequestFromEmptySlot(t *testing.T) {
	cls := minimalClass("fake")
	cont, _ := newTestContainer(t, cls, &fakeRoot{})

	req, err := RequestFromSlot(&core.TokenSlot{}, cont)
	require.NoError(t, err)
	assert.Nil(t, req)
}

func TestFileCloseClosesContainer(t *testing.T) {
	cls := minimalClass("fake")
	closed := 0
	cls.File = &core.FileTable{
		Close: func(ctx context.Context, file interface{}, ts *core.TokenSlot) error {
			closed++
			return nil
		},
	}

	cont, inst := newTestContainer(t, cls, &fakeRoot{})
	fileObj := newObject(core.KindFile, nil, cont, true)
	refsBefore := inst.Refs()

	require.NoError(t, FileClose(context.Background(), fileObj, nil))
	assert.Equal(t, 1, closed)
	assert.Equal(t, refsBefore-1, inst.Refs())

	err := FileGet(context.Background(), fileObj, &core.OpArgs{}, nil)
	require.Error(t, err)
	errors.ClearStack()
}

func TestFailedOperationLandsOnErrorStack(t *testing.T) {
	cls := minimalClass("fake")
	cls.Dataset = &core.DatasetTable{
		Write: func(ctx context.Context, ds interface{}, io *core.IOArgs, ts *core.TokenSlot) error {
			return errors.New(errors.ErrorTypeBackend, "disk full")
		},
	}

	cont, _ := newTestContainer(t, cls, &fakeRoot{})
	obj := NewObject(core.KindDataset, &fakeDataset{}, cont)

	errors.ClearStack()
	err := DatasetWrite(context.Background(), obj, &core.IOArgs{Buf: []byte{1}}, nil, nil)
	require.Error(t, err)
	require.Equal(t, 1, errors.DefaultStack().Len())
	assert.False(t, errors.DefaultStack().Entries()[0].Unwind)
	errors.ClearStack()
}
