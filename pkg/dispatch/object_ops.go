package dispatch

import (
	"context"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/metrics"
)

// ObjectOpen opens the entity at loc under the parent object without the
// caller knowing its kind in advance; the connector reports the concrete
// kind of what it opened
func ObjectOpen(ctx context.Context, parent *Object, loc *core.Location, ts *core.TokenSlot) (*Object, core.ObjectKind, error) {
	timer := metrics.NewTimer()
	obj, kind, err := objectOpen(ctx, parent, loc, ts)
	observe(core.KindObject, "open", timer, err)
	if err != nil {
		return nil, 0, fail(err)
	}
	return obj, kind, nil
}

func objectOpen(ctx context.Context, parent *Object, loc *core.Location, ts *core.TokenSlot) (*Object, core.ObjectKind, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return nil, 0, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Object == nil || cls.Object.Open == nil {
		return nil, 0, errUnsupported(cls, "object open")
	}

	raw, kind, err := cls.Object.Open(ctx, actual, loc, ts)
	if err != nil {
		return nil, 0, backendErr(err, cls, "object open")
	}

	obj, err := wrapCreated(ctx, kind, raw, parent.container, objectCloser(cls, kind))
	if err != nil {
		return nil, 0, err
	}
	return obj, kind, nil
}

// objectCloser picks the kind-appropriate close callback for unwinding a
// generic open whose wrap step failed
func objectCloser(cls *core.ConnectorClass, kind core.ObjectKind) func(context.Context, interface{}) error {
	switch kind {
	case core.KindGroup:
		if cls.Group != nil {
			return closerFor(cls.Group.Close)
		}
	case core.KindDataset:
		if cls.Dataset != nil {
			return closerFor(cls.Dataset.Close)
		}
	case core.KindDatatype:
		if cls.Datatype != nil {
			return closerFor(cls.Datatype.Close)
		}
	case core.KindAttribute:
		if cls.Attribute != nil {
			return closerFor(cls.Attribute.Close)
		}
	}
	return nil
}

// ObjectCopy copies the entity named srcName at srcLoc under src to dstName
// at dstLoc under dst. Both objects must be served by the same connector
// class.
func ObjectCopy(ctx context.Context, src *Object, srcLoc *core.Location, srcName string, dst *Object, dstLoc *core.Location, dstName string, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := objectCopy(ctx, src, srcLoc, srcName, dst, dstLoc, dstName, ts)
	observe(core.KindObject, "copy", timer, err)
	return fail(err)
}

func objectCopy(ctx context.Context, src *Object, srcLoc *core.Location, srcName string, dst *Object, dstLoc *core.Location, dstName string, ts *core.TokenSlot) error {
	srcActual, dstActual, cls, err := transferPair(src, dst)
	if err != nil {
		return err
	}
	release := ctxStack().BindTransfer(src.container, src.container, dst.container)
	defer release()

	if cls.Object == nil || cls.Object.Copy == nil {
		return errUnsupported(cls, "object copy")
	}
	return backendErr(cls.Object.Copy(ctx, srcActual, srcLoc, srcName, dstActual, dstLoc, dstName, ts), cls, "object copy")
}

// ObjectGet dispatches a generic object get operation against a location
// under the parent object
func ObjectGet(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := objectGet(ctx, parent, loc, args, ts)
	observe(core.KindObject, "get", timer, err)
	return fail(err)
}

func objectGet(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) error {
	actual, cls, err := parent.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Object == nil || cls.Object.Get == nil {
		return errUnsupported(cls, "object get")
	}
	return backendErr(cls.Object.Get(ctx, actual, loc, args, ts), cls, "object get")
}

// ObjectSpecific dispatches a generic object specific operation,
// propagating the callback's raw return value
func ObjectSpecific(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := objectSpecific(ctx, parent, loc, args, ts)
	observe(core.KindObject, "specific", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func objectSpecific(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Object == nil || cls.Object.Specific == nil {
		return 0, errUnsupported(cls, "object specific")
	}
	return cls.Object.Specific(ctx, actual, loc, args, ts)
}

// ObjectOptional dispatches a generic object optional operation,
// propagating the callback's raw return value
func ObjectOptional(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := objectOptional(ctx, parent, loc, args, ts)
	observe(core.KindObject, "optional", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func objectOptional(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Object == nil || cls.Object.Optional == nil {
		return 0, errUnsupported(cls, "object optional")
	}
	return cls.Object.Optional(ctx, actual, loc, args, ts)
}
