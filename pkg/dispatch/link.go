package dispatch

import (
	"context"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/metrics"
)

// LinkCreate creates a link at loc under the parent object
func LinkCreate(ctx context.Context, args *core.LinkCreateArgs, parent *Object, loc *core.Location, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := linkCreate(ctx, args, parent, loc, ts)
	observe(core.KindLink, "create", timer, err)
	return fail(err)
}

func linkCreate(ctx context.Context, args *core.LinkCreateArgs, parent *Object, loc *core.Location, ts *core.TokenSlot) error {
	actual, cls, err := parent.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Link == nil || cls.Link.Create == nil {
		return errUnsupported(cls, "link create")
	}
	return backendErr(cls.Link.Create(ctx, args, actual, loc, ts), cls, "link create")
}

// transferPair resolves both sides of a cross-container link operation and
// checks that a single connector class serves them. Links never span
// connector implementations; moving data between different connectors is a
// copy at a higher layer.
func transferPair(src, dst *Object) (srcActual, dstActual interface{}, cls *core.ConnectorClass, err error) {
	srcActual, srcCls, err := src.resolve()
	if err != nil {
		return nil, nil, nil, err
	}
	dstActual, dstCls, err := dst.resolve()
	if err != nil {
		return nil, nil, nil, err
	}
	if srcCls != dstCls {
		return nil, nil, nil, errors.Newf(errors.ErrorTypeValidation,
			"source connector %s and destination connector %s differ", srcCls.Name, dstCls.Name)
	}
	return srcActual, dstActual, srcCls, nil
}

// LinkCopy copies a link from srcLoc under src to dstLoc under dst. Both
// objects must be served by the same connector class.
func LinkCopy(ctx context.Context, src *Object, srcLoc *core.Location, dst *Object, dstLoc *core.Location, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := linkCopy(ctx, src, srcLoc, dst, dstLoc, ts)
	observe(core.KindLink, "copy", timer, err)
	return fail(err)
}

func linkCopy(ctx context.Context, src *Object, srcLoc *core.Location, dst *Object, dstLoc *core.Location, ts *core.TokenSlot) error {
	srcActual, dstActual, cls, err := transferPair(src, dst)
	if err != nil {
		return err
	}
	release := ctxStack().BindTransfer(src.container, src.container, dst.container)
	defer release()

	if cls.Link == nil || cls.Link.Copy == nil {
		return errUnsupported(cls, "link copy")
	}
	return backendErr(cls.Link.Copy(ctx, srcActual, srcLoc, dstActual, dstLoc, ts), cls, "link copy")
}

// LinkMove moves a link from srcLoc under src to dstLoc under dst. Both
// objects must be served by the same connector class.
func LinkMove(ctx context.Context, src *Object, srcLoc *core.Location, dst *Object, dstLoc *core.Location, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := linkMove(ctx, src, srcLoc, dst, dstLoc, ts)
	observe(core.KindLink, "move", timer, err)
	return fail(err)
}

func linkMove(ctx context.Context, src *Object, srcLoc *core.Location, dst *Object, dstLoc *core.Location, ts *core.TokenSlot) error {
	srcActual, dstActual, cls, err := transferPair(src, dst)
	if err != nil {
		return err
	}
	release := ctxStack().BindTransfer(src.container, src.container, dst.container)
	defer release()

	if cls.Link == nil || cls.Link.Move == nil {
		return errUnsupported(cls, "link move")
	}
	return backendErr(cls.Link.Move(ctx, srcActual, srcLoc, dstActual, dstLoc, ts), cls, "link move")
}

// LinkGet dispatches a link get operation against a location under the
// parent object
func LinkGet(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := linkGet(ctx, parent, loc, args, ts)
	observe(core.KindLink, "get", timer, err)
	return fail(err)
}

func linkGet(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) error {
	actual, cls, err := parent.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Link == nil || cls.Link.Get == nil {
		return errUnsupported(cls, "link get")
	}
	return backendErr(cls.Link.Get(ctx, actual, loc, args, ts), cls, "link get")
}

// LinkSpecific dispatches a link specific operation, propagating the
// callback's raw return value. Link iteration uses this path: a positive
// return from the visit callback stops iteration and surfaces here.
func LinkSpecific(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := linkSpecific(ctx, parent, loc, args, ts)
	observe(core.KindLink, "specific", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func linkSpecific(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Link == nil || cls.Link.Specific == nil {
		return 0, errUnsupported(cls, "link specific")
	}
	return cls.Link.Specific(ctx, actual, loc, args, ts)
}

// LinkOptional dispatches a link optional operation, propagating the
// callback's raw return value
func LinkOptional(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := linkOptional(ctx, parent, loc, args, ts)
	observe(core.KindLink, "optional", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func linkOptional(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Link == nil || cls.Link.Optional == nil {
		return 0, errUnsupported(cls, "link optional")
	}
	return cls.Link.Optional(ctx, actual, loc, args, ts)
}
