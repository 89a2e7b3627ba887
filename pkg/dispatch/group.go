package dispatch

import (
	"context"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/metrics"
)

// GroupCreate creates a group at loc/name under the parent object
func GroupCreate(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	timer := metrics.NewTimer()
	obj, err := groupCreate(ctx, parent, loc, name, ts)
	observe(core.KindGroup, "create", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return obj, nil
}

func groupCreate(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return nil, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Group == nil || cls.Group.Create == nil {
		return nil, errUnsupported(cls, "group create")
	}

	raw, err := cls.Group.Create(ctx, actual, loc, name, ts)
	if err != nil {
		return nil, backendErr(err, cls, "group create")
	}
	return wrapCreated(ctx, core.KindGroup, raw, parent.container, closerFor(cls.Group.Close))
}

// GroupOpen opens an existing group at loc/name under the parent object
func GroupOpen(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	timer := metrics.NewTimer()
	obj, err := groupOpen(ctx, parent, loc, name, ts)
	observe(core.KindGroup, "open", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return obj, nil
}

func groupOpen(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return nil, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Group == nil || cls.Group.Open == nil {
		return nil, errUnsupported(cls, "group open")
	}

	raw, err := cls.Group.Open(ctx, actual, loc, name, ts)
	if err != nil {
		return nil, backendErr(err, cls, "group open")
	}
	return wrapCreated(ctx, core.KindGroup, raw, parent.container, closerFor(cls.Group.Close))
}

// GroupGet dispatches a group get operation
func GroupGet(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := groupGet(ctx, o, args, ts)
	observe(core.KindGroup, "get", timer, err)
	return fail(err)
}

func groupGet(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) error {
	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Group == nil || cls.Group.Get == nil {
		return errUnsupported(cls, "group get")
	}
	return backendErr(cls.Group.Get(ctx, actual, args, ts), cls, "group get")
}

// GroupSpecific dispatches a group specific operation, propagating the
// callback's raw return value
func GroupSpecific(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := groupSpecific(ctx, o, args, ts)
	observe(core.KindGroup, "specific", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func groupSpecific(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Group == nil || cls.Group.Specific == nil {
		return 0, errUnsupported(cls, "group specific")
	}
	return cls.Group.Specific(ctx, actual, args, ts)
}

// GroupOptional dispatches a group optional operation, propagating the
// callback's raw return value
func GroupOptional(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := groupOptional(ctx, o, args, ts)
	observe(core.KindGroup, "optional", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func groupOptional(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Group == nil || cls.Group.Optional == nil {
		return 0, errUnsupported(cls, "group optional")
	}
	return cls.Group.Optional(ctx, actual, args, ts)
}

// GroupClose closes a group object
func GroupClose(ctx context.Context, o *Object, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := groupClose(ctx, o, ts)
	observe(core.KindGroup, "close", timer, err)
	return fail(err)
}

func groupClose(ctx context.Context, o *Object, ts *core.TokenSlot) error {
	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)

	if cls.Group == nil || cls.Group.Close == nil {
		release()
		return errUnsupported(cls, "group close")
	}
	err = backendErr(cls.Group.Close(ctx, actual, ts), cls, "group close")
	release()
	if err != nil {
		return err
	}
	return o.free()
}
