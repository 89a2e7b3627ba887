package dispatch

import (
	"context"

	"github.com/ajitpratap0/stratum/pkg/config"
	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/metrics"
)

// AttributeCreate creates an attribute named name on the entity at loc
// under the parent object
func AttributeCreate(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	timer := metrics.NewTimer()
	obj, err := attributeCreate(ctx, parent, loc, name, ts)
	observe(core.KindAttribute, "create", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return obj, nil
}

func attributeCreate(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return nil, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Attribute == nil || cls.Attribute.Create == nil {
		return nil, errUnsupported(cls, "attribute create")
	}

	raw, err := cls.Attribute.Create(ctx, actual, loc, name, ts)
	if err != nil {
		return nil, backendErr(err, cls, "attribute create")
	}
	return wrapCreated(ctx, core.KindAttribute, raw, parent.container, closerFor(cls.Attribute.Close))
}

// AttributeOpen opens an existing attribute named name on the entity at loc
// under the parent object
func AttributeOpen(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	timer := metrics.NewTimer()
	obj, err := attributeOpen(ctx, parent, loc, name, ts)
	observe(core.KindAttribute, "open", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return obj, nil
}

func attributeOpen(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return nil, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Attribute == nil || cls.Attribute.Open == nil {
		return nil, errUnsupported(cls, "attribute open")
	}

	raw, err := cls.Attribute.Open(ctx, actual, loc, name, ts)
	if err != nil {
		return nil, backendErr(err, cls, "attribute open")
	}
	return wrapCreated(ctx, core.KindAttribute, raw, parent.container, closerFor(cls.Attribute.Close))
}

// AttributeRead reads the attribute value into io.Value. In
// wrapped-parameter mode the call re-enters the dispatch layer under a
// fresh execution context.
func AttributeRead(ctx context.Context, o *Object, io *core.IOArgs, tcfg *config.TransferConfig, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := attributeRead(ctx, o, io, tcfg, ts)
	observe(core.KindAttribute, "read", timer, err)
	return fail(err)
}

func attributeRead(ctx context.Context, o *Object, io *core.IOArgs, tcfg *config.TransferConfig, ts *core.TokenSlot) error {
	if wrappedMode(tcfg) {
		inner, restore, err := enterWrappedMode(o, tcfg)
		if err != nil {
			return err
		}
		defer restore()
		return attributeRead(ctx, inner, io, tcfg, ts)
	}

	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Attribute == nil || cls.Attribute.Read == nil {
		return errUnsupported(cls, "attribute read")
	}
	return backendErr(cls.Attribute.Read(ctx, actual, io, ts), cls, "attribute read")
}

// AttributeWrite writes io.Value as the attribute value. In
// wrapped-parameter mode the call re-enters the dispatch layer under a
// fresh execution context.
func AttributeWrite(ctx context.Context, o *Object, io *core.IOArgs, tcfg *config.TransferConfig, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := attributeWrite(ctx, o, io, tcfg, ts)
	observe(core.KindAttribute, "write", timer, err)
	return fail(err)
}

func attributeWrite(ctx context.Context, o *Object, io *core.IOArgs, tcfg *config.TransferConfig, ts *core.TokenSlot) error {
	if wrappedMode(tcfg) {
		inner, restore, err := enterWrappedMode(o, tcfg)
		if err != nil {
			return err
		}
		defer restore()
		return attributeWrite(ctx, inner, io, tcfg, ts)
	}

	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Attribute == nil || cls.Attribute.Write == nil {
		return errUnsupported(cls, "attribute write")
	}
	return backendErr(cls.Attribute.Write(ctx, actual, io, ts), cls, "attribute write")
}

// AttributeGet dispatches an attribute get operation
func AttributeGet(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := attributeGet(ctx, o, args, ts)
	observe(core.KindAttribute, "get", timer, err)
	return fail(err)
}

func attributeGet(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) error {
	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Attribute == nil || cls.Attribute.Get == nil {
		return errUnsupported(cls, "attribute get")
	}
	return backendErr(cls.Attribute.Get(ctx, actual, args, ts), cls, "attribute get")
}

// AttributeSpecific dispatches an attribute specific operation. It runs
// against a location under the parent object rather than an open attribute,
// so delete/rename work without opening the attribute first. The callback's
// raw return value is propagated.
func AttributeSpecific(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := attributeSpecific(ctx, parent, loc, args, ts)
	observe(core.KindAttribute, "specific", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func attributeSpecific(ctx context.Context, parent *Object, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Attribute == nil || cls.Attribute.Specific == nil {
		return 0, errUnsupported(cls, "attribute specific")
	}
	return cls.Attribute.Specific(ctx, actual, loc, args, ts)
}

// AttributeOptional dispatches an attribute optional operation, propagating
// the callback's raw return value
func AttributeOptional(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := attributeOptional(ctx, o, args, ts)
	observe(core.KindAttribute, "optional", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func attributeOptional(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Attribute == nil || cls.Attribute.Optional == nil {
		return 0, errUnsupported(cls, "attribute optional")
	}
	return cls.Attribute.Optional(ctx, actual, args, ts)
}

// AttributeClose closes an attribute object
func AttributeClose(ctx context.Context, o *Object, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := attributeClose(ctx, o, ts)
	observe(core.KindAttribute, "close", timer, err)
	return fail(err)
}

func attributeClose(ctx context.Context, o *Object, ts *core.TokenSlot) error {
	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)

	if cls.Attribute == nil || cls.Attribute.Close == nil {
		release()
		return errUnsupported(cls, "attribute close")
	}
	err = backendErr(cls.Attribute.Close(ctx, actual, ts), cls, "attribute close")
	release()
	if err != nil {
		return err
	}
	return o.free()
}
