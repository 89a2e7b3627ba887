package dispatch

import (
	"context"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/metrics"
)

// DatatypeCommit persists a datatype definition at loc/name under the
// parent object, making it a first-class named entity
func DatatypeCommit(ctx context.Context, parent *Object, loc *core.Location, name string, typeDef interface{}, ts *core.TokenSlot) (*Object, error) {
	timer := metrics.NewTimer()
	obj, err := datatypeCommit(ctx, parent, loc, name, typeDef, ts)
	observe(core.KindDatatype, "commit", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return obj, nil
}

func datatypeCommit(ctx context.Context, parent *Object, loc *core.Location, name string, typeDef interface{}, ts *core.TokenSlot) (*Object, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return nil, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Datatype == nil || cls.Datatype.Commit == nil {
		return nil, errUnsupported(cls, "datatype commit")
	}

	raw, err := cls.Datatype.Commit(ctx, actual, loc, name, typeDef, ts)
	if err != nil {
		return nil, backendErr(err, cls, "datatype commit")
	}
	return wrapCreated(ctx, core.KindDatatype, raw, parent.container, closerFor(cls.Datatype.Close))
}

// DatatypeOpen opens a committed datatype at loc/name under the parent
// object
func DatatypeOpen(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	timer := metrics.NewTimer()
	obj, err := datatypeOpen(ctx, parent, loc, name, ts)
	observe(core.KindDatatype, "open", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return obj, nil
}

func datatypeOpen(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return nil, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Datatype == nil || cls.Datatype.Open == nil {
		return nil, errUnsupported(cls, "datatype open")
	}

	raw, err := cls.Datatype.Open(ctx, actual, loc, name, ts)
	if err != nil {
		return nil, backendErr(err, cls, "datatype open")
	}
	return wrapCreated(ctx, core.KindDatatype, raw, parent.container, closerFor(cls.Datatype.Close))
}

// DatatypeGet dispatches a datatype get operation
func DatatypeGet(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := datatypeGet(ctx, o, args, ts)
	observe(core.KindDatatype, "get", timer, err)
	return fail(err)
}

func datatypeGet(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) error {
	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Datatype == nil || cls.Datatype.Get == nil {
		return errUnsupported(cls, "datatype get")
	}
	return backendErr(cls.Datatype.Get(ctx, actual, args, ts), cls, "datatype get")
}

// DatatypeSpecific dispatches a datatype specific operation, propagating
// the callback's raw return value
func DatatypeSpecific(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := datatypeSpecific(ctx, o, args, ts)
	observe(core.KindDatatype, "specific", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func datatypeSpecific(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Datatype == nil || cls.Datatype.Specific == nil {
		return 0, errUnsupported(cls, "datatype specific")
	}
	return cls.Datatype.Specific(ctx, actual, args, ts)
}

// DatatypeOptional dispatches a datatype optional operation, propagating
// the callback's raw return value
func DatatypeOptional(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := datatypeOptional(ctx, o, args, ts)
	observe(core.KindDatatype, "optional", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func datatypeOptional(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Datatype == nil || cls.Datatype.Optional == nil {
		return 0, errUnsupported(cls, "datatype optional")
	}
	return cls.Datatype.Optional(ctx, actual, args, ts)
}

// DatatypeClose closes a datatype object
func DatatypeClose(ctx context.Context, o *Object, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := datatypeClose(ctx, o, ts)
	observe(core.KindDatatype, "close", timer, err)
	return fail(err)
}

func datatypeClose(ctx context.Context, o *Object, ts *core.TokenSlot) error {
	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)

	if cls.Datatype == nil || cls.Datatype.Close == nil {
		release()
		return errUnsupported(cls, "datatype close")
	}
	err = backendErr(cls.Datatype.Close(ctx, actual, ts), cls, "datatype close")
	release()
	if err != nil {
		return err
	}
	return o.free()
}
