package dispatch

import (
	"context"

	"github.com/ajitpratap0/stratum/pkg/config"
	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/metrics"
)

// DatasetCreate creates a dataset at loc/name under the parent object
func DatasetCreate(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	timer := metrics.NewTimer()
	obj, err := datasetCreate(ctx, parent, loc, name, ts)
	observe(core.KindDataset, "create", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return obj, nil
}

func datasetCreate(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return nil, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Dataset == nil || cls.Dataset.Create == nil {
		return nil, errUnsupported(cls, "dataset create")
	}

	raw, err := cls.Dataset.Create(ctx, actual, loc, name, ts)
	if err != nil {
		return nil, backendErr(err, cls, "dataset create")
	}
	return wrapCreated(ctx, core.KindDataset, raw, parent.container, closerFor(cls.Dataset.Close))
}

// DatasetOpen opens an existing dataset at loc/name under the parent object
func DatasetOpen(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	timer := metrics.NewTimer()
	obj, err := datasetOpen(ctx, parent, loc, name, ts)
	observe(core.KindDataset, "open", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return obj, nil
}

func datasetOpen(ctx context.Context, parent *Object, loc *core.Location, name string, ts *core.TokenSlot) (*Object, error) {
	actual, cls, err := parent.resolve()
	if err != nil {
		return nil, err
	}
	release := ctxStack().Bind(parent.container)
	defer release()

	if cls.Dataset == nil || cls.Dataset.Open == nil {
		return nil, errUnsupported(cls, "dataset open")
	}

	raw, err := cls.Dataset.Open(ctx, actual, loc, name, ts)
	if err != nil {
		return nil, backendErr(err, cls, "dataset open")
	}
	return wrapCreated(ctx, core.KindDataset, raw, parent.container, closerFor(cls.Dataset.Close))
}

// DatasetRead reads dataset data into io.Buf. In wrapped-parameter mode the
// call re-enters the dispatch layer under a fresh execution context.
func DatasetRead(ctx context.Context, o *Object, io *core.IOArgs, tcfg *config.TransferConfig, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := datasetRead(ctx, o, io, tcfg, ts)
	observe(core.KindDataset, "read", timer, err)
	return fail(err)
}

func datasetRead(ctx context.Context, o *Object, io *core.IOArgs, tcfg *config.TransferConfig, ts *core.TokenSlot) error {
	if wrappedMode(tcfg) {
		inner, restore, err := enterWrappedMode(o, tcfg)
		if err != nil {
			return err
		}
		defer restore()
		return datasetRead(ctx, inner, io, tcfg, ts)
	}

	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Dataset == nil || cls.Dataset.Read == nil {
		return errUnsupported(cls, "dataset read")
	}
	return backendErr(cls.Dataset.Read(ctx, actual, io, ts), cls, "dataset read")
}

// DatasetWrite writes io.Buf to the dataset. In wrapped-parameter mode the
// call re-enters the dispatch layer under a fresh execution context.
func DatasetWrite(ctx context.Context, o *Object, io *core.IOArgs, tcfg *config.TransferConfig, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := datasetWrite(ctx, o, io, tcfg, ts)
	observe(core.KindDataset, "write", timer, err)
	return fail(err)
}

func datasetWrite(ctx context.Context, o *Object, io *core.IOArgs, tcfg *config.TransferConfig, ts *core.TokenSlot) error {
	if wrappedMode(tcfg) {
		inner, restore, err := enterWrappedMode(o, tcfg)
		if err != nil {
			return err
		}
		defer restore()
		return datasetWrite(ctx, inner, io, tcfg, ts)
	}

	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Dataset == nil || cls.Dataset.Write == nil {
		return errUnsupported(cls, "dataset write")
	}
	return backendErr(cls.Dataset.Write(ctx, actual, io, ts), cls, "dataset write")
}

// DatasetGet dispatches a dataset get operation
func DatasetGet(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := datasetGet(ctx, o, args, ts)
	observe(core.KindDataset, "get", timer, err)
	return fail(err)
}

func datasetGet(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) error {
	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Dataset == nil || cls.Dataset.Get == nil {
		return errUnsupported(cls, "dataset get")
	}
	return backendErr(cls.Dataset.Get(ctx, actual, args, ts), cls, "dataset get")
}

// DatasetSpecific dispatches a dataset specific operation, propagating the
// callback's raw return value
func DatasetSpecific(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := datasetSpecific(ctx, o, args, ts)
	observe(core.KindDataset, "specific", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func datasetSpecific(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Dataset == nil || cls.Dataset.Specific == nil {
		return 0, errUnsupported(cls, "dataset specific")
	}
	return cls.Dataset.Specific(ctx, actual, args, ts)
}

// DatasetOptional dispatches a dataset optional operation, propagating the
// callback's raw return value
func DatasetOptional(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := datasetOptional(ctx, o, args, ts)
	observe(core.KindDataset, "optional", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func datasetOptional(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Dataset == nil || cls.Dataset.Optional == nil {
		return 0, errUnsupported(cls, "dataset optional")
	}
	return cls.Dataset.Optional(ctx, actual, args, ts)
}

// DatasetClose closes a dataset object
func DatasetClose(ctx context.Context, o *Object, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := datasetClose(ctx, o, ts)
	observe(core.KindDataset, "close", timer, err)
	return fail(err)
}

func datasetClose(ctx context.Context, o *Object, ts *core.TokenSlot) error {
	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)

	if cls.Dataset == nil || cls.Dataset.Close == nil {
		release()
		return errUnsupported(cls, "dataset close")
	}
	err = backendErr(cls.Dataset.Close(ctx, actual, ts), cls, "dataset close")
	release()
	if err != nil {
		return err
	}
	return o.free()
}
