package dispatch

import (
	"context"

	"github.com/ajitpratap0/stratum/pkg/config"
	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/connector/registry"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/logger"
	"github.com/ajitpratap0/stratum/pkg/metrics"
	"github.com/ajitpratap0/stratum/pkg/plugin"
	"go.uber.org/zap"
)

// FileCreate creates a new container through the connector named in the
// access configuration and returns its file object.
func FileCreate(ctx context.Context, name string, flags core.FileFlags, acfg *config.AccessConfig, ts *core.TokenSlot) (*Object, error) {
	timer := metrics.NewTimer()
	obj, err := fileCreate(ctx, name, flags, acfg, ts)
	observe(core.KindFile, "create", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return obj, nil
}

func fileCreate(ctx context.Context, name string, flags core.FileFlags, acfg *config.AccessConfig, ts *core.TokenSlot) (*Object, error) {
	prop, err := accessProperty(acfg)
	if err != nil {
		return nil, err
	}

	cls := prop.Instance.Class()
	if cls.File == nil || cls.File.Create == nil {
		return nil, errUnsupported(cls, "file create")
	}

	raw, err := cls.File.Create(ctx, name, flags, prop.Info, ts)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeBackend,
			"connector %s failed to create file %s", cls.Name, name)
	}

	return wrapFileRoot(ctx, raw, prop)
}

// FileOpen opens a container. When the connector named in the access
// configuration is the process default and fails, discoverable connector
// plugins are probed for one that finds the resource accessible, and the
// open is retried with the first success. An explicitly chosen non-default
// connector is never second-guessed.
func FileOpen(ctx context.Context, name string, flags core.FileFlags, acfg *config.AccessConfig, ts *core.TokenSlot) (*Object, error) {
	timer := metrics.NewTimer()
	obj, err := fileOpen(ctx, name, flags, acfg, ts)
	observe(core.KindFile, "open", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return obj, nil
}

func fileOpen(ctx context.Context, name string, flags core.FileFlags, acfg *config.AccessConfig, ts *core.TokenSlot) (*Object, error) {
	prop, err := accessProperty(acfg)
	if err != nil {
		return nil, err
	}

	obj, origErr := fileOpenTry(ctx, name, flags, prop, ts)
	if origErr == nil {
		return obj, nil
	}

	// An explicit connector choice is never substituted.
	if !acfg.IsDefaultConnector() {
		return nil, origErr
	}

	cand := discoverAccessible(ctx, name)
	if cand == nil {
		return nil, origErr
	}

	// The first attempt's failure is noise now, not a real error.
	errors.ClearStack()
	logger.Get().Info("retrying file open with discovered connector",
		zap.String("file", name), zap.String("connector", cand.inst.Name()))

	obj, err = fileOpenTry(ctx, name, flags, cand.prop, ts)
	if err != nil {
		err = errors.Wrapf(err, errors.ErrorTypeBackend,
			"open of %s failed with discovered connector %s", name, cand.inst.Name())
	}
	cand.release()
	return obj, err
}

// fileOpenTry performs one open attempt with a concrete connector property
func fileOpenTry(ctx context.Context, name string, flags core.FileFlags, prop *registry.Property, ts *core.TokenSlot) (*Object, error) {
	cls := prop.Instance.Class()
	if cls.File == nil || cls.File.Open == nil {
		return nil, errUnsupported(cls, "file open")
	}

	raw, err := cls.File.Open(ctx, name, flags, prop.Info, ts)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeBackend,
			"connector %s failed to open file %s", cls.Name, name)
	}

	return wrapFileRoot(ctx, raw, prop)
}

// wrapFileRoot binds a freshly opened backend root into a Container and
// file Object. The container owns its own copy of the property; on any
// wrapping failure the backend file is closed again.
func wrapFileRoot(ctx context.Context, raw interface{}, prop *registry.Property) (*Object, error) {
	cls := prop.Instance.Class()

	contProp, err := prop.Copy()
	if err == nil {
		var cont *Container
		cont, err = NewContainer(raw, contProp)
		if err == nil {
			return newObject(core.KindFile, nil, cont, true), nil
		}
		if ferr := contProp.Free(); ferr != nil {
			errors.RaiseOnUnwind(ferr)
		}
	}

	if cls.File.Close != nil {
		if cerr := cls.File.Close(ctx, raw, nil); cerr != nil {
			errors.RaiseOnUnwind(errors.Wrapf(cerr, errors.ErrorTypeBackend,
				"failed to close file after wrap failure"))
		}
	}
	return nil, err
}

// candidate is one tentatively registered connector during fallback
// discovery
type candidate struct {
	inst *registry.Instance
	prop *registry.Property
}

// release drops the discovery-time references. When the open succeeded the
// container holds its own property copy, so the instance survives until
// the file closes.
func (c *candidate) release() {
	if err := c.prop.Free(); err != nil {
		errors.RaiseOnUnwind(err)
	}
	if err := registry.Unregister(c.inst); err != nil {
		errors.RaiseOnUnwind(err)
	}
}

// discoverAccessible scans discoverable connector plugins for the first
// one that reports the named resource accessible. Non-chosen candidates
// are unregistered before the scan moves on; the chosen candidate is
// returned still registered.
func discoverAccessible(ctx context.Context, name string) *candidate {
	var found *candidate

	err := plugin.Iterate(func(class *core.ConnectorClass) (plugin.Action, error) {
		if !registry.Match(class, registry.KeyByName(class.Name)) {
			// wrong descriptor version; not an error, keep scanning
			return plugin.Continue, nil
		}

		inst, rerr := registry.Register(class, nil)
		if rerr != nil {
			logger.Get().Debug("discovery candidate failed to register",
				zap.String("connector", class.Name), zap.Error(rerr))
			return plugin.Continue, nil
		}

		prop, perr := registry.NewProperty(inst, nil)
		if perr != nil {
			_ = registry.Unregister(inst)
			return plugin.Continue, nil
		}

		if fileIsAccessible(ctx, class, name, prop.Info) {
			found = &candidate{inst: inst, prop: prop}
			return plugin.Stop, nil
		}

		if ferr := prop.Free(); ferr != nil {
			errors.RaiseOnUnwind(ferr)
		}
		if uerr := registry.Unregister(inst); uerr != nil {
			errors.RaiseOnUnwind(uerr)
		}
		return plugin.Continue, nil
	})
	if err != nil {
		// The scan machinery itself failed; the original open failure is
		// what gets reported.
		logger.Get().Warn("connector discovery scan failed", zap.Error(err))
		return nil
	}
	return found
}

// fileIsAccessible probes a candidate with errors suppressed. A connector
// lacking the probe operation simply does not match; it must not abort the
// scan.
func fileIsAccessible(ctx context.Context, class *core.ConnectorClass, name string, info interface{}) bool {
	if class.File == nil || class.File.Specific == nil {
		return false
	}

	accessible := false
	args := &core.OpArgs{
		Op:  core.OpFileIsAccessible,
		In:  &core.AccessibleArgs{Name: name, Info: info},
		Out: &accessible,
	}
	if _, err := class.File.Specific(ctx, nil, args, nil); err != nil {
		return false
	}
	return accessible
}

// accessProperty resolves the access configuration against the global
// registry if the caller has not done so already
func accessProperty(acfg *config.AccessConfig) (*registry.Property, error) {
	if acfg == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "access configuration is nil")
	}
	if acfg.Property() == nil {
		if err := acfg.Resolve(registry.GetRegistry()); err != nil {
			return nil, err
		}
	}
	return acfg.Property(), nil
}

// FileGet dispatches a file get operation
func FileGet(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := fileGet(ctx, o, args, ts)
	observe(core.KindFile, "get", timer, err)
	return fail(err)
}

func fileGet(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) error {
	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.File == nil || cls.File.Get == nil {
		return errUnsupported(cls, "file get")
	}
	return backendErr(cls.File.Get(ctx, actual, args, ts), cls, "file get")
}

// FileSpecific dispatches a file specific operation. The callback's raw
// return value is propagated verbatim; it drives iteration protocols where
// a positive value means stop, not just success.
func FileSpecific(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := fileSpecific(ctx, o, args, ts)
	observe(core.KindFile, "specific", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func fileSpecific(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.File == nil || cls.File.Specific == nil {
		return 0, errUnsupported(cls, "file specific")
	}
	return cls.File.Specific(ctx, actual, args, ts)
}

// FileOptional dispatches a file optional operation, propagating the raw
// return value like FileSpecific
func FileOptional(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	timer := metrics.NewTimer()
	ret, err := fileOptional(ctx, o, args, ts)
	observe(core.KindFile, "optional", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func fileOptional(ctx context.Context, o *Object, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.File == nil || cls.File.Optional == nil {
		return 0, errUnsupported(cls, "file optional")
	}
	return cls.File.Optional(ctx, actual, args, ts)
}

// FileClose closes the container's root resource and frees the file
// object; the container itself is released with it.
func FileClose(ctx context.Context, o *Object, ts *core.TokenSlot) error {
	timer := metrics.NewTimer()
	err := fileClose(ctx, o, ts)
	observe(core.KindFile, "close", timer, err)
	return fail(err)
}

func fileClose(ctx context.Context, o *Object, ts *core.TokenSlot) error {
	actual, cls, err := o.resolve()
	if err != nil {
		return err
	}
	release := ctxStack().Bind(o.container)

	if cls.File == nil || cls.File.Close == nil {
		release()
		return errUnsupported(cls, "file close")
	}
	err = backendErr(cls.File.Close(ctx, actual, ts), cls, "file close")
	release()
	if err != nil {
		return err
	}
	return o.free()
}
