package dispatch

import (
	"context"

	"github.com/ajitpratap0/stratum/pkg/callctx"
	"github.com/ajitpratap0/stratum/pkg/config"
	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/logger"
	"github.com/ajitpratap0/stratum/pkg/metrics"
	"go.uber.org/zap"
)

// ctxStack returns the execution-context stack dispatch calls bind their
// containers on
func ctxStack() *callctx.Stack {
	return callctx.Default()
}

// errUnsupported reports a missing connector callback. Always recoverable:
// the caller may feature-detect or try another connector.
func errUnsupported(cls *core.ConnectorClass, op string) error {
	return errors.Newf(errors.ErrorTypeUnsupported, "connector %s does not support %s", cls.Name, op)
}

// backendErr wraps a connector callback failure
func backendErr(err error, cls *core.ConnectorClass, what string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, errors.ErrorTypeBackend, "connector %s: %s failed", cls.Name, what)
}

// fail records the first failure on the error stack and returns it. Every
// exported wrapper funnels its error through here exactly once.
func fail(err error) error {
	if err != nil {
		errors.Raise(err)
	}
	return err
}

// observe records metrics for one dispatched operation
func observe(kind core.ObjectKind, op string, timer *metrics.Timer, err error) {
	metrics.ObserveDispatch(kind.String(), op, err, timer.Stop())
}

// closerFor adapts a close callback into the cleanup shape wrapCreated
// needs, or nil when the connector has no close for the kind
func closerFor(fn func(context.Context, interface{}, *core.TokenSlot) error) func(context.Context, interface{}) error {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, raw interface{}) error {
		// cleanup closes run synchronously; no async token
		return fn(ctx, raw, nil)
	}
}

// wrapCreated turns a raw backend pointer returned by a create/open
// callback into a new Object, running the container accommodation step
// first. If wrapping fails the backend object is closed again exactly
// once; the backend resource must not outlive the failed handle.
func wrapCreated(ctx context.Context, kind core.ObjectKind, raw interface{}, parent *Container, closeFn func(context.Context, interface{}) error) (*Object, error) {
	cont, err := containerForObject(ctx, raw, parent)
	if err == nil {
		return newObject(kind, raw, cont, cont != parent), nil
	}

	if closeFn != nil {
		if cerr := closeFn(ctx, raw); cerr != nil {
			errors.RaiseOnUnwind(errors.Wrapf(cerr, errors.ErrorTypeBackend,
				"failed to close %s after wrap failure", kind))
			logger.Get().Warn("backend close failed during create unwind",
				zap.String("kind", kind.String()), zap.Error(cerr))
		}
	}
	return nil, err
}

// enterWrappedMode handles the recursive dispatch mode: the object
// parameter is a dispatch handle instead of a raw backend pointer, and the
// call runs under a fresh execution context. The transfer flag is turned
// off before delegating so nested calls never inherit it; the returned
// restore function puts it back.
func enterWrappedMode(obj interface{}, tcfg *config.TransferConfig) (*Object, func(), error) {
	o, ok := obj.(*Object)
	if !ok || o == nil {
		return nil, nil, errors.New(errors.ErrorTypeValidation,
			"wrapped-parameter mode requires a dispatch object handle")
	}

	tcfg.WrappedParams = false
	release := ctxStack().Bind(o.container)
	restore := func() {
		release()
		tcfg.WrappedParams = true
	}
	return o, restore, nil
}

// wrappedMode reports whether a transfer configuration requests the
// recursive dispatch mode
func wrappedMode(tcfg *config.TransferConfig) bool {
	return tcfg != nil && tcfg.WrappedParams
}
