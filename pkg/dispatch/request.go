package dispatch

import (
	"context"
	"time"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/connector/registry"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/metrics"
)

// Request tracks one in-flight asynchronous operation: the connector's
// opaque token plus a reference on the connector instance that produced it,
// so the connector cannot terminate while the request is outstanding.
type Request struct {
	token interface{}
	inst  *registry.Instance
}

// NewRequest wraps a connector-produced in-flight token. The request takes
// its own reference on the instance; Free releases it.
func NewRequest(token interface{}, inst *registry.Instance) (*Request, error) {
	if token == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "async request token is nil")
	}
	if inst == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "async request instance is nil")
	}
	inst.Ref()
	metrics.AsyncRequests.Inc()
	return &Request{token: token, inst: inst}, nil
}

// RequestFromSlot wraps the token an async dispatch left in the slot,
// attributing it to the container's connector. Returns nil without error
// when the slot is empty: the connector executed synchronously.
func RequestFromSlot(ts *core.TokenSlot, cont *Container) (*Request, error) {
	if ts == nil || ts.Token == nil {
		return nil, nil
	}
	return NewRequest(ts.Token, cont.Instance())
}

// Token returns the connector's opaque in-flight token
func (r *Request) Token() interface{} {
	return r.token
}

// Connector returns the instance the request runs on
func (r *Request) Connector() *registry.Instance {
	return r.inst
}

func (r *Request) table() (*core.RequestTable, *core.ConnectorClass, error) {
	cls := r.inst.Class()
	if cls.Request == nil {
		return nil, cls, errUnsupported(cls, "async requests")
	}
	return cls.Request, cls, nil
}

// Wait blocks until the request completes or the timeout elapses and
// returns its status
func (r *Request) Wait(ctx context.Context, timeout time.Duration) (core.RequestStatus, error) {
	tbl, cls, err := r.table()
	if err != nil {
		return 0, fail(err)
	}
	if tbl.Wait == nil {
		return 0, fail(errUnsupported(cls, "request wait"))
	}

	status, err := tbl.Wait(ctx, r.token, timeout)
	if err != nil {
		return status, fail(backendErr(err, cls, "request wait"))
	}
	return status, nil
}

// Cancel attempts to cancel the request and reports the resulting status;
// StatusCantCancel means it was already past the point of cancellation
func (r *Request) Cancel(ctx context.Context) (core.RequestStatus, error) {
	tbl, cls, err := r.table()
	if err != nil {
		return 0, fail(err)
	}
	if tbl.Cancel == nil {
		return 0, fail(errUnsupported(cls, "request cancel"))
	}

	status, err := tbl.Cancel(ctx, r.token)
	if err != nil {
		return status, fail(backendErr(err, cls, "request cancel"))
	}
	return status, nil
}

// Notify registers a completion callback on the request
func (r *Request) Notify(ctx context.Context, cb core.NotifyFunc) error {
	tbl, cls, err := r.table()
	if err != nil {
		return fail(err)
	}
	if tbl.Notify == nil {
		return fail(errUnsupported(cls, "request notify"))
	}
	return fail(backendErr(tbl.Notify(ctx, r.token, cb), cls, "request notify"))
}

// Specific dispatches a request specific operation, propagating the
// callback's raw return value
func (r *Request) Specific(ctx context.Context, args *core.OpArgs) (int, error) {
	tbl, cls, err := r.table()
	if err != nil {
		return 0, fail(err)
	}
	if tbl.Specific == nil {
		return 0, fail(errUnsupported(cls, "request specific"))
	}

	ret, err := tbl.Specific(ctx, r.token, args)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

// Optional dispatches a request optional operation, propagating the
// callback's raw return value
func (r *Request) Optional(ctx context.Context, args *core.OpArgs) (int, error) {
	tbl, cls, err := r.table()
	if err != nil {
		return 0, fail(err)
	}
	if tbl.Optional == nil {
		return 0, fail(errUnsupported(cls, "request optional"))
	}

	ret, err := tbl.Optional(ctx, r.token, args)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

// Free releases the request: the connector's token first, then the
// instance reference taken at creation. Freeing a request twice is a
// caller defect, exactly like closing an object twice.
func (r *Request) Free(ctx context.Context) error {
	cls := r.inst.Class()
	var err error
	if cls.Request != nil && cls.Request.Free != nil {
		err = backendErr(cls.Request.Free(ctx, r.token), cls, "request free")
	}

	metrics.AsyncRequests.Dec()
	if uerr := r.inst.Unref(); uerr != nil && err == nil {
		err = uerr
	}
	r.token = nil
	r.inst = nil
	return fail(err)
}
