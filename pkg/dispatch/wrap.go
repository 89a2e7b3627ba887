package dispatch

import (
	"context"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/metrics"
)

// ObjectWrap asks the object's connector to wrap a raw backend pointer
// produced by a nested connector, under a previously obtained wrap context
func ObjectWrap(ctx context.Context, o *Object, raw interface{}, kind core.ObjectKind, wrapCtx interface{}) (interface{}, error) {
	timer := metrics.NewTimer()
	wrapped, err := objectWrap(ctx, o, raw, kind, wrapCtx)
	observe(kind, "wrap", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return wrapped, nil
}

func objectWrap(ctx context.Context, o *Object, raw interface{}, kind core.ObjectKind, wrapCtx interface{}) (interface{}, error) {
	_, cls, err := o.resolve()
	if err != nil {
		return nil, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Wrap == nil || cls.Wrap.WrapObject == nil {
		return nil, errUnsupported(cls, "object wrap")
	}

	wrapped, err := cls.Wrap.WrapObject(ctx, raw, kind, wrapCtx)
	if err != nil {
		return nil, backendErr(err, cls, "object wrap")
	}
	return wrapped, nil
}

// ObjectUnwrap recovers the nested connector's raw pointer from a wrapped
// object
func ObjectUnwrap(ctx context.Context, o *Object) (interface{}, error) {
	timer := metrics.NewTimer()
	raw, err := objectUnwrap(ctx, o)
	observe(o.Kind(), "unwrap", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return raw, nil
}

func objectUnwrap(ctx context.Context, o *Object) (interface{}, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return nil, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Wrap == nil || cls.Wrap.UnwrapObject == nil {
		return nil, errUnsupported(cls, "object unwrap")
	}

	raw, err := cls.Wrap.UnwrapObject(ctx, actual)
	if err != nil {
		return nil, backendErr(err, cls, "object unwrap")
	}
	return raw, nil
}

// WrapCtxGet obtains a wrap context from the object's connector for later
// ObjectWrap calls. The caller releases it with WrapCtxFree.
func WrapCtxGet(ctx context.Context, o *Object) (interface{}, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return nil, fail(err)
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Wrap == nil || cls.Wrap.GetWrapCtx == nil {
		return nil, fail(errUnsupported(cls, "wrap context get"))
	}

	wrapCtx, err := cls.Wrap.GetWrapCtx(ctx, actual)
	if err != nil {
		return nil, fail(backendErr(err, cls, "wrap context get"))
	}
	return wrapCtx, nil
}

// WrapCtxFree releases a wrap context obtained from the object's connector
func WrapCtxFree(ctx context.Context, o *Object, wrapCtx interface{}) error {
	_, cls, err := o.resolve()
	if err != nil {
		return fail(err)
	}

	if cls.Wrap == nil || cls.Wrap.FreeWrapCtx == nil {
		return fail(errUnsupported(cls, "wrap context free"))
	}
	return fail(backendErr(cls.Wrap.FreeWrapCtx(ctx, wrapCtx), cls, "wrap context free"))
}
