package dispatch

import (
	"context"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/metrics"
)

// BlobPut stores buf as a variable-length blob in the object's container
// and returns its connector-assigned identifier
func BlobPut(ctx context.Context, o *Object, buf []byte) (core.BlobID, error) {
	timer := metrics.NewTimer()
	id, err := blobPut(ctx, o, buf)
	observe(o.Kind(), "blob.put", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return id, nil
}

func blobPut(ctx context.Context, o *Object, buf []byte) (core.BlobID, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return nil, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Blob == nil || cls.Blob.Put == nil {
		return nil, errUnsupported(cls, "blob put")
	}

	id, err := cls.Blob.Put(ctx, actual, buf)
	if err != nil {
		return nil, backendErr(err, cls, "blob put")
	}
	return id, nil
}

// BlobGet retrieves the blob identified by id from the object's container
func BlobGet(ctx context.Context, o *Object, id core.BlobID) ([]byte, error) {
	timer := metrics.NewTimer()
	buf, err := blobGet(ctx, o, id)
	observe(o.Kind(), "blob.get", timer, err)
	if err != nil {
		return nil, fail(err)
	}
	return buf, nil
}

func blobGet(ctx context.Context, o *Object, id core.BlobID) ([]byte, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return nil, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Blob == nil || cls.Blob.Get == nil {
		return nil, errUnsupported(cls, "blob get")
	}

	buf, err := cls.Blob.Get(ctx, actual, id)
	if err != nil {
		return nil, backendErr(err, cls, "blob get")
	}
	return buf, nil
}

// BlobSpecific dispatches a blob specific operation such as delete or an
// existence probe, propagating the callback's raw return value
func BlobSpecific(ctx context.Context, o *Object, id core.BlobID, args *core.OpArgs) (int, error) {
	timer := metrics.NewTimer()
	ret, err := blobSpecific(ctx, o, id, args)
	observe(o.Kind(), "blob.specific", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func blobSpecific(ctx context.Context, o *Object, id core.BlobID, args *core.OpArgs) (int, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Blob == nil || cls.Blob.Specific == nil {
		return 0, errUnsupported(cls, "blob specific")
	}
	return cls.Blob.Specific(ctx, actual, id, args)
}

// BlobOptional dispatches a blob optional operation, propagating the
// callback's raw return value
func BlobOptional(ctx context.Context, o *Object, id core.BlobID, args *core.OpArgs) (int, error) {
	timer := metrics.NewTimer()
	ret, err := blobOptional(ctx, o, id, args)
	observe(o.Kind(), "blob.optional", timer, err)
	if err != nil {
		errors.Raise(err)
	}
	return ret, err
}

func blobOptional(ctx context.Context, o *Object, id core.BlobID, args *core.OpArgs) (int, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return 0, err
	}
	release := ctxStack().Bind(o.container)
	defer release()

	if cls.Blob == nil || cls.Blob.Optional == nil {
		return 0, errUnsupported(cls, "blob optional")
	}
	return cls.Blob.Optional(ctx, actual, id, args)
}
