package dispatch

import (
	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
)

// Object is the dispatch layer's record for one open entity: which
// container it belongs to, what kind of entity it is, and the opaque
// backend pointer.
//
// For the file kind the backend pointer is nil; the file's actual object
// always lives in the Container, and resolution reads it from there.
type Object struct {
	kind      core.ObjectKind
	data      interface{}
	container *Container

	// owns marks the handle whose close also closes the container: the
	// file handle, or a non-file handle whose accommodation step produced
	// a fresh container.
	owns   bool
	closed bool
}

// NewObject wraps a backend pointer produced outside the dispatch layer.
// Embedders stacking connectors use this; dispatch operations wrap their
// own results.
func NewObject(kind core.ObjectKind, data interface{}, container *Container) *Object {
	return &Object{kind: kind, data: data, container: container}
}

func newObject(kind core.ObjectKind, data interface{}, container *Container, owns bool) *Object {
	return &Object{kind: kind, data: data, container: container, owns: owns}
}

// Kind returns the entity kind of the object
func (o *Object) Kind() core.ObjectKind {
	return o.kind
}

// Container returns the container the object belongs to
func (o *Object) Container() *Container {
	return o.container
}

// Data returns the opaque backend pointer (nil for file objects)
func (o *Object) Data() interface{} {
	return o.data
}

// resolve computes the actual backend object to hand to the connector and
// the connector class to invoke. File objects always resolve through the
// container; every other kind resolves through its own pointer.
func (o *Object) resolve() (interface{}, *core.ConnectorClass, error) {
	if o == nil {
		return nil, nil, errors.New(errors.ErrorTypeValidation, "object is nil")
	}
	if o.closed {
		return nil, nil, errors.Newf(errors.ErrorTypeHandle, "%s object is closed", o.kind)
	}
	if o.container == nil {
		return nil, nil, errors.Newf(errors.ErrorTypeValidation, "%s object has no container", o.kind)
	}

	cls := o.container.Class()
	if o.kind == core.KindFile {
		return o.container.root, cls, nil
	}
	if o.data == nil {
		return nil, nil, errors.Newf(errors.ErrorTypeValidation, "%s object has no backend pointer", o.kind)
	}
	return o.data, cls, nil
}

// free releases the handle after a successful backend close. Closing the
// owning handle also closes the container.
func (o *Object) free() error {
	o.closed = true
	o.data = nil
	if o.owns && o.container != nil {
		err := o.container.close()
		o.container = nil
		return err
	}
	o.container = nil
	return nil
}
