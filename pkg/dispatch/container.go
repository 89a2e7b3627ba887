// Package dispatch implements the storage-connector dispatch core: the
// resolve, context, invoke protocol applied uniformly to every entity
// operation, plus the object-lifetime bookkeeping around each call.
//
// Callers never see which connector is in effect. Every operation resolves
// an Object to its backend pointer and connector class, binds the object's
// container on the execution-context stack, invokes the matching callback
// from the class's capability tables, and wraps any newly created backend
// pointer into a fresh Object before returning it.
package dispatch

import (
	"context"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/connector/registry"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/metrics"
)

// Container represents one opened root resource together with the
// connector instance that produced it and the connector property used to
// open it. Every entity reached while traversing the resource shares the
// container.
type Container struct {
	root any
	prop *registry.Property
}

// NewContainer binds an already-opened backend root pointer to the
// connector property that produced it. Ownership of the property transfers
// to the container; it does not open anything itself.
func NewContainer(root interface{}, prop *registry.Property) (*Container, error) {
	if root == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "container root pointer is nil")
	}
	if prop == nil || prop.Instance == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "container connector property is nil")
	}

	metrics.ActiveContainers.Inc()
	return &Container{root: root, prop: prop}, nil
}

// Root returns the backend pointer of the opened root resource
func (c *Container) Root() interface{} {
	return c.root
}

// Instance returns the connector instance backing the container
func (c *Container) Instance() *registry.Instance {
	return c.prop.Instance
}

// Class returns the connector class backing the container
func (c *Container) Class() *core.ConnectorClass {
	return c.prop.Instance.Class()
}

// ConnectorName returns the backing connector's name
func (c *Container) ConnectorName() string {
	return c.prop.Instance.Name()
}

// close releases the container's connector property. Runs when the owning
// object handle closes.
func (c *Container) close() error {
	metrics.ActiveContainers.Dec()
	err := c.prop.Free()
	c.root = nil
	return err
}

// containerForObject accommodates entities that belong to a different root
// resource than their parent, e.g. a dataset reached through an external
// link. When the connector reports a different underlying root, a new
// Container is created transparently; otherwise the fallback is reused.
// This step is mandatory after every create/open of a non-file entity.
func containerForObject(ctx context.Context, obj interface{}, fallback *Container) (*Container, error) {
	cls := fallback.Class()
	if cls.Wrap == nil || cls.Wrap.GetContainer == nil {
		return fallback, nil
	}

	rootObj, err := cls.Wrap.GetContainer(ctx, obj)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeBackend,
			"connector %s failed to report the object's container", cls.Name)
	}
	if rootObj == nil || rootObj == fallback.root {
		return fallback, nil
	}

	prop, err := fallback.prop.Copy()
	if err != nil {
		return nil, err
	}
	return NewContainer(rootObj, prop)
}
