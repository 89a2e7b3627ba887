package registry

import (
	"github.com/ajitpratap0/stratum/pkg/errors"
)

// Property carries "which connector, configured how" through configuration
// objects before any resource is open. It holds one reference to its
// instance for its whole lifetime.
type Property struct {
	Instance *Instance
	Info     interface{}
}

// NewProperty acquires an instance reference and binds the info blob
func NewProperty(inst *Instance, info interface{}) (*Property, error) {
	if inst == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "connector instance is nil")
	}
	inst.Ref()
	return &Property{Instance: inst, Info: info}, nil
}

// Copy deep-copies the property. The info blob is cloned through the
// class's copy callback when one exists; otherwise the value is carried
// over as-is, which is correct for immutable info blobs.
func (p *Property) Copy() (*Property, error) {
	if p == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "connector property is nil")
	}

	info := p.Info
	if info != nil {
		cls := p.Instance.Class()
		if cls.Info != nil && cls.Info.Copy != nil {
			clone, err := cls.Info.Copy(info)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrorTypeBackend,
					"connector %s failed to copy info", p.Instance.Name())
			}
			info = clone
		}
	}

	p.Instance.Ref()
	return &Property{Instance: p.Instance, Info: info}, nil
}

// Free releases the info blob and the instance reference. Safe to call once
// per property; a second call is a caller bug.
func (p *Property) Free() error {
	if p == nil {
		return nil
	}

	var ferr error
	if p.Info != nil {
		cls := p.Instance.Class()
		if cls.Info != nil && cls.Info.Free != nil {
			if err := cls.Info.Free(p.Info); err != nil {
				ferr = errors.Wrapf(err, errors.ErrorTypeBackend,
					"connector %s failed to free info", p.Instance.Name())
			}
		}
		p.Info = nil
	}

	if err := p.Instance.Unref(); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}
