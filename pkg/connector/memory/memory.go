// Package memory implements the in-memory connector.
//
// Containers live in a process-wide store keyed by name, so a container
// closed and reopened within one process keeps its contents. Everything
// executes synchronously; when a caller requests async execution the
// connector completes the work inline and hands back an already-finished
// request token.
//
// The connector deliberately registers no token table. Its location tokens
// are plain paths, so the dispatch layer's byte-wise comparison is exactly
// the right ordering.
package memory

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/plugin"
)

// Name is the connector name
const Name = "mem"

// Value is the connector's numeric identity
const Value = 9999

func init() {
	plugin.Register(Name, Class)
}

// store holds every container created in this process
var store = struct {
	mu    sync.Mutex
	files map[string]*file
}{files: make(map[string]*file)}

type file struct {
	name     string
	mu       sync.RWMutex
	root     *group
	blobs    map[uint64][]byte
	nextBlob uint64
}

type group struct {
	file     *file
	name     string
	children map[string]interface{}
	attrs    map[string]*attribute
}

type dataset struct {
	file  *file
	name  string
	data  []byte
	attrs map[string]*attribute
}

type datatype struct {
	file  *file
	name  string
	def   interface{}
	attrs map[string]*attribute
}

type attribute struct {
	name  string
	value interface{}
}

type request struct {
	status core.RequestStatus
}

func newFile(name string) *file {
	f := &file{name: name, blobs: make(map[uint64][]byte)}
	f.root = &group{file: f, name: "/", children: make(map[string]interface{}), attrs: make(map[string]*attribute)}
	return f
}

// complete fills the async slot with a finished token when one was asked
// for; all work already happened synchronously
func complete(ts *core.TokenSlot) {
	if ts != nil {
		ts.Token = &request{status: core.StatusSucceeded}
	}
}

func fileOf(obj interface{}) (*file, error) {
	switch v := obj.(type) {
	case *file:
		return v, nil
	case *group:
		return v.file, nil
	case *dataset:
		return v.file, nil
	case *datatype:
		return v.file, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeHandle, "not a memory connector object: %T", obj)
	}
}

func attrsOf(obj interface{}) (map[string]*attribute, error) {
	switch v := obj.(type) {
	case *file:
		return v.root.attrs, nil
	case *group:
		return v.attrs, nil
	case *dataset:
		return v.attrs, nil
	case *datatype:
		return v.attrs, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeHandle, "not a memory connector object: %T", obj)
	}
}

// locate walks a location from obj to the addressed entity. Callers hold
// the file lock.
func locate(obj interface{}, loc *core.Location) (interface{}, error) {
	base := obj
	if f, ok := obj.(*file); ok {
		base = f.root
	}
	if loc == nil || loc.Kind == core.LocSelf {
		return base, nil
	}

	var path string
	switch loc.Kind {
	case core.LocName:
		path = loc.Name
	case core.LocToken:
		// tokens are absolute paths; walk them from the root
		f, err := fileOf(obj)
		if err != nil {
			return nil, err
		}
		base = f.root
		path = string(loc.Token)
	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "memory connector cannot address by location kind %d", loc.Kind)
	}

	cur := base
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" || seg == "." {
			continue
		}
		g, ok := cur.(*group)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeNotFound, "%s is not a group", seg)
		}
		child, ok := g.children[seg]
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeNotFound, "no such entity %s", seg)
		}
		cur = child
	}
	return cur, nil
}

// parentFor resolves loc to the group a new child named name goes into
func parentFor(obj interface{}, loc *core.Location) (*group, error) {
	target, err := locate(obj, loc)
	if err != nil {
		return nil, err
	}
	g, ok := target.(*group)
	if !ok {
		return nil, errors.New(errors.ErrorTypeValidation, "parent location is not a group")
	}
	return g, nil
}

func tokenFor(obj interface{}) core.Token {
	switch v := obj.(type) {
	case *group:
		return core.Token(v.name)
	case *dataset:
		return core.Token(v.name)
	case *datatype:
		return core.Token(v.name)
	default:
		return nil
	}
}

func childPath(parent *group, name string) string {
	if parent.name == "/" {
		return "/" + name
	}
	return parent.name + "/" + name
}

// Class returns the connector class descriptor
func Class() *core.ConnectorClass {
	return &core.ConnectorClass{
		Name:    Name,
		Value:   Value,
		Version: core.ClassVersion,
		Capabilities: core.CapAsync | core.CapAttributes | core.CapLinks |
			core.CapBlobs | core.CapAccessible,

		Wrap: &core.WrapTable{
			GetContainer: func(ctx context.Context, obj interface{}) (interface{}, error) {
				f, err := fileOf(obj)
				if err != nil {
					return nil, err
				}
				return f, nil
			},
		},

		File:      fileTable(),
		Group:     groupTable(),
		Dataset:   datasetTable(),
		Datatype:  datatypeTable(),
		Attribute: attributeTable(),
		Link:      linkTable(),
		Object:    objectTable(),
		Blob:      blobTable(),
		Request:   requestTable(),
	}
}

func fileTable() *core.FileTable {
	return &core.FileTable{
		Create: func(ctx context.Context, name string, flags core.FileFlags, info interface{}, ts *core.TokenSlot) (interface{}, error) {
			store.mu.Lock()
			defer store.mu.Unlock()

			if existing, ok := store.files[name]; ok {
				if flags&core.FlagExclusive != 0 {
					return nil, errors.Newf(errors.ErrorTypeBackend, "container %s already exists", name)
				}
				if flags&core.FlagTruncate == 0 {
					complete(ts)
					return existing, nil
				}
			}
			f := newFile(name)
			store.files[name] = f
			complete(ts)
			return f, nil
		},

		Open: func(ctx context.Context, name string, flags core.FileFlags, info interface{}, ts *core.TokenSlot) (interface{}, error) {
			store.mu.Lock()
			defer store.mu.Unlock()

			f, ok := store.files[name]
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "no container named %s", name)
			}
			complete(ts)
			return f, nil
		},

		Specific: func(ctx context.Context, obj interface{}, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
			switch args.Op {
			case core.OpFileIsAccessible:
				in, ok := args.In.(*core.AccessibleArgs)
				if !ok {
					return 0, errors.New(errors.ErrorTypeValidation, "is_accessible needs AccessibleArgs input")
				}
				out, ok := args.Out.(*bool)
				if !ok {
					return 0, errors.New(errors.ErrorTypeValidation, "is_accessible needs *bool output")
				}
				store.mu.Lock()
				_, *out = store.files[in.Name]
				store.mu.Unlock()
				complete(ts)
				return 0, nil

			case core.OpFileFlush:
				// nothing to persist
				complete(ts)
				return 0, nil

			default:
				return 0, errors.Newf(errors.ErrorTypeUnsupported, "unknown file operation %s", args.Op)
			}
		},

		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error {
			// the container stays in the store; close only ends this handle
			if _, err := fileOf(obj); err != nil {
				return err
			}
			complete(ts)
			return nil
		},
	}
}

func groupTable() *core.GroupTable {
	return &core.GroupTable{
		Create: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			f.mu.Lock()
			defer f.mu.Unlock()

			parent, err := parentFor(obj, loc)
			if err != nil {
				return nil, err
			}
			if _, ok := parent.children[name]; ok {
				return nil, errors.Newf(errors.ErrorTypeBackend, "entity %s already exists", name)
			}
			g := &group{file: f, name: childPath(parent, name),
				children: make(map[string]interface{}), attrs: make(map[string]*attribute)}
			parent.children[name] = g
			complete(ts)
			return g, nil
		},

		Open: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			f.mu.RLock()
			defer f.mu.RUnlock()

			parent, err := parentFor(obj, loc)
			if err != nil {
				return nil, err
			}
			child, ok := parent.children[name]
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "no such group %s", name)
			}
			g, ok := child.(*group)
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeBackend, "%s is not a group", name)
			}
			complete(ts)
			return g, nil
		},

		Get: func(ctx context.Context, obj interface{}, args *core.OpArgs, ts *core.TokenSlot) error {
			g, ok := obj.(*group)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not a group object")
			}
			switch args.Op {
			case "group.nchildren":
				out, ok := args.Out.(*int)
				if !ok {
					return errors.New(errors.ErrorTypeValidation, "group.nchildren needs *int output")
				}
				g.file.mu.RLock()
				*out = len(g.children)
				g.file.mu.RUnlock()
				complete(ts)
				return nil
			default:
				return errors.Newf(errors.ErrorTypeUnsupported, "unknown group operation %s", args.Op)
			}
		},

		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error {
			if _, ok := obj.(*group); !ok {
				return errors.New(errors.ErrorTypeHandle, "not a group object")
			}
			complete(ts)
			return nil
		},
	}
}

func datasetTable() *core.DatasetTable {
	return &core.DatasetTable{
		Create: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			f.mu.Lock()
			defer f.mu.Unlock()

			parent, err := parentFor(obj, loc)
			if err != nil {
				return nil, err
			}
			if _, ok := parent.children[name]; ok {
				return nil, errors.Newf(errors.ErrorTypeBackend, "entity %s already exists", name)
			}
			ds := &dataset{file: f, name: childPath(parent, name), attrs: make(map[string]*attribute)}
			parent.children[name] = ds
			complete(ts)
			return ds, nil
		},

		Open: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			f.mu.RLock()
			defer f.mu.RUnlock()

			parent, err := parentFor(obj, loc)
			if err != nil {
				return nil, err
			}
			child, ok := parent.children[name]
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "no such dataset %s", name)
			}
			ds, ok := child.(*dataset)
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeBackend, "%s is not a dataset", name)
			}
			complete(ts)
			return ds, nil
		},

		Read: func(ctx context.Context, obj interface{}, io *core.IOArgs, ts *core.TokenSlot) error {
			ds, ok := obj.(*dataset)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not a dataset object")
			}
			ds.file.mu.RLock()
			defer ds.file.mu.RUnlock()

			if io.Offset < 0 || io.Offset > int64(len(ds.data)) {
				return errors.Newf(errors.ErrorTypeValidation, "read offset %d out of range", io.Offset)
			}
			copy(io.Buf, ds.data[io.Offset:])
			complete(ts)
			return nil
		},

		Write: func(ctx context.Context, obj interface{}, io *core.IOArgs, ts *core.TokenSlot) error {
			ds, ok := obj.(*dataset)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not a dataset object")
			}
			ds.file.mu.Lock()
			defer ds.file.mu.Unlock()

			if io.Offset < 0 {
				return errors.Newf(errors.ErrorTypeValidation, "write offset %d out of range", io.Offset)
			}
			end := io.Offset + int64(len(io.Buf))
			if end > int64(len(ds.data)) {
				grown := make([]byte, end)
				copy(grown, ds.data)
				ds.data = grown
			}
			copy(ds.data[io.Offset:], io.Buf)
			complete(ts)
			return nil
		},

		Get: func(ctx context.Context, obj interface{}, args *core.OpArgs, ts *core.TokenSlot) error {
			ds, ok := obj.(*dataset)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not a dataset object")
			}
			switch args.Op {
			case "dataset.size":
				out, ok := args.Out.(*int64)
				if !ok {
					return errors.New(errors.ErrorTypeValidation, "dataset.size needs *int64 output")
				}
				ds.file.mu.RLock()
				*out = int64(len(ds.data))
				ds.file.mu.RUnlock()
				complete(ts)
				return nil
			default:
				return errors.Newf(errors.ErrorTypeUnsupported, "unknown dataset operation %s", args.Op)
			}
		},

		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error {
			if _, ok := obj.(*dataset); !ok {
				return errors.New(errors.ErrorTypeHandle, "not a dataset object")
			}
			complete(ts)
			return nil
		},
	}
}

func datatypeTable() *core.DatatypeTable {
	return &core.DatatypeTable{
		Commit: func(ctx context.Context, obj interface{}, loc *core.Location, name string, def interface{}, ts *core.TokenSlot) (interface{}, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			f.mu.Lock()
			defer f.mu.Unlock()

			parent, err := parentFor(obj, loc)
			if err != nil {
				return nil, err
			}
			if _, ok := parent.children[name]; ok {
				return nil, errors.Newf(errors.ErrorTypeBackend, "entity %s already exists", name)
			}
			dt := &datatype{file: f, name: childPath(parent, name), def: def, attrs: make(map[string]*attribute)}
			parent.children[name] = dt
			complete(ts)
			return dt, nil
		},

		Open: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			f.mu.RLock()
			defer f.mu.RUnlock()

			parent, err := parentFor(obj, loc)
			if err != nil {
				return nil, err
			}
			child, ok := parent.children[name]
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "no such datatype %s", name)
			}
			dt, ok := child.(*datatype)
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeBackend, "%s is not a datatype", name)
			}
			complete(ts)
			return dt, nil
		},

		Get: func(ctx context.Context, obj interface{}, args *core.OpArgs, ts *core.TokenSlot) error {
			dt, ok := obj.(*datatype)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not a datatype object")
			}
			switch args.Op {
			case "datatype.def":
				out, ok := args.Out.(*interface{})
				if !ok {
					return errors.New(errors.ErrorTypeValidation, "datatype.def needs *interface{} output")
				}
				*out = dt.def
				complete(ts)
				return nil
			default:
				return errors.Newf(errors.ErrorTypeUnsupported, "unknown datatype operation %s", args.Op)
			}
		},

		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error {
			if _, ok := obj.(*datatype); !ok {
				return errors.New(errors.ErrorTypeHandle, "not a datatype object")
			}
			complete(ts)
			return nil
		},
	}
}

func attributeTable() *core.AttributeTable {
	return &core.AttributeTable{
		Create: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			f.mu.Lock()
			defer f.mu.Unlock()

			target, err := locate(obj, loc)
			if err != nil {
				return nil, err
			}
			attrs, err := attrsOf(target)
			if err != nil {
				return nil, err
			}
			if _, ok := attrs[name]; ok {
				return nil, errors.Newf(errors.ErrorTypeBackend, "attribute %s already exists", name)
			}
			a := &attribute{name: name}
			attrs[name] = a
			complete(ts)
			return a, nil
		},

		Open: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			f.mu.RLock()
			defer f.mu.RUnlock()

			target, err := locate(obj, loc)
			if err != nil {
				return nil, err
			}
			attrs, err := attrsOf(target)
			if err != nil {
				return nil, err
			}
			a, ok := attrs[name]
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "no such attribute %s", name)
			}
			complete(ts)
			return a, nil
		},

		Read: func(ctx context.Context, obj interface{}, io *core.IOArgs, ts *core.TokenSlot) error {
			a, ok := obj.(*attribute)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not an attribute object")
			}
			out, ok := io.Value.(*interface{})
			if !ok {
				return errors.New(errors.ErrorTypeValidation, "attribute read needs *interface{} value slot")
			}
			*out = a.value
			complete(ts)
			return nil
		},

		Write: func(ctx context.Context, obj interface{}, io *core.IOArgs, ts *core.TokenSlot) error {
			a, ok := obj.(*attribute)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not an attribute object")
			}
			a.value = io.Value
			complete(ts)
			return nil
		},

		Specific: func(ctx context.Context, obj interface{}, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
			f, err := fileOf(obj)
			if err != nil {
				return 0, err
			}
			f.mu.Lock()
			defer f.mu.Unlock()

			target, err := locate(obj, loc)
			if err != nil {
				return 0, err
			}
			attrs, err := attrsOf(target)
			if err != nil {
				return 0, err
			}

			switch args.Op {
			case "attribute.delete":
				name, ok := args.In.(string)
				if !ok {
					return 0, errors.New(errors.ErrorTypeValidation, "attribute.delete needs string input")
				}
				if _, ok := attrs[name]; !ok {
					return 0, errors.Newf(errors.ErrorTypeNotFound, "no such attribute %s", name)
				}
				delete(attrs, name)
				complete(ts)
				return 0, nil

			case "attribute.exists":
				name, ok := args.In.(string)
				if !ok {
					return 0, errors.New(errors.ErrorTypeValidation, "attribute.exists needs string input")
				}
				out, ok := args.Out.(*bool)
				if !ok {
					return 0, errors.New(errors.ErrorTypeValidation, "attribute.exists needs *bool output")
				}
				_, *out = attrs[name]
				complete(ts)
				return 0, nil

			default:
				return 0, errors.Newf(errors.ErrorTypeUnsupported, "unknown attribute operation %s", args.Op)
			}
		},

		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error {
			if _, ok := obj.(*attribute); !ok {
				return errors.New(errors.ErrorTypeHandle, "not an attribute object")
			}
			complete(ts)
			return nil
		},
	}
}

func linkTable() *core.LinkTable {
	return &core.LinkTable{
		Create: func(ctx context.Context, args *core.LinkCreateArgs, obj interface{}, loc *core.Location, ts *core.TokenSlot) error {
			if args.Type != core.LinkHard {
				return errors.New(errors.ErrorTypeUnsupported, "memory connector only creates hard links")
			}
			f, err := fileOf(obj)
			if err != nil {
				return err
			}
			f.mu.Lock()
			defer f.mu.Unlock()

			if loc == nil || loc.Kind != core.LocName {
				return errors.New(errors.ErrorTypeValidation, "link create needs a name location")
			}
			target, err := locate(obj, &core.Location{Kind: core.LocToken, Token: args.TargetToken})
			if err != nil {
				return err
			}

			dir, name := splitLast(loc.Name)
			parent, err := parentFor(obj, &core.Location{Kind: core.LocName, Name: dir})
			if err != nil {
				return err
			}
			if _, ok := parent.children[name]; ok {
				return errors.Newf(errors.ErrorTypeBackend, "entity %s already exists", name)
			}
			parent.children[name] = target
			complete(ts)
			return nil
		},

		Copy: func(ctx context.Context, srcObj interface{}, srcLoc *core.Location, dstObj interface{}, dstLoc *core.Location, ts *core.TokenSlot) error {
			return relink(srcObj, srcLoc, dstObj, dstLoc, false, ts)
		},

		Move: func(ctx context.Context, srcObj interface{}, srcLoc *core.Location, dstObj interface{}, dstLoc *core.Location, ts *core.TokenSlot) error {
			return relink(srcObj, srcLoc, dstObj, dstLoc, true, ts)
		},

		Get: func(ctx context.Context, obj interface{}, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) error {
			switch args.Op {
			case "link.target":
				f, err := fileOf(obj)
				if err != nil {
					return err
				}
				f.mu.RLock()
				defer f.mu.RUnlock()

				target, err := locate(obj, loc)
				if err != nil {
					return err
				}
				out, ok := args.Out.(*core.Token)
				if !ok {
					return errors.New(errors.ErrorTypeValidation, "link.target needs *Token output")
				}
				*out = tokenFor(target)
				complete(ts)
				return nil
			default:
				return errors.Newf(errors.ErrorTypeUnsupported, "unknown link operation %s", args.Op)
			}
		},

		Specific: func(ctx context.Context, obj interface{}, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
			f, err := fileOf(obj)
			if err != nil {
				return 0, err
			}

			switch args.Op {
			case core.OpLinkExists:
				out, ok := args.Out.(*bool)
				if !ok {
					return 0, errors.New(errors.ErrorTypeValidation, "link.exists needs *bool output")
				}
				f.mu.RLock()
				_, lerr := locate(obj, loc)
				f.mu.RUnlock()
				*out = lerr == nil
				complete(ts)
				return 0, nil

			case core.OpLinkIterate:
				in, ok := args.In.(*core.LinkIterateArgs)
				if !ok || in.Visit == nil {
					return 0, errors.New(errors.ErrorTypeValidation, "link.iterate needs a visit callback")
				}
				f.mu.RLock()
				target, lerr := locate(obj, loc)
				if lerr != nil {
					f.mu.RUnlock()
					return 0, lerr
				}
				g, ok := target.(*group)
				if !ok {
					f.mu.RUnlock()
					return 0, errors.New(errors.ErrorTypeValidation, "link.iterate target is not a group")
				}
				infos := make([]*core.LinkInfo, 0, len(g.children))
				for name := range g.children {
					infos = append(infos, &core.LinkInfo{Name: name, Type: core.LinkHard})
				}
				f.mu.RUnlock()

				for _, info := range infos {
					ret, verr := in.Visit(info)
					if verr != nil {
						return 0, verr
					}
					if ret > 0 {
						return ret, nil
					}
				}
				complete(ts)
				return 0, nil

			case "link.delete":
				f.mu.Lock()
				defer f.mu.Unlock()
				if loc == nil || loc.Kind != core.LocName {
					return 0, errors.New(errors.ErrorTypeValidation, "link.delete needs a name location")
				}
				dir, name := splitLast(loc.Name)
				parent, perr := parentFor(obj, &core.Location{Kind: core.LocName, Name: dir})
				if perr != nil {
					return 0, perr
				}
				if _, ok := parent.children[name]; !ok {
					return 0, errors.Newf(errors.ErrorTypeNotFound, "no such link %s", name)
				}
				delete(parent.children, name)
				complete(ts)
				return 0, nil

			default:
				return 0, errors.Newf(errors.ErrorTypeUnsupported, "unknown link operation %s", args.Op)
			}
		},
	}
}

func relink(srcObj interface{}, srcLoc *core.Location, dstObj interface{}, dstLoc *core.Location, move bool, ts *core.TokenSlot) error {
	sf, err := fileOf(srcObj)
	if err != nil {
		return err
	}
	df, err := fileOf(dstObj)
	if err != nil {
		return err
	}
	if sf != df {
		return errors.New(errors.ErrorTypeUnsupported, "memory connector links cannot cross containers")
	}
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if srcLoc == nil || srcLoc.Kind != core.LocName || dstLoc == nil || dstLoc.Kind != core.LocName {
		return errors.New(errors.ErrorTypeValidation, "link copy/move need name locations")
	}

	srcDir, srcName := splitLast(srcLoc.Name)
	srcParent, err := parentFor(srcObj, &core.Location{Kind: core.LocName, Name: srcDir})
	if err != nil {
		return err
	}
	target, ok := srcParent.children[srcName]
	if !ok {
		return errors.Newf(errors.ErrorTypeNotFound, "no such link %s", srcName)
	}

	dstDir, dstName := splitLast(dstLoc.Name)
	dstParent, err := parentFor(dstObj, &core.Location{Kind: core.LocName, Name: dstDir})
	if err != nil {
		return err
	}
	if _, ok := dstParent.children[dstName]; ok {
		return errors.Newf(errors.ErrorTypeBackend, "entity %s already exists", dstName)
	}

	dstParent.children[dstName] = target
	if move {
		delete(srcParent.children, srcName)
	}
	complete(ts)
	return nil
}

func splitLast(path string) (dir, name string) {
	path = strings.Trim(path, "/")
	if n := strings.LastIndex(path, "/"); n >= 0 {
		return path[:n], path[n+1:]
	}
	return "", path
}

func objectTable() *core.ObjectTable {
	return &core.ObjectTable{
		Open: func(ctx context.Context, obj interface{}, loc *core.Location, ts *core.TokenSlot) (interface{}, core.ObjectKind, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, 0, err
			}
			f.mu.RLock()
			defer f.mu.RUnlock()

			target, err := locate(obj, loc)
			if err != nil {
				return nil, 0, err
			}
			complete(ts)
			switch target.(type) {
			case *group:
				return target, core.KindGroup, nil
			case *dataset:
				return target, core.KindDataset, nil
			case *datatype:
				return target, core.KindDatatype, nil
			default:
				return nil, 0, errors.New(errors.ErrorTypeBackend, "entity has no openable kind")
			}
		},

		Copy: func(ctx context.Context, srcObj interface{}, srcLoc *core.Location, srcName string, dstObj interface{}, dstLoc *core.Location, dstName string, ts *core.TokenSlot) error {
			sf, err := fileOf(srcObj)
			if err != nil {
				return err
			}
			df, err := fileOf(dstObj)
			if err != nil {
				return err
			}
			if sf != df {
				return errors.New(errors.ErrorTypeUnsupported, "memory connector copies cannot cross containers")
			}
			sf.mu.Lock()
			defer sf.mu.Unlock()

			srcParent, err := parentFor(srcObj, srcLoc)
			if err != nil {
				return err
			}
			src, ok := srcParent.children[srcName]
			if !ok {
				return errors.Newf(errors.ErrorTypeNotFound, "no such entity %s", srcName)
			}
			dstParent, err := parentFor(dstObj, dstLoc)
			if err != nil {
				return err
			}
			if _, ok := dstParent.children[dstName]; ok {
				return errors.Newf(errors.ErrorTypeBackend, "entity %s already exists", dstName)
			}

			ds, ok := src.(*dataset)
			if !ok {
				return errors.New(errors.ErrorTypeUnsupported, "memory connector only copies datasets")
			}
			clone := &dataset{file: sf, name: childPath(dstParent, dstName),
				data: append([]byte(nil), ds.data...), attrs: make(map[string]*attribute)}
			for name, a := range ds.attrs {
				clone.attrs[name] = &attribute{name: a.name, value: a.value}
			}
			dstParent.children[dstName] = clone
			complete(ts)
			return nil
		},

		Get: func(ctx context.Context, obj interface{}, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) error {
			switch args.Op {
			case "object.token":
				f, err := fileOf(obj)
				if err != nil {
					return err
				}
				f.mu.RLock()
				defer f.mu.RUnlock()

				target, err := locate(obj, loc)
				if err != nil {
					return err
				}
				out, ok := args.Out.(*core.Token)
				if !ok {
					return errors.New(errors.ErrorTypeValidation, "object.token needs *Token output")
				}
				*out = tokenFor(target)
				complete(ts)
				return nil
			default:
				return errors.Newf(errors.ErrorTypeUnsupported, "unknown object operation %s", args.Op)
			}
		},
	}
}

func blobTable() *core.BlobTable {
	return &core.BlobTable{
		Put: func(ctx context.Context, obj interface{}, buf []byte) (core.BlobID, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			f.mu.Lock()
			defer f.mu.Unlock()

			f.nextBlob++
			id := make([]byte, 8)
			binary.BigEndian.PutUint64(id, f.nextBlob)
			f.blobs[f.nextBlob] = append([]byte(nil), buf...)
			return id, nil
		},

		Get: func(ctx context.Context, obj interface{}, id core.BlobID) ([]byte, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			f.mu.RLock()
			defer f.mu.RUnlock()

			n, err := blobKey(id)
			if err != nil {
				return nil, err
			}
			buf, ok := f.blobs[n]
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "no blob %d", n)
			}
			return append([]byte(nil), buf...), nil
		},

		Specific: func(ctx context.Context, obj interface{}, id core.BlobID, args *core.OpArgs) (int, error) {
			f, err := fileOf(obj)
			if err != nil {
				return 0, err
			}
			f.mu.Lock()
			defer f.mu.Unlock()

			n, err := blobKey(id)
			if err != nil {
				return 0, err
			}

			switch args.Op {
			case core.OpBlobDelete:
				if _, ok := f.blobs[n]; !ok {
					return 0, errors.Newf(errors.ErrorTypeNotFound, "no blob %d", n)
				}
				delete(f.blobs, n)
				return 0, nil

			case core.OpBlobExists:
				out, ok := args.Out.(*bool)
				if !ok {
					return 0, errors.New(errors.ErrorTypeValidation, "blob.exists needs *bool output")
				}
				_, *out = f.blobs[n]
				return 0, nil

			default:
				return 0, errors.Newf(errors.ErrorTypeUnsupported, "unknown blob operation %s", args.Op)
			}
		},
	}
}

func blobKey(id core.BlobID) (uint64, error) {
	if len(id) != 8 {
		return 0, errors.New(errors.ErrorTypeValidation, "malformed blob id")
	}
	return binary.BigEndian.Uint64(id), nil
}

func requestTable() *core.RequestTable {
	reqOf := func(token interface{}) (*request, error) {
		r, ok := token.(*request)
		if !ok {
			return nil, errors.New(errors.ErrorTypeHandle, "not a memory connector request token")
		}
		return r, nil
	}

	return &core.RequestTable{
		Wait: func(ctx context.Context, token interface{}, timeout time.Duration) (core.RequestStatus, error) {
			r, err := reqOf(token)
			if err != nil {
				return 0, err
			}
			// work already completed inline
			return r.status, nil
		},

		Cancel: func(ctx context.Context, token interface{}) (core.RequestStatus, error) {
			if _, err := reqOf(token); err != nil {
				return 0, err
			}
			return core.StatusCantCancel, nil
		},

		Notify: func(ctx context.Context, token interface{}, cb core.NotifyFunc) error {
			r, err := reqOf(token)
			if err != nil {
				return err
			}
			cb(r.status)
			return nil
		},

		Free: func(ctx context.Context, token interface{}) error {
			_, err := reqOf(token)
			return err
		},
	}
}
