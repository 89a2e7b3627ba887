// Package native implements the default on-disk connector.
//
// A container is a single file: a four byte magic, a format version byte,
// a compression algorithm byte, then the compressed JSON document holding
// the whole entity tree and blob store. The document loads fully on open
// and persists on flush and close.
package native

import (
	"context"
	"encoding/binary"
	"os"
	"strings"
	"sync"

	"github.com/ajitpratap0/stratum/pkg/compression"
	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/plugin"
	json "github.com/goccy/go-json"
)

// Name is the connector name
const Name = "native"

// Value is the connector's numeric identity
const Value = 0

// formatVersion is the on-disk document version
const formatVersion = 1

var magic = []byte("STRM")

func init() {
	plugin.Register(Name, Class)
}

// Info is the connector-specific configuration blob carried by an access
// configuration
type Info struct {
	Compression compression.Algorithm `mapstructure:"compression" json:"compression"`
	Level       compression.Level     `mapstructure:"level" json:"level"`
}

func infoOrDefault(raw interface{}) *Info {
	if info, ok := raw.(*Info); ok && info != nil {
		return info
	}
	cfg := compression.DefaultConfig()
	return &Info{Compression: cfg.Algorithm, Level: cfg.Level}
}

type file struct {
	path     string
	flags    core.FileFlags
	info     *Info
	mu       sync.RWMutex
	root     *group
	blobs    map[uint64][]byte
	nextBlob uint64
	dirty    bool
}

type group struct {
	file     *file
	name     string
	children map[string]interface{}
	attrs    map[string]interface{}
}

type dataset struct {
	file  *file
	name  string
	data  []byte
	attrs map[string]interface{}
}

type datatype struct {
	file  *file
	name  string
	def   json.RawMessage
	attrs map[string]interface{}
}

type attribute struct {
	file  *file
	name  string
	owner map[string]interface{}
}

func newGroup(f *file, name string) *group {
	return &group{file: f, name: name,
		children: make(map[string]interface{}), attrs: make(map[string]interface{})}
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
	case *attribute:
		return v.file, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeHandle, "not a native connector object: %T", obj)
	}
}

func attrsOf(obj interface{}) (map[string]interface{}, error) {
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
		return nil, errors.Newf(errors.ErrorTypeHandle, "not a native connector object: %T", obj)
	}
}

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
		f, err := fileOf(obj)
		if err != nil {
			return nil, err
		}
		base = f.root
		path = string(loc.Token)
	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "native connector cannot address by location kind %d", loc.Kind)
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

func (f *file) writable() bool {
	return f.flags&core.FlagReadWrite != 0
}

// Class returns the connector class descriptor
func Class() *core.ConnectorClass {
	return &core.ConnectorClass{
		Name:    Name,
		Value:   Value,
		Version: core.ClassVersion,
		Capabilities: core.CapAttributes | core.CapLinks | core.CapTokens |
			core.CapBlobs | core.CapAccessible | core.CapPersistent,

		Info: infoTable(),
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
		Token:     tokenTable(),
	}
}

func infoTable() *core.InfoTable {
	return &core.InfoTable{
		Copy: func(raw interface{}) (interface{}, error) {
			info := infoOrDefault(raw)
			clone := *info
			return &clone, nil
		},
		Compare: func(a, b interface{}) (int, error) {
			ia, ib := infoOrDefault(a), infoOrDefault(b)
			if *ia == *ib {
				return 0, nil
			}
			return 1, nil
		},
		Free: func(raw interface{}) error {
			return nil
		},
		Serialize: func(raw interface{}) ([]byte, error) {
			return json.Marshal(infoOrDefault(raw))
		},
		Deserialize: func(data []byte) (interface{}, error) {
			info := &Info{}
			if err := json.Unmarshal(data, info); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeConfig, "malformed native connector info")
			}
			return info, nil
		},
	}
}

func fileTable() *core.FileTable {
	return &core.FileTable{
		Create: func(ctx context.Context, name string, flags core.FileFlags, rawInfo interface{}, ts *core.TokenSlot) (interface{}, error) {
			if flags&core.FlagExclusive != 0 {
				if _, err := os.Stat(name); err == nil {
					return nil, errors.Newf(errors.ErrorTypeBackend, "container %s already exists", name)
				}
			}

			f := &file{path: name, flags: flags | core.FlagReadWrite,
				info: infoOrDefault(rawInfo), blobs: make(map[uint64][]byte), dirty: true}
			f.root = newGroup(f, "/")

			if err := f.persist(); err != nil {
				return nil, err
			}
			return f, nil
		},

		Open: func(ctx context.Context, name string, flags core.FileFlags, rawInfo interface{}, ts *core.TokenSlot) (interface{}, error) {
			return openFile(name, flags, infoOrDefault(rawInfo))
		},

		Get: func(ctx context.Context, obj interface{}, args *core.OpArgs, ts *core.TokenSlot) error {
			f, ok := obj.(*file)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not a native file object")
			}
			switch args.Op {
			case "file.name":
				out, ok := args.Out.(*string)
				if !ok {
					return errors.New(errors.ErrorTypeValidation, "file.name needs *string output")
				}
				*out = f.path
				return nil
			default:
				return errors.Newf(errors.ErrorTypeUnsupported, "unknown file operation %s", args.Op)
			}
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
				*out = probe(in.Name)
				return 0, nil

			case core.OpFileFlush:
				f, ok := obj.(*file)
				if !ok {
					return 0, errors.New(errors.ErrorTypeHandle, "not a native file object")
				}
				f.mu.Lock()
				defer f.mu.Unlock()
				return 0, f.persistLocked()

			default:
				return 0, errors.Newf(errors.ErrorTypeUnsupported, "unknown file operation %s", args.Op)
			}
		},

		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error {
			f, ok := obj.(*file)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not a native file object")
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.persistLocked()
		},
	}
}

// probe reports whether name holds a readable native container; all
// failures mean "not ours", never an error
func probe(name string) bool {
	fh, err := os.Open(name)
	if err != nil {
		return false
	}
	defer fh.Close()

	header := make([]byte, len(magic)+2)
	if _, err := fh.Read(header); err != nil {
		return false
	}
	if string(header[:len(magic)]) != string(magic) {
		return false
	}
	return header[len(magic)] == formatVersion
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

			if !f.writable() {
				return nil, errors.New(errors.ErrorTypeBackend, "container is read-only")
			}
			parent, err := parentFor(obj, loc)
			if err != nil {
				return nil, err
			}
			if _, ok := parent.children[name]; ok {
				return nil, errors.Newf(errors.ErrorTypeBackend, "entity %s already exists", name)
			}
			g := newGroup(f, childPath(parent, name))
			parent.children[name] = g
			f.dirty = true
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
				return nil
			default:
				return errors.Newf(errors.ErrorTypeUnsupported, "unknown group operation %s", args.Op)
			}
		},

		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error {
			if _, ok := obj.(*group); !ok {
				return errors.New(errors.ErrorTypeHandle, "not a group object")
			}
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

			if !f.writable() {
				return nil, errors.New(errors.ErrorTypeBackend, "container is read-only")
			}
			parent, err := parentFor(obj, loc)
			if err != nil {
				return nil, err
			}
			if _, ok := parent.children[name]; ok {
				return nil, errors.Newf(errors.ErrorTypeBackend, "entity %s already exists", name)
			}
			ds := &dataset{file: f, name: childPath(parent, name), attrs: make(map[string]interface{})}
			parent.children[name] = ds
			f.dirty = true
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
			return nil
		},

		Write: func(ctx context.Context, obj interface{}, io *core.IOArgs, ts *core.TokenSlot) error {
			ds, ok := obj.(*dataset)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not a dataset object")
			}
			ds.file.mu.Lock()
			defer ds.file.mu.Unlock()

			if !ds.file.writable() {
				return errors.New(errors.ErrorTypeBackend, "container is read-only")
			}
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
			ds.file.dirty = true
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
				return nil
			default:
				return errors.Newf(errors.ErrorTypeUnsupported, "unknown dataset operation %s", args.Op)
			}
		},

		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error {
			if _, ok := obj.(*dataset); !ok {
				return errors.New(errors.ErrorTypeHandle, "not a dataset object")
			}
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

			if !f.writable() {
				return nil, errors.New(errors.ErrorTypeBackend, "container is read-only")
			}
			parent, err := parentFor(obj, loc)
			if err != nil {
				return nil, err
			}
			if _, ok := parent.children[name]; ok {
				return nil, errors.Newf(errors.ErrorTypeBackend, "entity %s already exists", name)
			}

			raw, err := json.Marshal(def)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeBackend, "datatype definition is not serializable")
			}
			dt := &datatype{file: f, name: childPath(parent, name), def: raw, attrs: make(map[string]interface{})}
			parent.children[name] = dt
			f.dirty = true
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
				var def interface{}
				if err := json.Unmarshal(dt.def, &def); err != nil {
					return errors.Wrap(err, errors.ErrorTypeBackend, "stored datatype definition is corrupt")
				}
				*out = def
				return nil
			default:
				return errors.Newf(errors.ErrorTypeUnsupported, "unknown datatype operation %s", args.Op)
			}
		},

		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error {
			if _, ok := obj.(*datatype); !ok {
				return errors.New(errors.ErrorTypeHandle, "not a datatype object")
			}
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

			if !f.writable() {
				return nil, errors.New(errors.ErrorTypeBackend, "container is read-only")
			}
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
			attrs[name] = nil
			f.dirty = true
			return &attribute{file: f, name: name, owner: attrs}, nil
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
			if _, ok := attrs[name]; !ok {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "no such attribute %s", name)
			}
			return &attribute{file: f, name: name, owner: attrs}, nil
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
			a.file.mu.RLock()
			*out = a.owner[a.name]
			a.file.mu.RUnlock()
			return nil
		},

		Write: func(ctx context.Context, obj interface{}, io *core.IOArgs, ts *core.TokenSlot) error {
			a, ok := obj.(*attribute)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not an attribute object")
			}
			a.file.mu.Lock()
			defer a.file.mu.Unlock()

			if !a.file.writable() {
				return errors.New(errors.ErrorTypeBackend, "container is read-only")
			}
			a.owner[a.name] = io.Value
			a.file.dirty = true
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
				f.dirty = true
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
				return 0, nil

			default:
				return 0, errors.Newf(errors.ErrorTypeUnsupported, "unknown attribute operation %s", args.Op)
			}
		},

		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error {
			if _, ok := obj.(*attribute); !ok {
				return errors.New(errors.ErrorTypeHandle, "not an attribute object")
			}
			return nil
		},
	}
}

func linkTable() *core.LinkTable {
	return &core.LinkTable{
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
				return 0, nil

			case "link.delete":
				f.mu.Lock()
				defer f.mu.Unlock()
				if !f.writable() {
					return 0, errors.New(errors.ErrorTypeBackend, "container is read-only")
				}
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
				f.dirty = true
				return 0, nil

			default:
				return 0, errors.Newf(errors.ErrorTypeUnsupported, "unknown link operation %s", args.Op)
			}
		},
	}
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

			if !f.writable() {
				return nil, errors.New(errors.ErrorTypeBackend, "container is read-only")
			}
			f.nextBlob++
			id := make([]byte, 8)
			binary.BigEndian.PutUint64(id, f.nextBlob)
			f.blobs[f.nextBlob] = append([]byte(nil), buf...)
			f.dirty = true
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
				f.dirty = true
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

func tokenTable() *core.TokenTable {
	return &core.TokenTable{
		Compare: func(a, b core.Token) (int, error) {
			switch {
			case a == nil && b == nil:
				return 0, nil
			case a == nil:
				return -1, nil
			case b == nil:
				return 1, nil
			}
			return strings.Compare(string(a), string(b)), nil
		},
		ToString: func(obj interface{}, t core.Token) (string, error) {
			return string(t), nil
		},
		FromString: func(obj interface{}, s string) (core.Token, error) {
			if !strings.HasPrefix(s, "/") {
				return nil, errors.Newf(errors.ErrorTypeValidation, "token %q is not an absolute path", s)
			}
			return core.Token(s), nil
		},
	}
}
