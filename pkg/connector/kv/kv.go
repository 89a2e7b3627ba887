// Package kv implements a connector backed by an embedded Badger
// key-value store.
//
// A container is a Badger database directory. Datasets live under d:<path>
// keys, group markers under g:<path>, attributes under a:<path>:<name> as
// JSON values, and blobs under b:<id>. The connector deliberately omits
// the datatype, link and token tables; operations on those surface as
// unsupported rather than being half-faked on top of the key space.
package kv

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	"github.com/ajitpratap0/stratum/pkg/plugin"
	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
)

// Name is the connector name
const Name = "badger"

// Value is the connector's numeric identity
const Value = 9001

func init() {
	plugin.Register(Name, Class)
}

type file struct {
	db   *badger.DB
	path string
}

type group struct {
	file *file
	name string
}

type dataset struct {
	file *file
	name string
}

type attribute struct {
	file  *file
	owner string
	name  string
}

func fileOf(obj interface{}) (*file, error) {
	switch v := obj.(type) {
	case *file:
		return v, nil
	case *group:
		return v.file, nil
	case *dataset:
		return v.file, nil
	case *attribute:
		return v.file, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeHandle, "not a kv connector object: %T", obj)
	}
}

func pathOf(obj interface{}) (string, error) {
	switch v := obj.(type) {
	case *file:
		return "/", nil
	case *group:
		return v.name, nil
	case *dataset:
		return v.name, nil
	default:
		return "", errors.Newf(errors.ErrorTypeHandle, "kv connector object %T has no path", obj)
	}
}

// resolvePath joins a location onto the object's own path
func resolvePath(obj interface{}, loc *core.Location) (string, error) {
	base, err := pathOf(obj)
	if err != nil {
		return "", err
	}
	if loc == nil || loc.Kind == core.LocSelf {
		return base, nil
	}
	switch loc.Kind {
	case core.LocName:
		return joinPath(base, loc.Name), nil
	case core.LocToken:
		return string(loc.Token), nil
	default:
		return "", errors.Newf(errors.ErrorTypeValidation, "kv connector cannot address by location kind %d", loc.Kind)
	}
}

func joinPath(base, rel string) string {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return base
	}
	if base == "/" {
		return "/" + rel
	}
	return base + "/" + rel
}

func groupKey(path string) []byte   { return []byte("g:" + path) }
func datasetKey(path string) []byte { return []byte("d:" + path) }
func attrKey(owner, name string) []byte {
	return []byte("a:" + owner + ":" + name)
}
func blobKey(n uint64) []byte {
	key := make([]byte, 2+8)
	copy(key, "b:")
	binary.BigEndian.PutUint64(key[2:], n)
	return key
}

var blobSeqKey = []byte("b:next")

func notFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func get(db *badger.DB, key []byte) ([]byte, error) {
	var out []byte
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func exists(db *badger.DB, key []byte) (bool, error) {
	err := db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if notFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Class returns the connector class descriptor
func Class() *core.ConnectorClass {
	return &core.ConnectorClass{
		Name:         Name,
		Value:        Value,
		Version:      core.ClassVersion,
		Capabilities: core.CapAttributes | core.CapBlobs | core.CapAccessible | core.CapPersistent,

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
		Attribute: attributeTable(),
		Blob:      blobTable(),
	}
}

func openDB(path string, readOnly bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil).WithReadOnly(readOnly)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeBackend, "cannot open badger store at %s", path)
	}
	return db, nil
}

func fileTable() *core.FileTable {
	return &core.FileTable{
		Create: func(ctx context.Context, name string, flags core.FileFlags, info interface{}, ts *core.TokenSlot) (interface{}, error) {
			if _, err := os.Stat(name); err == nil {
				if flags&core.FlagExclusive != 0 {
					return nil, errors.Newf(errors.ErrorTypeBackend, "container %s already exists", name)
				}
				if flags&core.FlagTruncate != 0 {
					if err := os.RemoveAll(name); err != nil {
						return nil, errors.Wrapf(err, errors.ErrorTypeBackend, "cannot truncate container %s", name)
					}
				}
			}

			db, err := openDB(name, false)
			if err != nil {
				return nil, err
			}
			err = db.Update(func(txn *badger.Txn) error {
				return txn.Set(groupKey("/"), nil)
			})
			if err != nil {
				_ = db.Close()
				return nil, errors.Wrap(err, errors.ErrorTypeBackend, "cannot initialize container root")
			}
			return &file{db: db, path: name}, nil
		},

		Open: func(ctx context.Context, name string, flags core.FileFlags, info interface{}, ts *core.TokenSlot) (interface{}, error) {
			if _, err := os.Stat(filepath.Join(name, "MANIFEST")); err != nil {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "%s is not a badger container", name)
			}
			db, err := openDB(name, flags&core.FlagReadWrite == 0)
			if err != nil {
				return nil, err
			}
			return &file{db: db, path: name}, nil
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
				_, err := os.Stat(filepath.Join(in.Name, "MANIFEST"))
				*out = err == nil
				return 0, nil

			case core.OpFileFlush:
				f, ok := obj.(*file)
				if !ok {
					return 0, errors.New(errors.ErrorTypeHandle, "not a kv file object")
				}
				if err := f.db.Sync(); err != nil {
					return 0, errors.Wrap(err, errors.ErrorTypeBackend, "badger sync failed")
				}
				return 0, nil

			default:
				return 0, errors.Newf(errors.ErrorTypeUnsupported, "unknown file operation %s", args.Op)
			}
		},

		Close: func(ctx context.Context, obj interface{}, ts *core.TokenSlot) error {
			f, ok := obj.(*file)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not a kv file object")
			}
			if err := f.db.Close(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeBackend, "badger close failed")
			}
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
			base, err := resolvePath(obj, loc)
			if err != nil {
				return nil, err
			}
			path := joinPath(base, name)

			err = f.db.Update(func(txn *badger.Txn) error {
				if _, gerr := txn.Get(groupKey(path)); gerr == nil {
					return errors.Newf(errors.ErrorTypeBackend, "group %s already exists", path)
				}
				return txn.Set(groupKey(path), nil)
			})
			if err != nil {
				return nil, err
			}
			return &group{file: f, name: path}, nil
		},

		Open: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			base, err := resolvePath(obj, loc)
			if err != nil {
				return nil, err
			}
			path := joinPath(base, name)

			ok, err := exists(f.db, groupKey(path))
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeBackend, "badger lookup failed")
			}
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "no such group %s", path)
			}
			return &group{file: f, name: path}, nil
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
			base, err := resolvePath(obj, loc)
			if err != nil {
				return nil, err
			}
			path := joinPath(base, name)

			err = f.db.Update(func(txn *badger.Txn) error {
				if _, gerr := txn.Get(datasetKey(path)); gerr == nil {
					return errors.Newf(errors.ErrorTypeBackend, "dataset %s already exists", path)
				}
				return txn.Set(datasetKey(path), nil)
			})
			if err != nil {
				return nil, err
			}
			return &dataset{file: f, name: path}, nil
		},

		Open: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			base, err := resolvePath(obj, loc)
			if err != nil {
				return nil, err
			}
			path := joinPath(base, name)

			ok, err := exists(f.db, datasetKey(path))
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeBackend, "badger lookup failed")
			}
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "no such dataset %s", path)
			}
			return &dataset{file: f, name: path}, nil
		},

		Read: func(ctx context.Context, obj interface{}, io *core.IOArgs, ts *core.TokenSlot) error {
			ds, ok := obj.(*dataset)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not a dataset object")
			}
			data, err := get(ds.file.db, datasetKey(ds.name))
			if err != nil {
				return errors.Wrapf(err, errors.ErrorTypeBackend, "cannot read dataset %s", ds.name)
			}
			if io.Offset < 0 || io.Offset > int64(len(data)) {
				return errors.Newf(errors.ErrorTypeValidation, "read offset %d out of range", io.Offset)
			}
			copy(io.Buf, data[io.Offset:])
			return nil
		},

		Write: func(ctx context.Context, obj interface{}, io *core.IOArgs, ts *core.TokenSlot) error {
			ds, ok := obj.(*dataset)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not a dataset object")
			}
			if io.Offset < 0 {
				return errors.Newf(errors.ErrorTypeValidation, "write offset %d out of range", io.Offset)
			}

			return ds.file.db.Update(func(txn *badger.Txn) error {
				var data []byte
				item, err := txn.Get(datasetKey(ds.name))
				if err == nil {
					data, err = item.ValueCopy(nil)
					if err != nil {
						return err
					}
				} else if !notFound(err) {
					return err
				}

				end := io.Offset + int64(len(io.Buf))
				if end > int64(len(data)) {
					grown := make([]byte, end)
					copy(grown, data)
					data = grown
				}
				copy(data[io.Offset:], io.Buf)
				return txn.Set(datasetKey(ds.name), data)
			})
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
				data, err := get(ds.file.db, datasetKey(ds.name))
				if err != nil {
					return errors.Wrapf(err, errors.ErrorTypeBackend, "cannot read dataset %s", ds.name)
				}
				*out = int64(len(data))
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

func attributeTable() *core.AttributeTable {
	return &core.AttributeTable{
		Create: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			owner, err := resolvePath(obj, loc)
			if err != nil {
				return nil, err
			}

			err = f.db.Update(func(txn *badger.Txn) error {
				if _, gerr := txn.Get(attrKey(owner, name)); gerr == nil {
					return errors.Newf(errors.ErrorTypeBackend, "attribute %s already exists", name)
				}
				return txn.Set(attrKey(owner, name), []byte("null"))
			})
			if err != nil {
				return nil, err
			}
			return &attribute{file: f, owner: owner, name: name}, nil
		},

		Open: func(ctx context.Context, obj interface{}, loc *core.Location, name string, ts *core.TokenSlot) (interface{}, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			owner, err := resolvePath(obj, loc)
			if err != nil {
				return nil, err
			}

			ok, err := exists(f.db, attrKey(owner, name))
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeBackend, "badger lookup failed")
			}
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "no such attribute %s", name)
			}
			return &attribute{file: f, owner: owner, name: name}, nil
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

			raw, err := get(a.file.db, attrKey(a.owner, a.name))
			if err != nil {
				return errors.Wrapf(err, errors.ErrorTypeBackend, "cannot read attribute %s", a.name)
			}
			return json.Unmarshal(raw, out)
		},

		Write: func(ctx context.Context, obj interface{}, io *core.IOArgs, ts *core.TokenSlot) error {
			a, ok := obj.(*attribute)
			if !ok {
				return errors.New(errors.ErrorTypeHandle, "not an attribute object")
			}
			raw, err := json.Marshal(io.Value)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeValidation, "attribute value is not serializable")
			}
			return a.file.db.Update(func(txn *badger.Txn) error {
				return txn.Set(attrKey(a.owner, a.name), raw)
			})
		},

		Specific: func(ctx context.Context, obj interface{}, loc *core.Location, args *core.OpArgs, ts *core.TokenSlot) (int, error) {
			f, err := fileOf(obj)
			if err != nil {
				return 0, err
			}
			owner, err := resolvePath(obj, loc)
			if err != nil {
				return 0, err
			}

			switch args.Op {
			case "attribute.delete":
				name, ok := args.In.(string)
				if !ok {
					return 0, errors.New(errors.ErrorTypeValidation, "attribute.delete needs string input")
				}
				return 0, f.db.Update(func(txn *badger.Txn) error {
					if _, gerr := txn.Get(attrKey(owner, name)); gerr != nil {
						if notFound(gerr) {
							return errors.Newf(errors.ErrorTypeNotFound, "no such attribute %s", name)
						}
						return gerr
					}
					return txn.Delete(attrKey(owner, name))
				})

			case "attribute.exists":
				name, ok := args.In.(string)
				if !ok {
					return 0, errors.New(errors.ErrorTypeValidation, "attribute.exists needs string input")
				}
				out, ok := args.Out.(*bool)
				if !ok {
					return 0, errors.New(errors.ErrorTypeValidation, "attribute.exists needs *bool output")
				}
				found, err := exists(f.db, attrKey(owner, name))
				if err != nil {
					return 0, errors.Wrap(err, errors.ErrorTypeBackend, "badger lookup failed")
				}
				*out = found
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

func blobTable() *core.BlobTable {
	return &core.BlobTable{
		Put: func(ctx context.Context, obj interface{}, buf []byte) (core.BlobID, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}

			var id core.BlobID
			err = f.db.Update(func(txn *badger.Txn) error {
				var next uint64 = 1
				item, gerr := txn.Get(blobSeqKey)
				if gerr == nil {
					raw, verr := item.ValueCopy(nil)
					if verr != nil {
						return verr
					}
					next = binary.BigEndian.Uint64(raw) + 1
				} else if !notFound(gerr) {
					return gerr
				}

				seq := make([]byte, 8)
				binary.BigEndian.PutUint64(seq, next)
				if serr := txn.Set(blobSeqKey, seq); serr != nil {
					return serr
				}
				if serr := txn.Set(blobKey(next), buf); serr != nil {
					return serr
				}
				id = core.BlobID(append([]byte(nil), seq...))
				return nil
			})
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeBackend, "cannot store blob")
			}
			return id, nil
		},

		Get: func(ctx context.Context, obj interface{}, id core.BlobID) ([]byte, error) {
			f, err := fileOf(obj)
			if err != nil {
				return nil, err
			}
			n, err := blobID(id)
			if err != nil {
				return nil, err
			}
			buf, err := get(f.db, blobKey(n))
			if notFound(err) {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "no blob %d", n)
			}
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeBackend, "cannot read blob")
			}
			return buf, nil
		},

		Specific: func(ctx context.Context, obj interface{}, id core.BlobID, args *core.OpArgs) (int, error) {
			f, err := fileOf(obj)
			if err != nil {
				return 0, err
			}
			n, err := blobID(id)
			if err != nil {
				return 0, err
			}

			switch args.Op {
			case core.OpBlobDelete:
				return 0, f.db.Update(func(txn *badger.Txn) error {
					if _, gerr := txn.Get(blobKey(n)); gerr != nil {
						if notFound(gerr) {
							return errors.Newf(errors.ErrorTypeNotFound, "no blob %d", n)
						}
						return gerr
					}
					return txn.Delete(blobKey(n))
				})

			case core.OpBlobExists:
				out, ok := args.Out.(*bool)
				if !ok {
					return 0, errors.New(errors.ErrorTypeValidation, "blob.exists needs *bool output")
				}
				found, err := exists(f.db, blobKey(n))
				if err != nil {
					return 0, errors.Wrap(err, errors.ErrorTypeBackend, "badger lookup failed")
				}
				*out = found
				return 0, nil

			default:
				return 0, errors.Newf(errors.ErrorTypeUnsupported, "unknown blob operation %s", args.Op)
			}
		},
	}
}

func blobID(id core.BlobID) (uint64, error) {
	if len(id) != 8 {
		return 0, errors.New(errors.ErrorTypeValidation, "malformed blob id")
	}
	return binary.BigEndian.Uint64(id), nil
}
