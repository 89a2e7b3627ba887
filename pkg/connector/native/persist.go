package native

import (
	"os"

	"github.com/ajitpratap0/stratum/pkg/compression"
	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
	json "github.com/goccy/go-json"
)

// diskNode is the serialized form of one entity
type diskNode struct {
	Kind     string                     `json:"kind"`
	Data     []byte                     `json:"data,omitempty"`
	Def      json.RawMessage            `json:"def,omitempty"`
	Children map[string]*diskNode       `json:"children,omitempty"`
	Attrs    map[string]json.RawMessage `json:"attrs,omitempty"`
}

// diskFile is the serialized form of a whole container
type diskFile struct {
	Root     *diskNode         `json:"root"`
	Blobs    map[uint64][]byte `json:"blobs,omitempty"`
	NextBlob uint64            `json:"next_blob"`
}

var algoCodes = map[compression.Algorithm]byte{
	compression.None:   0,
	compression.Gzip:   1,
	compression.Snappy: 2,
	compression.LZ4:    3,
	compression.Zstd:   4,
}

func algoFromCode(code byte) (compression.Algorithm, error) {
	for algo, c := range algoCodes {
		if c == code {
			return algo, nil
		}
	}
	return "", errors.Newf(errors.ErrorTypeBackend, "unknown compression code %d", code)
}

// persist writes the container document to disk
func (f *file) persist() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persistLocked()
}

func (f *file) persistLocked() error {
	if !f.dirty {
		return nil
	}
	if !f.writable() {
		return errors.New(errors.ErrorTypeBackend, "container is read-only")
	}

	doc := &diskFile{Root: encodeNode(f.root), Blobs: f.blobs, NextBlob: f.nextBlob}
	payload, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeBackend, "cannot serialize container")
	}

	comp, err := compression.NewCompressor(&compression.Config{
		Algorithm: f.info.Compression, Level: f.info.Level})
	if err != nil {
		return err
	}
	compressed, err := comp.Compress(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeBackend, "cannot compress container")
	}

	out := make([]byte, 0, len(magic)+2+len(compressed))
	out = append(out, magic...)
	out = append(out, formatVersion, algoCodes[f.info.Compression])
	out = append(out, compressed...)

	if err := os.WriteFile(f.path, out, 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeBackend, "cannot write container %s", f.path)
	}
	f.dirty = false
	return nil
}

// openFile loads a container document from disk
func openFile(name string, flags core.FileFlags, info *Info) (*file, error) {
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeNotFound, "cannot read container %s", name)
	}
	if len(raw) < len(magic)+2 || string(raw[:len(magic)]) != string(magic) {
		return nil, errors.Newf(errors.ErrorTypeBackend, "%s is not a native container", name)
	}
	if raw[len(magic)] != formatVersion {
		return nil, errors.Newf(errors.ErrorTypeBackend,
			"container %s has format version %d, expected %d", name, raw[len(magic)], formatVersion)
	}

	algo, err := algoFromCode(raw[len(magic)+1])
	if err != nil {
		return nil, err
	}
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: algo, Level: info.Level})
	if err != nil {
		return nil, err
	}
	payload, err := comp.Decompress(raw[len(magic)+2:])
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeBackend, "container %s is corrupt", name)
	}

	doc := &diskFile{}
	if err := json.Unmarshal(payload, doc); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeBackend, "container %s is corrupt", name)
	}
	if doc.Root == nil {
		return nil, errors.Newf(errors.ErrorTypeBackend, "container %s has no root group", name)
	}

	f := &file{path: name, flags: flags, info: info, blobs: doc.Blobs, nextBlob: doc.NextBlob}
	if f.blobs == nil {
		f.blobs = make(map[uint64][]byte)
	}
	root, err := decodeNode(f, doc.Root, "/")
	if err != nil {
		return nil, err
	}
	g, ok := root.(*group)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeBackend, "container %s root is not a group", name)
	}
	f.root = g
	return f, nil
}

func encodeNode(obj interface{}) *diskNode {
	switch v := obj.(type) {
	case *group:
		node := &diskNode{Kind: "group",
			Children: make(map[string]*diskNode, len(v.children)),
			Attrs:    encodeAttrs(v.attrs)}
		for name, child := range v.children {
			node.Children[name] = encodeNode(child)
		}
		return node
	case *dataset:
		return &diskNode{Kind: "dataset", Data: v.data, Attrs: encodeAttrs(v.attrs)}
	case *datatype:
		return &diskNode{Kind: "datatype", Def: v.def, Attrs: encodeAttrs(v.attrs)}
	default:
		return nil
	}
}

func encodeAttrs(attrs map[string]interface{}) map[string]json.RawMessage {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(attrs))
	for name, value := range attrs {
		raw, err := json.Marshal(value)
		if err != nil {
			// a non-serializable attribute value persists as null
			raw = []byte("null")
		}
		out[name] = raw
	}
	return out
}

func decodeNode(f *file, node *diskNode, path string) (interface{}, error) {
	switch node.Kind {
	case "group":
		g := newGroup(f, path)
		g.attrs = decodeAttrs(node.Attrs)
		for name, child := range node.Children {
			childObj, err := decodeNode(f, child, childPath(g, name))
			if err != nil {
				return nil, err
			}
			g.children[name] = childObj
		}
		return g, nil
	case "dataset":
		return &dataset{file: f, name: path, data: node.Data, attrs: decodeAttrs(node.Attrs)}, nil
	case "datatype":
		return &datatype{file: f, name: path, def: node.Def, attrs: decodeAttrs(node.Attrs)}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeBackend, "unknown entity kind %q at %s", node.Kind, path)
	}
}

func decodeAttrs(raw map[string]json.RawMessage) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for name, data := range raw {
		var value interface{}
		if err := json.Unmarshal(data, &value); err == nil {
			out[name] = value
		}
	}
	return out
}
