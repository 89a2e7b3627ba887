// Package core defines the connector descriptor model for Stratum.
//
// A connector is described by a ConnectorClass: a capability table holding
// one callback table per entity kind (attribute, dataset, datatype, file,
// group, link, object) plus cross-cutting tables for info management,
// object wrapping, token handling, async requests, and blob storage.
//
// Every callback field is optional. A nil callback means the connector does
// not support that operation; the dispatch layer turns it into a distinct
// "unsupported" error rather than crashing, so callers can feature-detect
// and fall back to another connector.
package core

import (
	"context"
	"time"
)

// ClassVersion is the descriptor version the registry accepts. A class
// whose Version differs is never a match candidate, even when its name or
// value lines up.
const ClassVersion = 1

// ObjectKind identifies the kind of entity a dispatch object refers to
type ObjectKind int

const (
	// KindFile is an opened root resource
	KindFile ObjectKind = iota + 1
	// KindGroup is a group within a container
	KindGroup
	// KindDataset is a dataset within a container
	KindDataset
	// KindDatatype is a named datatype within a container
	KindDatatype
	// KindAttribute is an attribute attached to another entity
	KindAttribute
	// KindLink is a link within a group
	KindLink
	// KindObject is a generic entity whose concrete kind is connector-determined
	KindObject
)

// String returns the lowercase name of the kind
func (k ObjectKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	case KindDatatype:
		return "datatype"
	case KindAttribute:
		return "attribute"
	case KindLink:
		return "link"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Capability is a bitset describing optional connector features
type Capability uint64

const (
	// CapAsync indicates the connector can return in-flight request tokens
	CapAsync Capability = 1 << iota
	// CapAttributes indicates attribute storage support
	CapAttributes
	// CapLinks indicates link creation and traversal support
	CapLinks
	// CapTokens indicates location token support
	CapTokens
	// CapBlobs indicates variable-length blob storage support
	CapBlobs
	// CapAccessible indicates the connector answers accessibility probes
	CapAccessible
	// CapWrap indicates the connector can wrap objects from nested connectors
	CapWrap
	// CapPersistent indicates containers survive process restarts
	CapPersistent
)

// Has reports whether all bits in want are set
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// FileFlags control file create/open behavior
type FileFlags uint32

const (
	// FlagReadOnly opens a container for reading only
	FlagReadOnly FileFlags = 1 << iota
	// FlagReadWrite opens a container for reading and writing
	FlagReadWrite
	// FlagTruncate replaces an existing container on create
	FlagTruncate
	// FlagExclusive fails create when the container already exists
	FlagExclusive
)

// Token is an opaque, connector-defined identifier for a location within a
// container. A nil token is the "undefined" token and orders before any
// non-nil token.
type Token []byte

// BlobID is an opaque identifier for a stored blob
type BlobID []byte

// TokenSlot is the output slot for asynchronous execution. When a caller
// requests async and the connector supports it, the connector stores an
// opaque in-flight token in the slot instead of blocking.
type TokenSlot struct {
	Token interface{}
}

// LocKind selects how a Location addresses an entity
type LocKind int

const (
	// LocSelf addresses the object the call is made on
	LocSelf LocKind = iota
	// LocName addresses an entity by path name relative to the object
	LocName
	// LocToken addresses an entity by location token
	LocToken
	// LocIndex addresses an entity by iteration index under a path
	LocIndex
)

// Location addresses an entity within a container
type Location struct {
	Kind  LocKind
	Name  string
	Token Token
	Index uint64
}

// Self returns a location addressing the call's own object
func Self() *Location { return &Location{Kind: LocSelf} }

// ByName returns a location addressing name relative to the call's object
func ByName(name string) *Location { return &Location{Kind: LocName, Name: name} }

// ByToken returns a location addressing an entity by token
func ByToken(t Token) *Location { return &Location{Kind: LocToken, Token: t} }

// OpArgs carries the arguments of a get/specific/optional operation. Op
// selects the operation within the connector's namespace; In and Out are
// operation-defined input and output slots.
type OpArgs struct {
	Op  string
	In  interface{}
	Out interface{}
}

// IOArgs carries the arguments of a read or write operation. Datasets use
// Buf and Offset; attributes use Value.
type IOArgs struct {
	Buf    []byte
	Offset int64
	Value  interface{}
}

// Well-known specific/optional operation selectors understood across
// connectors. Connectors may define additional selectors in their own
// namespace.
const (
	// OpFileIsAccessible probes whether a named resource can be opened by
	// the connector. In is *AccessibleArgs, Out is *bool.
	OpFileIsAccessible = "file.is_accessible"
	// OpFileFlush asks the connector to persist pending container state
	OpFileFlush = "file.flush"
	// OpLinkExists reports whether a link exists. Out is *bool.
	OpLinkExists = "link.exists"
	// OpLinkIterate visits links under a group. In is *LinkIterateArgs.
	OpLinkIterate = "link.iterate"
	// OpBlobDelete removes a stored blob
	OpBlobDelete = "blob.delete"
	// OpBlobExists reports whether a blob exists. Out is *bool.
	OpBlobExists = "blob.exists"
)

// AccessibleArgs is the input of OpFileIsAccessible
type AccessibleArgs struct {
	Name string
	Info interface{}
}

// LinkInfo describes one link during iteration
type LinkInfo struct {
	Name   string
	Type   LinkType
	Target string
}

// LinkIterateFunc visits one link. A positive return stops iteration and is
// propagated to the original caller; zero continues; an error aborts.
type LinkIterateFunc func(info *LinkInfo) (int, error)

// LinkIterateArgs is the input of OpLinkIterate
type LinkIterateArgs struct {
	Visit LinkIterateFunc
}

// LinkType identifies the flavor of a link
type LinkType int

const (
	// LinkHard references an entity by token
	LinkHard LinkType = iota
	// LinkSoft references an entity by path
	LinkSoft
	// LinkExternal references an entity in another container
	LinkExternal
)

// LinkCreateArgs carries the arguments of link creation
type LinkCreateArgs struct {
	Type        LinkType
	Target      string // soft/external link target path
	TargetToken Token  // hard link target
	External    string // external link container name
}

// RequestStatus reports the state of an in-flight async request
type RequestStatus int

const (
	// StatusInProgress means the request has not completed
	StatusInProgress RequestStatus = iota
	// StatusSucceeded means the request completed successfully
	StatusSucceeded
	// StatusFailed means the request completed with an error
	StatusFailed
	// StatusCanceled means the request was canceled before completion
	StatusCanceled
	// StatusCantCancel means the request is past the point of cancellation
	StatusCantCancel
)

// NotifyFunc is invoked when an async request completes
type NotifyFunc func(status RequestStatus)

// AttributeTable holds the attribute callbacks of a connector class
type AttributeTable struct {
	Create   func(ctx context.Context, obj interface{}, loc *Location, name string, req *TokenSlot) (interface{}, error)
	Open     func(ctx context.Context, obj interface{}, loc *Location, name string, req *TokenSlot) (interface{}, error)
	Read     func(ctx context.Context, attr interface{}, io *IOArgs, req *TokenSlot) error
	Write    func(ctx context.Context, attr interface{}, io *IOArgs, req *TokenSlot) error
	Get      func(ctx context.Context, attr interface{}, args *OpArgs, req *TokenSlot) error
	Specific func(ctx context.Context, obj interface{}, loc *Location, args *OpArgs, req *TokenSlot) (int, error)
	Optional func(ctx context.Context, attr interface{}, args *OpArgs, req *TokenSlot) (int, error)
	Close    func(ctx context.Context, attr interface{}, req *TokenSlot) error
}

// DatasetTable holds the dataset callbacks of a connector class
type DatasetTable struct {
	Create   func(ctx context.Context, obj interface{}, loc *Location, name string, req *TokenSlot) (interface{}, error)
	Open     func(ctx context.Context, obj interface{}, loc *Location, name string, req *TokenSlot) (interface{}, error)
	Read     func(ctx context.Context, ds interface{}, io *IOArgs, req *TokenSlot) error
	Write    func(ctx context.Context, ds interface{}, io *IOArgs, req *TokenSlot) error
	Get      func(ctx context.Context, ds interface{}, args *OpArgs, req *TokenSlot) error
	Specific func(ctx context.Context, ds interface{}, args *OpArgs, req *TokenSlot) (int, error)
	Optional func(ctx context.Context, ds interface{}, args *OpArgs, req *TokenSlot) (int, error)
	Close    func(ctx context.Context, ds interface{}, req *TokenSlot) error
}

// DatatypeTable holds the named-datatype callbacks of a connector class
type DatatypeTable struct {
	Commit   func(ctx context.Context, obj interface{}, loc *Location, name string, typeDef interface{}, req *TokenSlot) (interface{}, error)
	Open     func(ctx context.Context, obj interface{}, loc *Location, name string, req *TokenSlot) (interface{}, error)
	Get      func(ctx context.Context, dt interface{}, args *OpArgs, req *TokenSlot) error
	Specific func(ctx context.Context, dt interface{}, args *OpArgs, req *TokenSlot) (int, error)
	Optional func(ctx context.Context, dt interface{}, args *OpArgs, req *TokenSlot) (int, error)
	Close    func(ctx context.Context, dt interface{}, req *TokenSlot) error
}

// FileTable holds the file callbacks of a connector class. Create and Open
// produce the backend root pointer for a new Container; they receive the
// connector-specific info blob from the access configuration.
type FileTable struct {
	Create   func(ctx context.Context, name string, flags FileFlags, info interface{}, req *TokenSlot) (interface{}, error)
	Open     func(ctx context.Context, name string, flags FileFlags, info interface{}, req *TokenSlot) (interface{}, error)
	Get      func(ctx context.Context, file interface{}, args *OpArgs, req *TokenSlot) error
	Specific func(ctx context.Context, file interface{}, args *OpArgs, req *TokenSlot) (int, error)
	Optional func(ctx context.Context, file interface{}, args *OpArgs, req *TokenSlot) (int, error)
	Close    func(ctx context.Context, file interface{}, req *TokenSlot) error
}

// GroupTable holds the group callbacks of a connector class
type GroupTable struct {
	Create   func(ctx context.Context, obj interface{}, loc *Location, name string, req *TokenSlot) (interface{}, error)
	Open     func(ctx context.Context, obj interface{}, loc *Location, name string, req *TokenSlot) (interface{}, error)
	Get      func(ctx context.Context, grp interface{}, args *OpArgs, req *TokenSlot) error
	Specific func(ctx context.Context, grp interface{}, args *OpArgs, req *TokenSlot) (int, error)
	Optional func(ctx context.Context, grp interface{}, args *OpArgs, req *TokenSlot) (int, error)
	Close    func(ctx context.Context, grp interface{}, req *TokenSlot) error
}

// LinkTable holds the link callbacks of a connector class. Copy and Move
// operate between two (possibly distinct) containers.
type LinkTable struct {
	Create   func(ctx context.Context, args *LinkCreateArgs, obj interface{}, loc *Location, req *TokenSlot) error
	Copy     func(ctx context.Context, srcObj interface{}, srcLoc *Location, dstObj interface{}, dstLoc *Location, req *TokenSlot) error
	Move     func(ctx context.Context, srcObj interface{}, srcLoc *Location, dstObj interface{}, dstLoc *Location, req *TokenSlot) error
	Get      func(ctx context.Context, obj interface{}, loc *Location, args *OpArgs, req *TokenSlot) error
	Specific func(ctx context.Context, obj interface{}, loc *Location, args *OpArgs, req *TokenSlot) (int, error)
	Optional func(ctx context.Context, obj interface{}, loc *Location, args *OpArgs, req *TokenSlot) (int, error)
}

// ObjectTable holds the generic-object callbacks of a connector class.
// Open reports the concrete kind of the entity it opened.
type ObjectTable struct {
	Open     func(ctx context.Context, obj interface{}, loc *Location, req *TokenSlot) (interface{}, ObjectKind, error)
	Copy     func(ctx context.Context, srcObj interface{}, srcLoc *Location, srcName string, dstObj interface{}, dstLoc *Location, dstName string, req *TokenSlot) error
	Get      func(ctx context.Context, obj interface{}, loc *Location, args *OpArgs, req *TokenSlot) error
	Specific func(ctx context.Context, obj interface{}, loc *Location, args *OpArgs, req *TokenSlot) (int, error)
	Optional func(ctx context.Context, obj interface{}, loc *Location, args *OpArgs, req *TokenSlot) (int, error)
}

// InfoTable holds the connector-info management callbacks. The info blob is
// the connector-specific configuration carried by a connector property.
// When Copy is absent the dispatch layer falls back to a shallow copy.
type InfoTable struct {
	Copy        func(info interface{}) (interface{}, error)
	Compare     func(a, b interface{}) (int, error)
	Free        func(info interface{}) error
	Serialize   func(info interface{}) ([]byte, error)
	Deserialize func(data []byte) (interface{}, error)
}

// WrapTable holds the object-wrap callbacks used by stacked connectors and
// by the container accommodation step. GetContainer returns the backend
// root object owning obj, so the dispatch layer can detect entities that
// crossed into a different container.
type WrapTable struct {
	WrapObject   func(ctx context.Context, obj interface{}, kind ObjectKind, wrapCtx interface{}) (interface{}, error)
	UnwrapObject func(ctx context.Context, obj interface{}) (interface{}, error)
	GetObject    func(obj interface{}) interface{}
	GetWrapCtx   func(ctx context.Context, obj interface{}) (interface{}, error)
	FreeWrapCtx  func(ctx context.Context, wrapCtx interface{}) error
	GetContainer func(ctx context.Context, obj interface{}) (interface{}, error)
}

// TokenTable holds the location-token callbacks. All of them have
// documented dispatch-layer fallbacks: Compare falls back to byte-wise
// comparison, ToString and FromString fall back to "no string form".
type TokenTable struct {
	Compare    func(a, b Token) (int, error)
	ToString   func(obj interface{}, t Token) (string, error)
	FromString func(obj interface{}, s string) (Token, error)
}

// RequestTable holds the async-request callbacks operating on the opaque
// in-flight tokens produced via TokenSlot.
type RequestTable struct {
	Wait     func(ctx context.Context, token interface{}, timeout time.Duration) (RequestStatus, error)
	Cancel   func(ctx context.Context, token interface{}) (RequestStatus, error)
	Notify   func(ctx context.Context, token interface{}, cb NotifyFunc) error
	Specific func(ctx context.Context, token interface{}, args *OpArgs) (int, error)
	Optional func(ctx context.Context, token interface{}, args *OpArgs) (int, error)
	Free     func(ctx context.Context, token interface{}) error
}

// BlobTable holds the variable-length blob callbacks
type BlobTable struct {
	Put      func(ctx context.Context, obj interface{}, buf []byte) (BlobID, error)
	Get      func(ctx context.Context, obj interface{}, id BlobID) ([]byte, error)
	Specific func(ctx context.Context, obj interface{}, id BlobID, args *OpArgs) (int, error)
	Optional func(ctx context.Context, obj interface{}, id BlobID, args *OpArgs) (int, error)
}

// ConnectorClass is the immutable descriptor of one connector
// implementation. The registry deep-copies the identifying fields on
// registration; the callback tables are shared and must not be mutated
// afterwards.
type ConnectorClass struct {
	// Name identifies the connector for lookup and discovery
	Name string
	// Value is the numeric identity of the connector
	Value int
	// Version is the descriptor version; must equal ClassVersion to register
	Version int
	// Capabilities advertises optional features
	Capabilities Capability

	// Initialize runs once when the class is registered. The init
	// configuration is caller-supplied and connector-defined.
	Initialize func(ctx context.Context, initInfo interface{}) error
	// Terminate runs when the last instance reference is released
	Terminate func() error

	Info      *InfoTable
	Wrap      *WrapTable
	Attribute *AttributeTable
	Dataset   *DatasetTable
	Datatype  *DatatypeTable
	File      *FileTable
	Group     *GroupTable
	Link      *LinkTable
	Object    *ObjectTable
	Token     *TokenTable
	Request   *RequestTable
	Blob      *BlobTable

	// Optional is the generic catch-all callback for operations outside
	// every table's namespace
	Optional func(ctx context.Context, obj interface{}, args *OpArgs, req *TokenSlot) (int, error)
}
