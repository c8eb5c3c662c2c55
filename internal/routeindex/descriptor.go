package routeindex

import (
	"time"
)

// Kind classifies how a resolved route is handled.
type Kind int

const (
	// KindStatic serves the file's bytes verbatim.
	KindStatic Kind = iota
	// KindTemplate renders the file through the template collaborator.
	KindTemplate
	// KindDynamic executes the file through the script collaborator.
	KindDynamic
	// KindDirectoryIndex is a directory whose index file serves the
	// directory's route.
	KindDirectoryIndex
	// KindDirectory is a directory without an index file. It never reaches
	// the dispatcher: the resolver turns it into a listing route or a miss.
	KindDirectory
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindTemplate:
		return "template"
	case KindDynamic:
		return "dynamic"
	case KindDirectoryIndex:
		return "directory-index"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// RouteDescriptor describes one resolvable endpoint. Descriptors are built
// during a scan and are immutable afterwards; they hold no file handles.
type RouteDescriptor struct {
	// NormalizedPath is the canonical slash-separated route key, unique
	// within a snapshot. The content root itself has the empty key.
	NormalizedPath string
	// RelPath is the slash-separated path of the backing file within the
	// content filesystem.
	RelPath string
	// AbsolutePath is the OS path of the backing file, for logging and
	// listings only.
	AbsolutePath string
	// Kind selects the handling strategy.
	Kind Kind
	// LastModified is used for change detection and conditional responses.
	LastModified time.Time
	// ChildCount is the number of visible entries for directory nodes.
	ChildCount int
	// IndexTarget is the route key of the index file for
	// KindDirectoryIndex nodes.
	IndexTarget string
}

// IsDir reports whether the descriptor denotes a directory node.
func (d *RouteDescriptor) IsDir() bool {
	return d.Kind == KindDirectory || d.Kind == KindDirectoryIndex
}

// RefreshEvent describes one published snapshot transition.
type RefreshEvent struct {
	// Subtree is the route key of the rescanned subtree, "" for a full
	// rebuild.
	Subtree string
	// Version is the snapshot version that became visible.
	Version uint64
	// Routes is the route count of the new snapshot.
	Routes int
	// Timestamp is when the snapshot was published.
	Timestamp time.Time
}
