// Package routeindex maintains the in-memory mapping from normalized request
// paths to route descriptors, mirroring the content directory tree.
//
// The index is built once at startup by a full recursive scan and refreshed
// incrementally when the watcher reports filesystem changes. Readers never
// lock: every lookup reads an immutable snapshot reached through an atomic
// pointer, and a refresh builds its replacement off to the side before
// publishing it with a single swap. Refreshes serialize among themselves so
// overlapping subtree rescans cannot lose updates.
//
// All filesystem access goes through billy.Filesystem, which lets tests run
// against an in-memory filesystem.
package routeindex

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5"

	rerr "github.com/conneroisu/routefs/internal/errors"
	"github.com/conneroisu/routefs/internal/logging"
)

// Options configures classification during scans.
type Options struct {
	// Root is the OS path of the content root, used only to derive
	// AbsolutePath values for logging and listings.
	Root string
	// TemplateExts and DynamicExts are the extension→kind mapping.
	// Anything unmatched is Static, so the mapping is total.
	TemplateExts []string
	DynamicExts  []string
	// IndexPattern matches directory index files, e.g. "index.*".
	IndexPattern string
}

// Snapshot is one immutable generation of the route mapping. A snapshot is
// safe for concurrent use by any number of readers.
type Snapshot struct {
	version uint64
	routes  map[string]*RouteDescriptor
	denied  []string
}

// Version returns the snapshot's generation counter.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Len returns the number of route descriptors in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.routes)
}

// Lookup returns the descriptor for a normalized path. It never touches the
// filesystem.
func (s *Snapshot) Lookup(normalizedPath string) (*RouteDescriptor, bool) {
	d, ok := s.routes[normalizedPath]
	return d, ok
}

// Denied reports whether the path lies under a subtree the last scan could
// not read.
func (s *Snapshot) Denied(normalizedPath string) bool {
	for _, prefix := range s.denied {
		if normalizedPath == prefix || strings.HasPrefix(normalizedPath, prefix+"/") {
			return true
		}
	}
	return false
}

// Children returns the descriptors directly under a directory route,
// ordered by route key. Directory listings are built from this.
func (s *Snapshot) Children(dir string) []*RouteDescriptor {
	var out []*RouteDescriptor
	for key, d := range s.routes {
		if key == "" {
			continue
		}
		if parentOf(key) == dir {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NormalizedPath < out[j].NormalizedPath
	})
	return out
}

// Routes returns all descriptors ordered by route key.
func (s *Snapshot) Routes() []*RouteDescriptor {
	out := make([]*RouteDescriptor, 0, len(s.routes))
	for _, d := range s.routes {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NormalizedPath < out[j].NormalizedPath
	})
	return out
}

// Index owns the current snapshot and the refresh protocol.
type Index struct {
	fsys   billy.Filesystem
	opts   Options
	logger logging.Logger

	snapshot atomic.Pointer[Snapshot]
	version  atomic.Uint64

	// refreshMu serializes mutations; readers never take it.
	refreshMu sync.Mutex

	watchersMu sync.Mutex
	watchers   []chan RefreshEvent
}

// New creates an index over the given content filesystem. The index is empty
// until BuildFull runs.
func New(fsys billy.Filesystem, opts Options, logger logging.Logger) *Index {
	if opts.IndexPattern == "" {
		opts.IndexPattern = "index.*"
	}
	if logger == nil {
		logger = logging.NewLogger(logging.DefaultConfig())
	}

	ix := &Index{
		fsys:   fsys,
		opts:   opts,
		logger: logger.WithComponent("routeindex"),
	}
	ix.snapshot.Store(&Snapshot{routes: make(map[string]*RouteDescriptor)})
	return ix
}

// Snapshot returns the current snapshot. Callers hold it for at most one
// request; the mapping it exposes never mutates.
func (ix *Index) Snapshot() *Snapshot {
	return ix.snapshot.Load()
}

// BuildFull performs the startup scan. An unreadable content root is fatal
// here; the same condition during a later refresh only logs.
func (ix *Index) BuildFull() error {
	ix.refreshMu.Lock()
	defer ix.refreshMu.Unlock()

	if _, err := ix.fsys.ReadDir("."); err != nil {
		return rerr.NewIndexError("content root is not readable", err)
	}

	routes := make(map[string]*RouteDescriptor)
	var denied []string
	ix.scanDir("", routes, &denied)

	ix.publish("", routes, denied)
	return nil
}

// Refresh rescans the subtree rooted at the given route key and atomically
// replaces the corresponding slice of the mapping. Entries outside the
// subtree carry over from the previous snapshot untouched.
func (ix *Index) Refresh(subtree string) error {
	ix.refreshMu.Lock()
	defer ix.refreshMu.Unlock()

	if fi, err := ix.fsys.Stat(fsPath(subtree)); err == nil && !fi.IsDir() {
		// A file path was handed in; the owning directory is the unit
		// of refresh.
		subtree = parentOf(subtree)
	}

	old := ix.snapshot.Load()

	routes := make(map[string]*RouteDescriptor, len(old.routes))
	for key, d := range old.routes {
		if !underSubtree(key, subtree) {
			routes[key] = d
		}
	}

	var denied []string
	for _, prefix := range old.denied {
		if !underSubtree(prefix, subtree) {
			denied = append(denied, prefix)
		}
	}

	if _, err := ix.fsys.Stat(fsPath(subtree)); err != nil {
		if !os.IsNotExist(err) {
			ix.logger.Warn(context.Background(), err, "subtree stat failed, keeping previous snapshot", "subtree", subtree)
			return err
		}
		// Subtree vanished: publishing the pruned mapping is the refresh.
	} else {
		ix.scanDir(subtree, routes, &denied)
	}

	ix.publish(subtree, routes, denied)
	return nil
}

// Watch returns a channel that receives an event each time a snapshot is
// published.
func (ix *Index) Watch() <-chan RefreshEvent {
	ix.watchersMu.Lock()
	defer ix.watchersMu.Unlock()

	ch := make(chan RefreshEvent, 16)
	ix.watchers = append(ix.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it.
func (ix *Index) UnWatch(ch <-chan RefreshEvent) {
	ix.watchersMu.Lock()
	defer ix.watchersMu.Unlock()

	for i, watcher := range ix.watchers {
		if watcher == ch {
			close(watcher)
			ix.watchers = append(ix.watchers[:i], ix.watchers[i+1:]...)
			break
		}
	}
}

// publish installs a new snapshot. Callers hold refreshMu.
func (ix *Index) publish(subtree string, routes map[string]*RouteDescriptor, denied []string) {
	snap := &Snapshot{
		version: ix.version.Add(1),
		routes:  routes,
		denied:  denied,
	}
	ix.snapshot.Store(snap)

	event := RefreshEvent{
		Subtree:   subtree,
		Version:   snap.version,
		Routes:    len(routes),
		Timestamp: time.Now(),
	}

	ix.watchersMu.Lock()
	for _, watcher := range ix.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
	ix.watchersMu.Unlock()
}

// scanDir recursively scans one directory, adding descriptors for it and
// everything visible below it. One bad entry degrades to skip-and-log; a
// permission-denied directory blocks its whole subtree.
func (ix *Index) scanDir(rel string, routes map[string]*RouteDescriptor, denied *[]string) {
	ctx := context.Background()

	entries, err := ix.fsys.ReadDir(fsPath(rel))
	if err != nil {
		if os.IsPermission(err) {
			ix.logger.Warn(ctx, err, "directory not readable, marking subtree denied", "path", rel)
			*denied = append(*denied, rel)
		} else {
			ix.logger.Warn(ctx, err, "skipping unreadable directory", "path", rel)
		}
		return
	}

	desc := &RouteDescriptor{
		NormalizedPath: rel,
		RelPath:        rel,
		AbsolutePath:   ix.absPath(rel),
		Kind:           KindDirectory,
	}
	if fi, err := ix.fsys.Stat(fsPath(rel)); err == nil {
		desc.LastModified = fi.ModTime()
	}

	for _, entry := range entries {
		name := entry.Name()
		if hidden(name) {
			continue
		}
		desc.ChildCount++

		childRel := joinRel(rel, name)

		if entry.IsDir() {
			ix.scanDir(childRel, routes, denied)
			continue
		}

		routes[childRel] = &RouteDescriptor{
			NormalizedPath: childRel,
			RelPath:        childRel,
			AbsolutePath:   ix.absPath(childRel),
			Kind:           ix.classify(name),
			LastModified:   entry.ModTime(),
		}

		// First pattern match in directory order wins.
		if desc.IndexTarget == "" {
			if ok, _ := path.Match(ix.opts.IndexPattern, name); ok {
				desc.Kind = KindDirectoryIndex
				desc.IndexTarget = childRel
			}
		}
	}

	routes[rel] = desc
}

// classify maps a file name onto its handling kind. Longest configured
// suffix wins so ".html.tmpl" beats ".tmpl" lookalikes correctly.
func (ix *Index) classify(name string) Kind {
	kind := KindStatic
	best := 0

	for _, ext := range ix.opts.TemplateExts {
		if strings.HasSuffix(name, ext) && len(ext) > best {
			kind = KindTemplate
			best = len(ext)
		}
	}
	for _, ext := range ix.opts.DynamicExts {
		if strings.HasSuffix(name, ext) && len(ext) > best {
			kind = KindDynamic
			best = len(ext)
		}
	}

	return kind
}

func (ix *Index) absPath(rel string) string {
	if ix.opts.Root == "" {
		return rel
	}
	return filepath.Join(ix.opts.Root, filepath.FromSlash(rel))
}

// hidden reports whether a directory entry is excluded from routing.
// Underscore and dot prefixes hide an entry and everything below it.
func hidden(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}

func fsPath(rel string) string {
	if rel == "" {
		return "."
	}
	return rel
}

func joinRel(rel, name string) string {
	if rel == "" {
		return name
	}
	return rel + "/" + name
}

func parentOf(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return ""
}

func underSubtree(key, subtree string) bool {
	if subtree == "" {
		return true
	}
	return key == subtree || strings.HasPrefix(key, subtree+"/")
}
