// Package resolver maps normalized request paths onto route descriptors,
// applying the fallback rules for extensionless paths and directories.
//
// Resolution order is fixed and deterministic:
//
//  1. direct lookup of the normalized path
//  2. for extensionless paths, each configured extension in priority order,
//     left to right; the first existing file wins regardless of
//     modification time
//  3. directory handling: the directory's index file if one exists,
//     otherwise a synthetic listing when listings are enabled
//  4. a typed miss
//
// Every resolve call works against one immutable index snapshot, so a single
// request can never observe a half-applied refresh. ResolvedRoute values are
// per-request and never cached: content may change between requests.
package resolver

import (
	"github.com/conneroisu/routefs/internal/errors"
	"github.com/conneroisu/routefs/internal/pathnorm"
	"github.com/conneroisu/routefs/internal/routeindex"
)

// ResolvedRoute is the ephemeral product of one resolution.
type ResolvedRoute struct {
	// Descriptor is the route the path resolved to.
	Descriptor *routeindex.RouteDescriptor
	// MatchedSuffix is the extension appended during extensionless
	// inference, empty for direct hits.
	MatchedSuffix string
	// Listing marks a synthetic directory-listing route.
	Listing bool
	// Snapshot is the index generation this route was resolved against.
	// The dispatcher uses the same snapshot for index-file delegation.
	Snapshot *routeindex.Snapshot
}

// Resolver queries the route index and applies fallback rules.
type Resolver struct {
	index *routeindex.Index
	// priority is the extension list for extensionless resolution,
	// evaluated left to right.
	priority []string
	// listing enables synthetic directory listings.
	listing bool
}

// New creates a resolver over the given index.
func New(index *routeindex.Index, priority []string, listing bool) *Resolver {
	return &Resolver{
		index:    index,
		priority: priority,
		listing:  listing,
	}
}

// Resolve maps a normalized path onto a route or a typed miss. It reads only
// the in-memory snapshot and never touches the disk.
func (r *Resolver) Resolve(normalizedPath string) (*ResolvedRoute, error) {
	snap := r.index.Snapshot()

	// Step 1: direct lookup.
	if d, ok := snap.Lookup(normalizedPath); ok {
		if d.IsDir() {
			return r.resolveDirectory(snap, d)
		}
		return &ResolvedRoute{Descriptor: d, Snapshot: snap}, nil
	}

	// Step 2: extension inference for extensionless paths.
	if normalizedPath != "" && !pathnorm.HasExtension(normalizedPath) {
		for _, ext := range r.priority {
			if d, ok := snap.Lookup(normalizedPath + ext); ok && !d.IsDir() {
				return &ResolvedRoute{
					Descriptor:    d,
					MatchedSuffix: ext,
					Snapshot:      snap,
				}, nil
			}
		}
	}

	// Step 3 handled in resolveDirectory for existing directories; a path
	// with no descriptor at all falls through to the miss checks.
	if snap.Denied(normalizedPath) {
		return nil, errors.NewPermissionError(normalizedPath)
	}

	return nil, errors.NewNotFoundError(normalizedPath)
}

// resolveDirectory applies the directory fallbacks: index file first, then
// listing, then a miss.
func (r *Resolver) resolveDirectory(snap *routeindex.Snapshot, d *routeindex.RouteDescriptor) (*ResolvedRoute, error) {
	if d.Kind == routeindex.KindDirectoryIndex {
		return &ResolvedRoute{Descriptor: d, Snapshot: snap}, nil
	}

	if r.listing {
		return &ResolvedRoute{Descriptor: d, Listing: true, Snapshot: snap}, nil
	}

	return nil, errors.NewNotFoundError(d.NormalizedPath)
}
