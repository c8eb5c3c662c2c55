//go:build property
// +build property

package pathnorm

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	rerr "github.com/conneroisu/routefs/internal/errors"
)

// TestNormalizeProperties verifies the normalizer invariants over generated
// request paths.
func TestNormalizeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	segment := gen.RegexMatch(`^[a-zA-Z0-9._-]{1,12}$`)

	pathGen := gen.SliceOfN(4, segment).Map(func(segs []string) string {
		return "/" + strings.Join(segs, "/")
	})

	// Property: successful outputs never contain a dot-dot segment and
	// never start with a slash.
	properties.Property("output is relative and traversal-free", prop.ForAll(
		func(path string) bool {
			out, err := Normalize(path)
			if err != nil {
				// Generated segments can be "." or ".." literals;
				// rejection is the correct outcome for those.
				return rerr.IsForbidden(err)
			}

			if strings.HasPrefix(out, "/") {
				return false
			}
			for _, seg := range strings.Split(out, "/") {
				if seg == ".." {
					return false
				}
			}
			return true
		},
		pathGen,
	))

	// Property: Normalize is idempotent over its own output.
	properties.Property("idempotence", prop.ForAll(
		func(path string) bool {
			once, err := Normalize(path)
			if err != nil {
				return true
			}

			twice, err := Normalize(once)
			return err == nil && once == twice
		},
		pathGen,
	))

	// Property: any path containing a dot-dot segment is forbidden, no
	// matter where the segment sits.
	properties.Property("traversal attempts are forbidden", prop.ForAll(
		func(prefix, suffix []string) bool {
			path := "/" + strings.Join(append(append(prefix, ".."), suffix...), "/")

			_, err := Normalize(path)
			return err != nil && rerr.IsForbidden(err)
		},
		gen.SliceOfN(2, segment),
		gen.SliceOfN(2, segment),
	))

	properties.TestingRun(t)
}
