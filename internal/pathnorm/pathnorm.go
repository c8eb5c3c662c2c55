// Package pathnorm canonicalizes incoming URL paths into safe, traversal-free
// route keys.
//
// Normalize is a pure function: it percent-decodes the raw request path,
// applies Unicode NFC normalization so visually identical keys compare equal,
// and splits the result into segments. Dot-dot segments are rejected outright
// rather than resolved, so an encoded traversal attempt can never be cleaned
// away into a valid path. The output never has a leading slash and is stable
// under renormalization.
package pathnorm

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"

	rerr "github.com/conneroisu/routefs/internal/errors"
)

// Normalize canonicalizes a raw request path into a relative route key.
// It returns a forbidden RouteError when the path contains traversal
// segments, NUL or control characters, backslashes, or escape sequences that
// cannot be decoded unambiguously.
func Normalize(raw string) (string, error) {
	if containsIllegalByte(raw) {
		return "", rerr.NewForbiddenError("ILLEGAL_BYTE", "path contains NUL or control character").WithPath(raw)
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", rerr.NewForbiddenError("INVALID_ESCAPE", "path contains malformed percent-escape").WithPath(raw)
	}

	// A '%' surviving the decode means the input was double-encoded.
	// Rejecting it keeps Normalize idempotent: a successful result decodes
	// to itself.
	if strings.ContainsRune(decoded, '%') {
		return "", rerr.NewForbiddenError("AMBIGUOUS_ESCAPE", "path contains double-encoded escape").WithPath(raw)
	}

	if containsIllegalByte(decoded) {
		return "", rerr.NewForbiddenError("ILLEGAL_BYTE", "path contains NUL or control character").WithPath(raw)
	}

	if strings.ContainsRune(decoded, '\\') {
		return "", rerr.NewForbiddenError("BACKSLASH", "path contains backslash separator").WithPath(raw)
	}

	decoded = norm.NFC.String(decoded)

	segments := strings.Split(decoded, "/")
	kept := segments[:0]
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", rerr.NewForbiddenError("TRAVERSAL", "path contains dot-dot segment").WithPath(raw)
		default:
			kept = append(kept, seg)
		}
	}

	return strings.Join(kept, "/"), nil
}

// HasExtension reports whether the final segment of a normalized path has a
// file extension. The resolver uses this to decide whether extension
// inference applies.
func HasExtension(normalized string) bool {
	base := normalized
	if i := strings.LastIndexByte(normalized, '/'); i >= 0 {
		base = normalized[i+1:]
	}

	dot := strings.LastIndexByte(base, '.')
	return dot > 0 && dot < len(base)-1
}

func containsIllegalByte(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}
