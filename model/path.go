package model

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// PathID is the slash-delimited hierarchical identifier naming every app,
// pod, and group in the namespace, analogous to a filesystem path. Absolute
// identifiers begin with "/"; identifiers without a leading slash are
// relative and must be resolved against a base before use. PathIDs are
// immutable values: they order and hash by their segment sequence, so they
// are usable directly as map keys.
type PathID string

// RootPath is the identifier of the namespace root.
const RootPath = PathID("/")

var pathSegmentRegexp = regexp.MustCompile(`^[a-z0-9]([a-z0-9.-]*[a-z0-9])?$`)

// JoinPath builds an absolute PathID from the given segments.
func JoinPath(segments ...string) PathID {
	if len(segments) == 0 {
		return RootPath
	}
	return PathID("/" + strings.Join(segments, "/"))
}

// Segments returns the ordered path segments. The root path has none.
func (p PathID) Segments() []string {
	trimmed := strings.Trim(string(p), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// IsAbsolute reports whether the identifier is anchored at the root.
func (p PathID) IsAbsolute() bool {
	return strings.HasPrefix(string(p), "/")
}

// IsRoot reports whether the identifier names the namespace root.
func (p PathID) IsRoot() bool {
	return len(p.Segments()) == 0 && p.IsAbsolute()
}

// IsEmpty reports whether the identifier is the zero value.
func (p PathID) IsEmpty() bool {
	return p == ""
}

// Parent drops the last segment of the identifier. The root has no parent,
// so Parent of the root (or of the zero value) is the zero PathID.
func (p PathID) Parent() PathID {
	segments := p.Segments()
	if len(segments) == 0 {
		return ""
	}
	if !p.IsAbsolute() {
		if len(segments) == 1 {
			return ""
		}
		return PathID(strings.Join(segments[:len(segments)-1], "/"))
	}
	return JoinPath(segments[:len(segments)-1]...)
}

// Base returns the last segment, or the empty string for the root.
func (p PathID) Base() string {
	segments := p.Segments()
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// IsChildOf reports whether the identifier is a strict descendant of the
// given ancestor, i.e. the ancestor's segments are a proper prefix of its
// own.
func (p PathID) IsChildOf(ancestor PathID) bool {
	own := p.Segments()
	prefix := ancestor.Segments()
	if len(prefix) >= len(own) {
		return false
	}
	for i := range prefix {
		if own[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Canonicalize resolves the identifier against base and returns the absolute
// form. Absolute identifiers are returned unchanged apart from "." and ".."
// resolution; relative identifiers are appended to base first. ".." segments
// that would climb above the root resolve to the root.
func (p PathID) Canonicalize(base PathID) PathID {
	var segments []string
	if p.IsAbsolute() {
		segments = p.Segments()
	} else {
		segments = append(append([]string{}, base.Segments()...), p.Segments()...)
	}
	resolved := make([]string, 0, len(segments))
	for _, s := range segments {
		switch s {
		case ".":
		case "..":
			if len(resolved) > 0 {
				resolved = resolved[:len(resolved)-1]
			}
		default:
			resolved = append(resolved, s)
		}
	}
	return JoinPath(resolved...)
}

// AppendPath returns the identifier extended by the given segments.
func (p PathID) AppendPath(segments ...string) PathID {
	return JoinPath(append(append([]string{}, p.Segments()...), segments...)...)
}

// Less orders identifiers by their segment sequence.
func (p PathID) Less(other PathID) bool {
	a, b := p.Segments(), other.Segments()
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// ValidPathWithBase checks that the identifier is usable as an entity id
// under base: it must be the base itself or a descendant of it once
// canonicalized, and every segment must be non-empty and restricted to
// lowercase alphanumerics, dots, and dashes.
func (p PathID) ValidPathWithBase(base PathID) error {
	if p.IsEmpty() {
		return errors.New("identifier must not be empty")
	}
	if strings.Contains(strings.Trim(string(p), "/"), "//") {
		return errors.Errorf("identifier '%s' contains an empty segment", p)
	}
	canonical := p.Canonicalize(base)
	for _, s := range canonical.Segments() {
		if !pathSegmentRegexp.MatchString(s) {
			return errors.Errorf("identifier '%s' contains the invalid segment '%s'", p, s)
		}
	}
	canonicalBase := base.Canonicalize(RootPath)
	if canonical != canonicalBase && !canonical.IsChildOf(canonicalBase) {
		return errors.Errorf("identifier '%s' is not a child of '%s'", p, base)
	}
	return nil
}

// SortPaths sorts identifiers in place by segment order.
func SortPaths(paths []PathID) {
	sort.Slice(paths, func(i, j int) bool { return paths[i].Less(paths[j]) })
}
