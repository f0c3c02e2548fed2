package session

import (
	"strings"

	"github.com/trezcool/masomo-portal/core/user"
)

// ReservedSegments are the top-level path segments that are never a school slug.
var ReservedSegments = map[string]bool{
	"api":           true,
	"auth":          true,
	"ws":            true,
	"school-select": true,
}

func segments(path string) []string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// RoleFromPath returns the first path segment naming a role, "" if there is none.
func RoleFromPath(path string) string {
	for _, seg := range segments(path) {
		if user.IsRole(seg) {
			return seg
		}
	}
	return ""
}

// SlugFromPath returns the school slug leading the path, "" if there is none.
func SlugFromPath(path string) string {
	segs := segments(path)
	if len(segs) == 0 {
		return ""
	}
	if first := segs[0]; !IsReservedSlug(first) {
		return first
	}
	return ""
}

// IsReservedSlug reports whether slug would be read as something else than a school in a path:
// a role or one of ReservedSegments.
func IsReservedSlug(slug string) bool {
	return ReservedSegments[slug] || user.IsRole(slug)
}

// LoginPath is where a visitor of path is sent to authenticate:
// the school's login page, or the school-selection entry point.
func LoginPath(path string) string {
	if slug := SlugFromPath(path); slug != "" {
		return "/" + slug + "/auth/login"
	}
	return "/"
}

func DashboardPath(slug, role string) string {
	if slug == "" {
		return "/" + role
	}
	return "/" + slug + "/" + role
}
