// Package pathutil normalizes and splits the slash-separated remote paths
// drivefs exposes. Remote paths are always relative to the configured root
// folder; "" and "/" both name the root.
package pathutil

import (
	"fmt"
	"strings"
)

// Normalize collapses duplicate slashes and trims leading/trailing ones.
// The root normalizes to the empty string.
func Normalize(path string) string {
	if path == "" {
		return ""
	}
	parts := strings.Split(path, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

// Validate rejects paths drivefs cannot address: "." or ".." segments and
// segments that are all whitespace.
func Validate(path string) error {
	for _, seg := range Segments(Normalize(path)) {
		if seg == "." || seg == ".." {
			return fmt.Errorf("path %q contains relative segment %q", path, seg)
		}
		if strings.TrimSpace(seg) == "" {
			return fmt.Errorf("path %q contains blank segment", path)
		}
	}
	return nil
}

// Segments splits a normalized path into its components. The root has none.
func Segments(path string) []string {
	path = Normalize(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Split returns the parent path and leaf name.
func Split(path string) (parent, name string) {
	path = Normalize(path)
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Parent returns the parent path of path; the root's parent is the root.
func Parent(path string) string {
	parent, _ := Split(path)
	return parent
}

// Base returns the leaf name of path; the root's base is "".
func Base(path string) string {
	_, name := Split(path)
	return name
}

// Join joins path elements and normalizes the result.
func Join(elems ...string) string {
	return Normalize(strings.Join(elems, "/"))
}

// IsRoot reports whether path names the root folder.
func IsRoot(path string) bool {
	return Normalize(path) == ""
}

// IsAncestor reports whether ancestor contains path (strictly or equal).
func IsAncestor(ancestor, path string) bool {
	ancestor, path = Normalize(ancestor), Normalize(path)
	if ancestor == "" {
		return true
	}
	return path == ancestor || strings.HasPrefix(path, ancestor+"/")
}
