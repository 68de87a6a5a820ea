// Package routing implements the two pure-function components of the
// store: the Type Router (extension -> owning backend) and the Path
// Rewriter (logical path -> physical path on a given backend). Neither
// does any I/O; both are safe to call from tests without a server.
package routing

import (
	"strings"

	"dfstore/util"
)

// BackendId names one of the store's four fixed nodes.
type BackendId string

const (
	N1 BackendId = "N1"
	N2 BackendId = "N2"
	N3 BackendId = "N3"
	N4 BackendId = "N4"
)

// routingTable is fixed at build time: it is never discovered or
// reconfigured at runtime.
var routingTable = map[string]BackendId{
	"c":   N1,
	"pdf": N2,
	"txt": N3,
	"zip": N4,
}

// segments gives each backend's root directory name, e.g. N2 -> "S2".
var segments = map[BackendId]string{
	N1: "S1",
	N2: "S2",
	N3: "S3",
	N4: "S4",
}

// Segment returns the root-directory segment owned by a backend (e.g.
// "S2" for N2).
func Segment(b BackendId) string {
	return segments[b]
}

// Route maps a filename's extension to its owning backend. The
// extension is the portion after the final '.', lowercased. A filename
// with no extension, or one outside the recognized set, fails with
// UnsupportedType.
func Route(filename string) (BackendId, error) {
	ext := extensionOf(filename)
	if ext == "" {
		return "", util.NewOperationError(util.KindUnsupportedType, nil)
	}
	backend, ok := routingTable[ext]
	if !ok {
		return "", util.NewOperationError(util.KindUnsupportedType, nil)
	}
	return backend, nil
}

// FileType returns the lowercased extension of filename without the dot,
// or "" if filename carries no extension.
func FileType(filename string) string {
	return extensionOf(filename)
}

// BackendForType maps a literal file type keyword (as used by downltar,
// which receives the type directly rather than deriving it from a
// filename) to its owning backend.
func BackendForType(fileType string) (BackendId, error) {
	backend, ok := routingTable[strings.ToLower(fileType)]
	if !ok {
		return "", util.NewOperationError(util.KindUnsupportedType, nil)
	}
	return backend, nil
}

func extensionOf(filename string) string {
	base := filename
	if idx := strings.LastIndexByte(filename, '/'); idx >= 0 {
		base = filename[idx+1:]
	}
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 || dot == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[dot+1:])
}
