package routing

import (
	"strings"

	"dfstore/util"
)

// relativeToRoot validates a logical path's anchoring and returns the
// portion beneath whichever root it names ("" if the path names the
// root itself). A bare path (no leading "~/") is the alternate form:
// relative to the default root already, nothing to strip. An absolute
// path not anchored at "~/S1" fails with MalformedPath.
func relativeToRoot(logical string) (string, error) {
	if logical == "" {
		return "", nil
	}
	if strings.HasPrefix(logical, "~/") {
		rest := logical[len("~/"):]
		parts := strings.SplitN(rest, "/", 2)
		if parts[0] != "S1" {
			return "", util.NewOperationError(util.KindMalformedPath, nil)
		}
		if len(parts) == 1 {
			return "", nil
		}
		return parts[1], nil
	}
	if strings.HasPrefix(logical, "/") {
		return "", util.NewOperationError(util.KindMalformedPath, nil)
	}
	return logical, nil
}

// Rewrite translates a client-visible logical path, anchored at "~/S1/"
// or given as a bare filename/relative path, into the display-form
// physical path on target: the "S1" segment (if present) replaced with
// target's own segment, all intermediate segments preserved verbatim.
// No normalization, no symlink resolution.
func Rewrite(logical string, target BackendId) (string, error) {
	segment := Segment(target)
	if segment == "" {
		return "", util.NewOperationError(util.KindMalformedPath, nil)
	}

	rest, err := relativeToRoot(logical)
	if err != nil {
		return "", err
	}
	if rest == "" {
		return "~/" + segment, nil
	}
	return "~/" + segment + "/" + rest, nil
}

// RelativeToRoot returns the portion of a logical path beneath whatever
// root it names, suitable for joining against a storage node's own Root
// directory: the form actually sent over the wire to a backend, which
// only ever needs to resolve paths against itself.
func RelativeToRoot(logical string) (string, error) {
	return relativeToRoot(logical)
}
