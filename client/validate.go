// Package client implements a dependency-free check that rejects a
// malformed command before any bytes reach a socket. The interactive
// REPL that calls this lives elsewhere and is not part of this package.
package client

import (
	"fmt"

	"dfstore/routing"
)

// supportedArchiveTypes is narrower than the full routing table: zip is
// a recognized file type but never an archivable one.
var supportedArchiveTypes = map[string]bool{"c": true, "pdf": true, "txt": true}

// Validate checks a parsed command line (keyword plus whitespace-split
// arguments) against the supported command set, arity, and, where the
// command demands one, a supported file-type extension. It performs no
// I/O and opens no connection.
func Validate(cmd string, args []string) error {
	switch cmd {
	case "uploadf":
		if len(args) != 1 && len(args) != 2 {
			return fmt.Errorf("uploadf requires 1 or 2 arguments, got %d", len(args))
		}
		if _, err := routing.Route(args[0]); err != nil {
			return fmt.Errorf("uploadf: %w", err)
		}
		return nil

	case "downlf":
		if len(args) != 1 {
			return fmt.Errorf("downlf requires exactly 1 argument, got %d", len(args))
		}
		if _, err := routing.Route(args[0]); err != nil {
			return fmt.Errorf("downlf: %w", err)
		}
		return nil

	case "removef":
		if len(args) != 1 {
			return fmt.Errorf("removef requires exactly 1 argument, got %d", len(args))
		}
		if _, err := routing.Route(args[0]); err != nil {
			return fmt.Errorf("removef: %w", err)
		}
		return nil

	case "downltar":
		if len(args) != 1 {
			return fmt.Errorf("downltar requires exactly 1 argument, got %d", len(args))
		}
		if !supportedArchiveTypes[args[0]] {
			return fmt.Errorf("downltar: unsupported or unarchivable type %q", args[0])
		}
		return nil

	case "dispfnames":
		if len(args) > 1 {
			return fmt.Errorf("dispfnames accepts at most 1 argument, got %d", len(args))
		}
		return nil

	case "exit":
		if len(args) != 0 {
			return fmt.Errorf("exit takes no arguments")
		}
		return nil

	default:
		return fmt.Errorf("unsupported command %q", cmd)
	}
}
