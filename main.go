package main

import (
	"fmt"
	"os"

	"dfstore/config"
	"dfstore/dispatch"
	"dfstore/routing"
	"dfstore/storage"
	"dfstore/util"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	util.CreateProcessLogger(cfg.LogPath)
	if util.ProcessLogger != nil {
		defer util.ProcessLogger.Close()
	}

	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		fmt.Fprintln(os.Stderr, "failed to create root", cfg.Root, ":", err)
		os.Exit(1)
	}

	ownedType := ""
	if cfg.Role == config.RoleBackend {
		ownedType = ownedFileType(cfg.Self)
	}
	node := storage.NewNode(cfg.Root, ownedType)

	if util.ProcessLogger != nil {
		util.ProcessLogger.Info(string(cfg.Self), "starting: "+cfg.String())
	}

	lc := dispatch.NewLifecycle()
	lc.WatchSignals()

	srv := dispatch.NewServer(cfg, node)
	if err := srv.Serve(lc.Done()); err != nil {
		fmt.Fprintln(os.Stderr, "server error:", err)
		os.Exit(1)
	}

	lc.Wait()
}

// ownedFileType names the single extension a backend is ever asked to
// store or archive, per the fixed routing table.
func ownedFileType(self routing.BackendId) string {
	switch self {
	case routing.N2:
		return "pdf"
	case routing.N3:
		return "txt"
	case routing.N4:
		return "zip"
	default:
		return ""
	}
}
