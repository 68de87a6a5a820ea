package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v2"

	"dfstore/routing"
)

// Role distinguishes the one front-door node from the three pure backends.
type Role int

const (
	RoleBackend Role = iota
	RoleFrontDoor
)

// NodeConfig is a node's fully resolved runtime configuration: its role,
// its own listen address, its local root directory, and, for the
// front-door only, the dial addresses of N2/N3/N4.
type NodeConfig struct {
	Role Role
	Self routing.BackendId

	ListenPort int
	Root       string

	// front-door only
	BackendAddrs map[routing.BackendId]string

	DialTimeoutMS int
	LogPath       string
}

// overlay is the shape of the optional YAML config file: operational
// defaults that don't belong on a command line, unlike ports.
type overlay struct {
	Root          string `yaml:"root"`
	DialTimeoutMS int    `yaml:"dial_timeout_ms"`
	LogPath       string `yaml:"log_path"`
}

// Load parses a node's command line:
//
//	backend:    <port> <backend-id>          e.g. "9002 N2"
//	front-door: <port> <n2-port> <n3-port> <n4-port>
//
// A "-config <path>" pair anywhere in args is stripped before positional parsing
// and, if present, overlays Root/DialTimeoutMS/LogPath defaults.
func Load(args []string) (*NodeConfig, error) {
	args, ov, err := extractConfigFlag(args)
	if err != nil {
		return nil, err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}

	cfg := &NodeConfig{
		DialTimeoutMS: 5000,
	}
	if ov != nil {
		if ov.DialTimeoutMS > 0 {
			cfg.DialTimeoutMS = ov.DialTimeoutMS
		}
		cfg.LogPath = ov.LogPath
	}

	switch len(args) {
	case 2:
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid listen port %q: %w", args[0], err)
		}
		id := routing.BackendId(args[1])
		if id != routing.N2 && id != routing.N3 && id != routing.N4 {
			return nil, fmt.Errorf("backend id must be one of N2, N3, N4, got %q", args[1])
		}
		cfg.Role = RoleBackend
		cfg.Self = id
		cfg.ListenPort = port

	case 4:
		ports := make([]int, 4)
		for i, a := range args {
			p, err := strconv.Atoi(a)
			if err != nil {
				return nil, fmt.Errorf("invalid port %q: %w", a, err)
			}
			ports[i] = p
		}
		cfg.Role = RoleFrontDoor
		cfg.Self = routing.N1
		cfg.ListenPort = ports[0]
		cfg.BackendAddrs = map[routing.BackendId]string{
			routing.N2: fmt.Sprintf("127.0.0.1:%d", ports[1]),
			routing.N3: fmt.Sprintf("127.0.0.1:%d", ports[2]),
			routing.N4: fmt.Sprintf("127.0.0.1:%d", ports[3]),
		}

	default:
		return nil, fmt.Errorf("expected \"<port> <backend-id>\" or \"<port> <n2-port> <n3-port> <n4-port>\", got %d args", len(args))
	}

	if ov != nil && ov.Root != "" {
		cfg.Root = ov.Root
	} else {
		cfg.Root = filepath.Join(homeDir, string(routing.Segment(cfg.Self)))
	}

	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(homeDir, string(cfg.Self)+".log")
	}

	return cfg, nil
}

func extractConfigFlag(args []string) ([]string, *overlay, error) {
	for i, a := range args {
		if a != "-config" {
			continue
		}
		if i+1 >= len(args) {
			return nil, nil, fmt.Errorf("-config requires a path argument")
		}
		path := args[i+1]
		rest := append(append([]string{}, args[:i]...), args[i+2:]...)

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		var ov overlay
		if err := yaml.Unmarshal(data, &ov); err != nil {
			return nil, nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		return rest, &ov, nil
	}
	return args, nil, nil
}

// String renders the resolved config for the node's startup log line.
func (c *NodeConfig) String() string {
	roleName := "backend"
	if c.Role == RoleFrontDoor {
		roleName = "front-door"
	}
	return fmt.Sprintf(
		"node=%s role=%s port=%d root=%s backends=%v dial_timeout_ms=%d log=%s",
		c.Self, roleName, c.ListenPort, c.Root, c.BackendAddrs, c.DialTimeoutMS, c.LogPath,
	)
}
