package mcp

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternlab/tern/internal/config"
	"github.com/ternlab/tern/internal/log"
)

// LoadServerSpecs builds the external server list from configuration. The
// exclusion list takes precedence over the allow list; environment variable
// references in env values use the $VAR_NAME form.
func LoadServerSpecs(cfg *config.Config, logger log.Logger) []ServerSpec {
	if len(cfg.MCPServers) == 0 {
		logger.Debug("no external MCP servers configured")
		return nil
	}

	var specs []ServerSpec
	for name, serverCfg := range cfg.MCPServers {
		if serverCfg.Command == "" {
			logger.Warn("skipping MCP server without command", "server", name)
			continue
		}
		specs = append(specs, ServerSpec{
			Name:    name,
			Command: serverCfg.Command,
			Args:    serverCfg.Args,
			Env:     envMapToSlice(resolveEnvVars(serverCfg.Env, logger)),
		})
	}

	specs = filterExcluded(specs, cfg.MCPExcluded, logger)
	specs = filterAllowed(specs, cfg.MCPAllowed, logger)

	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	logger.Info("external MCP servers to connect", "servers", names)
	return specs
}

// resolveEnvVars substitutes $VAR_NAME values from the process environment.
// Literal values pass through unchanged.
func resolveEnvVars(env map[string]string, logger log.Logger) map[string]string {
	if env == nil {
		return nil
	}

	resolved := make(map[string]string, len(env))
	for key, value := range env {
		if name, ok := strings.CutPrefix(value, "$"); ok {
			envValue := os.Getenv(name)
			if envValue == "" {
				logger.Warn("environment variable not set for MCP server",
					"env_var", name, "mapped_to", key)
			}
			resolved[key] = envValue
			continue
		}
		resolved[key] = value
	}
	return resolved
}

// filterExcluded drops servers on the exclusion list.
func filterExcluded(specs []ServerSpec, excluded []string, logger log.Logger) []ServerSpec {
	if len(excluded) == 0 {
		return specs
	}

	set := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		set[name] = true
	}

	kept := specs[:0]
	for _, s := range specs {
		if set[s.Name] {
			logger.Info("excluded MCP server", "server", s.Name)
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// filterAllowed keeps only servers on the allow list. An empty list allows
// everything.
func filterAllowed(specs []ServerSpec, allowed []string, logger log.Logger) []ServerSpec {
	if len(allowed) == 0 {
		return specs
	}

	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[name] = true
	}

	kept := specs[:0]
	for _, s := range specs {
		if !set[s.Name] {
			logger.Info("MCP server not in allowed list", "server", s.Name)
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// envMapToSlice converts an env map to the KEY=VALUE slice form exec.Cmd
// expects.
func envMapToSlice(m map[string]string) []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
