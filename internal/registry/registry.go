// Package registry composes the three tool sources behind one lookup
// surface. Resolution order is fixed: local tools first, then the hosted
// server, then external servers. A name owned by an earlier source shadows
// the same name in a later one.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ternlab/tern/internal/log"
	"github.com/ternlab/tern/internal/tools"
)

// ErrUnknownTool is returned when no source owns the requested tool.
var ErrUnknownTool = errors.New("unknown tool")

// Source names as reported by SourceOf.
const (
	SourceLocal    = "local"
	SourceHosted   = "hosted"
	SourceExternal = "external"
)

// Source is one provider of tools. All three adapters (local set, hosted
// server, external manager) implement it.
type Source interface {
	Definitions() []tools.Definition
	Owns(name string) bool
	Call(ctx context.Context, name string, args json.RawMessage) (string, error)
}

type entry struct {
	name   string
	source Source
}

// Registry is an immutable view over the tool sources. Build it once at
// startup; sources added later are not picked up.
type Registry struct {
	sources []entry
	defs    []tools.Definition
	owner   map[string]entry
}

// New builds a registry from the sources in priority order. Nil sources are
// skipped so callers can omit unconfigured ones. Name collisions between
// sources are logged once at build time; the higher-priority source wins.
func New(local, hosted, external Source, logger log.Logger) *Registry {
	r := &Registry{owner: make(map[string]entry)}

	add := func(name string, src Source) {
		if src == nil {
			return
		}
		r.sources = append(r.sources, entry{name: name, source: src})
		for _, def := range src.Definitions() {
			if prev, taken := r.owner[def.Name]; taken {
				logger.Warn("tool name shadowed",
					"tool", def.Name, "kept_source", prev.name, "shadowed_source", name)
				continue
			}
			r.owner[def.Name] = entry{name: name, source: src}
			r.defs = append(r.defs, def)
		}
	}

	add(SourceLocal, local)
	add(SourceHosted, hosted)
	add(SourceExternal, external)

	logger.Info("tool registry built", "tools", len(r.defs), "sources", len(r.sources))
	return r
}

// Definitions returns all visible tool definitions in priority order.
// Shadowed names appear once, under their winning source.
func (r *Registry) Definitions() []tools.Definition {
	return r.defs
}

// SourceOf reports which source owns a tool name.
func (r *Registry) SourceOf(name string) (string, bool) {
	e, ok := r.owner[name]
	if !ok {
		return "", false
	}
	return e.name, true
}

// Execute resolves the tool name and runs it on its owning source.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	e, ok := r.owner[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return e.source.Call(ctx, name, args)
}
