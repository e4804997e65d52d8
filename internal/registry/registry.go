// Package registry resolves caller-supplied model names to a provider and
// canonical upstream model name. A Registry is immutable once built.
// cmd/byokey builds one at startup; a config reload by internal/watcher does
// not rebuild it.
package registry

import (
	"sort"

	"github.com/AprilNEA/BYOKEY/internal/byokeyerr"
	"github.com/AprilNEA/BYOKEY/internal/config"
	"github.com/AprilNEA/BYOKEY/internal/credential"
)

// Entry is one resolvable model.
type Entry struct {
	Provider       credential.ProviderId
	UpstreamModel  string
}

// Registry is the immutable model→provider mapping built from a Config
// snapshot.
type Registry struct {
	exact     map[string]Entry
	aliases   map[string]string // alias -> canonical caller-facing name
	excluded  map[string]bool
}

// Build constructs a Registry from cfg. Exact entries come from each
// provider's model list in models (callers pass concrete model names, e.g.
// executor.AllSupportedModels, since spec.md does not mandate a fixed
// built-in model catalogue); aliases and exclusions come straight from the
// per-provider config.
func Build(cfg *config.Config, models map[credential.ProviderId][]string) *Registry {
	r := &Registry{
		exact:    make(map[string]Entry),
		aliases:  make(map[string]string),
		excluded: make(map[string]bool),
	}
	for provider, modelNames := range models {
		pc := cfg.Provider(provider)
		if !pc.IsEnabled() {
			continue
		}
		for _, m := range modelNames {
			r.exact[m] = Entry{Provider: provider, UpstreamModel: m}
		}
		for from, to := range pc.ModelAliases {
			r.aliases[from] = to
		}
		for _, excl := range pc.ModelExclusions {
			r.excluded[excl] = true
		}
	}
	return r
}

// ResolveAlias maps model through the alias table only, returning model
// unchanged if no alias applies. Exposed separately from Resolve so the
// dispatcher can resolve aliases before stripping a thinking-mode suffix,
// matching the original implementation's alias-then-suffix ordering.
func (r *Registry) ResolveAlias(model string) string {
	if canonical, ok := r.aliases[model]; ok {
		return canonical
	}
	return model
}

// Resolve maps a caller-supplied model name to its Entry: exact match
// first, then the alias table, then ModelUnknown. An excluded name is
// always ModelUnknown even if it would otherwise resolve.
func (r *Registry) Resolve(model string) (Entry, error) {
	if r.excluded[model] {
		return Entry{}, byokeyerr.New(byokeyerr.KindModelUnknown, "model %q is excluded", model)
	}
	if e, ok := r.exact[model]; ok {
		return e, nil
	}
	if canonical, ok := r.aliases[model]; ok {
		if r.excluded[canonical] {
			return Entry{}, byokeyerr.New(byokeyerr.KindModelUnknown, "model %q is excluded", model)
		}
		if e, ok := r.exact[canonical]; ok {
			return e, nil
		}
	}
	return Entry{}, byokeyerr.New(byokeyerr.KindModelUnknown, "unknown model %q", model)
}

// List returns every enabled, non-excluded model name, sorted
// lexicographically — exactly the set /v1/models must return.
func (r *Registry) List() []string {
	out := make([]string, 0, len(r.exact))
	for name := range r.exact {
		if !r.excluded[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
