// Package kernel owns the gateway's hot-reloadable runtime state. A
// snapshot is an immutable bundle of parsed config, resolved models,
// alias routes, compiled match rules, and running script workers; the
// handle swaps snapshots atomically so requests never see a torn view.
package kernel

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/llm-lab/mockllm/internal/config"
	"github.com/llm-lab/mockllm/internal/oai"
	"github.com/llm-lab/mockllm/internal/rules"
	"github.com/llm-lab/mockllm/internal/script"
)

var intn = rand.Intn

// Snapshot is one published view of the config directory. It is never
// mutated after Build; the round-robin counters inside are the only
// mutable state and reset naturally on reload.
type Snapshot struct {
	Config  *config.Config
	Catalog *config.Catalog
	Models  map[string]*config.Model
	Aliases map[string]*config.Alias

	// Ordered is the model list sorted by id, as the loader produced it.
	Ordered []*config.Model

	LoadedAt time.Time
	Paths    config.Paths

	caches  map[string]*rules.Cache
	workers map[string]*script.Worker
	static  *Counters
	aliasRR *Counters
}

// Build derives the runtime tables from a loaded config tree: a match
// cache per static model and a running worker per script model. Any
// failure stops the workers already started and fails the whole build.
func Build(loaded *config.Loaded) (*Snapshot, error) {
	s := &Snapshot{
		Config:   loaded.Config,
		Catalog:  loaded.Catalog,
		Models:   make(map[string]*config.Model, len(loaded.Models)),
		Aliases:  make(map[string]*config.Alias, len(loaded.Catalog.Aliases)),
		Ordered:  loaded.Models,
		LoadedAt: time.Now(),
		Paths:    loaded.Paths,
		caches:   make(map[string]*rules.Cache),
		workers:  make(map[string]*script.Worker),
		static:   NewCounters(),
		aliasRR:  NewCounters(),
	}

	for _, m := range loaded.Models {
		s.Models[m.ID] = m
		switch m.Kind {
		case config.KindStatic:
			cache, err := rules.NewCache(m)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.caches[m.ID] = cache
		case config.KindScript:
			w, err := script.NewWorker(m.PublicID(), loaded.Paths.ScriptsDir, m.Script)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("model %s: %w", m.ID, err)
			}
			s.workers[m.ID] = w
		}
	}

	for i := range loaded.Catalog.Aliases {
		a := &loaded.Catalog.Aliases[i]
		s.Aliases[a.Name] = a
	}
	return s, nil
}

// Close stops the snapshot's script workers. Queued calls are still
// served; later calls fail fast.
func (s *Snapshot) Close() {
	for _, w := range s.workers {
		w.Stop()
	}
}

// StaticReply runs the static engine for a resolved model.
func (s *Snapshot) StaticReply(m *config.Model, messages []oai.Message, vars rules.Vars) (oai.Reply, error) {
	cache := s.caches[m.ID]
	if cache == nil || m.Static == nil {
		return oai.Reply{}, errors.New("static config missing")
	}
	return rules.Respond(m, cache, messages, s.static, vars)
}

// ScriptEval runs the script engine for a resolved model.
func (s *Snapshot) ScriptEval(m *config.Model, input script.Input) (oai.Reply, error) {
	w := s.workers[m.ID]
	if w == nil {
		return oai.Reply{}, errors.New("script worker missing")
	}
	return w.Eval(input)
}

// Resolve turns a requested model id into a concrete model and the public
// id to echo back. An empty id falls back to the catalog's default model.
func (s *Snapshot) Resolve(requested string) (*config.Model, string, *oai.Error) {
	if requested == "" {
		return s.resolveDefault()
	}

	idx := strings.Index(requested, "/")
	if idx <= 0 || idx == len(requested)-1 {
		return nil, "", oai.BadRequest("model must be prefix/name")
	}
	prefix, name := requested[:idx], requested[idx+1:]

	if a, ok := s.Aliases[name]; ok && !a.Disabled && s.AliasPrefix(a) == prefix {
		m, apiErr := s.pickProvider(a)
		if apiErr != nil {
			return nil, "", apiErr
		}
		return m, prefix + "/" + a.Name, nil
	}

	if m, ok := s.Models[name]; ok && !m.Disabled && m.OwnedBy == prefix {
		return m, m.PublicID(), nil
	}
	return nil, "", oai.NotFound("model not found")
}

func (s *Snapshot) resolveDefault() (*config.Model, string, *oai.Error) {
	name := s.Catalog.DefaultModel
	if name == "" {
		return nil, "", oai.BadRequest("model is required")
	}

	if a, ok := s.Aliases[name]; ok {
		if a.Disabled {
			return nil, "", oai.NotFound("model not found")
		}
		m, apiErr := s.pickProvider(a)
		if apiErr != nil {
			return nil, "", apiErr
		}
		return m, s.AliasPrefix(a) + "/" + a.Name, nil
	}

	if m, ok := s.Models[name]; ok && !m.Disabled {
		return m, m.PublicID(), nil
	}
	return nil, "", oai.NotFound("model not found")
}

// pickProvider selects one enabled provider by the alias strategy.
func (s *Snapshot) pickProvider(a *config.Alias) (*config.Model, *oai.Error) {
	enabled := s.enabledProviders(a)
	if len(enabled) == 0 {
		return nil, oai.NotFound("no enabled providers")
	}
	var idx int
	switch a.Strategy {
	case config.AliasRandom:
		idx = intn(len(enabled))
	default:
		idx = s.aliasRR.Next(a.Name, len(enabled))
	}
	return enabled[idx], nil
}

func (s *Snapshot) enabledProviders(a *config.Alias) []*config.Model {
	out := make([]*config.Model, 0, len(a.Providers))
	for _, id := range a.Providers {
		if m, ok := s.Models[id]; ok && !m.Disabled {
			out = append(out, m)
		}
	}
	return out
}

// ListModels builds the public model listing: every enabled model plus
// every enabled alias with at least one enabled provider, sorted by
// public id. Alias entries borrow created from their first enabled
// provider.
func (s *Snapshot) ListModels() []oai.ModelInfo {
	out := make([]oai.ModelInfo, 0, len(s.Ordered)+len(s.Catalog.Aliases))
	for _, m := range s.Ordered {
		if m.Disabled {
			continue
		}
		out = append(out, oai.ModelInfo{
			ID:      m.PublicID(),
			Object:  "model",
			Created: m.Created,
			OwnedBy: m.OwnedBy,
		})
	}
	for i := range s.Catalog.Aliases {
		a := &s.Catalog.Aliases[i]
		if a.Disabled {
			continue
		}
		enabled := s.enabledProviders(a)
		if len(enabled) == 0 {
			continue
		}
		prefix := s.AliasPrefix(a)
		out = append(out, oai.ModelInfo{
			ID:      prefix + "/" + a.Name,
			Object:  "model",
			Created: enabled[0].Created,
			OwnedBy: prefix,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AliasPrefix is the prefix an alias is addressed under: its own
// owned_by, else the owner of its first enabled provider, else the owner
// of its first provider, else the stock default.
func (s *Snapshot) AliasPrefix(a *config.Alias) string {
	if owned := strings.TrimSpace(a.OwnedBy); owned != "" {
		return owned
	}
	for _, id := range a.Providers {
		if m, ok := s.Models[id]; ok && !m.Disabled {
			return m.OwnedBy
		}
	}
	if len(a.Providers) > 0 {
		if m, ok := s.Models[a.Providers[0]]; ok {
			return m.OwnedBy
		}
	}
	return config.DefaultOwner
}
