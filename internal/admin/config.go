package admin

import (
	"encoding/json"
	"io"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/llm-lab/mockllm/internal/config"
	"github.com/llm-lab/mockllm/internal/kernel"
	"github.com/llm-lab/mockllm/internal/oai"
)

// publicConfig is the slice of config.yaml the admin API exposes. The
// server section stays off limits.
type publicConfig struct {
	Response config.ResponseConfig `json:"response"`
}

// configPatch is the PATCH body: any subset of the editable sections.
type configPatch struct {
	Response *config.ResponseConfig `json:"response"`
}

func (a *Admin) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.getConfig(w, r)
	case http.MethodPut:
		a.putConfig(w, r)
	case http.MethodPatch:
		a.patchConfig(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *Admin) getConfig(w http.ResponseWriter, r *http.Request) {
	snap := a.authorize(w, r)
	if snap == nil {
		return
	}
	oai.WriteJSON(w, http.StatusOK, publicConfig{Response: snap.Config.Response})
}

func (a *Admin) putConfig(w http.ResponseWriter, r *http.Request) {
	snap := a.authorize(w, r)
	if snap == nil {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		oai.WriteError(w, oai.BadRequest("failed to read request body"))
		return
	}
	var payload publicConfig
	if err := json.Unmarshal(body, &payload); err != nil {
		oai.WriteError(w, oai.BadRequest("invalid config: "+err.Error()))
		return
	}

	cfg, err := config.Load(snap.Paths.ConfigPath)
	if err != nil {
		oai.WriteError(w, oai.Internalf("read config failed: %v", err))
		return
	}
	cfg.Response = payload.Response
	if err := a.writeConfig(snap, cfg); err != nil {
		oai.WriteError(w, oai.Internal(err.Error()))
		return
	}
	oai.WriteJSON(w, http.StatusOK, publicConfig{Response: cfg.Response})
}

func (a *Admin) patchConfig(w http.ResponseWriter, r *http.Request) {
	snap := a.authorize(w, r)
	if snap == nil {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		oai.WriteError(w, oai.BadRequest("failed to read request body"))
		return
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		oai.WriteError(w, oai.BadRequest("invalid config patch"))
		return
	}
	if _, ok := raw["server"]; ok {
		oai.WriteError(w, oai.BadRequest("server config is not editable via /v0"))
		return
	}
	var patch configPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		oai.WriteError(w, oai.BadRequest("invalid config patch"))
		return
	}

	cfg, err := config.Load(snap.Paths.ConfigPath)
	if err != nil {
		oai.WriteError(w, oai.Internalf("read config failed: %v", err))
		return
	}
	if patch.Response != nil {
		cfg.Response = *patch.Response
	}
	if err := a.writeConfig(snap, cfg); err != nil {
		oai.WriteError(w, oai.Internal(err.Error()))
		return
	}
	oai.WriteJSON(w, http.StatusOK, publicConfig{Response: cfg.Response})
}

// writeConfig serializes the whole config back to config.yaml. The next
// reload, explicit or via the watcher, picks it up.
func (a *Admin) writeConfig(snap *kernel.Snapshot, cfg *config.Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return writeAtomic(snap.Paths.ConfigPath, out)
}
