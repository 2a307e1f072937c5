package admin

import (
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/llm-lab/mockllm/internal/kernel"
	"github.com/llm-lab/mockllm/internal/oai"
)

func (a *Admin) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := a.authorize(w, r)
	if snap == nil {
		return
	}
	oai.WriteJSON(w, http.StatusOK, a.buildStatus(snap))
}

func (a *Admin) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.authorize(w, r) == nil {
		return
	}

	next, reloaded, err := a.handle.Reload()
	if err != nil {
		a.log.Error("reload failed", "error", err)
		oai.WriteError(w, oai.Internal(err.Error()))
		return
	}
	body := a.buildStatus(next)
	body["reloaded"] = reloaded
	oai.WriteJSON(w, http.StatusOK, body)
}

func (a *Admin) buildStatus(snap *kernel.Snapshot) map[string]any {
	ids := make([]string, 0, len(snap.Models))
	for id := range snap.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	names := make([]string, 0, len(snap.Aliases))
	for name := range snap.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	var mtime any
	if info, err := os.Stat(snap.Paths.ConfigPath); err == nil {
		mtime = info.ModTime().UTC().Format(time.RFC3339)
	}

	return map[string]any{
		"ok":         true,
		"version":    a.version,
		"uptime_sec": int64(time.Since(a.started).Seconds()),
		"loaded_at":  snap.LoadedAt.UTC().Format(time.RFC3339),
		"config": map[string]any{
			"dir":   snap.Paths.Root,
			"path":  snap.Paths.ConfigPath,
			"mtime": mtime,
		},
		"models": map[string]any{
			"count": len(ids),
			"ids":   ids,
		},
		"aliases": map[string]any{
			"count": len(names),
			"names": names,
		},
	}
}
