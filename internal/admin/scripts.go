package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/llm-lab/mockllm/internal/oai"
)

type scriptUpdate struct {
	Content string `json:"content"`
}

func (a *Admin) handleScripts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := a.authorize(w, r)
	if snap == nil {
		return
	}

	names := []string{}
	entries, err := os.ReadDir(snap.Paths.ScriptsDir)
	if err != nil && !os.IsNotExist(err) {
		oai.WriteError(w, oai.Internalf("read scripts dir failed: %v", err))
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	oai.WriteJSON(w, http.StatusOK, map[string]any{"files": names})
}

func (a *Admin) handleScript(w http.ResponseWriter, r *http.Request) {
	snap := a.authorize(w, r)
	if snap == nil {
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/v0/scripts/")
	if apiErr := ensureSimpleName(name); apiErr != nil {
		oai.WriteError(w, apiErr)
		return
	}
	path := filepath.Join(snap.Paths.ScriptsDir, name)

	switch r.Method {
	case http.MethodGet:
		content, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			oai.WriteError(w, oai.NotFound("script not found"))
			return
		}
		if err != nil {
			oai.WriteError(w, oai.Internalf("read script failed: %v", err))
			return
		}
		oai.WriteJSON(w, http.StatusOK, map[string]any{
			"name":    name,
			"content": string(content),
		})

	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			oai.WriteError(w, oai.BadRequest("failed to read request body"))
			return
		}
		var payload scriptUpdate
		if err := json.Unmarshal(body, &payload); err != nil {
			oai.WriteError(w, oai.BadRequest("invalid request body: "+err.Error()))
			return
		}
		if err := os.MkdirAll(snap.Paths.ScriptsDir, 0o755); err != nil {
			oai.WriteError(w, oai.Internalf("create dir failed: %v", err))
			return
		}
		if err := writeAtomic(path, []byte(payload.Content)); err != nil {
			oai.WriteError(w, oai.Internalf("write script failed: %v", err))
			return
		}
		oai.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})

	case http.MethodDelete:
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			oai.WriteError(w, oai.Internalf("delete script failed: %v", err))
			return
		}
		oai.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
