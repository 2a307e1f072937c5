// Package admin serves the /v0 operator surface: status and reload,
// config and model-bundle editing, script management, and the
// interactive request queue.
package admin

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/llm-lab/mockllm/internal/config"
	"github.com/llm-lab/mockllm/internal/interactive"
	"github.com/llm-lab/mockllm/internal/kernel"
	"github.com/llm-lab/mockllm/internal/oai"
)

// Admin carries the handlers behind /v0.
type Admin struct {
	handle  *kernel.Handle
	hub     *interactive.Hub
	log     *slog.Logger
	version string
	started time.Time
}

// Options configures an Admin.
type Options struct {
	Handle  *kernel.Handle
	Hub     *interactive.Hub
	Logger  *slog.Logger
	Version string
	Started time.Time
}

func New(opts Options) *Admin {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	started := opts.Started
	if started.IsZero() {
		started = time.Now()
	}
	return &Admin{
		handle:  opts.Handle,
		hub:     opts.Hub,
		log:     logger.With("component", "admin"),
		version: opts.Version,
		started: started,
	}
}

// Register mounts every /v0 route on mux.
func (a *Admin) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v0/admin/auth", a.handleAuthProbe)
	mux.HandleFunc("/v0/status", a.handleStatus)
	mux.HandleFunc("/v0/reload", a.handleReload)
	mux.HandleFunc("/v0/config", a.handleConfig)
	mux.HandleFunc("/v0/models", a.handleModels)
	mux.HandleFunc("/v0/scripts", a.handleScripts)
	mux.HandleFunc("/v0/scripts/", a.handleScript)
	mux.HandleFunc("/v0/interactive/requests", a.handleInteractiveList)
	mux.HandleFunc("/v0/interactive/requests/", a.handleInteractiveReply)
	mux.HandleFunc("/v0/interactive/stream", a.handleInteractiveStream)
	mux.HandleFunc("/v0/schema", a.handleSchema)
}

// authorize checks the admin bearer token and returns the snapshot the
// request should operate on, or nil after writing a 401.
func (a *Admin) authorize(w http.ResponseWriter, r *http.Request) *kernel.Snapshot {
	snap := a.handle.Snapshot()
	if !snap.Config.Server.AdminAuth.Authorize(r.Header.Get("Authorization")) {
		oai.WriteError(w, oai.Unauthorized("unauthorized"))
		return nil
	}
	return snap
}

// handleAuthProbe tells the UI whether admin calls need a key. It is the
// one /v0 route that never requires auth itself.
func (a *Admin) handleAuthProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := a.handle.Snapshot()
	oai.WriteJSON(w, http.StatusOK, map[string]any{
		"enabled": snap.Config.Server.AdminAuth.Enabled,
	})
}

func (a *Admin) handleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.authorize(w, r) == nil {
		return
	}
	data, err := config.JSONSchema()
	if err != nil {
		oai.WriteError(w, oai.Internalf("build schema failed: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(data)
}

// ensureSimpleName rejects names that could escape the managed
// directory: empty, containing separators, or containing "..".
func ensureSimpleName(name string) *oai.Error {
	if name == "" {
		return oai.BadRequest("name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return oai.BadRequest("name must not contain path separators")
	}
	if strings.Contains(name, "..") {
		return oai.BadRequest("name must not contain ..")
	}
	return nil
}

// writeAtomic writes via a temp file in the target directory and renames
// it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write temp failed: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write temp failed: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace file failed: %w", err)
	}
	return nil
}
