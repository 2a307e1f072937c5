package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/llm-lab/mockllm/internal/config"
	"github.com/llm-lab/mockllm/internal/kernel"
	"github.com/llm-lab/mockllm/internal/oai"
)

// modelBundle is the whole models directory as one document: the catalog
// plus every model file, sorted by id.
type modelBundle struct {
	Catalog config.Catalog     `json:"catalog" yaml:"catalog"`
	Models  []config.ModelFile `json:"models" yaml:"models"`
}

func (a *Admin) handleModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.getModels(w, r)
	case http.MethodPut:
		a.putModels(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *Admin) getModels(w http.ResponseWriter, r *http.Request) {
	snap := a.authorize(w, r)
	if snap == nil {
		return
	}
	bundle, apiErr := readBundle(snap)
	if apiErr != nil {
		oai.WriteError(w, apiErr)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "yaml") {
		out, err := yaml.Marshal(bundle)
		if err != nil {
			oai.WriteError(w, oai.Internalf("serialize models failed: %v", err))
			return
		}
		w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
		w.Write(out)
		return
	}
	oai.WriteJSON(w, http.StatusOK, bundle)
}

func (a *Admin) putModels(w http.ResponseWriter, r *http.Request) {
	snap := a.authorize(w, r)
	if snap == nil {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		oai.WriteError(w, oai.BadRequest("failed to read request body"))
		return
	}

	var bundle modelBundle
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		if err := yaml.Unmarshal(body, &bundle); err != nil {
			oai.WriteError(w, oai.BadRequest("invalid yaml: "+err.Error()))
			return
		}
	} else if jsonErr := json.Unmarshal(body, &bundle); jsonErr != nil {
		if yamlErr := yaml.Unmarshal(body, &bundle); yamlErr != nil {
			oai.WriteError(w, oai.BadRequest(fmt.Sprintf("invalid json: %v; invalid yaml: %v", jsonErr, yamlErr)))
			return
		}
	}

	if err := config.ValidateBundle(&bundle.Catalog, bundle.Models, snap.Paths.ScriptsDir); err != nil {
		oai.WriteError(w, oai.BadRequest("invalid model bundle: "+err.Error()))
		return
	}
	if apiErr := writeBundle(snap.Paths.ModelsDir, &bundle); apiErr != nil {
		oai.WriteError(w, apiErr)
		return
	}
	oai.WriteJSON(w, http.StatusOK, bundle)
}

// readBundle re-reads the models directory from disk so edits made
// outside the server still show up.
func readBundle(snap *kernel.Snapshot) (*modelBundle, *oai.Error) {
	catalogPath := filepath.Join(snap.Paths.ModelsDir, "_catalog.yaml")
	catalogData, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, oai.Internalf("read catalog failed: %v", err)
	}
	var bundle modelBundle
	if err := yaml.Unmarshal(catalogData, &bundle.Catalog); err != nil {
		return nil, oai.BadRequest("invalid catalog yaml: " + err.Error())
	}

	paths, err := config.ModelFiles(snap.Paths.ModelsDir)
	if err != nil {
		return nil, oai.Internalf("read models dir failed: %v", err)
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, oai.Internalf("read model failed: %v", err)
		}
		var file config.ModelFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, oai.BadRequest("invalid model yaml: " + err.Error())
		}
		if strings.TrimSpace(file.ID) == "" {
			base := filepath.Base(path)
			file.ID = strings.TrimSuffix(base, filepath.Ext(base))
		}
		bundle.Models = append(bundle.Models, file)
	}
	sort.Slice(bundle.Models, func(i, j int) bool { return bundle.Models[i].ID < bundle.Models[j].ID })
	return &bundle, nil
}

// writeBundle replaces the models directory contents: catalog and model
// files are written atomically, and yaml files for models that left the
// bundle are removed.
func writeBundle(modelsDir string, bundle *modelBundle) *oai.Error {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return oai.Internalf("create dir failed: %v", err)
	}

	ids := make(map[string]bool, len(bundle.Models))
	for i := range bundle.Models {
		id := strings.TrimSpace(bundle.Models[i].ID)
		if id == "" {
			return oai.BadRequest("model id missing")
		}
		if apiErr := ensureSimpleName(id); apiErr != nil {
			return apiErr
		}
		if ids[id] {
			return oai.BadRequest("duplicate model id " + id)
		}
		ids[id] = true
		bundle.Models[i].ID = id
	}

	catalogOut, err := yaml.Marshal(bundle.Catalog)
	if err != nil {
		return oai.Internalf("serialize catalog failed: %v", err)
	}
	if err := writeAtomic(filepath.Join(modelsDir, "_catalog.yaml"), catalogOut); err != nil {
		return oai.Internal(err.Error())
	}

	for i := range bundle.Models {
		out, err := yaml.Marshal(bundle.Models[i])
		if err != nil {
			return oai.Internalf("serialize model failed: %v", err)
		}
		path := filepath.Join(modelsDir, bundle.Models[i].ID+".yaml")
		if err := writeAtomic(path, out); err != nil {
			return oai.Internal(err.Error())
		}
	}

	existing, err := config.ModelFiles(modelsDir)
	if err != nil {
		return oai.Internalf("read models dir failed: %v", err)
	}
	for _, path := range existing {
		base := filepath.Base(path)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if !ids[stem] {
			if err := os.Remove(path); err != nil {
				return oai.Internalf("delete model failed: %v", err)
			}
		}
	}
	return nil
}
