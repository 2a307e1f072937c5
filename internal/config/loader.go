package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Paths locates the pieces of a config directory.
type Paths struct {
	Root       string
	ConfigPath string
	ModelsDir  string
	ScriptsDir string
}

// DirPaths derives the standard layout under a config root.
func DirPaths(root string) Paths {
	return Paths{
		Root:       root,
		ConfigPath: filepath.Join(root, "config.yaml"),
		ModelsDir:  filepath.Join(root, "models"),
		ScriptsDir: filepath.Join(root, "scripts"),
	}
}

// Loaded is a fully parsed and validated config directory. Models are
// sorted by id.
type Loaded struct {
	Config  *Config
	Catalog *Catalog
	Models  []*Model
	Paths   Paths
}

// LoadDir reads config.yaml, the model catalog, and every model file
// under a config root. Any invalid file fails the whole load.
func LoadDir(root string) (*Loaded, error) {
	paths := DirPaths(root)

	cfg, err := Load(paths.ConfigPath)
	if err != nil {
		return nil, err
	}
	strict := cfg.Response.StrictSchemas()

	catalogPath := filepath.Join(paths.ModelsDir, "_catalog.yaml")
	catalogData, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog: %w", err)
	}
	var catalog Catalog
	if err := decodeYAML(catalogData, &catalog, strict); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", catalogPath, err)
	}
	if catalog.Schema != SchemaVersion {
		return nil, fmt.Errorf("unsupported catalog schema %d (want %d)", catalog.Schema, SchemaVersion)
	}

	files, err := ModelFiles(paths.ModelsDir)
	if err != nil {
		return nil, err
	}

	created := time.Now().Unix()
	seen := make(map[string]string, len(files))
	models := make([]*Model, 0, len(files))
	for _, path := range files {
		model, err := loadModelFile(path, &catalog, strict, created, paths.ScriptsDir)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[model.ID]; ok {
			return nil, fmt.Errorf("duplicate model id %s (%s and %s)", model.ID, prev, path)
		}
		seen[model.ID] = path
		models = append(models, model)
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no model yaml found under %s", paths.ModelsDir)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	if err := checkAliases(catalog.Aliases, seen); err != nil {
		return nil, err
	}

	return &Loaded{
		Config:  cfg,
		Catalog: &catalog,
		Models:  models,
		Paths:   paths,
	}, nil
}

// ModelFiles enumerates the model yaml files in a flat models directory.
// Files whose stem starts with "_" are reserved for catalog use and
// skipped. Subdirectories are rejected outright.
func ModelFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read models dir: %w", err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			return nil, fmt.Errorf("nested model directories not supported: %s", filepath.Join(dir, entry.Name()))
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if !strings.EqualFold(ext, ".yaml") && !strings.EqualFold(ext, ".yml") {
			continue
		}
		if strings.HasPrefix(strings.TrimSuffix(name, ext), "_") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

func loadModelFile(path string, catalog *Catalog, strict bool, created int64, scriptsDir string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var file ModelFile
	if err := decodeYAML(data, &file, strict); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if file.Schema != SchemaVersion {
		return nil, fmt.Errorf("unsupported model schema %d in %s (want %d)", file.Schema, path, SchemaVersion)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id := strings.TrimSpace(file.ID)
	if id == "" {
		id = stem
	} else if id != stem {
		return nil, fmt.Errorf("model id %q does not match file name %s", id, filepath.Base(path))
	}
	file.ID = id

	model, err := resolveModel(&file, catalog, created)
	if err != nil {
		return nil, err
	}
	if err := checkScripts(model, scriptsDir); err != nil {
		return nil, err
	}
	return model, nil
}

// checkScripts validates script references and requires the files to
// exist under the scripts directory.
func checkScripts(model *Model, scriptsDir string) error {
	if model.Kind != KindScript {
		return nil
	}
	spec := model.Script
	if strings.TrimSpace(spec.File) == "" {
		return fmt.Errorf("model %s: script file is required", model.ID)
	}
	refs := []struct{ field, path string }{
		{"script file", spec.File},
	}
	if spec.InitFile != "" {
		refs = append(refs, struct{ field, path string }{"script init_file", spec.InitFile})
	}
	for _, ref := range refs {
		if err := checkScriptPath(model.ID, ref.field, ref.path); err != nil {
			return err
		}
		full := filepath.Join(scriptsDir, filepath.FromSlash(ref.path))
		info, err := os.Stat(full)
		if err != nil {
			return fmt.Errorf("model %s: %s %s not found under %s", model.ID, ref.field, ref.path, scriptsDir)
		}
		if info.IsDir() {
			return fmt.Errorf("model %s: %s %s is a directory", model.ID, ref.field, ref.path)
		}
	}
	return nil
}

func checkAliases(aliases []Alias, models map[string]string) error {
	seen := make(map[string]bool, len(aliases))
	for _, alias := range aliases {
		name := strings.TrimSpace(alias.Name)
		if name == "" {
			return fmt.Errorf("alias name must not be empty")
		}
		if seen[name] {
			return fmt.Errorf("duplicate alias %s", name)
		}
		seen[name] = true
		if len(alias.Providers) == 0 {
			return fmt.Errorf("alias %s has no providers", name)
		}
		for _, provider := range alias.Providers {
			if _, ok := models[provider]; !ok {
				return fmt.Errorf("alias %s references unknown model %s", name, provider)
			}
		}
	}
	return nil
}

// ValidateBundle checks a catalog plus model files as a unit, without
// requiring the model files on disk. Script references are still checked
// against the scripts directory, since scripts are managed separately.
func ValidateBundle(catalog *Catalog, files []ModelFile, scriptsDir string) error {
	if catalog.Schema != SchemaVersion {
		return fmt.Errorf("unsupported catalog schema %d (want %d)", catalog.Schema, SchemaVersion)
	}
	if len(files) == 0 {
		return fmt.Errorf("bundle has no models")
	}
	created := time.Now().Unix()
	seen := make(map[string]string, len(files))
	for i := range files {
		file := files[i]
		id := strings.TrimSpace(file.ID)
		if id == "" {
			return fmt.Errorf("model id missing")
		}
		file.ID = id
		if file.Schema != SchemaVersion {
			return fmt.Errorf("unsupported model schema %d for %s (want %d)", file.Schema, id, SchemaVersion)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("duplicate model id %s", id)
		}
		seen[id] = id
		model, err := resolveModel(&file, catalog, created)
		if err != nil {
			return err
		}
		if err := checkScripts(model, scriptsDir); err != nil {
			return err
		}
	}
	return checkAliases(catalog.Aliases, seen)
}
