package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrInvalidProjectRoot is returned when a project root is not an existing directory
var ErrInvalidProjectRoot = errors.New("project root must be an existing directory")

// Paths are the files this server reads, writes and watches for one project
type Paths struct {
	ProjectRoot       string `json:"projectRoot"`
	AplDir            string `json:"aplDir"`
	StateFile         string `json:"stateFile"`
	LearningsFile     string `json:"learningsFile"`
	ProjectConfigFile string `json:"projectConfigFile"`
	MetaDir           string `json:"metaDir"`

	PluginRoot       string `json:"pluginRoot"`
	MasterConfigFile string `json:"masterConfigFile"`
	PatternsDir      string `json:"patternsDir"`
}

// NewPaths derives every path from the project and plugin roots
func NewPaths(projectRoot, pluginRoot string) Paths {
	aplDir := filepath.Join(projectRoot, ".apl")
	return Paths{
		ProjectRoot:       projectRoot,
		AplDir:            aplDir,
		StateFile:         filepath.Join(aplDir, "state.json"),
		LearningsFile:     filepath.Join(aplDir, "learnings.json"),
		ProjectConfigFile: filepath.Join(aplDir, "config.json"),
		MetaDir:           filepath.Join(projectRoot, ".meta"),
		PluginRoot:        pluginRoot,
		MasterConfigFile:  filepath.Join(pluginRoot, "master-config.json"),
		PatternsDir:       filepath.Join(pluginRoot, "patterns"),
	}
}

// Workspace holds the active project paths. The project root can be switched
// at runtime, so readers always go through Paths().
type Workspace struct {
	mu    sync.RWMutex
	paths Paths
}

// NewWorkspace creates a workspace for the given roots
func NewWorkspace(projectRoot, pluginRoot string) *Workspace {
	return &Workspace{paths: NewPaths(projectRoot, pluginRoot)}
}

// Paths returns a copy of the current paths
func (w *Workspace) Paths() Paths {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.paths
}

// SetProjectRoot switches the active project. The root must already exist.
func (w *Workspace) SetProjectRoot(root string) (Paths, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return Paths{}, fmt.Errorf("%w: %s", ErrInvalidProjectRoot, abs)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths = NewPaths(abs, w.paths.PluginRoot)
	return w.paths, nil
}
