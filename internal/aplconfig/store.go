package aplconfig

import (
	"encoding/json"
	"errors"
	"fmt"

	"aplgui/internal/config"
	"aplgui/internal/jsonfile"
)

var (
	// ErrMasterNotFound is returned when the plugin master config cannot be read
	ErrMasterNotFound = errors.New("master config not found")
	// ErrAgentNotFound is returned when toggling an agent the master config does not define
	ErrAgentNotFound = errors.New("agent not found")
	// ErrHookNotFound is returned when toggling a hook the master config does not define
	ErrHookNotFound = errors.New("hook not found")
	// ErrSectionNotFound is returned for an unknown top-level section
	ErrSectionNotFound = errors.New("config section not found")
)

// Parse decodes a configuration document. The top level must be an object.
func Parse(data []byte) (Doc, error) {
	var d Doc
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if d == nil {
		return nil, errors.New("decode config: not an object")
	}
	return d, nil
}

// Store reads and writes the master and project config files
type Store struct {
	ws     *config.Workspace
	writer *jsonfile.Writer
}

// NewStore creates a Store bound to the workspace
func NewStore(ws *config.Workspace, writer *jsonfile.Writer) *Store {
	if writer == nil {
		writer = jsonfile.NewWriter(0)
	}
	return &Store{ws: ws, writer: writer}
}

// Master returns the master config, or ErrMasterNotFound when it is missing
func (s *Store) Master() (Doc, error) {
	d, err := s.read(s.ws.Paths().MasterConfigFile)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrMasterNotFound
	}
	return d, nil
}

// Project returns the project override, or nil when the project has none
func (s *Store) Project() (Doc, error) {
	return s.read(s.ws.Paths().ProjectConfigFile)
}

// HasProject reports whether the active project has an override file
func (s *Store) HasProject() bool {
	return jsonfile.Exists(s.ws.Paths().ProjectConfigFile)
}

// Merged returns the effective configuration
func (s *Store) Merged() (Doc, error) {
	master, err := s.Master()
	if err != nil {
		return nil, err
	}
	project, err := s.Project()
	if err != nil {
		return nil, err
	}
	return Merge(master, project), nil
}

// UpdateMaster deep-merges updates into the master config
func (s *Store) UpdateMaster(updates Doc) (Doc, error) {
	master, err := s.Master()
	if err != nil {
		return nil, err
	}
	next := DeepMerge(master, updates)
	if err := s.writer.Write(s.ws.Paths().MasterConfigFile, next); err != nil {
		return nil, err
	}
	return next, nil
}

// UpdateProject shallow-merges updates into the project config, creating it if needed
func (s *Store) UpdateProject(updates Doc) (Doc, error) {
	project, err := s.Project()
	if err != nil {
		return nil, err
	}
	next := ShallowMerge(project, updates)
	if err := s.writer.Write(s.ws.Paths().ProjectConfigFile, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Agents returns the agents section of the master config
func (s *Store) Agents() (Doc, error) {
	return s.namedSection("agents")
}

// Hooks returns the hooks section of the master config
func (s *Store) Hooks() (Doc, error) {
	return s.namedSection("hooks")
}

// ToggleAgent sets agents.<name>.enabled in the master config
func (s *Store) ToggleAgent(name string, enabled bool) error {
	return s.toggle("agents", name, enabled, ErrAgentNotFound)
}

// ToggleHook sets hooks.<name>.enabled in the master config
func (s *Store) ToggleHook(name string, enabled bool) error {
	return s.toggle("hooks", name, enabled, ErrHookNotFound)
}

// Section returns one top-level section of the merged config
func (s *Store) Section(name string) (any, error) {
	merged, err := s.Merged()
	if err != nil {
		return nil, err
	}
	v, ok := merged[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, name)
	}
	return v, nil
}

func (s *Store) namedSection(name string) (Doc, error) {
	master, err := s.Master()
	if err != nil {
		return nil, err
	}
	section, _ := master[name].(map[string]any)
	if section == nil {
		section = Doc{}
	}
	return section, nil
}

func (s *Store) toggle(section, name string, enabled bool, notFound error) error {
	master, err := s.Master()
	if err != nil {
		return err
	}
	entries, _ := master[section].(map[string]any)
	entry, ok := entries[name].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s", notFound, name)
	}
	entry["enabled"] = enabled
	return s.writer.Write(s.ws.Paths().MasterConfigFile, master)
}

// read returns nil, nil for a missing file
func (s *Store) read(path string) (Doc, error) {
	var d Doc
	if err := jsonfile.Read(path, &d); err != nil {
		if errors.Is(err, jsonfile.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}
