package state

import (
	"errors"
	"fmt"
	"os"

	"aplgui/internal/config"
	"aplgui/internal/jsonfile"
)

// Store reads and writes the state file of the active project
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

// Path returns the state file of the active project
func (s *Store) Path() string {
	return s.ws.Paths().StateFile
}

// Load returns the current document. A missing file yields Default().
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	return Parse(data)
}

// HasActiveSession reports whether a state file with a live session exists
func (s *Store) HasActiveSession() (bool, error) {
	if !jsonfile.Exists(s.Path()) {
		return false, nil
	}
	doc, err := s.Load()
	if err != nil {
		return false, err
	}
	return doc.Active(), nil
}

// Save replaces the state file with doc, keeping a backup of the old content
func (s *Store) Save(doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	return s.writer.Write(s.Path(), doc)
}

// Clear resets the state file to the default document
func (s *Store) Clear() error {
	return s.writer.Write(s.Path(), Default())
}

// ProjectRoot returns the root of the active project
func (s *Store) ProjectRoot() string {
	return s.ws.Paths().ProjectRoot
}
