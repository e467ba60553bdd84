package state

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidDocument marks documents that parse as JSON but are not a usable state
var ErrInvalidDocument = errors.New("invalid state document")

// Parse decodes and validates a state document
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	doc.normalize()
	return &doc, nil
}

// Validate checks the fields the classifier and rollback engine depend on
func (d *Document) Validate() error {
	if !d.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidDocument, d.Phase)
	}

	seen := make(map[int]bool, len(d.Tasks))
	for _, t := range d.Tasks {
		if seen[t.ID] {
			return fmt.Errorf("%w: duplicate task id %d", ErrInvalidDocument, t.ID)
		}
		seen[t.ID] = true
		if !t.Status.Valid() {
			return fmt.Errorf("%w: task %d has unknown status %q", ErrInvalidDocument, t.ID, t.Status)
		}
	}

	ids := make(map[string]bool, len(d.Checkpoints))
	for _, cp := range d.Checkpoints {
		if cp.ID == "" {
			return fmt.Errorf("%w: checkpoint without id", ErrInvalidDocument)
		}
		if ids[cp.ID] {
			return fmt.Errorf("%w: duplicate checkpoint id %q", ErrInvalidDocument, cp.ID)
		}
		ids[cp.ID] = true
	}
	return nil
}

// normalize replaces nil slices so the document always encodes arrays
func (d *Document) normalize() {
	if d.Tasks == nil {
		d.Tasks = []Task{}
	}
	if d.FilesModified == nil {
		d.FilesModified = []FileModification{}
	}
	if d.Checkpoints == nil {
		d.Checkpoints = []Checkpoint{}
	}
	if d.VerificationLog == nil {
		d.VerificationLog = []VerificationEntry{}
	}
	if d.Errors == nil {
		d.Errors = []StateError{}
	}
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		// Document only holds JSON-safe fields.
		panic(fmt.Sprintf("state: clone: %v", err))
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("state: clone: %v", err))
	}
	out.normalize()
	return &out
}
