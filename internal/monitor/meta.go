package monitor

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"aplgui/internal/watcher"
)

const (
	TagPlan     = "plan"
	TagProgress = "progress"
	TagEpic     = "epic"
)

// MetaTag classifies a file below the .meta directory
func MetaTag(path string) string {
	if filepath.Ext(path) != ".json" {
		return ""
	}
	switch filepath.Base(path) {
	case "plan.json":
		return TagPlan
	case "progress.json":
		return TagProgress
	}
	if filepath.Base(filepath.Dir(path)) == "epics" {
		return TagEpic
	}
	return ""
}

// MetaSnapshot is the latest content of the .meta documents
type MetaSnapshot struct {
	Plan      any            `json:"plan"`
	Progress  any            `json:"progress"`
	Epics     map[string]any `json:"epics"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
}

// MetaIndex keeps the last parsed version of each .meta document
type MetaIndex struct {
	mu        sync.RWMutex
	plan      any
	progress  any
	epics     map[string]any
	updatedAt time.Time
}

func NewMetaIndex() *MetaIndex {
	return &MetaIndex{epics: make(map[string]any)}
}

// Apply records one watcher event. Documents that fail to parse are ignored
// and the previous content is kept.
func (m *MetaIndex) Apply(ev watcher.Event, data []byte) {
	if ev.Tag == "" {
		return
	}

	var doc any
	if ev.Kind != watcher.Removed {
		if err := json.Unmarshal(data, &doc); err != nil {
			return
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Tag {
	case TagPlan:
		m.plan = doc
	case TagProgress:
		m.progress = doc
	case TagEpic:
		name := strings.TrimSuffix(filepath.Base(ev.Path), ".json")
		if doc == nil {
			delete(m.epics, name)
		} else {
			m.epics[name] = doc
		}
	}
	m.updatedAt = time.Now().UTC()
}

// Reset forgets every document
func (m *MetaIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plan = nil
	m.progress = nil
	m.epics = make(map[string]any)
	m.updatedAt = time.Time{}
}

// Snapshot returns the current documents
func (m *MetaIndex) Snapshot() MetaSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := MetaSnapshot{
		Plan:     m.plan,
		Progress: m.progress,
		Epics:    make(map[string]any, len(m.epics)),
	}
	for k, v := range m.epics {
		s.Epics[k] = v
	}
	if !m.updatedAt.IsZero() {
		s.UpdatedAt = m.updatedAt.Format(time.RFC3339)
	}
	return s
}
