package learnings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/samber/lo"

	"aplgui/internal/config"
	"aplgui/internal/jsonfile"
)

// ErrPatternNotFound is returned when no success or anti pattern has the id
var ErrPatternNotFound = errors.New("pattern not found")

const topTagLimit = 10

// Parse decodes a learnings document
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode learnings: %w", err)
	}
	doc.normalize()
	return &doc, nil
}

// Store reads and edits the learnings file of the active project
type Store struct {
	ws     *config.Workspace
	writer *jsonfile.Writer
	now    func() time.Time
}

// NewStore creates a Store bound to the workspace
func NewStore(ws *config.Workspace, writer *jsonfile.Writer) *Store {
	if writer == nil {
		writer = jsonfile.NewWriter(0)
	}
	return &Store{ws: ws, writer: writer, now: time.Now}
}

// Path returns the learnings file of the active project
func (s *Store) Path() string {
	return s.ws.Paths().LearningsFile
}

// Load returns the learnings document, or Default() when the file is missing
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read learnings: %w", err)
	}
	return Parse(data)
}

// PatternByID finds a success or anti pattern
func (s *Store) PatternByID(id string) (any, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	if p, ok := lo.Find(doc.SuccessPatterns, func(p SuccessPattern) bool { return p.ID == id }); ok {
		return p, nil
	}
	if p, ok := lo.Find(doc.AntiPatterns, func(p AntiPattern) bool { return p.ID == id }); ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
}

// DeletePattern removes the success or anti pattern with the given id
func (s *Store) DeletePattern(id string) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}

	if i := lo.IndexOf(lo.Map(doc.SuccessPatterns, func(p SuccessPattern, _ int) string { return p.ID }), id); i >= 0 {
		doc.SuccessPatterns = append(doc.SuccessPatterns[:i], doc.SuccessPatterns[i+1:]...)
		return s.save(doc)
	}
	if i := lo.IndexOf(lo.Map(doc.AntiPatterns, func(p AntiPattern, _ int) string { return p.ID }), id); i >= 0 {
		doc.AntiPatterns = append(doc.AntiPatterns[:i], doc.AntiPatterns[i+1:]...)
		return s.save(doc)
	}
	return fmt.Errorf("%w: %s", ErrPatternNotFound, id)
}

// ClearPatterns removes all success and anti patterns
func (s *Store) ClearPatterns() error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	doc.SuccessPatterns = []SuccessPattern{}
	doc.AntiPatterns = []AntiPattern{}
	return s.save(doc)
}

// ByTag returns the success patterns carrying tag
func (s *Store) ByTag(tag string) ([]SuccessPattern, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	return lo.Filter(doc.SuccessPatterns, func(p SuccessPattern, _ int) bool {
		return lo.Contains(p.Tags, tag)
	}), nil
}

// ByTaskType returns success then anti patterns for a task type
func (s *Store) ByTaskType(taskType string) ([]any, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := []any{}
	for _, p := range doc.SuccessPatterns {
		if p.TaskType == taskType {
			out = append(out, p)
		}
	}
	for _, p := range doc.AntiPatterns {
		if p.TaskType == taskType {
			out = append(out, p)
		}
	}
	return out, nil
}

// Stats counts patterns and ranks the ten most used success-pattern tags
func (s *Store) Stats() (Stats, error) {
	doc, err := s.Load()
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(doc), nil
}

// ComputeStats derives Stats from a document
func ComputeStats(doc *Document) Stats {
	counts := lo.CountValues(lo.FlatMap(doc.SuccessPatterns, func(p SuccessPattern, _ int) []string {
		return p.Tags
	}))

	tags := lo.MapToSlice(counts, func(tag string, count int) TagCount {
		return TagCount{Tag: tag, Count: count}
	})
	// Ties are broken by name so the ranking is stable.
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Tag < tags[j].Tag
	})
	if len(tags) > topTagLimit {
		tags = tags[:topTagLimit]
	}

	return Stats{
		SuccessPatternCount: len(doc.SuccessPatterns),
		AntiPatternCount:    len(doc.AntiPatterns),
		TotalPatterns:       len(doc.SuccessPatterns) + len(doc.AntiPatterns),
		TopTags:             tags,
	}
}

func (s *Store) save(doc *Document) error {
	now := s.now().UTC().Format(time.RFC3339Nano)
	doc.LastUpdated = &now
	return s.writer.Write(s.Path(), doc)
}
