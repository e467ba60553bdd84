package learnings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"aplgui/internal/config"
	"aplgui/internal/jsonfile"
)

const sampleLearnings = `{
  "version": "1.0.0",
  "success_patterns": [
    {"id": "sp-1", "task_type": "api", "approach": "handler first", "tags": ["go", "http"]},
    {"id": "sp-2", "task_type": "db", "approach": "migrations", "tags": ["go", "sql"]},
    {"id": "sp-3", "task_type": "api", "approach": "table tests", "tags": ["go", "testing", "http"]}
  ],
  "anti_patterns": [
    {"id": "ap-1", "task_type": "api", "approach": "global state", "reason": "races"}
  ]
}`

func newTestStore(t *testing.T, content string) *Store {
	t.Helper()
	root := t.TempDir()
	ws := config.NewWorkspace(root, t.TempDir())
	if content != "" {
		os.MkdirAll(filepath.Join(root, ".apl"), 0755)
		if err := os.WriteFile(ws.Paths().LearningsFile, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return NewStore(ws, jsonfile.NewWriter(0))
}

func TestStore_LoadDefault(t *testing.T) {
	s := newTestStore(t, "")
	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.SuccessPatterns) != 0 || doc.Version != "1.0.0" {
		t.Errorf("expected default document, got %+v", doc)
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t, sampleLearnings)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.SuccessPatternCount != 3 || stats.AntiPatternCount != 1 || stats.TotalPatterns != 4 {
		t.Errorf("counts = %+v", stats)
	}

	want := []TagCount{{"go", 3}, {"http", 2}, {"sql", 1}, {"testing", 1}}
	if len(stats.TopTags) != len(want) {
		t.Fatalf("TopTags = %+v", stats.TopTags)
	}
	for i := range want {
		if stats.TopTags[i] != want[i] {
			t.Errorf("TopTags[%d] = %+v, want %+v", i, stats.TopTags[i], want[i])
		}
	}
}

func TestComputeStats_TopTagLimit(t *testing.T) {
	doc := Default()
	for i := 0; i < 15; i++ {
		doc.SuccessPatterns = append(doc.SuccessPatterns, SuccessPattern{
			ID:   string(rune('a' + i)),
			Tags: []string{string(rune('a' + i))},
		})
	}
	if got := len(ComputeStats(doc).TopTags); got != 10 {
		t.Errorf("len(TopTags) = %d, want 10", got)
	}
}

func TestStore_PatternQueries(t *testing.T) {
	s := newTestStore(t, sampleLearnings)

	p, err := s.PatternByID("ap-1")
	if err != nil {
		t.Fatalf("PatternByID: %v", err)
	}
	if ap, ok := p.(AntiPattern); !ok || ap.Reason != "races" {
		t.Errorf("PatternByID(ap-1) = %#v", p)
	}

	if _, err := s.PatternByID("missing"); !errors.Is(err, ErrPatternNotFound) {
		t.Errorf("err = %v, want ErrPatternNotFound", err)
	}

	byTag, _ := s.ByTag("http")
	if len(byTag) != 2 {
		t.Errorf("ByTag(http) returned %d patterns", len(byTag))
	}

	byType, _ := s.ByTaskType("api")
	if len(byType) != 3 {
		t.Errorf("ByTaskType(api) returned %d patterns", len(byType))
	}
	if _, ok := byType[2].(AntiPattern); !ok {
		t.Error("anti patterns should follow success patterns")
	}
}

func TestStore_DeletePattern(t *testing.T) {
	s := newTestStore(t, sampleLearnings)

	if err := s.DeletePattern("sp-2"); err != nil {
		t.Fatalf("DeletePattern: %v", err)
	}
	if err := s.DeletePattern("ap-1"); err != nil {
		t.Fatalf("DeletePattern anti: %v", err)
	}
	if err := s.DeletePattern("sp-2"); !errors.Is(err, ErrPatternNotFound) {
		t.Fatalf("second delete err = %v", err)
	}

	doc, _ := s.Load()
	if len(doc.SuccessPatterns) != 2 || len(doc.AntiPatterns) != 0 {
		t.Errorf("after delete: %d success, %d anti", len(doc.SuccessPatterns), len(doc.AntiPatterns))
	}
	if doc.LastUpdated == nil {
		t.Error("LastUpdated should be set on write")
	}
}

func TestStore_ClearPatterns(t *testing.T) {
	s := newTestStore(t, sampleLearnings)
	if err := s.ClearPatterns(); err != nil {
		t.Fatalf("ClearPatterns: %v", err)
	}
	stats, _ := s.Stats()
	if stats.TotalPatterns != 0 {
		t.Errorf("TotalPatterns = %d after clear", stats.TotalPatterns)
	}
}
