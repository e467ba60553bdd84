package patterns

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"aplgui/internal/config"
)

const apiJSON = `{
  "version": "1.0.0",
  "patterns": [
    {"id": "api-rest", "name": "REST Endpoint", "category": "api", "description": "CRUD handlers", "tags": ["rest", "http"]},
    {"id": "api-pagination", "name": "Pagination", "category": "api", "description": "Cursor based paging", "tags": ["http"]}
  ]
}`

const testingYAML = `version: "1.0.0"
patterns:
  - id: test-table
    name: Table Tests
    category: testing
    description: Table driven REST handler tests
    tags: [go, unit]
    code_examples:
      basic:
        title: Basic
        language: go
        code: "func TestX(t *testing.T) {}"
`

func newTestLibrary(t *testing.T) (*Library, string) {
	t.Helper()
	plugin := t.TempDir()
	ws := config.NewWorkspace(t.TempDir(), plugin)
	dir := ws.Paths().PatternsDir

	write := func(rel, content string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("api/rest.json", apiJSON)
	write("testing/go.yaml", testingYAML)
	write("testing/README.md", "ignored")
	os.MkdirAll(filepath.Join(dir, "empty"), 0755)

	return NewLibrary(ws, time.Minute, nil), dir
}

func TestLibrary_CategoriesAndIndex(t *testing.T) {
	lib, _ := newTestLibrary(t)

	cats, err := lib.Categories()
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if !reflect.DeepEqual(cats, []string{"api", "testing"}) {
		t.Errorf("Categories = %v", cats)
	}

	idx, err := lib.Index()
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if idx.TotalPatterns != 3 {
		t.Errorf("TotalPatterns = %d", idx.TotalPatterns)
	}
	if idx.Categories["api"].Name != "Api" || idx.Categories["api"].PatternCount != 2 {
		t.Errorf("api info = %+v", idx.Categories["api"])
	}
	if got := idx.PatternsByCategory["testing"][0].CodeExamples.Basic.Language; got != "go" {
		t.Errorf("yaml code example language = %q", got)
	}
}

func TestLibrary_Queries(t *testing.T) {
	lib, _ := newTestLibrary(t)

	p, err := lib.Get("test-table")
	if err != nil || p.Name != "Table Tests" {
		t.Fatalf("Get = %+v, %v", p, err)
	}
	if _, err := lib.Get("missing"); !errors.Is(err, ErrPatternNotFound) {
		t.Errorf("err = %v, want ErrPatternNotFound", err)
	}

	res, _ := lib.Search("REST")
	if len(res) != 2 {
		t.Errorf("Search(REST) returned %d, want 2 (name and description match)", len(res))
	}
	res, _ = lib.Search("UNIT")
	if len(res) != 1 || res[0].ID != "test-table" {
		t.Errorf("Search(UNIT) = %+v", res)
	}

	byTag, _ := lib.ByTag("http")
	if len(byTag) != 2 {
		t.Errorf("ByTag(http) returned %d", len(byTag))
	}

	tags, _ := lib.Tags()
	if !reflect.DeepEqual(tags, []string{"go", "http", "rest", "unit"}) {
		t.Errorf("Tags = %v", tags)
	}
}

func TestLibrary_CacheTTL(t *testing.T) {
	lib, dir := newTestLibrary(t)
	now := time.Now()
	lib.now = func() time.Time { return now }

	first, _ := lib.ByCategory("api")
	os.WriteFile(filepath.Join(dir, "api", "rest.json"), []byte(`{"patterns": []}`), 0644)

	cached, _ := lib.ByCategory("api")
	if len(cached) != len(first) {
		t.Errorf("expected cached result within TTL, got %d patterns", len(cached))
	}

	now = now.Add(2 * time.Minute)
	fresh, _ := lib.ByCategory("api")
	if len(fresh) != 0 {
		t.Errorf("expected reload after TTL, got %d patterns", len(fresh))
	}

	os.WriteFile(filepath.Join(dir, "api", "rest.json"), []byte(apiJSON), 0644)
	lib.ClearCache()
	if reloaded, _ := lib.ByCategory("api"); len(reloaded) != 2 {
		t.Errorf("expected reload after ClearCache, got %d", len(reloaded))
	}
}

func TestFormatCategoryName(t *testing.T) {
	tests := map[string]string{
		"api":            "Api",
		"error-handling": "Error Handling",
		"a--b":           "A  B",
	}
	for in, want := range tests {
		if got := FormatCategoryName(in); got != want {
			t.Errorf("FormatCategoryName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := CategoryDescription("error-handling"); got != "Patterns for Error Handling" {
		t.Errorf("CategoryDescription = %q", got)
	}
}

func TestLibrary_MissingDir(t *testing.T) {
	ws := config.NewWorkspace(t.TempDir(), filepath.Join(t.TempDir(), "nope"))
	lib := NewLibrary(ws, 0, nil)
	cats, err := lib.Categories()
	if err != nil || len(cats) != 0 {
		t.Errorf("Categories = %v, %v", cats, err)
	}
	all, err := lib.All()
	if err != nil || len(all) != 0 {
		t.Errorf("All = %v, %v", all, err)
	}
}
