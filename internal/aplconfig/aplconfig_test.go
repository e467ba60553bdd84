package aplconfig

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"aplgui/internal/config"
	"aplgui/internal/jsonfile"
)

const masterJSON = `{
  "version": "3.0.0",
  "execution": {"max_iterations": 20, "max_phase_iterations": 5, "max_retry_attempts": 3, "timeout_minutes": 60},
  "confidence": {"threshold": "medium", "escalate_on_low": true},
  "verification": {"run_tests_after_changes": true, "run_linter_after_changes": true},
  "learning": {"enabled": true, "storage_path": ".apl/learnings.json"},
  "context_management": {"compression_threshold_tokens": 50000},
  "model_selection": {"default": "sonnet", "by_task_complexity": {"simple": "haiku", "medium": "sonnet", "complex": "opus"}},
  "agents": {"coder": {"enabled": true, "model": "sonnet"}, "tester": {"enabled": true, "model": "haiku"}},
  "hooks": {"on_code_change": {"enabled": true, "trigger": "edit"}}
}`

func newTestStore(t *testing.T, project string) (*Store, *config.Workspace) {
	t.Helper()
	root := t.TempDir()
	plugin := t.TempDir()
	ws := config.NewWorkspace(root, plugin)
	if err := os.WriteFile(ws.Paths().MasterConfigFile, []byte(masterJSON), 0644); err != nil {
		t.Fatal(err)
	}
	if project != "" {
		os.MkdirAll(filepath.Join(root, ".apl"), 0755)
		if err := os.WriteFile(ws.Paths().ProjectConfigFile, []byte(project), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return NewStore(ws, jsonfile.NewWriter(0)), ws
}

func mustLookup(t *testing.T, d Doc, path string) any {
	t.Helper()
	v, ok := Lookup(d, path)
	if !ok {
		t.Fatalf("missing %s", path)
	}
	return v
}

func TestMerge_AppliesEveryOverride(t *testing.T) {
	master, err := Parse([]byte(masterJSON))
	if err != nil {
		t.Fatal(err)
	}
	project := Doc{
		"max_iterations":        float64(40),
		"max_phase_iterations":  float64(8),
		"max_retry_attempts":    float64(1),
		"confidence_threshold":  "high",
		"auto_test":             false,
		"auto_lint":             false,
		"learning_enabled":      false,
		"compression_threshold": float64(1000),
		"model_selection":       map[string]any{"simple_tasks": "sonnet", "complex_tasks": "sonnet"},
	}

	merged := Merge(master, project)

	cases := map[string]any{
		"execution.max_iterations":                        float64(40),
		"execution.max_phase_iterations":                  float64(8),
		"execution.max_retry_attempts":                    float64(1),
		"execution.timeout_minutes":                       float64(60),
		"confidence.threshold":                            "high",
		"verification.run_tests_after_changes":            false,
		"verification.run_linter_after_changes":           false,
		"learning.enabled":                                false,
		"context_management.compression_threshold_tokens": float64(1000),
		"model_selection.by_task_complexity.simple":       "sonnet",
		"model_selection.by_task_complexity.medium":       "sonnet",
		"model_selection.by_task_complexity.complex":      "sonnet",
	}
	for path, want := range cases {
		if got := mustLookup(t, merged, path); got != want {
			t.Errorf("%s = %v, want %v", path, got, want)
		}
	}

	if got := mustLookup(t, master, "execution.max_iterations"); got != float64(20) {
		t.Errorf("master modified: max_iterations = %v", got)
	}
	if _, ok := merged["max_iterations"]; ok {
		t.Error("project keys should not leak into the merged view")
	}
}

func TestMerge_NilInputs(t *testing.T) {
	if Merge(nil, Doc{"max_iterations": 1}) != nil {
		t.Error("Merge(nil, ...) should be nil")
	}
	master := Doc{"a": map[string]any{"b": 1}}
	if !reflect.DeepEqual(Merge(master, nil), master) {
		t.Error("Merge(master, nil) should equal master")
	}
}

func TestDeepMerge(t *testing.T) {
	dst := Doc{
		"a": map[string]any{"x": 1, "y": map[string]any{"z": 2}},
		"list": []any{1, 2},
	}
	src := Doc{
		"a":    map[string]any{"y": map[string]any{"w": 3}},
		"list": []any{9},
		"new":  "v",
	}
	got := DeepMerge(dst, src)
	want := Doc{
		"a":    map[string]any{"x": 1, "y": map[string]any{"z": 2, "w": 3}},
		"list": []any{9},
		"new":  "v",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeepMerge = %v, want %v", got, want)
	}
	if _, ok := dst["new"]; ok {
		t.Error("dst modified")
	}
}

func TestShallowMerge(t *testing.T) {
	got := ShallowMerge(Doc{"a": map[string]any{"x": 1}, "b": 2}, Doc{"a": map[string]any{"y": 1}})
	want := Doc{"a": map[string]any{"y": 1}, "b": 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ShallowMerge = %v, want %v", got, want)
	}
}

func TestStore_Merged(t *testing.T) {
	s, _ := newTestStore(t, `{"max_iterations": 7}`)
	merged, err := s.Merged()
	if err != nil {
		t.Fatalf("Merged: %v", err)
	}
	if got := mustLookup(t, merged, "execution.max_iterations"); got != float64(7) {
		t.Errorf("max_iterations = %v", got)
	}
	if !s.HasProject() {
		t.Error("HasProject = false")
	}
}

func TestStore_MissingMaster(t *testing.T) {
	ws := config.NewWorkspace(t.TempDir(), t.TempDir())
	s := NewStore(ws, nil)
	if _, err := s.Merged(); !errors.Is(err, ErrMasterNotFound) {
		t.Errorf("err = %v, want ErrMasterNotFound", err)
	}
}

func TestStore_UpdateMasterAndProject(t *testing.T) {
	s, _ := newTestStore(t, "")

	if _, err := s.UpdateMaster(Doc{"execution": map[string]any{"max_iterations": 99}}); err != nil {
		t.Fatalf("UpdateMaster: %v", err)
	}
	master, _ := s.Master()
	if got := mustLookup(t, master, "execution.max_iterations"); got != float64(99) {
		t.Errorf("max_iterations = %v", got)
	}
	if got := mustLookup(t, master, "execution.timeout_minutes"); got != float64(60) {
		t.Errorf("sibling lost: timeout_minutes = %v", got)
	}

	if s.HasProject() {
		t.Fatal("project config should not exist yet")
	}
	if _, err := s.UpdateProject(Doc{"auto_test": false}); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if _, err := s.UpdateProject(Doc{"auto_lint": false}); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	project, _ := s.Project()
	if project["auto_test"] != false || project["auto_lint"] != false {
		t.Errorf("project = %v", project)
	}
}

func TestStore_Toggles(t *testing.T) {
	s, _ := newTestStore(t, "")

	if err := s.ToggleAgent("coder", false); err != nil {
		t.Fatalf("ToggleAgent: %v", err)
	}
	agents, _ := s.Agents()
	if got := mustLookup(t, agents, "coder.enabled"); got != false {
		t.Errorf("coder.enabled = %v", got)
	}
	if got := mustLookup(t, agents, "coder.model"); got != "sonnet" {
		t.Errorf("coder.model = %v", got)
	}

	if err := s.ToggleAgent("ghost", true); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("err = %v, want ErrAgentNotFound", err)
	}
	if err := s.ToggleHook("on_code_change", false); err != nil {
		t.Fatalf("ToggleHook: %v", err)
	}
	if err := s.ToggleHook("ghost", true); !errors.Is(err, ErrHookNotFound) {
		t.Errorf("err = %v, want ErrHookNotFound", err)
	}
}

func TestStore_Section(t *testing.T) {
	s, _ := newTestStore(t, `{"confidence_threshold": "low"}`)

	v, err := s.Section("confidence")
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	if v.(map[string]any)["threshold"] != "low" {
		t.Errorf("confidence = %v", v)
	}
	if _, err := s.Section("nope"); !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("err = %v, want ErrSectionNotFound", err)
	}
}
