package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"aplgui/internal/aplconfig"
	"aplgui/internal/checkpoint"
	"aplgui/internal/config"
	"aplgui/internal/jsonfile"
	"aplgui/internal/learnings"
	"aplgui/internal/logging"
	"aplgui/internal/monitor"
	"aplgui/internal/patterns"
	"aplgui/internal/process"
	"aplgui/internal/state"
)

const stateJSON = `{
  "session_id": "s-1",
  "goal": "add login",
  "phase": "execute",
  "iteration": 3,
  "tasks": [
    {"id": 1, "description": "schema", "status": "completed", "attempts": 1},
    {"id": 2, "description": "handler", "status": "in_progress", "attempts": 1}
  ],
  "files_modified": [{"path": "schema.sql", "action": "create", "task_id": 1, "checkpoint_id": "cp-1"}],
  "checkpoints": [
    {"id": "cp-1", "phase": "plan", "iteration": 1, "timestamp": "2024-01-01T00:00:00Z", "tasks_completed": [], "files_snapshot": []},
    {"id": "cp-2", "phase": "execute", "iteration": 2, "timestamp": "2024-01-01T00:10:00Z", "tasks_completed": [1], "files_snapshot": ["schema.sql"]}
  ]
}`

const masterJSON = `{
  "execution": {"max_iterations": 20},
  "agents": {"coder": {"enabled": true}},
  "hooks": {"on_save": {"enabled": false}}
}`

type fakeSupervisor struct {
	mu      sync.Mutex
	running bool
	goal    string
}

func (f *fakeSupervisor) Start(goal string) (process.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return process.Status{}, process.ErrAlreadyRunning
	}
	f.running, f.goal = true, goal
	return process.Status{Running: true, PID: 42, Goal: goal, SessionID: "sess"}, nil
}

func (f *fakeSupervisor) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return process.ErrNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeSupervisor) Status() process.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return process.Status{Running: f.running, Goal: f.goal}
}

type fakeWatchers struct {
	restarts int
}

func (f *fakeWatchers) Restart() error { f.restarts++; return nil }

func (f *fakeWatchers) Meta() monitor.MetaSnapshot {
	return monitor.MetaSnapshot{Plan: map[string]any{"steps": 2.0}, Epics: map[string]any{}}
}

type fixture struct {
	ts       *httptest.Server
	ws       *config.Workspace
	sup      *fakeSupervisor
	watchers *fakeWatchers
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ws := config.NewWorkspace(t.TempDir(), t.TempDir())
	p := ws.Paths()

	mustWrite(t, p.StateFile, stateJSON)
	mustWrite(t, p.MasterConfigFile, masterJSON)
	mustWrite(t, p.LearningsFile, `{"success_patterns":[{"id":"sp-1","task_type":"api","approach":"x","tags":["http"]}],"anti_patterns":[]}`)
	mustWrite(t, filepath.Join(p.PatternsDir, "api", "rest.json"),
		`{"version":"1","patterns":[{"id":"rest-crud","name":"REST CRUD","category":"api","description":"crud endpoints","tags":["http"]}]}`)

	writer := jsonfile.NewWriter(0)
	stateStore := state.NewStore(ws, writer)
	f := &fixture{ws: ws, sup: &fakeSupervisor{}, watchers: &fakeWatchers{}}

	srv := NewServer(Deps{
		Workspace:   ws,
		State:       stateStore,
		Config:      aplconfig.NewStore(ws, writer),
		Learnings:   learnings.NewStore(ws, writer),
		Patterns:    patterns.NewLibrary(ws, 0, nil),
		Checkpoints: checkpoint.NewManager(stateStore, nil, nil),
		Supervisor:  f.sup,
		Watchers:    f.watchers,
	}, Options{Version: "1.0.0", AllowedOrigins: []string{"http://localhost:5173"}})

	f.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestHealthAndNotFound(t *testing.T) {
	f := setup(t)

	code, body := f.do(t, "GET", "/health", "")
	if code != http.StatusOK {
		t.Fatalf("health status %d", code)
	}
	h := decode[map[string]any](t, body)
	if h["status"] != "ok" || h["version"] != "1.0.0" {
		t.Errorf("health = %v", h)
	}

	code, body = f.do(t, "GET", "/api/nope", "")
	if code != http.StatusNotFound {
		t.Errorf("unknown route status %d", code)
	}
	if e := decode[errorResponse](t, body); e.Error != "Not found" {
		t.Errorf("unknown route body = %s", body)
	}
}

func TestStateRoutes(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"state", "/api/state", 200},
		{"active", "/api/state/active", 200},
		{"tasks", "/api/state/tasks", 200},
		{"task", "/api/state/tasks/2", 200},
		{"missing task", "/api/state/tasks/9", 404},
		{"bad task id", "/api/state/tasks/abc", 400},
		{"by status", "/api/state/tasks/status/completed", 200},
		{"bad status", "/api/state/tasks/status/sleeping", 400},
		{"metrics", "/api/state/metrics", 200},
		{"scratchpad", "/api/state/scratchpad", 200},
		{"verification", "/api/state/verification", 200},
		{"errors", "/api/state/errors", 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := f.do(t, "GET", tt.path, ""); code != tt.want {
				t.Errorf("GET %s = %d %s, want %d", tt.path, code, body, tt.want)
			}
		})
	}

	_, body := f.do(t, "GET", "/api/state/active", "")
	if !decode[map[string]bool](t, body)["active"] {
		t.Error("expected active session")
	}

	if code, _ := f.do(t, "DELETE", "/api/state", ""); code != 200 {
		t.Fatalf("DELETE /api/state = %d", code)
	}
	_, body = f.do(t, "GET", "/api/state/tasks", "")
	if tasks := decode[[]state.Task](t, body); len(tasks) != 0 {
		t.Errorf("tasks after clear = %+v", tasks)
	}
}

func TestConfigRoutes(t *testing.T) {
	f := setup(t)

	code, body := f.do(t, "PATCH", "/api/config/agents/coder/toggle", `{"enabled": false}`)
	if code != 200 || decode[messageResponse](t, body).Message != "Agent coder disabled" {
		t.Errorf("toggle agent = %d %s", code, body)
	}
	if code, _ := f.do(t, "PATCH", "/api/config/agents/ghost/toggle", `{"enabled": true}`); code != 404 {
		t.Errorf("toggle unknown agent = %d", code)
	}
	if code, _ := f.do(t, "PATCH", "/api/config/hooks/on_save/toggle", `{}`); code != 400 {
		t.Errorf("toggle without enabled = %d", code)
	}
	if code, _ := f.do(t, "PATCH", "/api/config/hooks/on_save/toggle", `{"enabled": true}`); code != 200 {
		t.Errorf("toggle hook = %d", code)
	}

	code, body = f.do(t, "PATCH", "/api/config/project", `{"max_iterations": 7}`)
	if code != 200 {
		t.Fatalf("patch project = %d %s", code, body)
	}
	_, body = f.do(t, "GET", "/api/config/section/execution", "")
	if exec := decode[map[string]any](t, body); exec["max_iterations"] != 7.0 {
		t.Errorf("merged execution = %v", exec)
	}

	if code, _ := f.do(t, "PATCH", "/api/config/master", `[1,2]`); code != 400 {
		t.Errorf("patch master with array = %d", code)
	}
	if code, _ := f.do(t, "GET", "/api/config/section/nope", ""); code != 404 {
		t.Errorf("unknown section = %d", code)
	}
}

func TestConfigMissingMaster(t *testing.T) {
	f := setup(t)
	if err := os.Remove(f.ws.Paths().MasterConfigFile); err != nil {
		t.Fatal(err)
	}
	if code, _ := f.do(t, "GET", "/api/config", ""); code != 404 {
		t.Errorf("GET /api/config without master = %d", code)
	}
}

func TestLearningsAndPatterns(t *testing.T) {
	f := setup(t)

	if code, _ := f.do(t, "GET", "/api/learnings/pattern/sp-1", ""); code != 200 {
		t.Errorf("get learning pattern = %d", code)
	}
	if code, _ := f.do(t, "GET", "/api/learnings/pattern/nope", ""); code != 404 {
		t.Errorf("get unknown learning pattern = %d", code)
	}
	_, body := f.do(t, "GET", "/api/learnings/by-task-type/api", "")
	if got := decode[[]any](t, body); len(got) != 1 {
		t.Errorf("by task type = %s", body)
	}
	if code, _ := f.do(t, "DELETE", "/api/learnings/pattern/sp-1", ""); code != 200 {
		t.Errorf("delete learning pattern = %d", code)
	}
	_, body = f.do(t, "GET", "/api/learnings/stats", "")
	if stats := decode[learnings.Stats](t, body); stats.TotalPatterns != 0 {
		t.Errorf("stats after delete = %+v", stats)
	}

	if code, _ := f.do(t, "GET", "/api/patterns/search", ""); code != 400 {
		t.Errorf("search without q = %d", code)
	}
	_, body = f.do(t, "GET", "/api/patterns/search?q=crud", "")
	if got := decode[[]patterns.Pattern](t, body); len(got) != 1 || got[0].ID != "rest-crud" {
		t.Errorf("search = %s", body)
	}
	if code, _ := f.do(t, "GET", "/api/patterns/pattern/nope", ""); code != 404 {
		t.Errorf("unknown pattern = %d", code)
	}
	_, body = f.do(t, "GET", "/api/patterns/categories", "")
	if cats := decode[[]string](t, body); len(cats) != 1 || cats[0] != "api" {
		t.Errorf("categories = %s", body)
	}
}

func TestCheckpointRoutes(t *testing.T) {
	f := setup(t)

	_, body := f.do(t, "GET", "/api/checkpoints/latest", "")
	if cp := decode[state.Checkpoint](t, body); cp.ID != "cp-2" {
		t.Errorf("latest = %s", body)
	}
	_, body = f.do(t, "GET", "/api/checkpoints/phase/plan", "")
	if cps := decode[[]state.Checkpoint](t, body); len(cps) != 1 || cps[0].ID != "cp-1" {
		t.Errorf("by phase = %s", body)
	}
	if code, _ := f.do(t, "GET", "/api/checkpoints/phase/sleep", ""); code != 400 {
		t.Errorf("bad phase = %d", code)
	}
	_, body = f.do(t, "GET", "/api/checkpoints/cp-2/diff", "")
	if d := decode[checkpoint.Diff](t, body); d.Iteration != 2 || len(d.FilesModified) != 1 {
		t.Errorf("diff = %s", body)
	}
	if code, _ := f.do(t, "GET", "/api/checkpoints/nope", ""); code != 404 {
		t.Errorf("unknown checkpoint = %d", code)
	}
	if code, _ := f.do(t, "GET", "/api/checkpoints/rollbacks", ""); code != 404 {
		t.Errorf("rollbacks without journal = %d", code)
	}

	code, body := f.do(t, "POST", "/api/checkpoints/cp-404/rollback", "")
	res := decode[checkpoint.Result](t, body)
	if code != 400 || res.Success || res.Message != "Checkpoint cp-404 not found" {
		t.Errorf("unknown rollback = %d %s", code, body)
	}

	code, body = f.do(t, "POST", "/api/checkpoints/cp-1/rollback", "")
	res = decode[checkpoint.Result](t, body)
	if code != 200 || !res.Success || res.Checkpoint == nil || res.Checkpoint.ID != "cp-1" {
		t.Fatalf("rollback = %d %s", code, body)
	}
	_, body = f.do(t, "GET", "/api/state", "")
	if doc := decode[state.Document](t, body); doc.Phase != state.PhasePlan || len(doc.Checkpoints) != 1 {
		t.Errorf("state after rollback: phase=%s checkpoints=%d", doc.Phase, len(doc.Checkpoints))
	}
}

func TestControlRoutes(t *testing.T) {
	f := setup(t)

	if code, _ := f.do(t, "POST", "/api/control/start", `{"goal": "  "}`); code != 400 {
		t.Errorf("start without goal = %d", code)
	}
	code, body := f.do(t, "POST", "/api/control/start", `{"goal": "ship it"}`)
	if code != 200 || decode[startResponse](t, body).PID != 42 {
		t.Errorf("start = %d %s", code, body)
	}
	code, body = f.do(t, "POST", "/api/control/start", `{"goal": "again"}`)
	if code != 400 || !strings.Contains(string(body), "already running") {
		t.Errorf("second start = %d %s", code, body)
	}

	_, body = f.do(t, "GET", "/api/control/info", "")
	if info := decode[infoResponse](t, body); !info.AplRunning || info.Version != "1.0.0" {
		t.Errorf("info = %s", body)
	}

	if code, _ := f.do(t, "POST", "/api/control/stop", ""); code != 200 {
		t.Errorf("stop = %d", code)
	}
	if code, _ := f.do(t, "POST", "/api/control/stop", ""); code != 400 {
		t.Errorf("stop when idle = %d", code)
	}
}

func TestProjectSwitch(t *testing.T) {
	f := setup(t)

	if code, _ := f.do(t, "POST", "/api/control/project", `{"projectRoot": "/definitely/not/here"}`); code != 400 {
		t.Errorf("switch to missing dir = %d", code)
	}
	if f.watchers.restarts != 0 {
		t.Error("watchers restarted for a rejected switch")
	}

	next := t.TempDir()
	code, body := f.do(t, "POST", "/api/control/project", `{"projectRoot": "`+next+`"}`)
	if code != 200 {
		t.Fatalf("switch = %d %s", code, body)
	}
	if got := decode[projectResponse](t, body); got.ProjectRoot != next || got.AplDir != filepath.Join(next, ".apl") {
		t.Errorf("switch response = %+v", got)
	}
	if f.watchers.restarts != 1 {
		t.Errorf("restarts = %d", f.watchers.restarts)
	}

	_, body = f.do(t, "GET", "/api/state/active", "")
	if decode[map[string]bool](t, body)["active"] {
		t.Error("new project should have no active session")
	}
}

func TestMeta(t *testing.T) {
	f := setup(t)
	_, body := f.do(t, "GET", "/api/meta", "")
	if snap := decode[monitor.MetaSnapshot](t, body); snap.Plan == nil {
		t.Errorf("meta = %s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := setup(t)
	req, _ := http.NewRequest(http.MethodOptions, f.ts.URL+"/api/state", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req, _ = http.NewRequest(http.MethodGet, f.ts.URL+"/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	s := &Server{logger: logging.Discard()}
	h := s.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/state", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if e := decode[errorResponse](t, rec.Body.Bytes()); e.Error != "Internal server error" || e.Message != "boom" {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{checkpoint.ErrRollbackInProgress, http.StatusConflict},
		{checkpoint.ErrCheckpointNotFound, http.StatusNotFound},
		{process.ErrAlreadyRunning, http.StatusBadRequest},
		{config.ErrInvalidProjectRoot, http.StatusBadRequest},
		{aplconfig.ErrHookNotFound, http.StatusNotFound},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
