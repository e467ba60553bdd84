// Package aplconfig reads, merges and edits the APL master and project
// configuration files.
package aplconfig

import "strings"

// Doc is a configuration document. Both files are free-form JSON objects;
// only the merge paths below are interpreted.
type Doc = map[string]any

// projectOverrides maps a project config key to the master config path it replaces
var projectOverrides = []struct {
	key  string
	path string
}{
	{"max_iterations", "execution.max_iterations"},
	{"max_phase_iterations", "execution.max_phase_iterations"},
	{"max_retry_attempts", "execution.max_retry_attempts"},
	{"confidence_threshold", "confidence.threshold"},
	{"auto_test", "verification.run_tests_after_changes"},
	{"auto_lint", "verification.run_linter_after_changes"},
	{"learning_enabled", "learning.enabled"},
	{"compression_threshold", "context_management.compression_threshold_tokens"},
}

var modelOverrides = []struct {
	key  string
	path string
}{
	{"simple_tasks", "model_selection.by_task_complexity.simple"},
	{"medium_tasks", "model_selection.by_task_complexity.medium"},
	{"complex_tasks", "model_selection.by_task_complexity.complex"},
}

// Merge returns the master config with project overrides applied. Neither
// input is modified. A nil master yields nil.
func Merge(master, project Doc) Doc {
	if master == nil {
		return nil
	}
	merged := Clone(master)
	if project == nil {
		return merged
	}

	for _, o := range projectOverrides {
		if v, ok := project[o.key]; ok && v != nil {
			setPath(merged, o.path, v)
		}
	}

	if ms, ok := project["model_selection"].(map[string]any); ok {
		for _, o := range modelOverrides {
			if v, ok := ms[o.key]; ok && v != nil && v != "" {
				setPath(merged, o.path, v)
			}
		}
	}
	return merged
}

// DeepMerge overlays src onto dst. Nested objects merge recursively; any
// other value, arrays included, replaces the destination value.
func DeepMerge(dst, src Doc) Doc {
	out := Clone(dst)
	if out == nil {
		out = Doc{}
	}
	for k, sv := range src {
		sm, sok := sv.(map[string]any)
		dm, dok := out[k].(map[string]any)
		if sok && dok {
			out[k] = DeepMerge(dm, sm)
			continue
		}
		out[k] = cloneValue(sv)
	}
	return out
}

// ShallowMerge replaces top-level keys of dst with those of src
func ShallowMerge(dst, src Doc) Doc {
	out := Clone(dst)
	if out == nil {
		out = Doc{}
	}
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

// Clone deep-copies a document
func Clone(d Doc) Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Lookup returns the value at a dotted path
func Lookup(d Doc, path string) (any, bool) {
	var cur any = d
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(d Doc, path string, v any) {
	parts := strings.Split(path, ".")
	cur := d
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}
