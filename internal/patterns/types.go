// Package patterns serves the plugin's read-only pattern library.
package patterns

type CodeExample struct {
	Title       string `json:"title" yaml:"title"`
	Language    string `json:"language" yaml:"language"`
	Code        string `json:"code" yaml:"code"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type CodeExamples struct {
	Basic    CodeExample  `json:"basic" yaml:"basic"`
	Advanced *CodeExample `json:"advanced,omitempty" yaml:"advanced,omitempty"`
}

// Pattern is one reusable implementation recipe
type Pattern struct {
	ID                string       `json:"id" yaml:"id"`
	Name              string       `json:"name" yaml:"name"`
	Category          string       `json:"category" yaml:"category"`
	Description       string       `json:"description" yaml:"description"`
	ApplicableWhen    []string     `json:"applicable_when" yaml:"applicable_when"`
	Approach          string       `json:"approach" yaml:"approach"`
	CodeExamples      CodeExamples `json:"code_examples" yaml:"code_examples"`
	SuccessIndicators []string     `json:"success_indicators" yaml:"success_indicators"`
	Pitfalls          []string     `json:"pitfalls" yaml:"pitfalls"`
	RelatedPatterns   []string     `json:"related_patterns" yaml:"related_patterns"`
	Tags              []string     `json:"tags" yaml:"tags"`
}

// File is the on-disk container for a category's patterns
type File struct {
	Schema   string    `json:"$schema,omitempty" yaml:"$schema,omitempty"`
	Version  string    `json:"version" yaml:"version"`
	Patterns []Pattern `json:"patterns" yaml:"patterns"`
}

type CategoryInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	PatternCount int    `json:"pattern_count"`
}

// Index is the full library grouped by category
type Index struct {
	Categories         map[string]CategoryInfo `json:"categories"`
	TotalPatterns      int                     `json:"total_patterns"`
	PatternsByCategory map[string][]Pattern    `json:"patterns_by_category"`
}
