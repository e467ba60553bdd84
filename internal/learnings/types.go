// Package learnings models and edits the project learnings file (.apl/learnings.json).
package learnings

type SuccessPattern struct {
	ID           string   `json:"id"`
	TaskType     string   `json:"task_type"`
	Approach     string   `json:"approach"`
	Context      string   `json:"context"`
	SuccessCount int      `json:"success_count"`
	LastUsed     *string  `json:"last_used"`
	CodeExample  *string  `json:"code_example"`
	Tags         []string `json:"tags"`
}

type AntiPattern struct {
	ID              string  `json:"id"`
	TaskType        string  `json:"task_type"`
	Approach        string  `json:"approach"`
	Reason          string  `json:"reason"`
	FailureCount    int     `json:"failure_count"`
	LastEncountered *string `json:"last_encountered"`
	Alternative     string  `json:"alternative"`
}

type CodeStyle struct {
	Naming     *string `json:"naming"`
	Variables  *string `json:"variables"`
	Functions  *string `json:"functions"`
	Async      *string `json:"async"`
	Comments   *string `json:"comments"`
	Formatting *string `json:"formatting"`
}

type UserPreferences struct {
	CodeStyle               CodeStyle `json:"code_style"`
	PreferredLibraries      []string  `json:"preferred_libraries"`
	AvoidedLibraries        []string  `json:"avoided_libraries"`
	ArchitecturePreferences []string  `json:"architecture_preferences"`
}

type Dependencies struct {
	Runtime []string `json:"runtime"`
	Dev     []string `json:"dev"`
}

type ProjectKnowledge struct {
	EntryPoints  []string          `json:"entry_points"`
	TestCommand  *string           `json:"test_command"`
	BuildCommand *string           `json:"build_command"`
	LintCommand  *string           `json:"lint_command"`
	KeyFiles     map[string]string `json:"key_files"`
	Conventions  map[string]string `json:"conventions"`
	Dependencies Dependencies      `json:"dependencies"`
}

type ReactPatternStats struct {
	Success       int     `json:"success"`
	Failure       int     `json:"failure"`
	AvgIterations float64 `json:"avg_iterations"`
}

type CoveVerificationStats struct {
	CaughtIssues   int `json:"caught_issues"`
	FalsePositives int `json:"false_positives"`
}

type ReflexionStats struct {
	ImprovementsFound int `json:"improvements_found"`
	NoIssues          int `json:"no_issues"`
}

type ParallelExecutionStats struct {
	SessionsUsed         int     `json:"sessions_used"`
	AvgTasksParallelized float64 `json:"avg_tasks_parallelized"`
	TimeSavedPercent     float64 `json:"time_saved_percent"`
	ConflictRate         float64 `json:"conflict_rate"`
}

type TechniqueStats struct {
	ReactPattern      ReactPatternStats      `json:"react_pattern"`
	CoveVerification  CoveVerificationStats  `json:"cove_verification"`
	Reflexion         ReflexionStats         `json:"reflexion"`
	ParallelExecution ParallelExecutionStats `json:"parallel_execution"`
}

// Document is the learnings file
type Document struct {
	Version          string           `json:"version"`
	ProjectID        *string          `json:"project_id"`
	LastUpdated      *string          `json:"last_updated"`
	SuccessPatterns  []SuccessPattern `json:"success_patterns"`
	AntiPatterns     []AntiPattern    `json:"anti_patterns"`
	UserPreferences  UserPreferences  `json:"user_preferences"`
	ProjectKnowledge ProjectKnowledge `json:"project_knowledge"`
	TechniqueStats   TechniqueStats   `json:"technique_stats"`
}

// Default returns an empty learnings document
func Default() *Document {
	return &Document{
		Version:         "1.0.0",
		SuccessPatterns: []SuccessPattern{},
		AntiPatterns:    []AntiPattern{},
		UserPreferences: UserPreferences{
			PreferredLibraries:      []string{},
			AvoidedLibraries:        []string{},
			ArchitecturePreferences: []string{},
		},
		ProjectKnowledge: ProjectKnowledge{
			EntryPoints:  []string{},
			KeyFiles:     map[string]string{},
			Conventions:  map[string]string{},
			Dependencies: Dependencies{Runtime: []string{}, Dev: []string{}},
		},
	}
}

func (d *Document) normalize() {
	if d.SuccessPatterns == nil {
		d.SuccessPatterns = []SuccessPattern{}
	}
	if d.AntiPatterns == nil {
		d.AntiPatterns = []AntiPattern{}
	}
}

// TagCount is one entry of Stats.TopTags
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Stats summarizes the stored patterns
type Stats struct {
	SuccessPatternCount int        `json:"successPatternCount"`
	AntiPatternCount    int        `json:"antiPatternCount"`
	TotalPatterns       int        `json:"totalPatterns"`
	TopTags             []TagCount `json:"topTags"`
}
