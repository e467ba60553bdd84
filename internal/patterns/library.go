package patterns

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"aplgui/internal/config"
	"aplgui/internal/logging"
)

// ErrPatternNotFound is returned by Get for an unknown id
var ErrPatternNotFound = errors.New("pattern not found")

// DefaultCacheTTL is how long a category's patterns are served from memory
const DefaultCacheTTL = time.Minute

var categoryDescriptions = map[string]string{
	"authentication": "Patterns for user authentication, JWT, sessions, and security",
	"api":            "RESTful API design, endpoints, and request handling patterns",
	"database":       "Database access, ORM patterns, and data persistence",
	"testing":        "Unit testing, integration testing, and test utilities",
	"react":          "React component patterns, hooks, and state management",
}

// Library loads patterns from <plugin>/patterns/<category>/*.{json,yaml,yml}
type Library struct {
	ws     *config.Workspace
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	cache     map[string][]Pattern
	cacheTime time.Time
}

// NewLibrary creates a Library. A non-positive ttl uses DefaultCacheTTL.
func NewLibrary(ws *config.Workspace, ttl time.Duration, logger *slog.Logger) *Library {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Library{
		ws:     ws,
		ttl:    ttl,
		logger: logging.OrDiscard(logger),
		now:    time.Now,
		cache:  make(map[string][]Pattern),
	}
}

// Categories lists the non-empty category directories, sorted
func (l *Library) Categories() ([]string, error) {
	dir := l.ws.Paths().PatternsDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read patterns dir: %w", err)
	}

	categories := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err == nil && len(files) > 0 {
			categories = append(categories, e.Name())
		}
	}
	sort.Strings(categories)
	return categories, nil
}

// ByCategory returns the patterns of one category in file order
func (l *Library) ByCategory(category string) ([]Pattern, error) {
	l.mu.Lock()
	if l.now().Sub(l.cacheTime) < l.ttl {
		if cached, ok := l.cache[category]; ok {
			l.mu.Unlock()
			return cached, nil
		}
	}
	l.mu.Unlock()

	patterns, err := l.load(category)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[category] = patterns
	l.cacheTime = l.now()
	l.mu.Unlock()
	return patterns, nil
}

// All returns every pattern, grouped by sorted category
func (l *Library) All() ([]Pattern, error) {
	categories, err := l.Categories()
	if err != nil {
		return nil, err
	}
	var all []Pattern
	for _, c := range categories {
		ps, err := l.ByCategory(c)
		if err != nil {
			return nil, err
		}
		all = append(all, ps...)
	}
	if all == nil {
		all = []Pattern{}
	}
	return all, nil
}

// Index builds the grouped library view
func (l *Library) Index() (Index, error) {
	idx := Index{
		Categories:         map[string]CategoryInfo{},
		PatternsByCategory: map[string][]Pattern{},
	}
	categories, err := l.Categories()
	if err != nil {
		return idx, err
	}
	for _, c := range categories {
		ps, err := l.ByCategory(c)
		if err != nil {
			return idx, err
		}
		idx.PatternsByCategory[c] = ps
		idx.TotalPatterns += len(ps)
		idx.Categories[c] = CategoryInfo{
			Name:         FormatCategoryName(c),
			Description:  CategoryDescription(c),
			PatternCount: len(ps),
		}
	}
	return idx, nil
}

// Get finds a pattern by id
func (l *Library) Get(id string) (Pattern, error) {
	all, err := l.All()
	if err != nil {
		return Pattern{}, err
	}
	p, ok := lo.Find(all, func(p Pattern) bool { return p.ID == id })
	if !ok {
		return Pattern{}, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	return p, nil
}

// Search matches query case-insensitively against name, description and tags
func (l *Library) Search(query string) ([]Pattern, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	return lo.Filter(all, func(p Pattern, _ int) bool {
		return strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) ||
			lo.SomeBy(p.Tags, func(t string) bool { return strings.Contains(strings.ToLower(t), q) })
	}), nil
}

// ByTag returns patterns carrying exactly tag
func (l *Library) ByTag(tag string) ([]Pattern, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(p Pattern, _ int) bool { return lo.Contains(p.Tags, tag) }), nil
}

// Tags returns the sorted set of all tags
func (l *Library) Tags() ([]string, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	tags := lo.Uniq(lo.FlatMap(all, func(p Pattern, _ int) []string { return p.Tags }))
	sort.Strings(tags)
	return tags, nil
}

// ClearCache drops every cached category
func (l *Library) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string][]Pattern)
	l.cacheTime = time.Time{}
}

func (l *Library) load(category string) ([]Pattern, error) {
	dir := filepath.Join(l.ws.Paths().PatternsDir, category)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Pattern{}, nil
		}
		return nil, fmt.Errorf("read category %s: %w", category, err)
	}

	patterns := []Pattern{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		file, err := readFile(path)
		if err != nil {
			// Unreadable files are skipped so one bad file does not hide the category.
			l.logger.Warn("skipping pattern file", "path", path, "error", err)
			continue
		}
		if file != nil {
			patterns = append(patterns, file.Patterns...)
		}
	}
	return patterns, nil
}

// readFile decodes a JSON or YAML pattern file; other extensions return nil
func readFile(path string) (*File, error) {
	var decode func([]byte, any) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		decode = json.Unmarshal
	case ".yaml", ".yml":
		decode = yaml.Unmarshal
	default:
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := decode(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// FormatCategoryName turns "error-handling" into "Error Handling"
func FormatCategoryName(category string) string {
	words := strings.Split(category, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// CategoryDescription returns the known description or a generic one
func CategoryDescription(category string) string {
	if d, ok := categoryDescriptions[category]; ok {
		return d
	}
	return "Patterns for " + FormatCategoryName(category)
}
