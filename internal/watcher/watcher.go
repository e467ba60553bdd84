// Package watcher reports debounced file changes under a path.
//
// Raw fsnotify events for one path are collapsed into a single Event once
// the path has been quiet for the debounce period. The Kind is decided when
// the window closes by comparing whether the file existed before the window
// with whether it exists now, so a delete followed by a recreate inside one
// window is reported as Changed.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"aplgui/internal/logging"
)

// Kind is the coalesced change type
type Kind string

const (
	Added   Kind = "added"
	Changed Kind = "changed"
	Removed Kind = "removed"
)

// Event is one coalesced file change
type Event struct {
	Path string
	Kind Kind
	Tag  string
}

// Tagger labels an emitted path; an empty tag is allowed
type Tagger func(path string) string

// Option configures a Watcher
type Option func(*Watcher)

// WithDepth watches path as a directory tree. Files directly in path are at
// depth 0; subdirectories deeper than depth are ignored.
func WithDepth(depth int) Option {
	return func(w *Watcher) {
		if depth >= 0 {
			w.depth = depth
		}
	}
}

// WithTagger sets the tag function applied to every emitted event
func WithTagger(t Tagger) Option {
	return func(w *Watcher) { w.tagger = t }
}

// WithInitialScan emits Added for files that already exist when Start is called
func WithInitialScan() Option {
	return func(w *Watcher) { w.initialScan = true }
}

// WithErrorHandler receives fsnotify and arming errors. The watcher keeps running.
func WithErrorHandler(fn func(error)) Option {
	return func(w *Watcher) { w.onError = fn }
}

// WithLogger sets the logger used when no error handler is configured
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// Watcher watches one file, or one directory tree when WithDepth is given
type Watcher struct {
	target      string
	depth       int
	debounce    time.Duration
	callback    func(Event)
	tagger      Tagger
	initialScan bool
	onError     func(error)
	logger      *slog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	out     chan Event

	mu      sync.Mutex
	started bool
	closed  bool

	// stateMu guards the maps below
	stateMu sync.Mutex
	known   map[string]bool
	pending map[string]pendingFire
	armed   map[string]bool
	gen     uint64
}

// pendingFire is the quiet-period timer armed for one path. gen identifies
// the raw event that armed it.
type pendingFire struct {
	timer *time.Timer
	gen   uint64
}

// New creates a Watcher for path. The path does not need to exist yet.
func New(path string, debounce time.Duration, callback func(Event), opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		target:   abs,
		depth:    -1,
		debounce: debounce,
		callback: callback,
		watcher:  fw,
		done:     make(chan struct{}),
		out:      make(chan Event, 64),
		known:    make(map[string]bool),
		pending:  make(map[string]pendingFire),
		armed:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.OrDiscard(w.logger)
	return w, nil
}

// Path returns the absolute watched path
func (w *Watcher) Path() string {
	return w.target
}

// Start arms the OS watches and begins delivering events
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New("watcher is closed")
	}
	if w.started {
		return errors.New("watcher already started")
	}
	w.started = true

	w.arm()
	existing := w.existingFiles()

	w.stateMu.Lock()
	for _, p := range existing {
		w.known[p] = true
	}
	w.stateMu.Unlock()

	var initial []Event
	if w.initialScan {
		for _, p := range existing {
			initial = append(initial, Event{Path: p, Kind: Added})
		}
	}

	go w.dispatch(initial)
	go w.watch()
	return nil
}

// Close stops the watcher. Pending windows are dropped. Safe to call twice.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	w.stateMu.Lock()
	for _, p := range w.pending {
		p.timer.Stop()
	}
	w.pending = make(map[string]pendingFire)
	w.stateMu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) dirMode() bool {
	return w.depth >= 0
}

// watchRoot is the directory whose contents decide the target's events
func (w *Watcher) watchRoot() string {
	if w.dirMode() {
		return w.target
	}
	return filepath.Dir(w.target)
}

func (w *Watcher) watch() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.reportError(err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)

	if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
		w.disarm(path)
		if !isDir(w.watchRoot()) {
			w.arm()
		}
	}

	if ev.Op.Has(fsnotify.Create) && isDir(path) {
		w.dirCreated(path)
		return
	}

	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return
	}
	if w.relevant(path) {
		w.schedule(path)
	}
}

// arm watches the watch root, or its nearest existing ancestor while it is missing
func (w *Watcher) arm() {
	root := w.watchRoot()
	if isDir(root) {
		w.addTree(root, 0)
		return
	}
	w.add(nearestExisting(root))
}

func (w *Watcher) addTree(dir string, level int) {
	w.add(dir)
	if !w.dirMode() || level >= w.depth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addTree(filepath.Join(dir, e.Name()), level+1)
		}
	}
}

// add watches dir. Re-adding an armed directory is harmless and repairs a
// watch the kernel dropped without telling us.
func (w *Watcher) add(dir string) {
	w.stateMu.Lock()
	w.armed[dir] = true
	w.stateMu.Unlock()

	if err := w.watcher.Add(dir); err != nil {
		w.stateMu.Lock()
		delete(w.armed, dir)
		w.stateMu.Unlock()
		w.reportError(fmt.Errorf("watch %s: %w", dir, err))
	}
}

func (w *Watcher) disarm(path string) {
	w.stateMu.Lock()
	wasArmed := w.armed[path]
	delete(w.armed, path)
	w.stateMu.Unlock()

	if !wasArmed {
		return
	}
	// The kernel drops the watch itself when the directory goes away.
	_ = w.watcher.Remove(path)

	if isAncestorOrSelf(path, w.watchRoot()) {
		w.arm()
	}
}

func (w *Watcher) dirCreated(dir string) {
	root := w.watchRoot()
	switch {
	case isAncestorOrSelf(dir, root):
		w.arm()
	case w.dirMode() && isAncestorOrSelf(root, dir):
		level := levelOf(root, dir)
		if level > w.depth {
			return
		}
		w.addTree(dir, level)
	default:
		return
	}
	w.catchUp()
}

// catchUp schedules files that appeared before their directory was watched
func (w *Watcher) catchUp() {
	for _, p := range w.existingFiles() {
		w.stateMu.Lock()
		known := w.known[p]
		w.stateMu.Unlock()
		if !known {
			w.schedule(p)
		}
	}
}

func (w *Watcher) relevant(path string) bool {
	if !w.dirMode() {
		return path == w.target
	}
	if path == w.target || !isAncestorOrSelf(w.target, path) {
		return false
	}
	return levelOf(w.target, filepath.Dir(path)) <= w.depth
}

// existingFiles lists the files the watcher currently covers, sorted
func (w *Watcher) existingFiles() []string {
	if !w.dirMode() {
		if fileExists(w.target) {
			return []string{w.target}
		}
		return nil
	}

	var files []string
	_ = filepath.WalkDir(w.target, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != w.target && levelOf(w.target, p) > w.depth {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files
}

func (w *Watcher) schedule(path string) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.pending[path] = pendingFire{
		timer: time.AfterFunc(w.debounce, func() { w.fire(path, gen) }),
		gen:   gen,
	}
}

func (w *Watcher) fire(path string, gen uint64) {
	w.stateMu.Lock()
	if p, ok := w.pending[path]; !ok || p.gen != gen {
		// superseded by a later raw event
		w.stateMu.Unlock()
		return
	}
	delete(w.pending, path)

	before := w.known[path]
	now := fileExists(path)
	if now {
		w.known[path] = true
	} else {
		delete(w.known, path)
	}
	w.stateMu.Unlock()

	var kind Kind
	switch {
	case !before && now:
		kind = Added
	case before && now:
		kind = Changed
	case before && !now:
		kind = Removed
	default:
		return
	}

	select {
	case w.out <- Event{Path: path, Kind: kind}:
	case <-w.done:
	}
}

// dispatch delivers events one at a time in emission order
func (w *Watcher) dispatch(initial []Event) {
	for _, ev := range initial {
		if !w.deliver(ev) {
			return
		}
	}
	for {
		select {
		case ev := <-w.out:
			if !w.deliver(ev) {
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) deliver(ev Event) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	if w.tagger != nil {
		ev.Tag = w.tagger(ev.Path)
	}
	w.callback(ev)
	return true
}

func (w *Watcher) reportError(err error) {
	if w.onError != nil {
		w.onError(err)
		return
	}
	w.logger.Warn("watcher error", "path", w.target, "error", err)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func nearestExisting(path string) string {
	for {
		if isDir(path) {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

// isAncestorOrSelf reports whether b is a or lies below a
func isAncestorOrSelf(a, b string) bool {
	if a == b {
		return true
	}
	prefix := a
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(b, prefix)
}

// levelOf returns how many directories dir is below root
func levelOf(root, dir string) int {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
