// Package monitor watches the APL documents of the active project and feeds
// the classified changes to the event hub.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"aplgui/internal/aplconfig"
	"aplgui/internal/classifier"
	"aplgui/internal/config"
	"aplgui/internal/events"
	"aplgui/internal/logging"
	"aplgui/internal/state"
	"aplgui/internal/telemetry"
	"aplgui/internal/watcher"
)

// Watched sources, also used as the source detail of error events
const (
	SourceState         = "state"
	SourceLearnings     = "learnings"
	SourceMasterConfig  = "master_config"
	SourceProjectConfig = "project_config"
	SourceMeta          = "meta"
)

// DefaultDebounce is the quiet period applied to every watched path
const DefaultDebounce = 100 * time.Millisecond

// Publisher receives classified events. *eventhub.Hub implements it.
type Publisher interface {
	Publish(evs ...events.Event)
	EmitWatcherError(source string, err error)
}

// Options tunes the watchers
type Options struct {
	Debounce  time.Duration
	MetaDepth int
	Logger    *slog.Logger
}

// Monitor owns one watcher per APL document plus the .meta tree
type Monitor struct {
	ws     *config.Workspace
	pub    Publisher
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	watchers []*watcher.Watcher
	running  bool

	// trackers are replaced on every Start so a new project hydrates from scratch
	trackMu sync.RWMutex
	stateT  *classifier.StateTracker
	learnT  classifier.LearningsTracker
	configT *classifier.ConfigTracker

	meta *MetaIndex
}

// New creates a stopped Monitor
func New(ws *config.Workspace, pub Publisher, opts Options) *Monitor {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MetaDepth <= 0 {
		opts.MetaDepth = 2
	}
	return &Monitor{
		ws:      ws,
		pub:     pub,
		opts:    opts,
		logger:  logging.Component(logging.OrDiscard(opts.Logger), "monitor"),
		stateT:  &classifier.StateTracker{},
		configT: &classifier.ConfigTracker{},
		meta:    NewMetaIndex(),
	}
}

// Start watches the documents of the current project. Existing documents are
// hydrated immediately.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.trackMu.Lock()
	m.stateT = &classifier.StateTracker{}
	m.configT = &classifier.ConfigTracker{}
	m.trackMu.Unlock()
	m.meta.Reset()

	paths := m.ws.Paths()
	targets := []struct {
		source string
		path   string
		opts   []watcher.Option
	}{
		{SourceMasterConfig, paths.MasterConfigFile, nil},
		{SourceProjectConfig, paths.ProjectConfigFile, nil},
		{SourceState, paths.StateFile, nil},
		{SourceLearnings, paths.LearningsFile, nil},
		{SourceMeta, paths.MetaDir, []watcher.Option{watcher.WithDepth(m.opts.MetaDepth), watcher.WithTagger(MetaTag)}},
	}

	for _, target := range targets {
		source := target.source
		opts := append(target.opts,
			watcher.WithInitialScan(),
			watcher.WithLogger(m.logger),
			watcher.WithErrorHandler(func(err error) {
				m.logger.Warn("watcher error", "source", source, "error", err)
				m.pub.EmitWatcherError(source, err)
			}),
		)

		w, err := watcher.New(target.path, m.opts.Debounce, func(ev watcher.Event) {
			m.handle(source, ev)
		}, opts...)
		if err != nil {
			m.closeLocked()
			return fmt.Errorf("watch %s: %w", source, err)
		}
		if err := w.Start(); err != nil {
			w.Close()
			m.closeLocked()
			return fmt.Errorf("start %s watcher: %w", source, err)
		}
		m.watchers = append(m.watchers, w)
	}

	m.running = true
	m.logger.Info("watching project", "root", paths.ProjectRoot, "plugin", paths.PluginRoot)
	return nil
}

// Stop closes every watcher. Pending debounced changes are dropped.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// Restart re-targets the watchers at the workspace's current paths
func (m *Monitor) Restart() error {
	m.Stop()
	return m.Start()
}

// Running reports whether the watchers are active
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// State returns the last good state document, nil before hydration
func (m *Monitor) State() *state.Document {
	m.trackMu.RLock()
	defer m.trackMu.RUnlock()
	return m.stateT.Snapshot()
}

// Config returns the effective configuration seen by the watchers
func (m *Monitor) Config() aplconfig.Doc {
	m.trackMu.RLock()
	defer m.trackMu.RUnlock()
	return m.configT.Merged()
}

// Meta returns the latest .meta documents
func (m *Monitor) Meta() MetaSnapshot {
	return m.meta.Snapshot()
}

func (m *Monitor) closeLocked() {
	for _, w := range m.watchers {
		if err := w.Close(); err != nil {
			m.logger.Debug("close watcher", "path", w.Path(), "error", err)
		}
	}
	m.watchers = nil
	m.running = false
}

// handle runs on the dispatcher goroutine of the watcher that produced ev
func (m *Monitor) handle(source string, ev watcher.Event) {
	_, span := telemetry.Tracer().Start(context.Background(), "monitor.classify")
	defer span.End()
	span.SetAttributes(
		attribute.String("monitor.source", source),
		attribute.String("monitor.kind", string(ev.Kind)),
	)

	var data []byte
	if ev.Kind != watcher.Removed {
		var err error
		data, err = os.ReadFile(ev.Path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				m.logger.Warn("read watched file", "path", ev.Path, "error", err)
			}
			// The next event for this path retries.
			return
		}
	}

	if source == SourceMeta {
		m.meta.Apply(ev, data)
		return
	}

	evs := m.classify(source, ev.Kind, data)
	span.SetAttributes(attribute.Int("monitor.events", len(evs)))
	if len(evs) > 0 {
		m.logger.Debug("classified change", "source", source, "kind", ev.Kind, "events", len(evs))
		m.pub.Publish(evs...)
	}
}

func (m *Monitor) classify(source string, kind watcher.Kind, data []byte) []events.Event {
	m.trackMu.RLock()
	defer m.trackMu.RUnlock()

	removed := kind == watcher.Removed
	switch source {
	case SourceState:
		if removed {
			return m.stateT.Clear()
		}
		return m.stateT.Observe(data)
	case SourceLearnings:
		if removed {
			return m.learnT.Clear()
		}
		return m.learnT.Observe(data)
	case SourceMasterConfig:
		if removed {
			return m.configT.RemoveMaster()
		}
		return m.configT.ObserveMaster(data)
	case SourceProjectConfig:
		if removed {
			return m.configT.RemoveProject()
		}
		return m.configT.ObserveProject(data)
	}
	return nil
}
