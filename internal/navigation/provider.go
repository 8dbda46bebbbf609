package navigation

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// debounceDelay coalesces the burst of fsnotify events most editors emit on
// a single save.
const debounceDelay = 100 * time.Millisecond

// menuFile is the YAML shape of a menu definition file.
type menuFile struct {
	Entries []Entry `yaml:"navigation"`
}

// Provider loads the menu definition and serves it to handlers. The entry
// slice is swapped atomically on reload, so readers never see a partially
// parsed menu.
type Provider struct {
	path   string
	logger *zap.Logger

	entries atomic.Value // holds []Entry

	watcher   *fsnotify.Watcher
	watchOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewProvider creates a provider for the given menu file. An empty path
// selects the built-in default menu and disables watching.
func NewProvider(path string, logger *zap.Logger) *Provider {
	p := &Provider{
		path:   path,
		logger: logger,
		stop:   make(chan struct{}),
	}
	p.entries.Store(defaultMenu())
	return p
}

// Load reads and parses the menu file, replacing the served entries.
// Parse failures keep the previously served menu.
func (p *Provider) Load() error {
	if p.path == "" {
		return nil
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read menu file: %w", err)
	}

	var file menuFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return fmt.Errorf("failed to parse menu file %s: %w", p.path, err)
	}

	p.entries.Store(file.Entries)
	p.logger.Info("navigation menu loaded",
		zap.String("path", p.path),
		zap.Int("entries", len(file.Entries)),
	)
	return nil
}

// Entries returns the currently served menu.
func (p *Provider) Entries() []Entry {
	return p.entries.Load().([]Entry)
}

// Watch starts a background watcher that reloads the menu when the file
// changes. Events are debounced because editors typically write a file in
// several bursts. Safe to call once; later calls are no-ops.
func (p *Provider) Watch() error {
	if p.path == "" {
		return nil
	}

	var watchErr error
	p.watchOnce.Do(func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			watchErr = fmt.Errorf("failed to create watcher: %w", err)
			return
		}
		// Watch the directory, not the file: editors that rename-on-save
		// would otherwise drop the watch after the first write.
		if err := watcher.Add(filepath.Dir(p.path)); err != nil {
			_ = watcher.Close()
			watchErr = fmt.Errorf("failed to watch menu directory: %w", err)
			return
		}
		p.watcher = watcher

		p.wg.Add(1)
		go p.watchLoop()
	})
	return watchErr
}

// Close stops the watcher and waits for the reload goroutine to exit.
func (p *Provider) Close() {
	close(p.stop)
	if p.watcher != nil {
		_ = p.watcher.Close()
	}
	p.wg.Wait()
}

// watchLoop turns raw fsnotify events into debounced reloads.
func (p *Provider) watchLoop() {
	defer p.wg.Done()

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-p.stop:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounceDelay, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounceDelay)
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("menu watcher error", zap.Error(err))
		case <-reload:
			timer = nil
			if err := p.Load(); err != nil {
				p.logger.Warn("menu reload failed, keeping previous menu", zap.Error(err))
			}
		}
	}
}

// defaultMenu is the built-in admin menu served when no file is configured.
func defaultMenu() []Entry {
	return []Entry{
		{
			Name:       "Dashboard",
			Controller: "admin/dashboard",
			Action:     "index",
		},
		{
			Name:       "Pages",
			Controller: "admin/pages",
			Action:     "index",
			Sub: []Entry{
				{
					Controller:    "admin/pages",
					Action:        "edit",
					NestedActions: []string{"update", "configure"},
				},
			},
		},
		{
			Name:       "Elements",
			Controller: "admin/elements",
			Action:     "index",
			Nested: []Entry{
				{Controller: "admin/contents", Action: "index"},
			},
		},
	}
}
