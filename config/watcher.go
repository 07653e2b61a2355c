package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is invoked when the configuration file changes and
// reloads successfully. Callbacks run in their own goroutine.
type ChangeCallback func(old, new *Config)

// Watcher monitors the configuration file and reloads on change.
// Only a subset of fields is safe to apply at runtime; callers should
// use ExtractHotReloadable to pick those out.
type Watcher struct {
	loader    *Loader
	current   *Config
	callbacks []ChangeCallback
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
	mu        sync.RWMutex
}

// NewWatcher creates a watcher for the loader's configuration file.
func NewWatcher(loader *Loader, initial *Config) (*Watcher, error) {
	if loader.ConfigPath() == "" {
		return nil, fmt.Errorf("cannot watch config: no file path set")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		loader:   loader,
		current:  initial,
		watcher:  fw,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// OnChange registers a callback for configuration changes.
func (w *Watcher) OnChange(cb ChangeCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching the configuration file. Watching the parent
// directory catches editors that replace the file on save.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.loader.ConfigPath())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	target := filepath.Clean(w.loader.ConfigPath())
	var timer *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce rapid successive writes.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// reload re-reads the configuration and notifies callbacks on success.
// A file that fails to load or validate keeps the previous config active.
func (w *Watcher) reload() {
	newCfg, err := NewLoader(w.loader.ConfigPath()).Load()
	if err != nil {
		return
	}

	w.mu.Lock()
	oldCfg := w.current
	w.current = newCfg
	callbacks := make([]ChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, cb := range callbacks {
		go func(cb ChangeCallback) {
			defer func() {
				_ = recover() // a panicking callback must not kill the watcher
			}()
			cb(oldCfg, newCfg)
		}(cb)
	}
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

// IsRunning reports whether the watcher loop is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// HotReloadable is the subset of configuration that components can
// apply without a restart.
type HotReloadable struct {
	LogLevel        string
	TimeDecayFactor float64
	MMRLambda       float64
	RerankFloor     float64
	RerankBlend     float64
	Recontextualize bool
	Decompose       bool
	HyDE            bool
}

// ExtractHotReloadable picks the runtime-adjustable fields from a config.
func ExtractHotReloadable(cfg *Config) HotReloadable {
	return HotReloadable{
		LogLevel:        cfg.Log.Level,
		TimeDecayFactor: cfg.Memory.TimeDecayFactor,
		MMRLambda:       cfg.Memory.MMRLambda,
		RerankFloor:     cfg.Rerank.MinRelevance,
		RerankBlend:     cfg.Rerank.BlendWeight,
		Recontextualize: cfg.Query.Recontextualize,
		Decompose:       cfg.Query.Decompose,
		HyDE:            cfg.Query.HyDE,
	}
}
