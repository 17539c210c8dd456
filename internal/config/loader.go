package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars substitutes ${VAR} and ${VAR:default}. A variable that is
// set but empty wins over the default.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(ref string) string {
		m := envVarPattern.FindStringSubmatch(ref)
		if val, ok := os.LookupEnv(m[1]); ok {
			return val
		}
		return m[2]
	})
}

// LoadFile reads a YAML file, expands ${VAR} references and decodes it into
// dest. Fields absent from the file keep the values dest already holds.
func LoadFile(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), dest); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// reloadDebounce folds the burst of events an editor save produces into a
// single reload.
const reloadDebounce = 200 * time.Millisecond

// snapshot is one consistent set of configuration files.
type snapshot struct {
	cfg       *Config
	routes    *RoutesConfig
	models    *ModelsConfig
	providers *ProvidersConfig
	prompts   *PromptsConfig
}

// Loader reads the gate configuration directory and reloads it when a file
// changes. Readers always see a complete snapshot; a reload that fails to
// parse keeps the previous one.
type Loader struct {
	configDir string
	logger    *slog.Logger
	current   atomic.Pointer[snapshot]

	mu       sync.Mutex
	watchers []func()
	watcher  *fsnotify.Watcher
	pending  *time.Timer
}

func NewLoader(configDir string, logger *slog.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

func (l *Loader) Load() error {
	snap := &snapshot{
		cfg:       DefaultConfig(),
		routes:    &RoutesConfig{},
		models:    &ModelsConfig{},
		providers: &ProvidersConfig{},
		prompts:   &PromptsConfig{},
	}
	files := []struct {
		name string
		dest any
	}{
		{"gate.yaml", snap.cfg},
		{"routes.yaml", snap.routes},
		{"models.yaml", snap.models},
		{"providers.yaml", snap.providers},
		{"prompts.yaml", snap.prompts},
	}
	for _, f := range files {
		if err := LoadFile(filepath.Join(l.configDir, f.name), f.dest); err != nil {
			return err
		}
	}

	l.current.Store(snap)
	l.logger.Info("configuration loaded", "dir", l.configDir)
	return nil
}

func (l *Loader) Config() *Config             { return l.current.Load().cfg }
func (l *Loader) Routes() *RoutesConfig       { return l.current.Load().routes }
func (l *Loader) Models() *ModelsConfig       { return l.current.Load().models }
func (l *Loader) Providers() *ProvidersConfig { return l.current.Load().providers }
func (l *Loader) Prompts() *PromptsConfig     { return l.current.Load().prompts }

// OnReload registers a callback that fires after a successful reload.
func (l *Loader) OnReload(fn func()) {
	l.mu.Lock()
	l.watchers = append(l.watchers, fn)
	l.mu.Unlock()
}

// Watch reloads the directory when a YAML file is written, created or
// renamed into place.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(l.configDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir %s: %w", l.configDir, err)
	}
	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isConfigFile(event.Name) {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					l.logger.Debug("config file changed", "file", event.Name, "op", event.Op.String())
					l.scheduleReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}

// Close stops watching. Pending reloads are dropped.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != nil {
		l.pending.Stop()
	}
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}

func (l *Loader) scheduleReload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != nil {
		l.pending.Stop()
	}
	l.pending = time.AfterFunc(reloadDebounce, l.reload)
}

func (l *Loader) reload() {
	if err := l.Load(); err != nil {
		l.logger.Error("config reload failed, keeping previous configuration", "error", err)
		return
	}
	l.mu.Lock()
	watchers := append([]func(){}, l.watchers...)
	l.mu.Unlock()
	for _, fn := range watchers {
		fn()
	}
}

func isConfigFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
