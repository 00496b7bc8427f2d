package runtimes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Loader holds the runtime descriptors found in an installation folder.
type Loader struct {
	logger   *zap.Logger
	validate *validator.Validate

	mu      sync.RWMutex
	configs []Config
}

// NewLoader creates an empty Loader.
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{
		logger:   logger.Named("runtimes"),
		validate: validator.New(),
	}
}

// Load scans dir for runtime directories and adds their descriptors.
// Hidden entries and plain files are ignored. A descriptor that is not JSON is
// skipped with a warning; one that is JSON but not a valid descriptor fails
// the load.
func (l *Loader) Load(dir string) error {
	if dir == "" {
		return ErrNoInstallDir
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read runtime folder %s: %w", dir, err)
	}

	l.logger.Info("loading runtime configs", zap.String("dir", dir))

	var loaded []Config
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") || !entry.IsDir() {
			continue
		}

		cfg, err := l.readConfig(entry.Name(), filepath.Join(dir, entry.Name(), ConfigFileName))
		if err != nil {
			return err
		}
		if cfg == nil {
			l.logger.Warn("could not find config in runtime directory, make sure it is a valid runtime",
				zap.String("runtime", entry.Name()))
			continue
		}

		l.logger.Info("adding runtime config", zap.String("runtime", entry.Name()))
		loaded = append(loaded, *cfg)
	}

	l.mu.Lock()
	l.configs = append(l.configs, loaded...)
	names := make([]string, 0, len(l.configs))
	for _, c := range l.configs {
		names = append(names, c.Name)
	}
	l.mu.Unlock()

	l.logger.Info("finished processing runtime configs", zap.Strings("available", names))
	return nil
}

func (l *Loader) readConfig(runtime, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime config for %s: %w", runtime, err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, fmt.Errorf("%w for %s: descriptor must be a JSON object", ErrInvalidConfig, runtime)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrInvalidConfig, runtime, err)
	}
	if err := l.validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrInvalidConfig, runtime, err)
	}
	if err := cfg.compile(); err != nil {
		return nil, fmt.Errorf("%w for %s: bad tag pattern: %v", ErrInvalidConfig, runtime, err)
	}
	if cfg.Modes == nil {
		cfg.Modes = []string{}
	}
	if cfg.Languages == nil {
		cfg.Languages = []string{}
	}
	return &cfg, nil
}

// Add registers descriptors directly, validating them like Load does.
func (l *Loader) Add(configs ...Config) error {
	for i := range configs {
		if err := l.validate.Struct(&configs[i]); err != nil {
			return fmt.Errorf("%w for %s: %v", ErrInvalidConfig, configs[i].Name, err)
		}
		if err := configs[i].compile(); err != nil {
			return fmt.Errorf("%w for %s: bad tag pattern: %v", ErrInvalidConfig, configs[i].Name, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs = append(l.configs, configs...)
	return nil
}

// Configs returns the loaded descriptors in load order.
func (l *Loader) Configs() []Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Config(nil), l.configs...)
}

// GetMatchingRuntime returns req merged with the first descriptor whose image
// equals req.Image and whose tag pattern matches req.Tag. Modes and languages
// are narrowed to what both sides support.
func (l *Loader) GetMatchingRuntime(req Request) (Request, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := range l.configs {
		cfg := &l.configs[i]
		if cfg.Image != req.Image || !cfg.MatchesTag(req.Tag) {
			continue
		}

		matched := req
		matched.Modes = Subset(cfg.Modes, req.Modes)
		matched.Languages = Subset(cfg.Languages, req.Languages)
		return matched, nil
	}

	return Request{}, fmt.Errorf("%w for %s:%s", ErrUnresolvedRuntime, req.Image, req.Tag)
}
