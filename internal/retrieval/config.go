package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ProviderConfig is one entry in providers.yaml.
type ProviderConfig struct {
	Name       string `yaml:"name"`
	Enabled    bool   `yaml:"enabled"`
	Priority   int    `yaml:"priority"`
	DailyQuota int    `yaml:"daily_quota"`
	RateLimit  int    `yaml:"rate_limit"`
}

// Config is the providers.yaml document.
type Config struct {
	Policy      Policy           `yaml:"policy"`
	Strategy    SortStrategy     `yaml:"strategy"`
	MaxParallel int              `yaml:"max_parallel"`
	Providers   []ProviderConfig `yaml:"providers"`
}

// LoadConfig reads and parses providers.yaml.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse providers config: %w", err)
	}
	return &cfg, nil
}

// Apply reconciles the registry, quota limits, and search policy with the
// config. Known factories for disabled providers are unregistered; entries
// naming an unknown factory are logged and skipped.
func (s *Searcher) Apply(ctx context.Context, cfg *Config, factories map[string]Factory) {
	for _, pc := range cfg.Providers {
		factory, known := factories[pc.Name]
		if !known {
			slog.WarnContext(ctx, "unknown provider in config", "provider", pc.Name)
			continue
		}
		if !pc.Enabled {
			if s.registry.Unregister(pc.Name) {
				slog.InfoContext(ctx, "provider disabled", "provider", pc.Name)
			}
			continue
		}
		s.registry.Register(pc.Name, factory)
		s.quota.Configure(pc.Name, pc.DailyQuota, pc.RateLimit)
	}
	s.SetPolicy(cfg.Policy, cfg.Strategy, cfg.MaxParallel)
}

// WatchConfig reloads providers.yaml whenever it changes, until ctx is
// cancelled. Editors replace files rather than writing in place, so the
// parent directory is watched and events are debounced.
func (s *Searcher) WatchConfig(ctx context.Context, path string, factories map[string]Factory) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	var debounce *time.Timer
	reload := func() {
		cfg, err := LoadConfig(path)
		if err != nil {
			slog.WarnContext(ctx, "ignoring invalid providers config", "path", path, "error", err)
			return
		}
		s.Apply(ctx, cfg, factories)
		slog.InfoContext(ctx, "providers config reloaded", "path", path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "config watcher error", "error", err)
		}
	}
}
