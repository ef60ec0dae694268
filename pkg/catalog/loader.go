package catalog

import (
	"errors"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
)

// Config is the on-disk layout of the catalog configuration file
type Config struct {
	Classes []*apiV1.StorageClass `yaml:"classes"`
}

// LoadFromFile reads a YAML catalog config from path and registers every class.
// Classes already registered are skipped: class records are immutable once
// referenced, so a reload never rewrites an existing entry.
func (c *Catalog) LoadFromFile(path string) error {
	ll := c.log.WithField("method", "LoadFromFile")

	configData, err := os.ReadFile(path)
	if err != nil {
		ll.Errorf("failed to read config file %s: %v", path, err)
		return err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(configData, cfg); err != nil {
		ll.Errorf("failed to unmarshall config: %v", err)
		return err
	}

	for _, sc := range cfg.Classes {
		applyDefaults(sc)
		if err := c.Register(sc); err != nil {
			if errors.Is(err, baseerr.ErrorDuplicateClass) {
				ll.Debugf("class %s already registered, skipping", sc.Name)
				continue
			}
			ll.Errorf("failed to register class %s: %v", sc.Name, err)
			return err
		}
	}
	return nil
}

// UpdateOnConfigChange reloads the catalog config whenever the file changes.
// Blocks until the watcher is closed.
func (c *Catalog) UpdateOnConfigChange(watcher *fsnotify.Watcher, path string) {
	ll := c.log.WithField("method", "UpdateOnConfigChange")
	if err := watcher.Add(path); err != nil {
		ll.Errorf("can't add config to file watcher: %s", err)
		return
	}
	for {
		event, ok := <-watcher.Events
		if !ok {
			ll.Info("file watcher is closed")
			return
		}
		ll.Debugf("event %s came", event.Op)

		switch event.Op {
		case fsnotify.Chmod:
			continue
		case fsnotify.Remove:
			if err := watcher.Remove(path); err != nil {
				ll.Debugf("can't remove config from file watcher: %s", err)
			}
			if err := watcher.Add(path); err != nil {
				ll.Errorf("can't add config to file watcher: %s", err)
				return
			}
		default:
		}
		if err := c.LoadFromFile(path); err != nil {
			ll.Errorf("reload failed: %v", err)
		}
	}
}

func applyDefaults(sc *apiV1.StorageClass) {
	if sc == nil {
		return
	}
	if sc.ReclaimPolicy == "" {
		sc.ReclaimPolicy = apiV1.ReclaimDelete
	}
	if sc.BindingMode == "" {
		sc.BindingMode = apiV1.BindingImmediate
	}
}
