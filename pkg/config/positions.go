package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/scrims-network/guildkeeper/pkg/observability"
)

// PositionsFile declares the positions and rank tiers a deployment uses.
// Ranks are listed in ascending order; each rank implies a council and a
// council head position.
type PositionsFile struct {
	Positions []string `yaml:"positions"`
	Ranks     []string `yaml:"ranks"`
}

// LoadPositions reads and parses the declared-positions YAML file
func LoadPositions(path string) (*PositionsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read positions file: %w", err)
	}
	var pf PositionsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse positions file: %w", err)
	}
	return &pf, nil
}

// debounce window for editors that write files in multiple operations
const watchDebounce = 250 * time.Millisecond

// WatchPositions re-reads the positions file whenever it changes and hands
// the parsed result to onChange. Runs until ctx is done. Parse failures
// keep the previous declarations.
func WatchPositions(ctx context.Context, path string, logger *observability.Logger, onChange func(*PositionsFile)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: editors replace files, which drops file-level watches.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch positions file: %w", err)
	}

	log := logger.WithComponent("positions-watch").WithField("path", path)

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		reload := func() {
			pf, err := LoadPositions(path)
			if err != nil {
				log.WithError(err).Warn("positions file reload failed, keeping previous declarations")
				return
			}
			log.Info("positions file reloaded")
			onChange(pf)
		}

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("positions file watcher error")
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
