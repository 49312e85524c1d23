package rewards

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"backend-carbonsaver/internal/carbon"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Rewards []carbon.Reward `yaml:"rewards"`
}

// Catalog holds the rewards points can be redeemed for. It is safe for
// concurrent use and may be replaced while the server runs.
type Catalog struct {
	mu      sync.RWMutex
	rewards []carbon.Reward
}

// NewCatalog returns a catalog of the given rewards, or of the built-in ones
// when none are given.
func NewCatalog(rewards []carbon.Reward) *Catalog {
	c := &Catalog{}
	if len(rewards) == 0 {
		rewards = carbon.DefaultRewards
	}
	c.Replace(rewards)
	return c
}

// LoadCatalog reads a YAML catalog:
//
//	rewards:
//	  - type: donate
//	    name: Donate to Environmental Cause
//	    description: ...
//	    points_required: 1500
func LoadCatalog(path string) ([]carbon.Reward, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rewards file: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rewards file: %w", err)
	}
	if err := validate(file.Rewards); err != nil {
		return nil, fmt.Errorf("rewards file %s: %w", path, err)
	}
	return file.Rewards, nil
}

func validate(rewards []carbon.Reward) error {
	if len(rewards) == 0 {
		return fmt.Errorf("no rewards defined")
	}
	seen := make(map[carbon.RedemptionType]bool, len(rewards))
	for i, r := range rewards {
		if r.Type == "" {
			return fmt.Errorf("reward %d: type required", i)
		}
		if seen[r.Type] {
			return fmt.Errorf("reward %q defined twice", r.Type)
		}
		seen[r.Type] = true
		if r.PointsRequired <= 0 {
			return fmt.Errorf("reward %q: points_required must be positive", r.Type)
		}
	}
	return nil
}

func (c *Catalog) List() []carbon.Reward {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]carbon.Reward, len(c.rewards))
	copy(out, c.rewards)
	return out
}

func (c *Catalog) Lookup(t carbon.RedemptionType) (carbon.Reward, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rewards {
		if r.Type == t {
			return r, nil
		}
	}
	return carbon.Reward{}, fmt.Errorf("%w: %q", ErrUnknownReward, t)
}

func (c *Catalog) Replace(rewards []carbon.Reward) {
	next := make([]carbon.Reward, len(rewards))
	copy(next, rewards)
	c.mu.Lock()
	c.rewards = next
	c.mu.Unlock()
}

// Watch reloads the catalog whenever the file at path changes, including
// atomic saves that rename a temporary file over it. The parent directory is
// watched since a rename replaces the inode a file watch is bound to. A file
// that fails to load leaves the current catalog in place. It runs until ctx
// is cancelled.
func (c *Catalog) Watch(ctx context.Context, path string) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(target); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}
	log.Info().Str("path", target).Msg("rewards: watching catalog")

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
			rewards, err := LoadCatalog(target)
			if err != nil {
				log.Error().Err(err).Str("path", target).Msg("rewards: reload failed, keeping previous catalog")
				continue
			}
			c.Replace(rewards)
			log.Info().Str("path", target).Int("rewards", len(rewards)).Msg("rewards: catalog reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("rewards: watcher error")
		}
	}
}
