package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"verba.town/db"
)

// Store is the subset of the storage collaborator the config layer uses.
type Store interface {
	GetAllConfig(ctx context.Context) ([]db.ConfigEntry, error)
	GetConfigValue(ctx context.Context, key string) (string, error)
	SetConfigValue(ctx context.Context, key, value string) error
}

// Config overlays database-stored settings onto viper, so values set at
// runtime survive restarts without editing config files.
type Config struct {
	store Store
}

func New(store Store) *Config {
	return &Config{store: store}
}

func (c *Config) Load(ctx context.Context) error {
	entries, err := c.store.GetAllConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, entry := range entries {
		viper.Set(entry.Key, entry.Value)
	}

	return nil
}

func (c *Config) Get(ctx context.Context, key string) (string, error) {
	value, err := c.store.GetConfigValue(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", fmt.Errorf("config key not found: %s", key)
		}
		return "", fmt.Errorf("failed to get config value: %w", err)
	}
	return value, nil
}

func (c *Config) Set(ctx context.Context, key, value string) error {
	if err := c.store.SetConfigValue(ctx, key, value); err != nil {
		return fmt.Errorf("failed to set config value: %w", err)
	}
	viper.Set(key, value)
	return nil
}
