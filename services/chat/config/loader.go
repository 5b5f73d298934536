// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global ChatConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

func loadInternal() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not find the user's home directory: %w", err)
	}
	configPath := filepath.Join(home, ".medicare", "medicare.yaml")
	cfg, err := loadFrom(configPath)
	if err != nil {
		return err
	}
	Global = cfg
	return nil
}

// loadFrom reads and parses one config file, creating it with defaults
// on first run, then layers environment overrides on top.
func loadFrom(configPath string) (ChatConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf(" First run detected, creating the config at %s\n", configPath)
		if err := createDefault(configPath); err != nil {
			return ChatConfig{}, err
		}
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return ChatConfig{}, fmt.Errorf("failed to read the config file %w", err)
	}
	cfg := DefaultConfig()
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return ChatConfig{}, fmt.Errorf("failed to parse the config file: %w", err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides lets deployments configure the container without
// touching the yaml file.
func applyEnvOverrides(cfg *ChatConfig) {
	if port := os.Getenv("CHAT_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && parsed > 0 {
			cfg.Server.Port = parsed
		}
	}
	if storeType := os.Getenv("CHAT_STORE_TYPE"); storeType != "" {
		cfg.Store.Type = storeType
	}
	if ns := os.Getenv("CHAT_STORE_NAMESPACE"); ns != "" {
		cfg.Store.Namespace = ns
	}
	if path := os.Getenv("CHAT_STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if project := os.Getenv("GCP_PROJECT_ID"); project != "" {
		cfg.Store.ProjectID = project
	}
	if backend := os.Getenv("LLM_BACKEND_TYPE"); backend != "" {
		cfg.ModelBackend.Type = backend
	}
	if token := os.Getenv("CHAT_BOOTSTRAP_TOKEN"); token != "" {
		cfg.Auth.BootstrapToken = token
	}
}
