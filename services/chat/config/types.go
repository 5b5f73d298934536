// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

// ChatConfig is the service configuration, loaded from
// ~/.medicare/medicare.yaml with environment overrides on top.
type ChatConfig struct {
	// Server: HTTP listener settings
	Server ServerConfig `yaml:"server"`

	// Store: which message store backend to run
	Store StoreConfig `yaml:"store"`

	// ModelBackend: which AI analysis backend to run
	ModelBackend BackendConfig `yaml:"model_backend"`

	// Auth: identity resolution settings
	Auth AuthConfig `yaml:"auth"`

	// Features: toggles for system services
	Features FeatureConfig `yaml:"features"`
}

type ServerConfig struct {
	Port int `yaml:"port"` // e.g. 12310

	// RateLimitRPS caps per-client requests per second; 0 disables.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type StoreConfig struct {
	// Type can be "memory", "badger" or "firestore".
	Type string `yaml:"type"`

	// Namespace scopes deployments sharing one database.
	Namespace string `yaml:"namespace"`

	// Path is the BadgerDB directory (badger only).
	Path string `yaml:"path,omitempty"`

	// ProjectID is the GCP project (firestore only).
	ProjectID string `yaml:"project_id,omitempty"`
}

type BackendConfig struct {
	// Type can be "gemini" or "openai".
	Type string `yaml:"type"`
}

type AuthConfig struct {
	// BootstrapToken is a deployment-provided credential exchanged when
	// the caller has none.
	BootstrapToken string `yaml:"bootstrap_token,omitempty"`

	// AllowAnonymous enables the anonymous identity fallback.
	AllowAnonymous bool `yaml:"allow_anonymous"`
}

type FeatureConfig struct {
	Observability bool `yaml:"observability"`
}

func DefaultConfig() ChatConfig {
	return ChatConfig{
		Server: ServerConfig{
			Port:           12310,
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Store: StoreConfig{
			Type:      "memory",
			Namespace: "default-app-id",
			Path:      "~/.medicare/chatstore",
		},
		ModelBackend: BackendConfig{
			Type: "gemini",
		},
		Auth: AuthConfig{
			AllowAnonymous: true,
		},
		Features: FeatureConfig{
			Observability: true,
		},
	}
}
