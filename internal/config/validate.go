package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// API
	if cfg.API.Model == "" {
		add("api.model", "model is required")
	}
	if t := cfg.API.Temperature; t != nil && (*t < 0 || *t > 2) {
		add("api.temperature", "must be between 0 and 2, got %g", *t)
	}
	if p := cfg.API.TopP; p != nil && (*p < 0 || *p > 1) {
		add("api.topP", "must be between 0 and 1, got %g", *p)
	}
	if cfg.API.TopK < 0 {
		add("api.topK", "must not be negative, got %d", cfg.API.TopK)
	}
	if cfg.API.MaxOutputTokens < 0 {
		add("api.maxOutputTokens", "must not be negative, got %d", cfg.API.MaxOutputTokens)
	}

	// Context
	if cfg.Context.PromptTurns < 0 {
		add("context.promptTurns", "must not be negative, got %d", cfg.Context.PromptTurns)
	}
	if cfg.Context.SummaryTurns < 0 {
		add("context.summaryTurns", "must not be negative, got %d", cfg.Context.SummaryTurns)
	}
	validFailure := []string{"suppress", "surface"}
	if cfg.Context.SummaryFailure != "" && !slices.Contains(validFailure, cfg.Context.SummaryFailure) {
		add("context.summaryFailure", "must be one of %v, got %q", validFailure, cfg.Context.SummaryFailure)
	}

	// Dispatch
	if cfg.Dispatch.AgentTimeoutSeconds < 0 {
		add("dispatch.agentTimeoutSeconds", "must not be negative, got %d", cfg.Dispatch.AgentTimeoutSeconds)
	}
	if cfg.Dispatch.MaxConcurrency < 0 {
		add("dispatch.maxConcurrency", "must not be negative, got %d", cfg.Dispatch.MaxConcurrency)
	}

	// Voice
	validMatch := []string{"word", "substring"}
	if cfg.Voice.Match != "" && !slices.Contains(validMatch, cfg.Voice.Match) {
		add("voice.match", "must be one of %v, got %q", validMatch, cfg.Voice.Match)
	}

	// Storage
	validDrivers := []string{"sqlite", "memory"}
	if cfg.Storage.Driver != "" && !slices.Contains(validDrivers, cfg.Storage.Driver) {
		add("storage.driver", "must be one of %v, got %q", validDrivers, cfg.Storage.Driver)
	}

	// Sync (only if enabled)
	if cfg.Sync.Enabled && cfg.Sync.ProjectID == "" {
		add("sync.projectId", "required when sync is enabled")
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	validAuthModes := []string{"token", "password"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		add("gateway.auth.mode", "must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode)
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	// Logging
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	return issues
}
