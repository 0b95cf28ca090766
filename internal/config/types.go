package config

import "github.com/soyeahso/aide/internal/domain"

// Config is the root configuration for aide.
type Config struct {
	API      APIConfig      `yaml:"api,omitempty"`
	Persona  PersonaConfig  `yaml:"persona,omitempty"`
	Context  ContextConfig  `yaml:"context,omitempty"`
	Dispatch DispatchConfig `yaml:"dispatch,omitempty"`
	Voice    VoiceConfig    `yaml:"voice,omitempty"`
	Upload   UploadConfig   `yaml:"upload,omitempty"`
	Storage  StorageConfig  `yaml:"storage,omitempty"`
	Sync     SyncConfig     `yaml:"sync,omitempty"`
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// APIConfig configures the generative-language endpoint.
type APIConfig struct {
	Key             string   `yaml:"key,omitempty"`
	Model           string   `yaml:"model,omitempty"`
	Endpoint        string   `yaml:"endpoint,omitempty"` // base URL up to and including the API version
	Fallbacks       []string `yaml:"fallbacks,omitempty"` // models tried after Model on retryable errors
	Temperature     *float64 `yaml:"temperature,omitempty"`
	MaxOutputTokens int      `yaml:"maxOutputTokens,omitempty"`
	TopK            int      `yaml:"topK,omitempty"`
	TopP            *float64 `yaml:"topP,omitempty"`
	TimeoutSeconds  int      `yaml:"timeoutSeconds,omitempty"`
}

// PersonaConfig is the configurable "employee" the assistant plays.
type PersonaConfig struct {
	Name               string   `yaml:"name,omitempty"`
	Role               string   `yaml:"role,omitempty"`
	Personality        string   `yaml:"personality,omitempty"`
	Style              string   `yaml:"style,omitempty"`
	CustomInstructions string   `yaml:"customInstructions,omitempty"`
	Skills             []string `yaml:"skills,omitempty"`
	WakeWord           string   `yaml:"wakeWord,omitempty"`
}

// AsPersona converts the configured persona to its domain form.
func (p PersonaConfig) AsPersona() domain.Persona {
	return domain.Persona{
		Name:               p.Name,
		Role:               p.Role,
		Personality:        p.Personality,
		Style:              p.Style,
		CustomInstructions: p.CustomInstructions,
		Skills:             p.Skills,
		WakeWord:           p.WakeWord,
	}
}

// ContextConfig bounds the conversation context handed to the model.
type ContextConfig struct {
	PromptTurns    int    `yaml:"promptTurns,omitempty"`
	SummaryTurns   int    `yaml:"summaryTurns,omitempty"`
	SummaryWords   int    `yaml:"summaryWords,omitempty"`
	SummaryFailure string `yaml:"summaryFailure,omitempty"` // "suppress" | "surface"
}

// DispatchConfig controls multi-agent task fan-out.
type DispatchConfig struct {
	AgentTimeoutSeconds int      `yaml:"agentTimeoutSeconds,omitempty"` // 0 disables the per-agent timeout
	MaxConcurrency      int      `yaml:"maxConcurrency,omitempty"`      // 0 fires every request at once
	Active              []string `yaml:"active,omitempty"`              // agent names active at startup; empty means all
}

// VoiceConfig controls wake-word command extraction.
type VoiceConfig struct {
	Match string `yaml:"match,omitempty"` // "word" | "substring"
}

// UploadConfig limits attached files.
type UploadConfig struct {
	MaxBytes int64 `yaml:"maxBytes,omitempty"`
}

// StorageConfig selects the local persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`   // defaults to <data>/aide.db
}

// SyncConfig configures optional cloud sync to the hosted document store.
type SyncConfig struct {
	Enabled         bool   `yaml:"enabled,omitempty"`
	ProjectID       string `yaml:"projectId,omitempty"`
	Database        string `yaml:"database,omitempty"`
	CredentialsFile string `yaml:"credentialsFile,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"` // override for emulators
	WorkspaceID     string `yaml:"workspaceId,omitempty"`
	UserID          string `yaml:"userId,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	// AllowedOrigins lists browser origins that may open the WebSocket.
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}
