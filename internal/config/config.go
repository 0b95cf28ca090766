package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultModel    = "gemini-2.0-flash"
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultPort     = 18790
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	temp := 0.7
	topP := 0.95
	return Config{
		API: APIConfig{
			Model:           DefaultModel,
			Endpoint:        DefaultEndpoint,
			Temperature:     &temp,
			MaxOutputTokens: 2048,
			TopK:            40,
			TopP:            &topP,
			TimeoutSeconds:  120,
		},
		Persona: PersonaConfig{
			Name:     "Aide",
			Role:     "AI employee",
			WakeWord: "aide",
		},
		Context: ContextConfig{
			PromptTurns:    20,
			SummaryTurns:   10,
			SummaryWords:   200,
			SummaryFailure: "suppress",
		},
		Dispatch: DispatchConfig{
			AgentTimeoutSeconds: 60,
		},
		Voice: VoiceConfig{
			Match: "word",
		},
		Upload: UploadConfig{
			MaxBytes: 1 << 20,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Sync: SyncConfig{
			Database: "(default)",
		},
		Gateway: GatewayConfig{
			Port: DefaultPort,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
