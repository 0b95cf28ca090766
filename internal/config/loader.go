package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces environment overrides (AIDE_API_KEY, AIDE_LOG_LEVEL, ...).
const envPrefix = "AIDE"

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// envOverrides are the settings that may be overridden from the environment.
type envOverrides struct {
	APIKey          string `envconfig:"API_KEY"`
	Model           string `envconfig:"MODEL"`
	Endpoint        string `envconfig:"ENDPOINT"`
	GatewayPort     int    `envconfig:"GATEWAY_PORT"`
	GatewayBind     string `envconfig:"GATEWAY_BIND"`
	GatewayToken    string `envconfig:"GATEWAY_TOKEN"`
	GatewayPassword string `envconfig:"GATEWAY_PASSWORD"`
	LogLevel        string `envconfig:"LOG_LEVEL"`
	StoragePath     string `envconfig:"STORAGE_PATH"`
	SyncProject     string `envconfig:"SYNC_PROJECT"`
}

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.API.Key = expandEnvVars(cfg.API.Key)
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	cfg.Sync.CredentialsFile = expandEnvVars(cfg.Sync.CredentialsFile)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, applyEnvOverrides(&cfg)
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	def := Defaults()

	if cfg.API.Model == "" {
		cfg.API.Model = def.API.Model
	}
	if cfg.API.Endpoint == "" {
		cfg.API.Endpoint = def.API.Endpoint
	}
	cfg.API.Endpoint = strings.TrimRight(cfg.API.Endpoint, "/")
	if cfg.API.MaxOutputTokens == 0 {
		cfg.API.MaxOutputTokens = def.API.MaxOutputTokens
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = def.API.TimeoutSeconds
	}
	if cfg.Persona.Name == "" {
		cfg.Persona.Name = def.Persona.Name
	}
	if cfg.Persona.WakeWord == "" {
		cfg.Persona.WakeWord = strings.ToLower(cfg.Persona.Name)
	}
	if cfg.Context.PromptTurns == 0 {
		cfg.Context.PromptTurns = def.Context.PromptTurns
	}
	if cfg.Context.SummaryTurns == 0 {
		cfg.Context.SummaryTurns = def.Context.SummaryTurns
	}
	if cfg.Context.SummaryWords == 0 {
		cfg.Context.SummaryWords = def.Context.SummaryWords
	}
	if cfg.Context.SummaryFailure == "" {
		cfg.Context.SummaryFailure = def.Context.SummaryFailure
	}
	if cfg.Voice.Match == "" {
		cfg.Voice.Match = def.Voice.Match
	}
	if cfg.Upload.MaxBytes == 0 {
		cfg.Upload.MaxBytes = def.Upload.MaxBytes
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = def.Storage.Driver
	}
	if cfg.Sync.Database == "" {
		cfg.Sync.Database = def.Sync.Database
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = def.Gateway.Bind
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = def.Gateway.Auth.Mode
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = def.Logging.ConsoleStyle
	}
}

// applyEnvOverrides reads AIDE_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return &ConfigError{Message: "invalid environment override: " + err.Error()}
	}

	if env.APIKey != "" {
		cfg.API.Key = env.APIKey
	}
	if env.Model != "" {
		cfg.API.Model = env.Model
	}
	if env.Endpoint != "" {
		cfg.API.Endpoint = strings.TrimRight(env.Endpoint, "/")
	}
	if env.GatewayPort != 0 {
		cfg.Gateway.Port = env.GatewayPort
	}
	if env.GatewayBind != "" {
		cfg.Gateway.Bind = env.GatewayBind
	}
	if env.GatewayToken != "" {
		cfg.Gateway.Auth.Token = env.GatewayToken
	}
	if env.GatewayPassword != "" {
		cfg.Gateway.Auth.Password = env.GatewayPassword
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = strings.ToLower(env.LogLevel)
	}
	if env.StoragePath != "" {
		cfg.Storage.Path = env.StoragePath
	}
	if env.SyncProject != "" {
		cfg.Sync.ProjectID = env.SyncProject
	}
	return nil
}
