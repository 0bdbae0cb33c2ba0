// Package config defines the generator configuration surface and its
// validation.
package config

// Config is the root configuration.
type Config struct {
	Oracle     OracleConfig     `json:"oracle"     mapstructure:"oracle"`
	Generation GenerationConfig `json:"generation" mapstructure:"generation"`
	Validation ValidationConfig `json:"validation" mapstructure:"validation"`
	DBPath     string           `json:"db_path"    mapstructure:"db_path"`
}

// OracleConfig selects and tunes the generative model.
type OracleConfig struct {
	Model          string  `json:"model"                     mapstructure:"model"`
	APIKeyEnv      string  `json:"api_key_env,omitempty"     mapstructure:"api_key_env"`
	Temperature    float32 `json:"temperature,omitempty"     mapstructure:"temperature"`
	BaseURL        string  `json:"base_url,omitempty"        mapstructure:"base_url"`
	TimeoutSeconds int     `json:"timeout_seconds,omitempty" mapstructure:"timeout_seconds"`
}

// GenerationConfig tunes prompt assembly and the repair budget.
// MaxRetries is a pointer so a configured 0 (validate once, never
// repair) survives defaulting.
type GenerationConfig struct {
	MaxRetries     *int   `json:"max_retries"      mapstructure:"max_retries"`
	IncludeFewShot *bool  `json:"include_few_shot" mapstructure:"include_few_shot"`
	IncludeSchemas *bool  `json:"include_schemas"  mapstructure:"include_schemas"`
	ServiceType    string `json:"service_type"     mapstructure:"service_type"`
}

// ValidationConfig tunes validation policy.
type ValidationConfig struct {
	Strict            bool     `json:"strict"               mapstructure:"strict"`
	FailOnExtraDeltas bool     `json:"fail_on_extra_deltas" mapstructure:"fail_on_extra_deltas"`
	TerminalStatuses  []string `json:"terminal_statuses"    mapstructure:"terminal_statuses"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	t := true
	retries := 3
	return Config{
		Oracle: OracleConfig{
			Model:          "gemini-2.0-flash",
			APIKeyEnv:      "GEMINI_API_KEY",
			TimeoutSeconds: 120,
		},
		Generation: GenerationConfig{
			MaxRetries:     &retries,
			IncludeFewShot: &t,
			IncludeSchemas: &t,
			ServiceType:    "outpatient",
		},
		Validation: ValidationConfig{
			TerminalStatuses: []string{"paid", "closed"},
		},
		DBPath: ".scengen/scengen.db",
	}
}

// ApplyDefaults fills unset fields from the default configuration.
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Oracle.Model == "" {
		c.Oracle.Model = def.Oracle.Model
	}
	if c.Oracle.APIKeyEnv == "" {
		c.Oracle.APIKeyEnv = def.Oracle.APIKeyEnv
	}
	if c.Oracle.TimeoutSeconds == 0 {
		c.Oracle.TimeoutSeconds = def.Oracle.TimeoutSeconds
	}
	if c.Generation.MaxRetries == nil {
		c.Generation.MaxRetries = def.Generation.MaxRetries
	}
	if c.Generation.IncludeFewShot == nil {
		c.Generation.IncludeFewShot = def.Generation.IncludeFewShot
	}
	if c.Generation.IncludeSchemas == nil {
		c.Generation.IncludeSchemas = def.Generation.IncludeSchemas
	}
	if c.Generation.ServiceType == "" {
		c.Generation.ServiceType = def.Generation.ServiceType
	}
	if len(c.Validation.TerminalStatuses) == 0 {
		c.Validation.TerminalStatuses = def.Validation.TerminalStatuses
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
}
