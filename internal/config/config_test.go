package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	t.Parallel()

	err := ValidateSettings(map[string]any{
		"oracle": map[string]any{
			"model":       "gemini-2.0-flash",
			"api_key_env": "GEMINI_API_KEY",
			"temperature": 0.7,
		},
		"generation": map[string]any{
			"max_retries":      3,
			"include_few_shot": true,
			"service_type":     "outpatient",
		},
		"validation": map[string]any{
			"strict":            true,
			"terminal_statuses": []any{"paid", "closed"},
		},
		"db_path": ".scengen/scengen.db",
	})
	assert.NoError(t, err)
}

func TestValidateSettingsRejectsUnknownKey(t *testing.T) {
	t.Parallel()

	err := ValidateSettings(map[string]any{"oracel": map[string]any{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config schema validation failed")
}

func TestValidateSettingsRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	err := ValidateSettings(map[string]any{
		"generation": map[string]any{"max_retries": 25},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_retries")
}

func TestValidateSettingsRejectsBadServiceType(t *testing.T) {
	t.Parallel()

	err := ValidateSettings(map[string]any{
		"generation": map[string]any{"service_type": "telehealth"},
	})
	assert.Error(t, err)
}

func TestValidateSettingsRejectsEmptyTerminalStatuses(t *testing.T) {
	t.Parallel()

	err := ValidateSettings(map[string]any{
		"validation": map[string]any{"terminal_statuses": []any{}},
	})
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, "gemini-2.0-flash", cfg.Oracle.Model)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Oracle.APIKeyEnv)
	assert.Equal(t, 120, cfg.Oracle.TimeoutSeconds)
	require.NotNil(t, cfg.Generation.MaxRetries)
	assert.Equal(t, 3, *cfg.Generation.MaxRetries)
	require.NotNil(t, cfg.Generation.IncludeFewShot)
	assert.True(t, *cfg.Generation.IncludeFewShot)
	assert.Equal(t, []string{"paid", "closed"}, cfg.Validation.TerminalStatuses)
	assert.Equal(t, ".scengen/scengen.db", cfg.DBPath)
}

func TestApplyDefaultsFillsUnsetFields(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, Default(), cfg)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	f := false
	retries := 5
	cfg := Config{
		Oracle:     OracleConfig{Model: "gemini-2.5-pro"},
		Generation: GenerationConfig{MaxRetries: &retries, IncludeFewShot: &f},
		Validation: ValidationConfig{TerminalStatuses: []string{"paid"}},
		DBPath:     "/tmp/custom.db",
	}
	cfg.ApplyDefaults()

	assert.Equal(t, "gemini-2.5-pro", cfg.Oracle.Model)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Oracle.APIKeyEnv)
	require.NotNil(t, cfg.Generation.MaxRetries)
	assert.Equal(t, 5, *cfg.Generation.MaxRetries)
	require.NotNil(t, cfg.Generation.IncludeFewShot)
	assert.False(t, *cfg.Generation.IncludeFewShot)
	assert.Equal(t, []string{"paid"}, cfg.Validation.TerminalStatuses)
	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
}

func TestApplyDefaultsKeepsZeroRetryBudget(t *testing.T) {
	t.Parallel()

	zero := 0
	cfg := Config{Generation: GenerationConfig{MaxRetries: &zero}}
	cfg.ApplyDefaults()

	require.NotNil(t, cfg.Generation.MaxRetries)
	assert.Zero(t, *cfg.Generation.MaxRetries)
}
