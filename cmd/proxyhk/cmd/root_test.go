package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigFile(t *testing.T) {
	originalCfgFile := cfgFile
	defer func() {
		cfgFile = originalCfgFile
	}()

	tests := []struct {
		name     string
		cfgValue string
		want     string
	}{
		{"default config file", "", ""},
		{"custom config file", "/path/to/custom.yaml", "/path/to/custom.yaml"},
		{"config file with spaces", "/path/to/my config.yaml", "/path/to/my config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgFile = tt.cfgValue
			assert.Equal(t, tt.want, GetConfigFile())
		})
	}
}

func TestGetCLIOverrides(t *testing.T) {
	originalLogLevel := logLevel
	originalLogFormat := logFormat
	originalFrequency := frequencyHours
	defer func() {
		logLevel = originalLogLevel
		logFormat = originalLogFormat
		frequencyHours = originalFrequency
	}()

	tests := []struct {
		name      string
		logLevel  string
		logFormat string
		frequency int
		want      CLIOverrides
	}{
		{
			name:      "empty overrides",
			frequency: -1,
			want:      CLIOverrides{FrequencyHours: -1},
		},
		{
			name:      "all overrides set",
			logLevel:  "debug",
			logFormat: "text",
			frequency: 0,
			want:      CLIOverrides{LogLevel: "debug", LogFormat: "text", FrequencyHours: 0},
		},
		{
			name:      "partial overrides",
			logLevel:  "warn",
			frequency: 6,
			want:      CLIOverrides{LogLevel: "warn", FrequencyHours: 6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logLevel = tt.logLevel
			logFormat = tt.logFormat
			frequencyHours = tt.frequency
			assert.Equal(t, tt.want, GetCLIOverrides())
		})
	}
}

func TestRootCommandStructure(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "proxyhk", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.Equal(t, Version, rootCmd.Version)
}

func TestRootCommandPersistentFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	configFlag, err := flags.GetString("config")
	assert.NoError(t, err)
	assert.Equal(t, "proxyhk.yaml", configFlag)

	logLevelFlag, err := flags.GetString("log-level")
	assert.NoError(t, err)
	assert.Equal(t, "", logLevelFlag)

	logFormatFlag, err := flags.GetString("log-format")
	assert.NoError(t, err)
	assert.Equal(t, "", logFormatFlag)

	frequencyFlag, err := flags.GetInt("frequency")
	assert.NoError(t, err)
	assert.Equal(t, -1, frequencyFlag)

	noColorFlag, err := flags.GetBool("no-color")
	assert.NoError(t, err)
	assert.False(t, noColorFlag)
}

func TestRootCommandSubcommands(t *testing.T) {
	commands := rootCmd.Commands()
	commandNames := make([]string, len(commands))
	for i, cmd := range commands {
		commandNames[i] = cmd.Name()
	}

	for _, expected := range []string{"run", "runtime-control", "dry-run", "tables", "validate", "version"} {
		assert.Contains(t, commandNames, expected, "Expected command %s not found", expected)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	originalCfgFile := cfgFile
	defer func() { cfgFile = originalCfgFile }()

	cfgFile = "/tmp/nonexistent_proxyhk_config.yaml"
	_, _, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestLoadConfig_AppliesFrequencyOverride(t *testing.T) {
	env := newTestEnv(t)

	originalCfgFile, originalFrequency := cfgFile, frequencyHours
	defer func() { cfgFile, frequencyHours = originalCfgFile, originalFrequency }()

	cfgFile = env.configPath
	frequencyHours = 0
	cfg, log, err := loadConfig()
	require.NoError(t, err)
	assert.NotNil(t, log)
	assert.Equal(t, 0, cfg.Housekeeper.FrequencyHours)
}

func TestLoadConfig_RejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("housekeeper:\n  frequency_hours: 48\n"), 0o600))

	originalCfgFile := cfgFile
	defer func() { cfgFile = originalCfgFile }()

	cfgFile = path
	_, _, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "housekeeper.frequency_hours")
}
