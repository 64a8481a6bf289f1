// Package config provides configuration structures and loading for proxyhk.
package config

import "time"

// Supported database drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config represents the complete application configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database" mapstructure:"database"`
	Housekeeper HousekeeperConfig `yaml:"housekeeper" mapstructure:"housekeeper"`
	Control     ControlConfig     `yaml:"control" mapstructure:"control"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig represents the proxy database connection configuration.
type DatabaseConfig struct {
	Driver             string `yaml:"driver" mapstructure:"driver"` // mysql or sqlite
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	Path               string `yaml:"path" mapstructure:"path"` // sqlite database file
	TLS                string `yaml:"tls" mapstructure:"tls"`   // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// HousekeeperConfig holds the retention schedule and buffer windows.
type HousekeeperConfig struct {
	// FrequencyHours is the interval between scheduled cycles. 0 disables
	// the schedule; cycles then only run on runtime command.
	FrequencyHours int `yaml:"frequency_hours" mapstructure:"frequency_hours"`

	// ProxyOfflineBufferHours keeps data this long even if it was never sent.
	ProxyOfflineBufferHours int `yaml:"proxy_offline_buffer_hours" mapstructure:"proxy_offline_buffer_hours"`

	// ProxyLocalBufferHours keeps already sent data this long.
	ProxyLocalBufferHours int `yaml:"proxy_local_buffer_hours" mapstructure:"proxy_local_buffer_hours"`

	StartupDelayMinutes int  `yaml:"startup_delay_minutes" mapstructure:"startup_delay_minutes"`
	TimeoutSeconds      int  `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	Lock                bool `yaml:"lock" mapstructure:"lock"`
}

// ControlConfig configures the runtime control socket.
type ControlConfig struct {
	Socket string `yaml:"socket" mapstructure:"socket"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:             DriverMySQL,
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     2,
			MaxIdleConnections: 1,
		},
		Housekeeper: HousekeeperConfig{
			FrequencyHours:          1,
			ProxyOfflineBufferHours: 1,
			ProxyLocalBufferHours:   0,
			StartupDelayMinutes:     30,
			TimeoutSeconds:          3,
			Lock:                    true,
		},
		Control: ControlConfig{
			Socket: "/tmp/proxyhk.sock",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Frequency returns the scheduled interval between cycles, or 0 in manual-only mode.
func (h HousekeeperConfig) Frequency() time.Duration {
	return time.Duration(h.FrequencyHours) * time.Hour
}

// StartupDelay returns the idle time before the first scheduled cycle.
func (h HousekeeperConfig) StartupDelay() time.Duration {
	return time.Duration(h.StartupDelayMinutes) * time.Minute
}

// Timeout returns the runtime control I/O timeout.
func (h HousekeeperConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}
