package config

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	Host string `mapstructure:"host"`
	// Port is shared by the control (TCP) and media (UDP) transports.
	Port int `mapstructure:"port"`
	// HTTPPort serves the status API; 0 disables it.
	HTTPPort int `mapstructure:"http_port"`

	Name         string `mapstructure:"name"`
	MaxClients   int    `mapstructure:"max_clients"`
	PrivilegeKey string `mapstructure:"privilege_key"`

	DatabasePath string `mapstructure:"database_path"`

	v    *viper.Viper
	path string
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)

	v.SetDefault("mode", "release")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 9831)
	v.SetDefault("http_port", 0)
	v.SetDefault("name", "Parley Server")
	v.SetDefault("max_clients", 32)
	v.SetDefault("privilege_key", "")
	v.SetDefault("database_path", "parley.db")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("path", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("path", path).Msg("config loaded")
	}

	cfg := &Config{v: v, path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the current configuration back to its file. Used when an
// administrator updates the server info at runtime.
func (c *Config) Save() error {
	c.v.Set("mode", c.Mode)
	c.v.Set("host", c.Host)
	c.v.Set("port", c.Port)
	c.v.Set("http_port", c.HTTPPort)
	c.v.Set("name", c.Name)
	c.v.Set("max_clients", c.MaxClients)
	c.v.Set("privilege_key", c.PrivilegeKey)
	c.v.Set("database_path", c.DatabasePath)
	if err := c.v.WriteConfigAs(c.path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
