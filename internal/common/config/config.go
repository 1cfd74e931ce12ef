// Package config loads the proxy's configuration via github.com/spf13/viper:
// flags override environment variables (prefixed AGENTCTL_) which override
// an optional YAML file which override the defaults set here. Grounded on
// the reference stack's viper-based config loading, trimmed to the knobs
// this proxy actually has (no database/NATS/docker sub-configs — those
// concerns don't exist here).
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/kandev/claude-acp-agent/internal/common/constants"
	"github.com/kandev/claude-acp-agent/internal/permission"
)

// ServerConfig controls the Claude CLI subprocess and turn driver.
type ServerConfig struct {
	ClaudeBin         string   `mapstructure:"claude_bin"`
	ClaudeArgs        []string `mapstructure:"claude_args"`
	MaxTurnRequests   int      `mapstructure:"max_turn_requests"`
	MaxTokens         int64    `mapstructure:"max_tokens"`
	PermissionTimeout string   `mapstructure:"permission_timeout"`
}

// SecurityConfig controls the validation and permission policy.
type SecurityConfig struct {
	Profile              string   `mapstructure:"profile"`
	PathBoundaryEnforced  bool     `mapstructure:"path_boundary_enforced"`
	AllowedURISchemes     []string `mapstructure:"allowed_uri_schemes"`
	SSRFProtection        bool     `mapstructure:"ssrf_protection"`
}

// LoggingConfig controls zap's output.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// Config is the root configuration object bound from flags/env/file.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Security SecurityConfig  `mapstructure:"security"`
	Logging  LoggingConfig   `mapstructure:"logging"`
}

// Profile converts the configured security profile string into a
// permission.Profile, defaulting to moderate for an unrecognized value
// rather than failing startup over a typo.
func (c Config) Profile() permission.Profile {
	switch permission.Profile(c.Security.Profile) {
	case permission.ProfileStrict, permission.ProfileModerate, permission.ProfilePermissive:
		return permission.Profile(c.Security.Profile)
	default:
		return permission.ProfileModerate
	}
}

// Load builds a viper instance bound to environment variables (prefix
// AGENTCTL_, nested keys joined with "_"), an optional config file at
// configPath, and the defaults below, then unmarshals into a Config.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.claude_bin", "claude")
	v.SetDefault("server.claude_args", []string{})
	v.SetDefault("server.max_turn_requests", constants.DefaultMaxTurnRequests)
	v.SetDefault("server.max_tokens", 0)
	v.SetDefault("server.permission_timeout", constants.DefaultPermissionTimeout.String())

	v.SetDefault("security.profile", string(permission.ProfileModerate))
	v.SetDefault("security.path_boundary_enforced", true)
	v.SetDefault("security.allowed_uri_schemes", []string{"file", "http", "https"})
	v.SetDefault("security.ssrf_protection", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
}
