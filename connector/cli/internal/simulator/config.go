package simulator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is a simulation scenario.
type Config struct {
	Version  string         `mapstructure:"version" yaml:"version"`
	Defaults DefaultsConfig `mapstructure:"defaults" yaml:"defaults"`
}

type DefaultsConfig struct {
	Count    int           `mapstructure:"count" yaml:"count"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Seed     int64         `mapstructure:"seed" yaml:"seed"`
	Kinds    []string      `mapstructure:"kinds" yaml:"kinds"`
	Channels []string      `mapstructure:"channels" yaml:"channels"`
	Users    []string      `mapstructure:"users" yaml:"users"`

	// Bot identity used for app mentions and bot_message events.
	BotUserID string `mapstructure:"bot_user_id" yaml:"bot_user_id"`
	BotID     string `mapstructure:"bot_id" yaml:"bot_id"`

	// Anchors for interactions. When empty, block actions reuse a message
	// generated earlier in the run and view payloads get a fresh view id.
	MessageTS string `mapstructure:"message_ts" yaml:"message_ts"`
	ViewID    string `mapstructure:"view_id" yaml:"view_id"`

	// Skew shifts the signing timestamp; past the verifier's window every
	// request is rejected.
	Skew time.Duration `mapstructure:"skew" yaml:"skew"`
}

// LoadConfig loads a scenario with cascade: flags > ./simulate.yaml >
// ~/.slackctl/simulate.yaml > defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("simulate")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SIMULATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".slackctl"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "1.0")

	v.SetDefault("defaults.count", 20)
	v.SetDefault("defaults.interval", 0)
	v.SetDefault("defaults.seed", 0)
	v.SetDefault("defaults.kinds", []string{
		string(KindMessage), string(KindThreadReply), string(KindAppMention),
		string(KindReactionAdded), string(KindBlockActions),
	})
	v.SetDefault("defaults.channels", []string{"C0SIMGENERAL", "C0SIMALERTS"})
	v.SetDefault("defaults.users", []string{})
	v.SetDefault("defaults.bot_user_id", "U0SIMBOT")
	v.SetDefault("defaults.bot_id", "B0SIMBOT")
}

func (c *Config) Validate() error {
	if c.Defaults.Count < 1 {
		return fmt.Errorf("count must be positive, got %d", c.Defaults.Count)
	}
	if c.Defaults.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	if len(c.Defaults.Kinds) == 0 {
		return fmt.Errorf("at least one kind is required")
	}
	for _, k := range c.Defaults.Kinds {
		if !Kind(k).Valid() {
			return fmt.Errorf("unknown kind %q (valid: %s)", k, strings.Join(KindNames(), ", "))
		}
	}
	if len(c.Defaults.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	return nil
}
