package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmallory/chat-relay/globals"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultTokenType     = "access"
	defaultAuthCacheSize = 1024
)

// Config is the global configuration object which is filled via the
// configuration file, environment variables (CHATRELAY_ prefix) and flags.
type Config struct {
	AuthConfig        AuthConfig        `mapstructure:"auth"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	HistoryConfig     HistoryConfig     `mapstructure:"history"`
	TimeoutConfig     TimeoutConfig     `mapstructure:"timeouts"`
	LogLevel          string            `mapstructure:"log_level"`
}

// AuthConfig configures the bearer-credential verification. Credentials are
// HMAC-signed tokens; the "type" claim must equal TokenType, the subject id is
// taken from the "memberId" claim and the display name from "nickname".
type AuthConfig struct {
	Secret    string `mapstructure:"secret"`
	Issuer    string `mapstructure:"issuer"`
	TokenType string `mapstructure:"token_type"`
	CacheSize int    `mapstructure:"cache_size"`
}

// PersistenceConfig selects the storage backend. Supported types are
// "sqlite", "postgres" (both via gorm) and "buntdb".
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// HistoryConfig configures how many persisted messages are replayed to a
// newly connected client. Zero means the full room history.
type HistoryConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

// TimeoutConfig configures the websocket deadlines. Values are duration
// strings, f.e. "10s" or "2m".
type TimeoutConfig struct {
	WriteWait time.Duration `mapstructure:"write_wait"`
	PongWait  time.Duration `mapstructure:"pong_wait"`
}

// TokenType returns the configured token type or the default.
func (c *Config) TokenType() string {
	if c.AuthConfig.TokenType == "" {
		return defaultTokenType
	}
	return c.AuthConfig.TokenType
}

// AuthCacheSize returns the configured resolver cache size or the default.
func (c *Config) AuthCacheSize() int {
	if c.AuthConfig.CacheSize <= 0 {
		return defaultAuthCacheSize
	}
	return c.AuthConfig.CacheSize
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("log-level", "l", "", "log level (trace, debug, info, warn, error)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. It returns a Config
// object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("CHATRELAY")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}

	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}
