// Package config loads and persists the her configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	errbuilder "github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/joho/godotenv"
	koanftoml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	gotoml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	AppName  = "her"
	fileName = "config.toml"
)

type Config struct {
	APIKey             string `koanf:"api_key" toml:"api_key" desc:"API key for the completion endpoint" default:""`
	BaseURL            string `koanf:"base_url" toml:"base_url" desc:"OpenAI-compatible API base URL" default:"https://api.openai.com/v1"`
	Model              string `koanf:"model" toml:"model" desc:"chat model name" default:"gpt-4o-mini"`
	HistoryFile        string `koanf:"history_file" toml:"history_file" desc:"shell history log; $HISTFILE or ~/.zsh_history when empty" default:""`
	HistoryFormat      string `koanf:"history_format" toml:"history_format" desc:"extended|plain" default:"extended"`
	HistoryLines       int    `koanf:"history_lines" toml:"history_lines" desc:"history entries sent with suggestions" default:"10"`
	MaxEntryLines      int    `koanf:"max_entry_lines" toml:"max_entry_lines" desc:"max physical lines in one history entry" default:"1000"`
	AliasesFile        string `koanf:"aliases_file" toml:"aliases_file" desc:"file holding current shell aliases" default:""`
	SessionDir         string `koanf:"session_dir" toml:"session_dir" desc:"chat session storage directory" default:""`
	MaxContextMessages int    `koanf:"max_context_messages" toml:"max_context_messages" desc:"max messages included in a prompt" default:"12"`
	MaxStoredMessages  int    `koanf:"max_stored_messages" toml:"max_stored_messages" desc:"max messages stored per session" default:"200"`
	MaxSessions        int    `koanf:"max_sessions" toml:"max_sessions" desc:"max persistent sessions on disk" default:"50"`
	TimeoutSeconds     int    `koanf:"timeout_seconds" toml:"timeout_seconds" desc:"request timeout in seconds" default:"60"`
	LogLevel           string `koanf:"log_level" toml:"log_level" desc:"logrus level" default:"warn"`
	OverloadEnv        bool   `koanf:"overload_env" toml:"overload_env" desc:"let the config dir .env override the environment" default:"false"`
}

func Default() *Config {
	return &Config{
		BaseURL:            "https://api.openai.com/v1",
		Model:              "gpt-4o-mini",
		HistoryFormat:      "extended",
		HistoryLines:       10,
		MaxEntryLines:      1000,
		MaxContextMessages: 12,
		MaxStoredMessages:  200,
		MaxSessions:        50,
		TimeoutSeconds:     60,
		LogLevel:           "warn",
	}
}

// Load reads defaults, then the TOML file at path (or the XDG config file
// when path is empty), then the .env file next to it. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to load config defaults").
			WithCause(err)
	}

	if path == "" {
		path = FindFile()
	}

	if path != "" && fileExists(path) {
		user := koanf.New(".")
		if err := user.Load(file.Provider(path), koanftoml.Parser()); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to parse config file " + path).
				WithCause(err)
		}
		if err := k.Merge(user); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to merge config").
				WithCause(err)
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to decode config").
			WithCause(err)
	}

	if path != "" {
		if err := loadEnv(filepath.Join(filepath.Dir(path), ".env"), cfg.OverloadEnv); err != nil {
			return nil, err
		}
	}

	cfg.resolvePaths()
	return cfg, nil
}

func loadEnv(envFile string, overload bool) error {
	if !fileExists(envFile) {
		return nil
	}
	var err error
	if overload {
		err = godotenv.Overload(envFile)
	} else {
		err = godotenv.Load(envFile)
	}
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to load " + envFile).
			WithCause(err)
	}
	return nil
}

// ApplyOverrides copies values set through v (environment or bound flags)
// over the loaded config.
func (c *Config) ApplyOverrides(v *viper.Viper) {
	if v.IsSet("api_key") {
		c.APIKey = v.GetString("api_key")
	}
	if v.IsSet("base_url") {
		c.BaseURL = v.GetString("base_url")
	}
	if v.IsSet("model") {
		c.Model = v.GetString("model")
	}
	if v.IsSet("history_file") {
		c.HistoryFile = v.GetString("history_file")
	}
	if v.IsSet("history_format") {
		c.HistoryFormat = v.GetString("history_format")
	}
	if v.IsSet("history_lines") {
		c.HistoryLines = v.GetInt("history_lines")
	}
	if v.IsSet("max_entry_lines") {
		c.MaxEntryLines = v.GetInt("max_entry_lines")
	}
	if v.IsSet("aliases_file") {
		c.AliasesFile = v.GetString("aliases_file")
	}
	if v.IsSet("session_dir") {
		c.SessionDir = v.GetString("session_dir")
	}
	if v.IsSet("max_context_messages") {
		c.MaxContextMessages = v.GetInt("max_context_messages")
	}
	if v.IsSet("max_stored_messages") {
		c.MaxStoredMessages = v.GetInt("max_stored_messages")
	}
	if v.IsSet("max_sessions") {
		c.MaxSessions = v.GetInt("max_sessions")
	}
	if v.IsSet("timeout_seconds") {
		c.TimeoutSeconds = v.GetInt("timeout_seconds")
	}
	if v.IsSet("log_level") {
		c.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("overload_env") {
		c.OverloadEnv = v.GetBool("overload_env")
	}
	c.resolvePaths()
}

func (c *Config) resolvePaths() {
	if c.HistoryFile == "" {
		c.HistoryFile = os.Getenv("HISTFILE")
	}
	if c.HistoryFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.HistoryFile = filepath.Join(home, ".zsh_history")
		}
	}
	c.HistoryFile = expandHome(c.HistoryFile)
	c.AliasesFile = expandHome(c.AliasesFile)

	if c.SessionDir == "" {
		c.SessionDir = DefaultSessionDir()
	}
	c.SessionDir = expandHome(c.SessionDir)
}

// Timeout returns the request timeout.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate reports settings that leave her unable to read history.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HistoryFile) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("history_file is not set; set it or export HISTFILE")
	}
	if c.HistoryLines < 1 {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("history_lines must be positive, got %d", c.HistoryLines))
	}
	if c.MaxEntryLines < 1 {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("max_entry_lines must be positive, got %d", c.MaxEntryLines))
	}
	return nil
}

// RequireAPI reports whether the config can reach the completion endpoint.
func (c *Config) RequireAPI() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("api_key is not set; run `her config init` or export HER_API_KEY")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("base_url is empty")
	}
	return nil
}

// Save writes c as TOML to path, creating parent directories.
func Save(path string, c *Config) error {
	b, err := gotoml.Marshal(c)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode config").
			WithCause(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create config dir").
			WithCause(err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write config").
			WithCause(err)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
