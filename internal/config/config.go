// Package config loads the ptyconnect CLI configuration.
// Values come from a YAML file, then PTYCONNECT_* environment variables,
// then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/KennethanCeyer/ptyconnect"
	"github.com/KennethanCeyer/ptyconnect/sshconn"
)

// EnvPrefix prefixes every environment override, e.g. PTYCONNECT_SHELL_TIMEOUT.
const EnvPrefix = "PTYCONNECT"

type Config struct {
	Shell ShellConfig `yaml:"shell"`
	SSH   SSHConfig   `yaml:"ssh"`
	Log   LogConfig   `yaml:"log"`
}

type ShellConfig struct {
	Name            string   `yaml:"name"`
	Command         []string `yaml:"command"`
	Prompt          string   `yaml:"prompt"`
	NewPrompt       string   `yaml:"new_prompt" split_words:"true"`
	MultilinePrompt string   `yaml:"multiline_prompt" split_words:"true"`
	Timeout         Duration `yaml:"timeout"`
	StrictMultiline bool     `yaml:"strict_multiline" split_words:"true"`
}

type SSHConfig struct {
	Client  string   `yaml:"client"`
	Options []string `yaml:"options"`
	User    string   `yaml:"user"`
	Port    int      `yaml:"port"`
	// Password is only read from the environment.
	Password  string `yaml:"-"`
	Prompt    string `yaml:"prompt"`
	NewPrompt string `yaml:"new_prompt" split_words:"true"`
	// Native connects with the built-in SSH client instead of running
	// Client in a local shell.
	Native         bool     `yaml:"native"`
	KeyFiles       []string `yaml:"key_files" split_words:"true"`
	UseAgent       bool     `yaml:"use_agent" split_words:"true"`
	KnownHosts     string   `yaml:"known_hosts" split_words:"true"`
	AcceptNewHosts bool     `yaml:"accept_new_hosts" split_words:"true"`
	Insecure       bool     `yaml:"insecure"`
}

type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Duration is a time.Duration written as a Go duration string ("10s") in
// YAML and in the environment.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.Decode(s)
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if dur < 0 {
		return fmt.Errorf("duration cannot be negative: %s", s)
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func Default() *Config {
	return &Config{
		Shell: ShellConfig{
			Name:            ptyconnect.DefaultName,
			Command:         append([]string(nil), ptyconnect.DefaultCommand...),
			Prompt:          ptyconnect.DefaultPrompt,
			NewPrompt:       ptyconnect.DefaultNewPrompt,
			MultilinePrompt: ptyconnect.DefaultMultilinePrompt,
			Timeout:         Duration(ptyconnect.DefaultTimeout),
		},
		SSH: SSHConfig{
			Client:    ptyconnect.DefaultSSHClient,
			Prompt:    ptyconnect.DefaultSSHPrompt,
			NewPrompt: ptyconnect.DefaultNewPrompt,
			UseAgent:  true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Path returns the default config file location,
// $XDG_CONFIG_HOME/ptyconnect/config.yaml.
func Path() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "ptyconnect", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "ptyconnect", "config.yaml")
	}
	return filepath.Join(home, ".config", "ptyconnect", "config.yaml")
}

// Load reads path over the defaults and applies environment overrides. An
// empty path means Path(). A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) Validate() error {
	if len(c.Shell.Command) == 0 {
		return errors.New("shell.command must not be empty")
	}
	if c.SSH.Port < 0 || c.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port out of range: %d", c.SSH.Port)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func (c *Config) ShellOpts() ptyconnect.ShellOpts {
	return ptyconnect.ShellOpts{
		Name:            c.Shell.Name,
		Command:         append([]string(nil), c.Shell.Command...),
		Prompt:          c.Shell.Prompt,
		NewPrompt:       c.Shell.NewPrompt,
		MultilinePrompt: c.Shell.MultilinePrompt,
		Timeout:         c.Shell.Timeout.Duration(),
		StrictMultiline: c.Shell.StrictMultiline,
	}
}

// SSHOpts configures a login to host through the local ssh client.
func (c *Config) SSHOpts(host string) ptyconnect.SSHOpts {
	return ptyconnect.SSHOpts{
		Host:      host,
		Username:  c.SSH.User,
		Password:  c.SSH.Password,
		Port:      c.SSH.Port,
		Client:    c.SSH.Client,
		Options:   append([]string(nil), c.SSH.Options...),
		Prompt:    c.SSH.Prompt,
		NewPrompt: c.SSH.NewPrompt,
		Timeout:   c.Shell.Timeout.Duration(),
		Local:     c.ShellOpts(),
	}
}

// SSHConnOptions configures a native connection to host.
func (c *Config) SSHConnOptions(host string) sshconn.Options {
	opts := sshconn.DefaultOptions()
	opts.Host = host
	opts.User = c.SSH.User
	opts.Password = c.SSH.Password
	if c.SSH.Port != 0 {
		opts.Port = c.SSH.Port
	}
	opts.KeyFiles = append([]string(nil), c.SSH.KeyFiles...)
	opts.UseAgent = c.SSH.UseAgent
	opts.KnownHosts = c.SSH.KnownHosts
	opts.AcceptNewHosts = c.SSH.AcceptNewHosts
	opts.Insecure = c.SSH.Insecure
	if t := c.Shell.Timeout.Duration(); t > 0 {
		opts.Timeout = t
	}
	return opts
}

// Logger builds the slog logger described by the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
