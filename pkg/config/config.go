// Package config loads cattail settings from defaults, an optional YAML file,
// CATTAIL_* environment variables and command line flags, in increasing precedence.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/cattail/pkg/filefilter"
	"github.com/go-go-golems/cattail/pkg/logging"
	"github.com/go-go-golems/cattail/pkg/tap"
	"github.com/go-go-golems/cattail/pkg/view"
)

const (
	FileName  = "cattail"
	EnvPrefix = "CATTAIL"
)

type Settings struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// BaseURL is the address users reach the workbench at; derived from Addr when empty.
	BaseURL       string               `mapstructure:"base-url" yaml:"base-url"`
	ReplyDelay    time.Duration        `mapstructure:"reply-delay" yaml:"reply-delay"`
	AttachTimeout time.Duration        `mapstructure:"attach-timeout" yaml:"attach-timeout"`
	OutboxSize    int                  `mapstructure:"outbox-size" yaml:"outbox-size"`
	ExtensionRoot string               `mapstructure:"extension-root" yaml:"extension-root"`
	Resources     filefilter.Settings  `mapstructure:"resources" yaml:"resources"`
	Theme         map[string]string    `mapstructure:"theme" yaml:"theme"`
	View          view.DocumentOptions `mapstructure:"view" yaml:"view"`
	Tap           tap.Settings         `mapstructure:"tap" yaml:"tap"`
	Log           logging.Settings     `mapstructure:"log" yaml:"log"`
}

func Defaults() Settings {
	return Settings{
		Addr:          "localhost:8080",
		ReplyDelay:    500 * time.Millisecond,
		AttachTimeout: 30 * time.Second,
		OutboxSize:    64,
		Resources:     filefilter.DefaultSettings(),
		Theme:         map[string]string{},
		View:          view.DefaultDocumentOptions(),
		Tap:           tap.DefaultSettings(),
		Log:           logging.DefaultSettings(),
	}
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"addr":           "addr",
	"base-url":       "base-url",
	"reply-delay":    "reply-delay",
	"attach-timeout": "attach-timeout",
	"extension-root": "extension-root",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"tap":            "tap.enabled",
	"tap-redis":      "tap.redis.enabled",
	"redis-addr":     "tap.redis.addr",
}

type LoadOptions struct {
	// ConfigFile is an explicit config path; it must exist when set.
	ConfigFile string
	// SearchPaths replace the default search path (".", $HOME/.config/cattail).
	SearchPaths []string
	Flags       *pflag.FlagSet
}

func DefaultSearchPaths() []string {
	paths := []string{"."}
	if home, err := homedir.Dir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "cattail"))
	}
	return paths
}

// Load resolves the settings. The returned viper instance tells where values came from.
func Load(opts LoadOptions) (*Settings, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		paths := opts.SearchPaths
		if paths == nil {
			paths = DefaultSearchPaths()
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, nil, errors.Wrap(err, "read config")
		}
	}

	if opts.Flags != nil {
		for flag, key := range flagKeys {
			if f := opts.Flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, nil, errors.Wrapf(err, "bind flag %s", flag)
				}
			}
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, nil, errors.Wrap(err, "decode config")
	}
	if s.Theme == nil {
		s.Theme = map[string]string{}
	}
	if s.ExtensionRoot != "" {
		root, err := homedir.Expand(s.ExtensionRoot)
		if err != nil {
			return nil, nil, errors.Wrap(err, "expand extension-root")
		}
		s.ExtensionRoot = root
	}
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	return s, v, nil
}

func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("addr", d.Addr)
	v.SetDefault("base-url", d.BaseURL)
	v.SetDefault("reply-delay", d.ReplyDelay)
	v.SetDefault("attach-timeout", d.AttachTimeout)
	v.SetDefault("outbox-size", d.OutboxSize)
	v.SetDefault("extension-root", d.ExtensionRoot)
	v.SetDefault("theme", d.Theme)

	v.SetDefault("resources.max-file-size", d.Resources.MaxFileSize)
	v.SetDefault("resources.exclude-exts", d.Resources.ExcludeExts)
	v.SetDefault("resources.exclude-dirs", d.Resources.ExcludeDirs)
	v.SetDefault("resources.disable-gitignore", d.Resources.DisableGitIgnore)
	v.SetDefault("resources.disable-default-filters", d.Resources.DisableDefaultFilters)
	v.SetDefault("resources.filter-binary-files", d.Resources.FilterBinaryFiles)

	v.SetDefault("view.lang", d.View.Lang)
	v.SetDefault("view.title", d.View.Title)
	v.SetDefault("view.heading", d.View.Heading)
	v.SetDefault("view.welcome", d.View.Welcome)
	v.SetDefault("view.placeholder", d.View.Placeholder)
	v.SetDefault("view.send-label", d.View.SendLabel)

	v.SetDefault("tap.enabled", d.Tap.Enabled)
	v.SetDefault("tap.redis.enabled", d.Tap.Redis.Enabled)
	v.SetDefault("tap.redis.addr", d.Tap.Redis.Addr)
	v.SetDefault("tap.redis.stream", d.Tap.Redis.Stream)
	v.SetDefault("tap.redis.max-len", d.Tap.Redis.MaxLen)
	v.SetDefault("tap.redis.group", d.Tap.Redis.Group)
	v.SetDefault("tap.redis.consumer", d.Tap.Redis.Consumer)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func (s *Settings) Validate() error {
	if strings.TrimSpace(s.Addr) == "" {
		return errors.New("addr must not be empty")
	}
	if s.ReplyDelay <= 0 {
		return errors.Errorf("reply-delay must be positive, got %s", s.ReplyDelay)
	}
	if s.AttachTimeout <= 0 {
		return errors.Errorf("attach-timeout must be positive, got %s", s.AttachTimeout)
	}
	if s.OutboxSize < 0 {
		return errors.Errorf("outbox-size must not be negative, got %d", s.OutboxSize)
	}
	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(s.Log.Format) {
	case "", logging.FormatAuto, logging.FormatConsole, logging.FormatJSON:
	default:
		return errors.Errorf("unknown log format %q", s.Log.Format)
	}
	if s.Resources.MaxFileSize < 0 {
		return errors.Errorf("resources.max-file-size must not be negative, got %d", s.Resources.MaxFileSize)
	}
	if s.Tap.Redis.Enabled && !s.Tap.Enabled {
		return errors.New("tap.redis.enabled requires tap.enabled")
	}
	if s.Tap.Redis.Enabled && strings.TrimSpace(s.Tap.Redis.Addr) == "" {
		return errors.New("tap.redis.addr must not be empty")
	}
	return nil
}

// ResolvedBaseURL is BaseURL, or an http URL built from Addr.
func (s *Settings) ResolvedBaseURL() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	addr := s.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
