package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/shopbot/internal/config"
	"github.com/zjrosen/shopbot/internal/log"
)

// envPrefix namespaces environment overrides, e.g. SHOPBOT_BACKEND_TOKEN.
const envPrefix = "SHOPBOT"

// localConfigPath is checked first and is where a default file is written
// when no config exists.
var localConfigPath = filepath.Join(".shopbot", "config.yaml")

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:     "shopbot",
	Short:   "A Telegram shop bot backed by a Strapi catalog",
	Long:    `A Telegram bot that lets users browse a product catalog, keep a cart and leave an email at checkout. Products, clients and carts live in a Strapi CMS.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := loadConfig(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .shopbot/config.yaml, then ~/.config/shopbot/config.yaml)")
}

// setDefaults registers every key so environment overrides apply to it.
func setDefaults(v *viper.Viper) {
	d := config.Defaults()
	v.SetDefault("telegram.token", d.Telegram.Token)
	v.SetDefault("telegram.poll_timeout", d.Telegram.PollTimeout)
	v.SetDefault("telegram.debug", d.Telegram.Debug)
	v.SetDefault("backend.url", d.Backend.URL)
	v.SetDefault("backend.token", d.Backend.Token)
	v.SetDefault("backend.timeout", d.Backend.Timeout)
	v.SetDefault("backend.api_prefix", d.Backend.APIPrefix)
	v.SetDefault("session.driver", d.Session.Driver)
	v.SetDefault("session.path", d.Session.Path)
	v.SetDefault("catalog.page_size", d.Catalog.PageSize)
	v.SetDefault("catalog.image_ttl", d.Catalog.ImageTTL)
	v.SetDefault("catalog.disable_image_cache", d.Catalog.DisableImageCache)
	v.SetDefault("engine.handler_timeout", d.Engine.HandlerTimeout)
	v.SetDefault("engine.slow_threshold", d.Engine.SlowThreshold)
	v.SetDefault("engine.serialize_per_user", d.Engine.SerializePerUser)
	v.SetDefault("engine.dedup_window", d.Engine.DedupWindow)
	v.SetDefault("engine.currency", d.Engine.Currency)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// loadConfig reads the config file into v and returns the merged result.
// A missing file is replaced by the commented default one.
func loadConfig(v *viper.Viper, path string) (config.Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := config.WriteDefaultConfig(path); err != nil {
				return config.Config{}, err
			}
		}
	} else {
		// Config lookup order:
		// 1. .shopbot/config.yaml (current directory)
		// 2. ~/.config/shopbot/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			v.SetConfigFile(localConfigPath)
		} else {
			if dir := config.DefaultDir(); dir != "" {
				v.AddConfigPath(dir)
			}
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config.Config{}, fmt.Errorf("reading config: %w", err)
		}
		// No config file found anywhere, write one the operator can edit.
		if writeErr := config.WriteDefaultConfig(localConfigPath); writeErr == nil {
			v.SetConfigFile(localConfigPath)
			_ = v.ReadInConfig()
		}
	}

	var out config.Config
	if err := v.Unmarshal(&out); err != nil {
		return config.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return out, nil
}

// configPath is the file settings are written to.
func configPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	if cfgFile != "" {
		return cfgFile
	}
	return localConfigPath
}

// setupLogging initializes the logger from cfg and reloads the level when
// the config file changes.
func setupLogging() (func(), error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	cleanup, err := log.Init(cfg.Log.Path, level)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		reloadLogLevel(viper.GetViper(), e)
	})
	viper.WatchConfig()
	return cleanup, nil
}

func reloadLogLevel(v *viper.Viper, e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	level, err := log.ParseLevel(v.GetString("log.level"))
	if err != nil {
		log.Warn(log.CatConfig, "Ignoring invalid log level", "path", e.Name, "error", err.Error())
		return
	}
	log.SetMinLevel(level)
	log.Info(log.CatConfig, "Reloaded log level", "path", e.Name, "level", level.String())
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
