// Package config loads client, logging and peer settings with viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/omochice/syncws/internal/logging"
	"github.com/omochice/syncws/internal/peer"
	"github.com/omochice/syncws/pkg/wsclient"
)

// EnvPrefix prefixes every environment override, e.g. SYNCWS_CLIENT_ENGINE.
const EnvPrefix = "SYNCWS"

// ClientConfig holds wsclient.Options in configurable form.
type ClientConfig struct {
	Engine           string        `mapstructure:"engine"`
	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout"`
	CloseTimeout     time.Duration `mapstructure:"closeTimeout"`
	WriteTimeout     time.Duration `mapstructure:"writeTimeout"`
	ReadLimit        int64         `mapstructure:"readLimit"`
}

// PeerConfig holds the settings of the `peer` command.
type PeerConfig struct {
	Addr               string   `mapstructure:"addr"`
	Path               string   `mapstructure:"path"`
	Greeting           []string `mapstructure:"greeting"`
	CloseAfterGreeting bool     `mapstructure:"closeAfterGreeting"`
	Echo               bool     `mapstructure:"echo"`
	EchoRate           float64  `mapstructure:"echoRate"`
	EchoBurst          int      `mapstructure:"echoBurst"`
}

// Config is the whole configuration file.
type Config struct {
	Client ClientConfig   `mapstructure:"client"`
	Log    logging.Config `mapstructure:"log"`
	Peer   PeerConfig     `mapstructure:"peer"`
}

// Load reads path when it is not empty, then applies environment overrides
// on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := wsclient.DefaultOptions()
	v.SetDefault("client.engine", defaults.Engine)
	v.SetDefault("client.handshakeTimeout", defaults.HandshakeTimeout)
	v.SetDefault("client.closeTimeout", defaults.CloseTimeout)
	v.SetDefault("client.writeTimeout", defaults.WriteTimeout)
	v.SetDefault("client.readLimit", defaults.ReadLimit)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatConsole)

	v.SetDefault("peer.addr", ":8080")
	v.SetDefault("peer.path", "/")
	v.SetDefault("peer.greeting", []string{})
	v.SetDefault("peer.closeAfterGreeting", false)
	v.SetDefault("peer.echo", true)
	v.SetDefault("peer.echoRate", 0)
	v.SetDefault("peer.echoBurst", 1)
}

// ClientOptions converts the client section into wsclient.Options.
func (c *Config) ClientOptions(logger zerolog.Logger) wsclient.Options {
	return wsclient.Options{
		Engine:           c.Client.Engine,
		HandshakeTimeout: c.Client.HandshakeTimeout,
		CloseTimeout:     c.Client.CloseTimeout,
		WriteTimeout:     c.Client.WriteTimeout,
		ReadLimit:        c.Client.ReadLimit,
		Logger:           logger,
	}
}

// PeerOptions converts the peer section into peer.Config.
func (c *Config) PeerOptions() peer.Config {
	return peer.Config{
		Path:               c.Peer.Path,
		Greeting:           c.Peer.Greeting,
		CloseAfterGreeting: c.Peer.CloseAfterGreeting,
		Echo:               c.Peer.Echo,
		EchoRate:           c.Peer.EchoRate,
		EchoBurst:          c.Peer.EchoBurst,
	}
}
