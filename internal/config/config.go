package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/viper"
)

type Config struct {
	Mode      string `mapstructure:"mode"`
	Port      int    `mapstructure:"port"`
	RelayURL  string `mapstructure:"relay_url"`
	PublicURL string `mapstructure:"public_url"`

	PlayerCount int    `mapstructure:"player_count"`
	HostParty   string `mapstructure:"host_party"`
	HostAlias   string `mapstructure:"host_alias"`

	ICEServers      []string      `mapstructure:"ice_servers"`
	HeartbeatPeriod time.Duration `mapstructure:"heartbeat_period"`
	BackoffFloor    time.Duration `mapstructure:"backoff_floor"`
	BackoffCap      time.Duration `mapstructure:"backoff_cap"`
	ReadLimit       int64         `mapstructure:"read_limit"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("relay_url", "http://localhost:8080")
	v.SetDefault("public_url", "http://localhost:8080")
	v.SetDefault("player_count", 2)
	v.SetDefault("host_party", "player1")
	v.SetDefault("host_alias", "host")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("heartbeat_period", "2500ms")
	v.SetDefault("backoff_floor", "250ms")
	v.SetDefault("backoff_cap", "10s")
	v.SetDefault("read_limit", 32768)

	// Missing file is fine, defaults cover local runs.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// WebRTC translates the configured ICE servers into a pion configuration.
func (c *Config) WebRTC() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: c.ICEServers}},
	}
}
