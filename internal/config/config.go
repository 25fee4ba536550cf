package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	TLS  struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
	} `mapstructure:"tls"`
}

type FabricConfig struct {
	ProfilePath string `mapstructure:"profile_path"`
	Channel     string `mapstructure:"channel"`
	Chaincode   string `mapstructure:"chaincode"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type ElasticsearchConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type AuthClient struct {
	ID     string `mapstructure:"id"`
	Secret string `mapstructure:"secret"`
}

type AuthConfig struct {
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
	Clients     []AuthClient  `mapstructure:"clients"`
}

type NotifyConfig struct {
	From              string `mapstructure:"from"`
	ValidationBaseURL string `mapstructure:"validation_base_url"`
}

type RegistryConfig struct {
	DoctorURL     string        `mapstructure:"doctor_url"`
	PharmacistURL string        `mapstructure:"pharmacist_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Fabric        FabricConfig        `mapstructure:"fabric"`
	Mongo         MongoConfig         `mapstructure:"mongo"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	Registry      RegistryConfig      `mapstructure:"registry"`
}

// Load reads configs/config.yaml (or /etc/rxledger/config.yaml) and applies
// RXLEDGER_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("/etc/rxledger")
	v.SetEnvPrefix("RXLEDGER")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if cfg.Fabric.Channel == "" || cfg.Fabric.Chaincode == "" {
		return nil, fmt.Errorf("fabric.channel and fabric.chaincode are required")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("fabric.profile_path", "./configs/connection-profile.yaml")
	v.SetDefault("fabric.channel", "mychannel")
	v.SetDefault("fabric.chaincode", "prescription")
	v.SetDefault("mongo.database", "rxledger")
	v.SetDefault("mongo.collection", "chaincode_events")
	v.SetDefault("mongo.max_pool_size", 10)
	v.SetDefault("mongo.connect_timeout", 5*time.Second)
	v.SetDefault("auth.token_expiry", 24*time.Hour)
	v.SetDefault("registry.timeout", 10*time.Second)
}
