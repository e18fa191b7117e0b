package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the orchestrator configuration
type Config struct {
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	} `mapstructure:"server"`

	Kubernetes struct {
		ConfigPath string  `mapstructure:"configPath"`
		InCluster  bool    `mapstructure:"inCluster"`
		Namespace  string  `mapstructure:"namespace"`
		QPS        float32 `mapstructure:"qps"`
		Burst      int     `mapstructure:"burst"`
	} `mapstructure:"kubernetes"`

	Orchestrator struct {
		// DefaultTimeout bounds every cluster call whose caller context
		// carries no deadline.
		DefaultTimeout time.Duration `mapstructure:"defaultTimeout"`
		// CreateTimeout bounds the pod claim loop in CreateCompute.
		CreateTimeout time.Duration `mapstructure:"createTimeout"`
		// PollInterval is the claim loop's retry interval.
		PollInterval time.Duration `mapstructure:"pollInterval"`
		// ReadyPollInterval is the pod readiness wait interval.
		ReadyPollInterval time.Duration `mapstructure:"readyPollInterval"`
		// CacheRefreshInterval is the background cache refresh period.
		CacheRefreshInterval time.Duration `mapstructure:"cacheRefreshInterval"`
	} `mapstructure:"orchestrator"`

	Logging struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
		Encoding    string `mapstructure:"encoding"`
	} `mapstructure:"logging"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*Config, error) {
	var config Config

	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and environment cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("COMPUTESDK")
	v.AutomaticEnv()

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// setDefaults registers the default values for every tunable.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("kubernetes.namespace", "default")
	v.SetDefault("kubernetes.inCluster", false)
	v.SetDefault("kubernetes.qps", float32(100))
	v.SetDefault("kubernetes.burst", 200)

	v.SetDefault("orchestrator.defaultTimeout", 30*time.Second)
	v.SetDefault("orchestrator.createTimeout", 60*time.Second)
	v.SetDefault("orchestrator.pollInterval", 2*time.Second)
	v.SetDefault("orchestrator.readyPollInterval", time.Second)
	v.SetDefault("orchestrator.cacheRefreshInterval", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.encoding", "json")
}
