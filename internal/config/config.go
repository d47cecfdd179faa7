package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway" mapstructure:"gateway"`
	Runlog   RunlogConfig   `yaml:"runlog" mapstructure:"runlog"`
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
	Detector DetectorConfig `yaml:"detector" mapstructure:"detector"`
	Imputer  ImputerConfig  `yaml:"imputer" mapstructure:"imputer"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// GatewayConfig configures the master-data gateway.
type GatewayConfig struct {
	Driver         string  `yaml:"driver" mapstructure:"driver"`
	DatabaseURL    string  `yaml:"database_url" mapstructure:"database_url"`
	MaxConns       int32   `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns       int32   `yaml:"min_conns" mapstructure:"min_conns"`
	QueriesPerSec  float64 `yaml:"queries_per_sec" mapstructure:"queries_per_sec"`
	QueryBurst     int     `yaml:"query_burst" mapstructure:"query_burst"`
	SchemaTTLSecs  int     `yaml:"schema_ttl_secs" mapstructure:"schema_ttl_secs"`
}

// RunlogConfig configures the run audit store.
type RunlogConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ResolverConfig configures entity resolution.
type ResolverConfig struct {
	MasterTable         string  `yaml:"master_table" mapstructure:"master_table"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	NameField           string  `yaml:"name_field" mapstructure:"name_field"`
	CodeField           string  `yaml:"code_field" mapstructure:"code_field"`
	MaxAlternatives     int     `yaml:"max_alternatives" mapstructure:"max_alternatives"`
	Workers             int     `yaml:"workers" mapstructure:"workers"`
}

// DetectorConfig configures conflict detection.
type DetectorConfig struct {
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`
}

// ImputerConfig configures value imputation.
type ImputerConfig struct {
	Strategy  string `yaml:"strategy" mapstructure:"strategy"`
	Neighbors int    `yaml:"neighbors" mapstructure:"neighbors"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GATEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("gateway.driver", "postgres")
	v.SetDefault("gateway.max_conns", 10)
	v.SetDefault("gateway.min_conns", 2)
	v.SetDefault("gateway.queries_per_sec", 50)
	v.SetDefault("gateway.query_burst", 10)
	v.SetDefault("gateway.schema_ttl_secs", 300)
	v.SetDefault("runlog.driver", "sqlite")
	v.SetDefault("runlog.database_url", "gatekeeper.db")
	v.SetDefault("resolver.confidence_threshold", 0.8)
	v.SetDefault("resolver.name_field", "name")
	v.SetDefault("resolver.code_field", "code")
	v.SetDefault("resolver.max_alternatives", 5)
	v.SetDefault("resolver.workers", 4)
	v.SetDefault("detector.tolerance", 0.01)
	v.SetDefault("imputer.strategy", "auto")
	v.SetDefault("imputer.neighbors", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
