package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Compliance  ComplianceConfig  `yaml:"compliance"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type RecognitionConfig struct {
	// Threshold is the match boundary in distance units.
	Threshold float64 `yaml:"threshold"`
	// ThresholdConfidence is the percentage displayed at exactly the
	// threshold distance, so operators can tune in either unit.
	ThresholdConfidence float64 `yaml:"threshold_confidence"`
	EmbeddingDim        int     `yaml:"embedding_dim"`
	ModelPath           string  `yaml:"model_path"`
}

type ComplianceConfig struct {
	// DefaultWarningDays applies when an attribute's rule omits its own
	// expiry lead time.
	DefaultWarningDays int `yaml:"default_warning_days"`
	// SweepInterval is how often cmd/sweeper re-evaluates the population,
	// in minutes.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Recognition.Threshold == 0 {
		cfg.Recognition.Threshold = 0.6
	}
	if cfg.Recognition.ThresholdConfidence == 0 {
		cfg.Recognition.ThresholdConfidence = 40
	}
	if cfg.Recognition.EmbeddingDim == 0 {
		cfg.Recognition.EmbeddingDim = 128
	}
	if cfg.Compliance.DefaultWarningDays == 0 {
		cfg.Compliance.DefaultWarningDays = 30
	}
	if cfg.Compliance.SweepIntervalMinutes == 0 {
		cfg.Compliance.SweepIntervalMinutes = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IDG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("IDG_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("IDG_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("IDG_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("IDG_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("IDG_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("IDG_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("IDG_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("IDG_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("IDG_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("IDG_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("IDG_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("IDG_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recognition.Threshold = f
		}
	}
	if v := os.Getenv("IDG_MODEL_PATH"); v != "" {
		cfg.Recognition.ModelPath = v
	}
}
