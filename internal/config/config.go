package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "KHOBOR"

// Config is the runtime configuration of every command.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Dedupe  DedupeConfig  `mapstructure:"dedupe"`
	NER     NERConfig     `mapstructure:"ner"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	PageSize        int           `mapstructure:"page_size"`
	Editor          string        `mapstructure:"editor"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type IngestConfig struct {
	ProvidersFile  string        `mapstructure:"providers_file"`
	CompaniesFile  string        `mapstructure:"companies_file"`
	PublishersFile string        `mapstructure:"publishers_file"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	AddedBy        string        `mapstructure:"added_by"`
}

type DedupeConfig struct {
	Method    string  `mapstructure:"method"`
	Threshold float64 `mapstructure:"threshold"`
	Features  int     `mapstructure:"features"`
	// Embedding* configure the embedding method.
	EmbeddingModel    string `mapstructure:"embedding_model"`
	EmbeddingAPIKey   string `mapstructure:"embedding_api_key"`
	EmbeddingEndpoint string `mapstructure:"embedding_endpoint"`
}

// NERConfig points the entity extractor at an OpenAI compatible chat
// completions API (Groq by default).
type NERConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Endpoint string `mapstructure:"endpoint"`
	Limit    int    `mapstructure:"limit"`
}

// Load reads .env (if present), the optional config file and the
// environment. Environment variables use the KHOBOR_ prefix with "_" in
// place of ".", e.g. KHOBOR_SERVER_ADDR.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Historical names shared with the entity extraction scripts.
	_ = v.BindEnv("ner.api_key", envPrefix+"_NER_API_KEY", "GROQ_API_KEY")
	_ = v.BindEnv("ner.model", envPrefix+"_NER_MODEL", "GROQ_MODEL")
	_ = v.BindEnv("ner.endpoint", envPrefix+"_NER_ENDPOINT", "GROQ_ENDPOINT")
	_ = v.BindEnv("dedupe.embedding_api_key", envPrefix+"_DEDUPE_EMBEDDING_API_KEY", "OPENAI_API_KEY")

	if configFile = strings.TrimSpace(configFile); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.page_size", 10)
	v.SetDefault("server.editor", "web")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.path", "khobor.db")

	v.SetDefault("ingest.providers_file", "configs/providers.yaml")
	v.SetDefault("ingest.companies_file", "configs/companies.yaml")
	v.SetDefault("ingest.publishers_file", "")
	v.SetDefault("ingest.http_timeout", 15*time.Second)
	v.SetDefault("ingest.added_by", "harvester")

	v.SetDefault("dedupe.method", "hashing")
	v.SetDefault("dedupe.threshold", 0.8)
	v.SetDefault("dedupe.features", 1<<12)
	v.SetDefault("dedupe.embedding_model", "text-embedding-3-small")
	v.SetDefault("dedupe.embedding_api_key", "")
	v.SetDefault("dedupe.embedding_endpoint", "https://api.openai.com/v1")

	v.SetDefault("ner.api_key", "")
	v.SetDefault("ner.model", "llama-3.3-70b-versatile")
	v.SetDefault("ner.endpoint", "https://api.groq.com/openai/v1")
	v.SetDefault("ner.limit", 10)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if c.Server.PageSize < 1 {
		return fmt.Errorf("server.page_size must be positive, got %d", c.Server.PageSize)
	}
	if c.Dedupe.Threshold <= 0 || c.Dedupe.Threshold > 1 {
		return fmt.Errorf("dedupe.threshold must be in (0, 1], got %v", c.Dedupe.Threshold)
	}
	if c.Dedupe.Features < 1 {
		return fmt.Errorf("dedupe.features must be positive, got %d", c.Dedupe.Features)
	}
	return nil
}
