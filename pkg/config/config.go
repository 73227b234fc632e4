// Package config loads carenav settings: a YAML file with defaults for
// everything, then environment overrides. Call LoadDotEnv first to pick up a
// local .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	CORSOrigin     string        `yaml:"cors_origin"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second per client; 0 disables
	RateBurst      int           `yaml:"rate_burst"`
	RebuildTimeout time.Duration `yaml:"rebuild_timeout"`
}

// PostgresConfig locates the relational doctors table.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"` // wins over the discrete fields when set
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Migrate  bool   `yaml:"migrate"`
}

// ConnString returns DSN or a postgres:// URL assembled from the fields.
func (p PostgresConfig) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     p.Host + ":" + strconv.Itoa(p.Port),
		Path:     "/" + p.Name,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

// Neo4jConfig locates a graph holding Doctor nodes.
type Neo4jConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RecordsConfig selects the authoritative doctors store.
type RecordsConfig struct {
	Backend  string         `yaml:"backend"` // postgres | neo4j | memory
	Postgres PostgresConfig `yaml:"postgres"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	SeedFile string         `yaml:"seed_file"` // memory backend contents
}

// ModelConfig selects a remote model capability.
type ModelConfig struct {
	Provider    string        `yaml:"provider"` // ollama | openai
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// IndexConfig configures the semantic index and its durable storage.
type IndexConfig struct {
	Storage      string  `yaml:"storage"` // file | qdrant
	Path         string  `yaml:"path"`
	QdrantAddr   string  `yaml:"qdrant_addr"`
	Collection   string  `yaml:"collection"`
	TopK         int     `yaml:"top_k"`
	EmbedWorkers int     `yaml:"embed_workers"`
	EmbedRate    float64 `yaml:"embed_rate"` // calls per second; 0 means unlimited
	EmbedBurst   int     `yaml:"embed_burst"`
}

// GeneratorConfig configures prompting and the verified listing.
type GeneratorConfig struct {
	Mode             string   `yaml:"mode"` // retrieval | instruction
	SpecialistLabels []string `yaml:"specialist_labels"`
	LookupLimit      int      `yaml:"lookup_limit"`
}

// BreakerConfig guards the model capabilities.
type BreakerConfig struct {
	FailThreshold int           `yaml:"fail_threshold"`
	Timeout       time.Duration `yaml:"timeout"`
}

// NATSConfig enables remote rebuild requests when URL is set.
type NATSConfig struct {
	URL            string `yaml:"url"`
	RebuildSubject string `yaml:"rebuild_subject"`
	RebuiltSubject string `yaml:"rebuilt_subject"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Records   RecordsConfig   `yaml:"records"`
	Embedder  ModelConfig     `yaml:"embedder"`
	Completer ModelConfig     `yaml:"completer"`
	Index     IndexConfig     `yaml:"index"`
	Generator GeneratorConfig `yaml:"generator"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	NATS      NATSConfig      `yaml:"nats"`
}

// Default returns the built-in configuration: Postgres on localhost, local
// Ollama models, file-backed index.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			CORSOrigin:     "*",
			RateLimit:      2,
			RateBurst:      10,
			RebuildTimeout: 5 * time.Minute,
		},
		Records: RecordsConfig{
			Backend: "postgres",
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				Name:    "medical_db",
				User:    "postgres",
				SSLMode: "disable",
				Migrate: true,
			},
			Neo4j: Neo4jConfig{URL: "neo4j://localhost:7687", User: "neo4j", Database: "neo4j"},
		},
		Embedder: ModelConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "nomic-embed-text",
			Timeout:  30 * time.Second,
		},
		Completer: ModelConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "llama3.2",
			Temperature: 0.2,
			Timeout:     120 * time.Second,
		},
		Index: IndexConfig{
			Storage:      "file",
			Path:         "data/medical_index.json",
			QdrantAddr:   "localhost:6334",
			Collection:   "carenav_doctors",
			TopK:         3,
			EmbedWorkers: 4,
			EmbedBurst:   1,
		},
		Generator: GeneratorConfig{Mode: "retrieval", LookupLimit: 3},
		Breaker:   BreakerConfig{FailThreshold: 5, Timeout: 30 * time.Second},
		NATS: NATSConfig{
			RebuildSubject: "carenav.index.rebuild",
			RebuiltSubject: "carenav.index.rebuilt",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error; an empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables already set. A missing file is ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Validate rejects unknown backends and impossible values.
func (c Config) Validate() error {
	oneOf := func(field, v string, allowed ...string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("config: %s: unknown value %q (want one of %v)", field, v, allowed)
	}
	if err := oneOf("records.backend", c.Records.Backend, "postgres", "neo4j", "memory"); err != nil {
		return err
	}
	if err := oneOf("embedder.provider", c.Embedder.Provider, "ollama", "openai"); err != nil {
		return err
	}
	if err := oneOf("completer.provider", c.Completer.Provider, "ollama", "openai"); err != nil {
		return err
	}
	if err := oneOf("index.storage", c.Index.Storage, "file", "qdrant"); err != nil {
		return err
	}
	if err := oneOf("generator.mode", c.Generator.Mode, "retrieval", "instruction"); err != nil {
		return err
	}
	if c.Index.TopK < 0 || c.Generator.LookupLimit < 0 || c.Index.EmbedRate < 0 {
		return fmt.Errorf("config: top_k, lookup_limit and embed_rate must not be negative")
	}
	if c.Records.Backend == "memory" && c.Records.SeedFile == "" {
		return fmt.Errorf("config: records.seed_file is required for the memory backend")
	}
	return nil
}

func applyEnv(c *Config) {
	if p := os.Getenv("PORT"); p != "" {
		c.Server.Addr = ":" + p
	}
	c.Server.CORSOrigin = envOr("CORS_ORIGIN", c.Server.CORSOrigin)

	c.Records.Backend = envOr("CARENAV_RECORDS", c.Records.Backend)
	c.Records.SeedFile = envOr("CARENAV_SEED_FILE", c.Records.SeedFile)
	pg := &c.Records.Postgres
	pg.DSN = envOr("DATABASE_URL", pg.DSN)
	pg.Host = envOr("DB_HOST", pg.Host)
	pg.Port = envInt("DB_PORT", pg.Port)
	pg.Name = envOr("DB_NAME", pg.Name)
	pg.User = envOr("DB_USER", pg.User)
	pg.Password = envOr("DB_PASSWORD", pg.Password)
	c.Records.Neo4j.URL = envOr("NEO4J_URL", c.Records.Neo4j.URL)
	c.Records.Neo4j.User = envOr("NEO4J_USER", c.Records.Neo4j.User)
	c.Records.Neo4j.Password = envOr("NEO4J_PASS", c.Records.Neo4j.Password)

	if u := os.Getenv("OLLAMA_URL"); u != "" {
		for _, m := range []*ModelConfig{&c.Embedder, &c.Completer} {
			if m.Provider == "ollama" {
				m.BaseURL = u
			}
		}
	}
	c.Embedder.Model = envOr("EMBED_MODEL", c.Embedder.Model)
	c.Completer.Model = envOr("CHAT_MODEL", c.Completer.Model)

	c.Index.Storage = envOr("CARENAV_INDEX_STORAGE", c.Index.Storage)
	c.Index.Path = envOr("CARENAV_INDEX_PATH", c.Index.Path)
	c.Index.QdrantAddr = envOr("QDRANT_URL", c.Index.QdrantAddr)
	c.Index.Collection = envOr("QDRANT_COLLECTION", c.Index.Collection)

	c.Generator.Mode = envOr("CARENAV_MODE", c.Generator.Mode)
	c.NATS.URL = envOr("NATS_URL", c.NATS.URL)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
