package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendRemote   = "remote"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

type Config struct {
	Backend  string   `yaml:"backend"`
	Server   Server   `yaml:"server"`
	Auth     Auth     `yaml:"auth"`
	ZeroDB   ZeroDB   `yaml:"zerodb"`
	Database Database `yaml:"database"`
}

type Server struct {
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxConnections  int           `yaml:"max_connections"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// ZeroDB configures the remote data platform.
type ZeroDB struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	ProjectID string        `yaml:"project_id"`
	Secret    string        `yaml:"secret"`
	Subject   string        `yaml:"subject"`
	Email     string        `yaml:"email"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Database configures the self-hosted backends.
type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	DSN      string `yaml:"dsn"`
	Path     string `yaml:"path"`
}

func Default() *Config {
	return &Config{
		Backend: BackendMemory,
		Server: Server{
			Port:            8000,
			AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:3001"},
			MaxConnections:  256,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: Auth{
			TokenTTL: 24 * time.Hour,
		},
		ZeroDB: ZeroDB{
			BaseURL: "https://api.ainative.studio/api/v1",
			Subject: "rewardsy-backend",
			Email:   "admin@ainative.studio",
			Timeout: 30 * time.Second,
		},
		Database: Database{
			Port: 5432,
			Path: "rewardsy.db",
		},
	}
}

// Load layers defaults, the YAML file at path (if any) and environment
// variables, in that order. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Backend, "REWARDSY_BACKEND")
	setInt(&c.Server.Port, "PORT")
	setInt(&c.Server.MaxConnections, "MAX_CONNECTIONS")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Auth.TokenTTL = d
		}
	}

	setString(&c.ZeroDB.BaseURL, "ZERODB_API_BASE_URL")
	setString(&c.ZeroDB.APIKey, "ZERODB_API_KEY")
	setString(&c.ZeroDB.ProjectID, "ZERODB_PROJECT_ID")
	setString(&c.ZeroDB.Secret, "ZERODB_SECRET")
	setString(&c.ZeroDB.Email, "Email")

	setString(&c.Database.Host, "DB_HOST")
	setInt(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.DSN, "DB_DSN")
	setString(&c.Database.Path, "SQLITE_PATH")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return // keep fallback
	}
	*dst = n
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConnString is the lib/pq DSN for the postgres backend.
func (c *Config) ConnString() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name,
	)
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
