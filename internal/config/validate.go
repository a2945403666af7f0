package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/hay-kot/criterio"
)

// Validate checks the settings the selected backend needs.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("backend", c.Backend, knownBackend),
		c.validateServer(),
		c.validateAuth(),
		c.validateBackend(),
	)
}

func knownBackend(b string) error {
	switch b {
	case BackendRemote, BackendPostgres, BackendSQLite, BackendMemory:
		return nil
	}
	return fmt.Errorf("unknown backend %q", b)
}

func (c *Config) validateServer() error {
	var errs criterio.FieldErrorsBuilder
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = errs.Append("server.port", fmt.Errorf("must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxConnections < 0 {
		errs = errs.Append("server.max_connections", errors.New("must not be negative"))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = errs.Append("server.shutdown_timeout", errors.New("must not be negative"))
	}
	return errs.ToError()
}

func (c *Config) validateAuth() error {
	var errs criterio.FieldErrorsBuilder
	if c.Auth.JWTSecret == "" {
		errs = errs.Append("auth.jwt_secret", errors.New("is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = errs.Append("auth.token_ttl", errors.New("must be positive"))
	}
	return errs.ToError()
}

func (c *Config) validateBackend() error {
	var errs criterio.FieldErrorsBuilder

	switch c.Backend {
	case BackendRemote:
		if c.ZeroDB.APIKey == "" {
			errs = errs.Append("zerodb.api_key", errors.New("is required for the remote backend"))
		}
		if c.ZeroDB.ProjectID == "" {
			errs = errs.Append("zerodb.project_id", errors.New("is required for the remote backend"))
		}
		if c.ZeroDB.Secret == "" {
			errs = errs.Append("zerodb.secret", errors.New("is required for the remote backend"))
		}
		if u, err := url.Parse(c.ZeroDB.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = errs.Append("zerodb.base_url", fmt.Errorf("invalid url %q", c.ZeroDB.BaseURL))
		}
	case BackendPostgres:
		if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.Name == "") {
			errs = errs.Append("database", errors.New("dsn or host and name are required for postgres"))
		}
	case BackendSQLite:
		if c.Database.Path == "" {
			errs = errs.Append("database.path", errors.New("is required for sqlite"))
		}
	}

	return errs.ToError()
}
