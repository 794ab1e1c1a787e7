package config

import (
	"fmt"
	"strings"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithPublicBaseURL sets the externally reachable origin used in proof URLs
func WithPublicBaseURL(base string) Option {
	return func(c *ServerConfig) error {
		c.PublicBaseURL = strings.TrimSuffix(base, "/")
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithZiflow sets the review service endpoint and key
func WithZiflow(baseURL, apiKey string) Option {
	return func(c *ServerConfig) error {
		if baseURL != "" {
			c.Ziflow.BaseURL = baseURL
		}
		c.Ziflow.APIKey = apiKey
		return nil
	}
}

// WithGeneration sets the text generation endpoint and key
func WithGeneration(baseURL, apiKey string) Option {
	return func(c *ServerConfig) error {
		if baseURL != "" {
			c.Generation.BaseURL = baseURL
		}
		c.Generation.APIKey = apiKey
		return nil
	}
}

// WithStorage replaces the upload storage configuration
func WithStorage(storage StorageConfig) Option {
	return func(c *ServerConfig) error {
		if storage.Type == "" {
			return fmt.Errorf("storage type cannot be empty")
		}
		if storage.Region == "" {
			storage.Region = c.Storage.Region
		}
		c.Storage = storage
		return nil
	}
}

// WithPublicURLMode selects the serve or upload url strategy
func WithPublicURLMode(mode string) Option {
	return func(c *ServerConfig) error {
		c.PublicURLMode = mode
		return nil
	}
}

// WithAPIKeyAuth protects the API with a key whose SHA-256 hex digest is given
func WithAPIKeyAuth(sha256Hex string) Option {
	return func(c *ServerConfig) error {
		if sha256Hex == "" {
			return fmt.Errorf("api key digest cannot be empty")
		}
		c.AuthMode = AuthAPIKey
		c.APIKeySHA256 = sha256Hex
		return nil
	}
}

// WithJWTAuth protects the API with HS256 bearer tokens
func WithJWTAuth(secret string) Option {
	return func(c *ServerConfig) error {
		if secret == "" {
			return fmt.Errorf("jwt secret cannot be empty")
		}
		c.AuthMode = AuthJWT
		c.JWTSecret = secret
		return nil
	}
}
