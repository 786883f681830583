// Package vault reads service secrets from a HashiCorp Vault KV v2 engine.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"candle-signals/config"
	"candle-signals/internal/logging"
)

// ServiceSecrets are the values the service can take from Vault instead of
// its config file
type ServiceSecrets struct {
	JWTSecret         string `json:"jwt_secret"`
	AdminPasswordHash string `json:"admin_password_hash"`
	BinanceAPIKey     string `json:"binance_api_key"`
	DatabasePassword  string `json:"database_password"`
	RedisPassword     string `json:"redis_password"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *ServiceSecrets
	log    *logging.Logger
}

// NewClient creates a new Vault client. A disabled config yields a client
// that returns empty secrets.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.SecretPath == "" {
		cfg.SecretPath = "candle-signals"
	}

	c := &Client{config: cfg, log: logging.WithComponent("vault")}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	c.client = client
	return c, nil
}

// LoadServiceSecrets reads the service secrets, caching the first result
func (c *Client) LoadServiceSecrets(ctx context.Context) (*ServiceSecrets, error) {
	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return &ServiceSecrets{}, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.dataPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read service secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("service secrets not found at %s", c.dataPath())
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	secrets := &ServiceSecrets{
		JWTSecret:         getString(data, "jwt_secret"),
		AdminPasswordHash: getString(data, "admin_password_hash"),
		BinanceAPIKey:     getString(data, "binance_api_key"),
		DatabasePassword:  getString(data, "database_password"),
		RedisPassword:     getString(data, "redis_password"),
	}

	c.mu.Lock()
	c.cached = secrets
	c.mu.Unlock()

	c.log.Info("Loaded service secrets from vault", "path", c.dataPath())
	return secrets, nil
}

// StoreServiceSecrets writes the service secrets
func (c *Client) StoreServiceSecrets(ctx context.Context, secrets ServiceSecrets) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.cached = &secrets
		c.mu.Unlock()
		return nil
	}

	raw, err := json.Marshal(secrets)
	if err != nil {
		return err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, c.dataPath(), map[string]interface{}{"data": data}); err != nil {
		return fmt.Errorf("failed to store service secrets in vault: %w", err)
	}

	c.mu.Lock()
	c.cached = &secrets
	c.mu.Unlock()
	return nil
}

// Apply copies every non-empty secret over the matching config value
func (s *ServiceSecrets) Apply(cfg *config.Config) {
	if s.JWTSecret != "" {
		cfg.AuthConfig.JWTSecret = s.JWTSecret
	}
	if s.AdminPasswordHash != "" {
		cfg.AuthConfig.AdminPasswordHash = s.AdminPasswordHash
	}
	if s.BinanceAPIKey != "" {
		cfg.BinanceConfig.APIKey = s.BinanceAPIKey
	}
	if s.DatabasePassword != "" {
		cfg.DatabaseConfig.Password = s.DatabasePassword
	}
	if s.RedisPassword != "" {
		cfg.RedisConfig.Password = s.RedisPassword
	}
}

// ClearCache drops the cached secrets so the next load reads Vault again
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

func (c *Client) dataPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
