// Package vault retrieves the exchange API credential from HashiCorp Vault.
// When Vault is disabled the credential comes from configuration instead, so
// development setups need no Vault at all.
package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"
)

// Credentials holds the exchange API credential stored in Vault
type Credentials struct {
	APIKey string `json:"api_key"`
}

// Config holds Vault connection settings
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	SecretPath string
	TLSEnabled bool
	CACert     string
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config Config
}

// NewClient creates a Vault client. A disabled config yields a client whose
// reads report not-found rather than an error.
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// GetCredentials reads the exchange credential from the configured path
func (c *Client) GetCredentials(ctx context.Context) (*Credentials, error) {
	if !c.config.Enabled {
		return nil, fmt.Errorf("vault is disabled")
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.config.SecretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no credentials found at %s", c.config.SecretPath)
	}

	// KV v2 nests the payload under "data"
	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		data = nested
	}

	apiKey, _ := data["api_key"].(string)
	if apiKey == "" {
		return nil, fmt.Errorf("credential at %s has no api_key field", c.config.SecretPath)
	}

	return &Credentials{APIKey: apiKey}, nil
}
