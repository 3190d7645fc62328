package llm

import (
	"fmt"
)

// Config holds the transport configuration shared by every provider. Model ids
// are chosen per request.
type Config struct {
	Provider  string `json:"provider"`
	APIKey    string `json:"-"`
	APIURL    string `json:"api_url"`
	MaxTokens int    `json:"max_tokens"`
	Timeout   int    `json:"timeout"`
	SiteURL   string `json:"site_url"`
	AppName   string `json:"app_name"`
	// DefaultModel is used by providers that bind a model at construction.
	DefaultModel string `json:"default_model"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Provider != ProviderOllama && c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be greater than 0")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	return nil
}

// GetHeaders returns the headers for an OpenAI-compatible request
func (c *Config) GetHeaders() map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + c.APIKey,
		"Content-Type":  "application/json",
	}

	if c.SiteURL != "" {
		headers["HTTP-Referer"] = c.SiteURL
	}
	if c.AppName != "" {
		headers["X-Title"] = c.AppName
	}

	return headers
}
