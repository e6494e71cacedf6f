package stripe

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultCurrency = "aud"
	// maxDescriptorSuffix is the longest statement descriptor suffix Stripe accepts.
	maxDescriptorSuffix = 22
)

// Config holds the Stripe account settings.
type Config struct {
	APIKey              string `mapstructure:"stripeApiSecret" yaml:"api_key" json:"api_key"`
	WebhookSecret       string `mapstructure:"stripeWebhookSecret" yaml:"webhook_secret" json:"webhook_secret"`
	Currency            string `mapstructure:"stripeCurrency" yaml:"currency" json:"currency"`
	StatementDescriptor string `mapstructure:"stripeStatementDescriptor" yaml:"statement_descriptor" json:"statement_descriptor"`
}

// NewConfig reads the Stripe configuration from viper. The API key and the
// webhook secret are required.
func NewConfig(v *viper.Viper) (*Config, error) {
	config := &Config{
		APIKey:              v.GetString("stripeApiSecret"),
		WebhookSecret:       v.GetString("stripeWebhookSecret"),
		Currency:            v.GetString("stripeCurrency"),
		StatementDescriptor: v.GetString("stripeStatementDescriptor"),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the required fields and fills the defaults.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("stripe api secret is required")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("stripe webhook secret is required")
	}
	if c.Currency == "" {
		c.Currency = defaultCurrency
	}
	c.Currency = strings.ToLower(c.Currency)
	if len(c.StatementDescriptor) > maxDescriptorSuffix {
		c.StatementDescriptor = c.StatementDescriptor[:maxDescriptorSuffix]
	}
	return nil
}
