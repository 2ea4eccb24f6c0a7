// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package config

import (
	"context"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/spf13/viper"

	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/azerr"
)

// Config holds everything a harness run needs to talk to Azure.
type Config struct {
	SubscriptionID string
	ResourceGroup  string
	Location       string

	// RequestTimeout bounds a single synchronous call (reads, list pages).
	RequestTimeout time.Duration
	// ProvisionTimeout bounds a full long-running operation, poller included.
	// Database servers routinely take several minutes to come up.
	ProvisionTimeout time.Duration

	// MaxRetries is handed to the azcore retry policy. Throttled and 5xx
	// responses are retried with exponential backoff before an error is ever
	// seen by the harness; definitive errors (auth, quota, 4xx) are not.
	MaxRetries int32
}

const (
	defaultLocation         = "eastus"
	defaultRequestTimeout   = 2 * time.Minute
	defaultProvisionTimeout = 30 * time.Minute
	defaultMaxRetries       = 3
)

// New returns a config with defaults applied.
func New(subscriptionID, resourceGroup string) *Config {
	cfg := &Config{
		SubscriptionID: subscriptionID,
		ResourceGroup:  resourceGroup,
	}
	cfg.applyDefaults()
	return cfg
}

// FromEnv builds a config from the standard Azure environment variables.
func FromEnv() *Config {
	cfg := &Config{
		SubscriptionID: os.Getenv("AZURE_SUBSCRIPTION_ID"),
		ResourceGroup:  os.Getenv("AZURE_RESOURCE_GROUP"),
		Location:       os.Getenv("AZURE_LOCATION"),
	}
	cfg.applyDefaults()
	return cfg
}

// FromViper builds a config from a viper instance already bound to flags, a
// config file and the environment. Unset keys fall back to the Azure
// environment variables and then to defaults.
func FromViper(v *viper.Viper) *Config {
	cfg := FromEnv()
	if s := v.GetString("subscription_id"); s != "" {
		cfg.SubscriptionID = s
	}
	if s := v.GetString("resource_group"); s != "" {
		cfg.ResourceGroup = s
	}
	if s := v.GetString("location"); s != "" {
		cfg.Location = s
	}
	if d := v.GetDuration("request_timeout"); d > 0 {
		cfg.RequestTimeout = d
	}
	if d := v.GetDuration("provision_timeout"); d > 0 {
		cfg.ProvisionTimeout = d
	}
	if n := v.GetInt32("max_retries"); n > 0 {
		cfg.MaxRetries = n
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Location == "" {
		c.Location = defaultLocation
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.ProvisionTimeout <= 0 {
		c.ProvisionTimeout = defaultProvisionTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
}

// Validate checks the config before any provider call is made.
func (c *Config) Validate() error {
	if c.SubscriptionID == "" {
		return azerr.New(azerr.CodeConfiguration, "config", "validate", "subscription ID is required (set AZURE_SUBSCRIPTION_ID)")
	}
	if c.ResourceGroup == "" {
		return azerr.New(azerr.CodeConfiguration, "config", "validate", "resource group is required (set AZURE_RESOURCE_GROUP)")
	}
	return nil
}

// ToAzureCredential creates Azure credentials using the default credential
// chain: environment variables, managed identity, Azure CLI, and so on.
func (c *Config) ToAzureCredential(ctx context.Context) (azcore.TokenCredential, error) {
	return azidentity.NewDefaultAzureCredential(nil)
}

// ClientOptions returns the ARM client options shared by all typed clients,
// carrying the retry policy.
func (c *Config) ClientOptions() *arm.ClientOptions {
	return &arm.ClientOptions{
		ClientOptions: policy.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries: c.MaxRetries,
				RetryDelay: 2 * time.Second,
			},
		},
	}
}
