// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package client

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/postgresql/armpostgresqlflexibleservers/v4"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/config"
)

// Client bundles the typed Azure SDK clients the harness uses. Each resource
// kind gets its own resource-specific client for type-safe CRUD, following
// Azure SDK conventions; all of them share the credential and the retry
// options from the config.
type Client struct {
	Config                  *config.Config
	ResourceGroupsClient    *armresources.ResourceGroupsClient
	PublicIPAddressesClient *armnetwork.PublicIPAddressesClient
	LoadBalancersClient     *armnetwork.LoadBalancersClient
	ServersClient           *armpostgresqlflexibleservers.ServersClient
}

// NewClient creates the client bundle from the config's credential chain.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	cred, err := cfg.ToAzureCredential(ctx)
	if err != nil {
		return nil, err
	}

	clientOptions := cfg.ClientOptions()

	rgClient, err := armresources.NewResourceGroupsClient(cfg.SubscriptionID, cred, clientOptions)
	if err != nil {
		return nil, err
	}

	pipClient, err := armnetwork.NewPublicIPAddressesClient(cfg.SubscriptionID, cred, clientOptions)
	if err != nil {
		return nil, err
	}

	lbClient, err := armnetwork.NewLoadBalancersClient(cfg.SubscriptionID, cred, clientOptions)
	if err != nil {
		return nil, err
	}

	serversClient, err := armpostgresqlflexibleservers.NewServersClient(cfg.SubscriptionID, cred, clientOptions)
	if err != nil {
		return nil, err
	}

	return &Client{
		Config:                  cfg,
		ResourceGroupsClient:    rgClient,
		PublicIPAddressesClient: pipClient,
		LoadBalancersClient:     lbClient,
		ServersClient:           serversClient,
	}, nil
}
