// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package harness

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/client"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/config"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/naming"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/resources"
)

// databaseServerFields are the descriptive fields a provisioned server's
// facts record must populate: identity, location, SKU, versioning, visibility
// state and connection endpoint.
var databaseServerFields = []string{
	"id", "name", "type", "location", "sku",
	"version", "userVisibleState", "fullyQualifiedDomainName",
}

var publicAddressFields = []string{
	"id", "name", "type", "location", "sku",
	"provisioningState", "ipAddress",
}

var loadBalancerFields = []string{
	"id", "name", "type", "location", "sku",
	"provisioningState", "frontendIPConfigurations",
}

// DatabaseServerFlow builds the managed-database lifecycle flow: one
// PostgreSQL flexible server named from the run suffix. The admin password is
// generated per run; the server never outlives the run, so nothing needs to
// remember it.
func DatabaseServerFlow(c *client.Client, cfg *config.Config, run *naming.Run) (*Flow, error) {
	name := run.ResourceName("db")

	props, err := json.Marshal(map[string]any{
		"location":                   cfg.Location,
		"version":                    "16",
		"administratorLogin":         "lcmadmin",
		"administratorLoginPassword": fmt.Sprintf("Lcm-%s", uuid.NewString()),
		"sku": map[string]any{
			"name": "Standard_D2s_v3",
			"tier": "GeneralPurpose",
		},
		"storage": map[string]any{
			"storageSizeGB": float64(128),
		},
		"runId": run.ID,
	})
	if err != nil {
		return nil, err
	}

	server, err := resources.NewDatabaseServer(c, cfg, name, props)
	if err != nil {
		return nil, err
	}

	return &Flow{
		Name: "database-server",
		Steps: []Step{
			{Resource: server, WantFields: databaseServerFields},
		},
	}, nil
}

// LoadBalancerFlow builds the networking lifecycle flow: a public IP address
// and a load balancer whose frontend is bound to it. The address is
// provisioned first and removed last, since the balancer references it.
func LoadBalancerFlow(c *client.Client, cfg *config.Config, run *naming.Run) (*Flow, error) {
	pipName := run.ResourceName("pip")
	lbName := run.ResourceName("lb")

	pipProps, err := json.Marshal(map[string]any{
		"location": cfg.Location,
		"sku": map[string]any{
			"name": "Standard",
		},
		"publicIPAllocationMethod": "Static",
		"runId":                    run.ID,
	})
	if err != nil {
		return nil, err
	}

	address, err := resources.NewPublicAddress(c, cfg, pipName, pipProps)
	if err != nil {
		return nil, err
	}

	lbProps, err := json.Marshal(map[string]any{
		"location": cfg.Location,
		"sku": map[string]any{
			"name": "Standard",
		},
		"publicIPAddressId":      address.ID(),
		"backendAddressPoolName": "backendaddrpool0",
		"runId":                  run.ID,
	})
	if err != nil {
		return nil, err
	}

	balancer, err := resources.NewLoadBalancer(c, cfg, lbName, lbProps)
	if err != nil {
		return nil, err
	}

	return &Flow{
		Name: "load-balancer",
		Steps: []Step{
			{Resource: address, WantFields: publicAddressFields},
			{Resource: balancer, WantFields: loadBalancerFields},
		},
	}, nil
}
