// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"

	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/azerr"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/client"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/config"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/facts"
)

const KindLoadBalancer = "Azure::Network::LoadBalancer"

func init() {
	Register(KindLoadBalancer, func(c *client.Client, cfg *config.Config, name string, props json.RawMessage) (Lifecycler, error) {
		return NewLoadBalancer(c, cfg, name, props)
	})
}

// LoadBalancer is the lifecycle implementation for a load balancer whose
// frontend is bound to a public IP address.
type LoadBalancer struct {
	Client *client.Client
	Config *config.Config

	name  string
	props json.RawMessage
}

func NewLoadBalancer(c *client.Client, cfg *config.Config, name string, props json.RawMessage) (*LoadBalancer, error) {
	if name == "" {
		return nil, azerr.New(azerr.CodeConfiguration, KindLoadBalancer, "configure", "load balancer name is required")
	}
	return &LoadBalancer{Client: c, Config: cfg, name: name, props: props}, nil
}

func (lb *LoadBalancer) Kind() string { return KindLoadBalancer }
func (lb *LoadBalancer) Name() string { return lb.name }

func serializeLoadBalancerFacts(balancer *armnetwork.LoadBalancer) facts.Record {
	rec := make(facts.Record)

	if balancer.ID != nil {
		rec["id"] = *balancer.ID
	}
	if balancer.Name != nil {
		rec["name"] = *balancer.Name
	}
	if balancer.Type != nil {
		rec["type"] = *balancer.Type
	}
	if balancer.Location != nil {
		rec["location"] = normalizeLocation(*balancer.Location)
	}

	if balancer.SKU != nil {
		sku := make(map[string]any)
		if balancer.SKU.Name != nil {
			sku["name"] = string(*balancer.SKU.Name)
		}
		if balancer.SKU.Tier != nil {
			sku["tier"] = string(*balancer.SKU.Tier)
		}
		rec["sku"] = sku
	}

	if balancer.Properties != nil {
		if balancer.Properties.ProvisioningState != nil {
			rec["provisioningState"] = string(*balancer.Properties.ProvisioningState)
		}

		if len(balancer.Properties.FrontendIPConfigurations) > 0 {
			frontends := make([]map[string]any, 0, len(balancer.Properties.FrontendIPConfigurations))
			for _, fe := range balancer.Properties.FrontendIPConfigurations {
				frontend := make(map[string]any)
				if fe.Name != nil {
					frontend["name"] = *fe.Name
				}
				if fe.ID != nil {
					frontend["id"] = *fe.ID
				}
				if fe.Properties != nil && fe.Properties.PublicIPAddress != nil && fe.Properties.PublicIPAddress.ID != nil {
					frontend["publicIPAddressId"] = *fe.Properties.PublicIPAddress.ID
				}
				frontends = append(frontends, frontend)
			}
			rec["frontendIPConfigurations"] = frontends
		}

		if len(balancer.Properties.BackendAddressPools) > 0 {
			pools := make([]map[string]any, 0, len(balancer.Properties.BackendAddressPools))
			for _, pool := range balancer.Properties.BackendAddressPools {
				entry := make(map[string]any)
				if pool.Name != nil {
					entry["name"] = *pool.Name
				}
				if pool.ID != nil {
					entry["id"] = *pool.ID
				}
				pools = append(pools, entry)
			}
			rec["backendAddressPools"] = pools
		}
	}

	if tags := tagsToMap(balancer.Tags); tags != nil {
		rec["tags"] = tags
	}

	return rec
}

// buildLoadBalancerParams parses the desired-state payload. A frontend bound
// to a public IP is mandatory; a single backend pool is created when named.
func (lb *LoadBalancer) buildLoadBalancerParams() (*armnetwork.LoadBalancer, error) {
	var props map[string]any
	if err := json.Unmarshal(lb.props, &props); err != nil {
		return nil, azerr.New(azerr.CodeConfiguration, lb.name, "provision", fmt.Sprintf("failed to parse desired state: %v", err))
	}

	location, _ := props["location"].(string)
	if location == "" {
		location = lb.Config.Location
	}

	pipID, _ := props["publicIPAddressId"].(string)
	if pipID == "" {
		return nil, azerr.New(azerr.CodeConfiguration, lb.name, "provision", "publicIPAddressId is required")
	}

	frontendName, _ := props["frontendIPConfigurationName"].(string)
	if frontendName == "" {
		frontendName = "frontendipconf0"
	}

	params := &armnetwork.LoadBalancer{
		Location: to.Ptr(location),
		Properties: &armnetwork.LoadBalancerPropertiesFormat{
			FrontendIPConfigurations: []*armnetwork.FrontendIPConfiguration{
				{
					Name: to.Ptr(frontendName),
					Properties: &armnetwork.FrontendIPConfigurationPropertiesFormat{
						PublicIPAddress: &armnetwork.PublicIPAddress{
							ID: to.Ptr(pipID),
						},
					},
				},
			},
		},
	}

	if skuMap, ok := props["sku"].(map[string]any); ok {
		sku := &armnetwork.LoadBalancerSKU{}
		if name, ok := skuMap["name"].(string); ok {
			skuName := armnetwork.LoadBalancerSKUName(name)
			sku.Name = &skuName
		}
		if tier, ok := skuMap["tier"].(string); ok {
			skuTier := armnetwork.LoadBalancerSKUTier(tier)
			sku.Tier = &skuTier
		}
		params.SKU = sku
	}

	if poolName, ok := props["backendAddressPoolName"].(string); ok && poolName != "" {
		params.Properties.BackendAddressPools = []*armnetwork.BackendAddressPool{
			{Name: to.Ptr(poolName)},
		}
	}

	if runID, ok := props["runId"].(string); ok && runID != "" {
		params.Tags = runTags(runID)
	}

	return params, nil
}

// EnsurePresent creates or updates the load balancer. ARM CreateOrUpdate
// converges, so repeated calls with the same payload are no-ops.
func (lb *LoadBalancer) EnsurePresent(ctx context.Context) (facts.Record, error) {
	params, err := lb.buildLoadBalancerParams()
	if err != nil {
		return nil, err
	}

	poller, err := lb.Client.LoadBalancersClient.BeginCreateOrUpdate(ctx, lb.Config.ResourceGroup, lb.name, *params, nil)
	if err != nil {
		return nil, azerr.Wrap(err, lb.name, "provision")
	}

	result, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, azerr.Wrap(err, lb.name, "provision")
	}

	return serializeLoadBalancerFacts(&result.LoadBalancer), nil
}

func (lb *LoadBalancer) Facts(ctx context.Context) (*facts.Result, error) {
	result := facts.NewResult()

	resp, err := lb.Client.LoadBalancersClient.Get(ctx, lb.Config.ResourceGroup, lb.name, nil)
	if err != nil {
		if azerr.IsNotFound(err) {
			return result, nil
		}
		return nil, azerr.Wrap(err, lb.name, "observe")
	}

	result.Add(lb.name, serializeLoadBalancerFacts(&resp.LoadBalancer))
	return result, nil
}

func (lb *LoadBalancer) GroupFacts(ctx context.Context) (*facts.Result, error) {
	result := facts.NewResult()

	pager := lb.Client.LoadBalancersClient.NewListPager(lb.Config.ResourceGroup, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, azerr.Wrap(err, lb.Config.ResourceGroup, "observe")
		}
		for _, balancer := range page.Value {
			if balancer.Name == nil {
				continue
			}
			result.Add(*balancer.Name, serializeLoadBalancerFacts(balancer))
		}
	}

	return result, nil
}

func (lb *LoadBalancer) EnsureAbsent(ctx context.Context) error {
	poller, err := lb.Client.LoadBalancersClient.BeginDelete(ctx, lb.Config.ResourceGroup, lb.name, nil)
	if err != nil {
		if azerr.IsNotFound(err) {
			return nil
		}
		return azerr.Wrap(err, lb.name, "decommission")
	}

	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		if azerr.IsNotFound(err) {
			return nil
		}
		return azerr.Wrap(err, lb.name, "decommission")
	}

	return nil
}
