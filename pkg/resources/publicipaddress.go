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

const KindPublicAddress = "Azure::Network::PublicIPAddress"

func init() {
	Register(KindPublicAddress, func(c *client.Client, cfg *config.Config, name string, props json.RawMessage) (Lifecycler, error) {
		return NewPublicAddress(c, cfg, name, props)
	})
}

// PublicAddress is the lifecycle implementation for a public IP address.
type PublicAddress struct {
	Client *client.Client
	Config *config.Config

	name  string
	props json.RawMessage
}

func NewPublicAddress(c *client.Client, cfg *config.Config, name string, props json.RawMessage) (*PublicAddress, error) {
	if name == "" {
		return nil, azerr.New(azerr.CodeConfiguration, KindPublicAddress, "configure", "public IP name is required")
	}
	return &PublicAddress{Client: c, Config: cfg, name: name, props: props}, nil
}

func (p *PublicAddress) Kind() string { return KindPublicAddress }
func (p *PublicAddress) Name() string { return p.name }

// ID returns the ARM resource ID the address will have, for binding it into
// a load balancer frontend before it exists.
func (p *PublicAddress) ID() string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Network/publicIPAddresses/%s",
		p.Config.SubscriptionID, p.Config.ResourceGroup, p.name)
}

func serializePublicAddressFacts(pip *armnetwork.PublicIPAddress) facts.Record {
	rec := make(facts.Record)

	if pip.ID != nil {
		rec["id"] = *pip.ID
	}
	if pip.Name != nil {
		rec["name"] = *pip.Name
	}
	if pip.Type != nil {
		rec["type"] = *pip.Type
	}
	if pip.Location != nil {
		rec["location"] = normalizeLocation(*pip.Location)
	}

	if pip.SKU != nil {
		sku := make(map[string]any)
		if pip.SKU.Name != nil {
			sku["name"] = string(*pip.SKU.Name)
		}
		if pip.SKU.Tier != nil {
			sku["tier"] = string(*pip.SKU.Tier)
		}
		rec["sku"] = sku
	}

	if pip.Properties != nil {
		if pip.Properties.ProvisioningState != nil {
			rec["provisioningState"] = string(*pip.Properties.ProvisioningState)
		}
		if pip.Properties.PublicIPAllocationMethod != nil {
			rec["publicIPAllocationMethod"] = string(*pip.Properties.PublicIPAllocationMethod)
		}
		if pip.Properties.PublicIPAddressVersion != nil {
			rec["publicIPAddressVersion"] = string(*pip.Properties.PublicIPAddressVersion)
		}
		if pip.Properties.IPAddress != nil {
			rec["ipAddress"] = *pip.Properties.IPAddress
		}
		if pip.Properties.IdleTimeoutInMinutes != nil {
			rec["idleTimeoutInMinutes"] = *pip.Properties.IdleTimeoutInMinutes
		}
		if pip.Properties.DNSSettings != nil && pip.Properties.DNSSettings.Fqdn != nil {
			rec["fqdn"] = *pip.Properties.DNSSettings.Fqdn
		}
	}

	if tags := tagsToMap(pip.Tags); tags != nil {
		rec["tags"] = tags
	}

	return rec
}

// buildPublicAddressParams parses the desired-state payload into
// create-or-update parameters.
func (p *PublicAddress) buildPublicAddressParams() (*armnetwork.PublicIPAddress, error) {
	var props map[string]any
	if len(p.props) > 0 {
		if err := json.Unmarshal(p.props, &props); err != nil {
			return nil, azerr.New(azerr.CodeConfiguration, p.name, "provision", fmt.Sprintf("failed to parse desired state: %v", err))
		}
	}

	location, _ := props["location"].(string)
	if location == "" {
		location = p.Config.Location
	}

	params := &armnetwork.PublicIPAddress{
		Location:   to.Ptr(location),
		Properties: &armnetwork.PublicIPAddressPropertiesFormat{},
	}

	if skuMap, ok := props["sku"].(map[string]any); ok {
		sku := &armnetwork.PublicIPAddressSKU{}
		if name, ok := skuMap["name"].(string); ok {
			skuName := armnetwork.PublicIPAddressSKUName(name)
			sku.Name = &skuName
		}
		if tier, ok := skuMap["tier"].(string); ok {
			skuTier := armnetwork.PublicIPAddressSKUTier(tier)
			sku.Tier = &skuTier
		}
		params.SKU = sku
	}

	method := armnetwork.IPAllocationMethodStatic
	if m, ok := props["publicIPAllocationMethod"].(string); ok && m != "" {
		method = armnetwork.IPAllocationMethod(m)
	}
	params.Properties.PublicIPAllocationMethod = &method

	if v, ok := props["publicIPAddressVersion"].(string); ok && v != "" {
		version := armnetwork.IPVersion(v)
		params.Properties.PublicIPAddressVersion = &version
	}

	if timeout, ok := props["idleTimeoutInMinutes"].(float64); ok {
		params.Properties.IdleTimeoutInMinutes = to.Ptr(int32(timeout))
	}

	if dnsMap, ok := props["dnsSettings"].(map[string]any); ok {
		dns := &armnetwork.PublicIPAddressDNSSettings{}
		if label, ok := dnsMap["domainNameLabel"].(string); ok {
			dns.DomainNameLabel = to.Ptr(label)
		}
		params.Properties.DNSSettings = dns
	}

	if runID, ok := props["runId"].(string); ok && runID != "" {
		params.Tags = runTags(runID)
	}

	return params, nil
}

// EnsurePresent creates or updates the address. CreateOrUpdate is idempotent
// on the ARM side, so a second call with the same payload converges without
// side effects.
func (p *PublicAddress) EnsurePresent(ctx context.Context) (facts.Record, error) {
	params, err := p.buildPublicAddressParams()
	if err != nil {
		return nil, err
	}

	poller, err := p.Client.PublicIPAddressesClient.BeginCreateOrUpdate(ctx, p.Config.ResourceGroup, p.name, *params, nil)
	if err != nil {
		return nil, azerr.Wrap(err, p.name, "provision")
	}

	result, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, azerr.Wrap(err, p.name, "provision")
	}

	return serializePublicAddressFacts(&result.PublicIPAddress), nil
}

func (p *PublicAddress) Facts(ctx context.Context) (*facts.Result, error) {
	result := facts.NewResult()

	resp, err := p.Client.PublicIPAddressesClient.Get(ctx, p.Config.ResourceGroup, p.name, nil)
	if err != nil {
		if azerr.IsNotFound(err) {
			return result, nil
		}
		return nil, azerr.Wrap(err, p.name, "observe")
	}

	result.Add(p.name, serializePublicAddressFacts(&resp.PublicIPAddress))
	return result, nil
}

func (p *PublicAddress) GroupFacts(ctx context.Context) (*facts.Result, error) {
	result := facts.NewResult()

	pager := p.Client.PublicIPAddressesClient.NewListPager(p.Config.ResourceGroup, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, azerr.Wrap(err, p.Config.ResourceGroup, "observe")
		}
		for _, pip := range page.Value {
			if pip.Name == nil {
				continue
			}
			result.Add(*pip.Name, serializePublicAddressFacts(pip))
		}
	}

	return result, nil
}

func (p *PublicAddress) EnsureAbsent(ctx context.Context) error {
	poller, err := p.Client.PublicIPAddressesClient.BeginDelete(ctx, p.Config.ResourceGroup, p.name, nil)
	if err != nil {
		if azerr.IsNotFound(err) {
			return nil
		}
		return azerr.Wrap(err, p.name, "decommission")
	}

	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		if azerr.IsNotFound(err) {
			return nil
		}
		return azerr.Wrap(err, p.name, "decommission")
	}

	return nil
}
