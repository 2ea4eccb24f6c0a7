// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/azerr"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/client"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/config"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/facts"
)

const KindResourceGroup = "Azure::Resources::ResourceGroup"

func init() {
	Register(KindResourceGroup, func(c *client.Client, cfg *config.Config, name string, props json.RawMessage) (Lifecycler, error) {
		return NewResourceGroup(c, cfg, name, props)
	})
}

// ResourceGroup is the lifecycle implementation for the namespace every run
// operates in. Unlike the other kinds its operations are synchronous, except
// delete.
type ResourceGroup struct {
	Client *client.Client
	Config *config.Config

	name  string
	props json.RawMessage
}

func NewResourceGroup(c *client.Client, cfg *config.Config, name string, props json.RawMessage) (*ResourceGroup, error) {
	if name == "" {
		return nil, azerr.New(azerr.CodeConfiguration, KindResourceGroup, "configure", "resource group name is required")
	}
	return &ResourceGroup{Client: c, Config: cfg, name: name, props: props}, nil
}

func (rg *ResourceGroup) Kind() string { return KindResourceGroup }
func (rg *ResourceGroup) Name() string { return rg.name }

func serializeResourceGroupFacts(group *armresources.ResourceGroup) facts.Record {
	rec := make(facts.Record)

	if group.ID != nil {
		rec["id"] = *group.ID
	}
	if group.Name != nil {
		rec["name"] = *group.Name
	}
	if group.Type != nil {
		rec["type"] = *group.Type
	}
	if group.Location != nil {
		rec["location"] = normalizeLocation(*group.Location)
	}
	if group.Properties != nil && group.Properties.ProvisioningState != nil {
		rec["provisioningState"] = *group.Properties.ProvisioningState
	}
	if tags := tagsToMap(group.Tags); tags != nil {
		rec["tags"] = tags
	}

	return rec
}

func (rg *ResourceGroup) buildResourceGroupParams() (*armresources.ResourceGroup, error) {
	var props map[string]any
	if len(rg.props) > 0 {
		if err := json.Unmarshal(rg.props, &props); err != nil {
			return nil, azerr.New(azerr.CodeConfiguration, rg.name, "provision", fmt.Sprintf("failed to parse desired state: %v", err))
		}
	}

	location, _ := props["location"].(string)
	if location == "" {
		location = rg.Config.Location
	}

	params := &armresources.ResourceGroup{
		Location: to.Ptr(location),
	}

	if runID, ok := props["runId"].(string); ok && runID != "" {
		params.Tags = runTags(runID)
	}

	return params, nil
}

func (rg *ResourceGroup) EnsurePresent(ctx context.Context) (facts.Record, error) {
	params, err := rg.buildResourceGroupParams()
	if err != nil {
		return nil, err
	}

	result, err := rg.Client.ResourceGroupsClient.CreateOrUpdate(ctx, rg.name, *params, nil)
	if err != nil {
		return nil, azerr.Wrap(err, rg.name, "provision")
	}

	return serializeResourceGroupFacts(&result.ResourceGroup), nil
}

func (rg *ResourceGroup) Facts(ctx context.Context) (*facts.Result, error) {
	result := facts.NewResult()

	resp, err := rg.Client.ResourceGroupsClient.Get(ctx, rg.name, nil)
	if err != nil {
		if azerr.IsNotFound(err) {
			return result, nil
		}
		return nil, azerr.Wrap(err, rg.name, "observe")
	}

	result.Add(rg.name, serializeResourceGroupFacts(&resp.ResourceGroup))
	return result, nil
}

// GroupFacts lists every resource group in the subscription; the group scope
// for this kind is the subscription itself.
func (rg *ResourceGroup) GroupFacts(ctx context.Context) (*facts.Result, error) {
	result := facts.NewResult()

	pager := rg.Client.ResourceGroupsClient.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, azerr.Wrap(err, rg.Config.SubscriptionID, "observe")
		}
		for _, group := range page.Value {
			if group.Name == nil {
				continue
			}
			result.Add(*group.Name, serializeResourceGroupFacts(group))
		}
	}

	return result, nil
}

func (rg *ResourceGroup) EnsureAbsent(ctx context.Context) error {
	poller, err := rg.Client.ResourceGroupsClient.BeginDelete(ctx, rg.name, nil)
	if err != nil {
		if azerr.IsNotFound(err) {
			return nil
		}
		return azerr.Wrap(err, rg.name, "decommission")
	}

	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		if azerr.IsNotFound(err) {
			return nil
		}
		return azerr.Wrap(err, rg.name, "decommission")
	}

	return nil
}
