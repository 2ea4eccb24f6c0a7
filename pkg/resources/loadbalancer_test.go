// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resources

import (
	"encoding/json"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/azerr"
)

const testPipID = "/subscriptions/sub-1/resourceGroups/rg-1/providers/Microsoft.Network/publicIPAddresses/pip1"

func newTestLoadBalancer(t *testing.T, props string) *LoadBalancer {
	t.Helper()
	lb, err := NewLoadBalancer(nil, testConfig(), "lb1", json.RawMessage(props))
	require.NoError(t, err)
	return lb
}

func TestBuildLoadBalancerParams(t *testing.T) {
	lb := newTestLoadBalancer(t, `{
		"location": "westus2",
		"sku": {"name": "Standard"},
		"publicIPAddressId": "`+testPipID+`",
		"frontendIPConfigurationName": "frontend0",
		"backendAddressPoolName": "backend0",
		"runId": "2b7VqGz"
	}`)

	params, err := lb.buildLoadBalancerParams()
	require.NoError(t, err)

	assert.Equal(t, "westus2", *params.Location)
	assert.Equal(t, armnetwork.LoadBalancerSKUNameStandard, *params.SKU.Name)

	require.Len(t, params.Properties.FrontendIPConfigurations, 1)
	frontend := params.Properties.FrontendIPConfigurations[0]
	assert.Equal(t, "frontend0", *frontend.Name)
	assert.Equal(t, testPipID, *frontend.Properties.PublicIPAddress.ID)

	require.Len(t, params.Properties.BackendAddressPools, 1)
	assert.Equal(t, "backend0", *params.Properties.BackendAddressPools[0].Name)

	assert.Equal(t, "2b7VqGz", *params.Tags["lifecycle-harness-run"])
}

func TestBuildLoadBalancerParams_Defaults(t *testing.T) {
	lb := newTestLoadBalancer(t, `{"publicIPAddressId": "`+testPipID+`"}`)

	params, err := lb.buildLoadBalancerParams()
	require.NoError(t, err)

	assert.Equal(t, testConfig().Location, *params.Location)
	assert.Equal(t, "frontendipconf0", *params.Properties.FrontendIPConfigurations[0].Name)
	assert.Empty(t, params.Properties.BackendAddressPools)
}

func TestBuildLoadBalancerParams_RequiresPublicIP(t *testing.T) {
	lb := newTestLoadBalancer(t, `{"location": "eastus"}`)

	_, err := lb.buildLoadBalancerParams()
	require.Error(t, err)
	assert.Equal(t, azerr.CodeConfiguration, azerr.CodeOf(err))
}

func TestSerializeLoadBalancerFacts(t *testing.T) {
	skuName := armnetwork.LoadBalancerSKUNameStandard
	state := armnetwork.ProvisioningStateSucceeded

	balancer := &armnetwork.LoadBalancer{
		ID:       to.Ptr("/subscriptions/sub-1/resourceGroups/rg-1/providers/Microsoft.Network/loadBalancers/lb1"),
		Name:     to.Ptr("lb1"),
		Type:     to.Ptr("Microsoft.Network/loadBalancers"),
		Location: to.Ptr("East US"),
		SKU:      &armnetwork.LoadBalancerSKU{Name: &skuName},
		Properties: &armnetwork.LoadBalancerPropertiesFormat{
			ProvisioningState: &state,
			FrontendIPConfigurations: []*armnetwork.FrontendIPConfiguration{
				{
					Name: to.Ptr("frontend0"),
					ID:   to.Ptr("/subscriptions/sub-1/.../frontendIPConfigurations/frontend0"),
					Properties: &armnetwork.FrontendIPConfigurationPropertiesFormat{
						PublicIPAddress: &armnetwork.PublicIPAddress{ID: to.Ptr(testPipID)},
					},
				},
			},
			BackendAddressPools: []*armnetwork.BackendAddressPool{
				{Name: to.Ptr("backend0")},
			},
		},
	}

	rec := serializeLoadBalancerFacts(balancer)

	assert.Equal(t, "lb1", rec["name"])
	assert.Equal(t, "eastus", rec["location"])
	assert.Equal(t, "Succeeded", rec["provisioningState"])

	frontends, ok := rec["frontendIPConfigurations"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, frontends, 1)
	assert.Equal(t, "frontend0", frontends[0]["name"])
	assert.Equal(t, testPipID, frontends[0]["publicIPAddressId"])

	pools, ok := rec["backendAddressPools"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, pools, 1)
	assert.Equal(t, "backend0", pools[0]["name"])
}

func TestLifecyclerRegistry(t *testing.T) {
	kinds := Kinds()
	assert.Contains(t, kinds, KindDatabaseServer)
	assert.Contains(t, kinds, KindPublicAddress)
	assert.Contains(t, kinds, KindLoadBalancer)
	assert.Contains(t, kinds, KindResourceGroup)
	assert.IsIncreasing(t, kinds)

	lc, err := New(KindLoadBalancer, nil, testConfig(), "lb1", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NotNil(t, lc)
	assert.Equal(t, KindLoadBalancer, lc.Kind())
	assert.Equal(t, "lb1", lc.Name())
}

func TestLifecyclerRegistry_UnknownKind(t *testing.T) {
	unknown, err := New("Azure::Nope", nil, testConfig(), "x", nil)
	require.Error(t, err)
	assert.Nil(t, unknown)
	assert.Equal(t, azerr.CodeConfiguration, azerr.CodeOf(err))
	assert.Contains(t, err.Error(), "unknown resource kind")
}
