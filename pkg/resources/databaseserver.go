// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/postgresql/armpostgresqlflexibleservers/v4"

	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/azerr"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/client"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/config"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/facts"
)

const KindDatabaseServer = "Azure::DBforPostgreSQL::FlexibleServer"

func init() {
	Register(KindDatabaseServer, func(c *client.Client, cfg *config.Config, name string, props json.RawMessage) (Lifecycler, error) {
		return NewDatabaseServer(c, cfg, name, props)
	})
}

// DatabaseServer is the lifecycle implementation for a managed PostgreSQL
// flexible server.
type DatabaseServer struct {
	Client *client.Client
	Config *config.Config

	name  string
	props json.RawMessage
}

// NewDatabaseServer builds the lifecycler. The desired-state payload is kept
// as raw JSON and parsed when provisioning; reads and deletes need only the
// name.
func NewDatabaseServer(c *client.Client, cfg *config.Config, name string, props json.RawMessage) (*DatabaseServer, error) {
	if name == "" {
		return nil, azerr.New(azerr.CodeConfiguration, KindDatabaseServer, "configure", "server name is required")
	}
	return &DatabaseServer{Client: c, Config: cfg, name: name, props: props}, nil
}

func (s *DatabaseServer) Kind() string { return KindDatabaseServer }
func (s *DatabaseServer) Name() string { return s.name }

// serializeServerFacts converts an Azure server response into a facts record.
func serializeServerFacts(server *armpostgresqlflexibleservers.Server) facts.Record {
	rec := make(facts.Record)

	if server.ID != nil {
		rec["id"] = *server.ID
	}
	if server.Name != nil {
		rec["name"] = *server.Name
	}
	if server.Type != nil {
		rec["type"] = *server.Type
	}
	if server.Location != nil {
		rec["location"] = normalizeLocation(*server.Location)
	}

	if server.SKU != nil {
		sku := make(map[string]any)
		if server.SKU.Name != nil {
			sku["name"] = *server.SKU.Name
		}
		if server.SKU.Tier != nil {
			sku["tier"] = string(*server.SKU.Tier)
		}
		rec["sku"] = sku
	}

	if server.Properties != nil {
		if server.Properties.Version != nil {
			rec["version"] = string(*server.Properties.Version)
		}
		if server.Properties.AdministratorLogin != nil {
			rec["administratorLogin"] = *server.Properties.AdministratorLogin
		}
		// The provider-reported visibility of the server (Ready, Stopped, ...).
		if server.Properties.State != nil {
			rec["userVisibleState"] = string(*server.Properties.State)
		}
		// Connection endpoint.
		if server.Properties.FullyQualifiedDomainName != nil {
			rec["fullyQualifiedDomainName"] = *server.Properties.FullyQualifiedDomainName
		}
		if server.Properties.AvailabilityZone != nil {
			rec["availabilityZone"] = *server.Properties.AvailabilityZone
		}
		if server.Properties.Storage != nil && server.Properties.Storage.StorageSizeGB != nil {
			rec["storageSizeGB"] = *server.Properties.Storage.StorageSizeGB
		}
	}

	if tags := tagsToMap(server.Tags); tags != nil {
		rec["tags"] = tags
	}

	return rec
}

// buildServerParams parses the desired-state payload into create parameters.
func (s *DatabaseServer) buildServerParams() (*armpostgresqlflexibleservers.Server, error) {
	var props map[string]any
	if err := json.Unmarshal(s.props, &props); err != nil {
		return nil, azerr.New(azerr.CodeConfiguration, s.name, "provision", fmt.Sprintf("failed to parse desired state: %v", err))
	}

	location, _ := props["location"].(string)
	if location == "" {
		location = s.Config.Location
	}

	version, ok := props["version"].(string)
	if !ok || version == "" {
		return nil, azerr.New(azerr.CodeConfiguration, s.name, "provision", "version is required")
	}

	adminLogin, ok := props["administratorLogin"].(string)
	if !ok || adminLogin == "" {
		return nil, azerr.New(azerr.CodeConfiguration, s.name, "provision", "administratorLogin is required")
	}

	adminPassword, ok := props["administratorLoginPassword"].(string)
	if !ok || adminPassword == "" {
		return nil, azerr.New(azerr.CodeConfiguration, s.name, "provision", "administratorLoginPassword is required")
	}

	skuMap, ok := props["sku"].(map[string]any)
	if !ok {
		return nil, azerr.New(azerr.CodeConfiguration, s.name, "provision", "sku is required")
	}
	skuName, _ := skuMap["name"].(string)
	skuTierStr, _ := skuMap["tier"].(string)
	if skuName == "" || skuTierStr == "" {
		return nil, azerr.New(azerr.CodeConfiguration, s.name, "provision", "sku.name and sku.tier are required")
	}

	serverVersion := armpostgresqlflexibleservers.ServerVersion(version)
	skuTier := armpostgresqlflexibleservers.SKUTier(skuTierStr)

	params := &armpostgresqlflexibleservers.Server{
		Location: to.Ptr(location),
		SKU: &armpostgresqlflexibleservers.SKU{
			Name: to.Ptr(skuName),
			Tier: &skuTier,
		},
		Properties: &armpostgresqlflexibleservers.ServerProperties{
			Version:                    &serverVersion,
			AdministratorLogin:         to.Ptr(adminLogin),
			AdministratorLoginPassword: to.Ptr(adminPassword),
			CreateMode:                 to.Ptr(armpostgresqlflexibleservers.CreateModeDefault),
		},
	}

	if az, ok := props["availabilityZone"].(string); ok && az != "" {
		params.Properties.AvailabilityZone = to.Ptr(az)
	}

	if storageMap, ok := props["storage"].(map[string]any); ok {
		storage := &armpostgresqlflexibleservers.Storage{}
		if v, ok := storageMap["storageSizeGB"].(float64); ok {
			storage.StorageSizeGB = to.Ptr(int32(v))
		}
		if v, ok := storageMap["autoGrow"].(string); ok {
			autoGrow := armpostgresqlflexibleservers.StorageAutoGrow(v)
			storage.AutoGrow = &autoGrow
		}
		params.Properties.Storage = storage
	}

	if backupMap, ok := props["backup"].(map[string]any); ok {
		backup := &armpostgresqlflexibleservers.Backup{}
		if v, ok := backupMap["backupRetentionDays"].(float64); ok {
			backup.BackupRetentionDays = to.Ptr(int32(v))
		}
		if v, ok := backupMap["geoRedundantBackup"].(string); ok {
			geo := armpostgresqlflexibleservers.GeoRedundantBackupEnum(v)
			backup.GeoRedundantBackup = &geo
		}
		params.Properties.Backup = backup
	}

	if tagsMap, ok := props["tags"].(map[string]any); ok {
		params.Tags = make(map[string]*string, len(tagsMap))
		for k, v := range tagsMap {
			if sv, ok := v.(string); ok {
				params.Tags[k] = to.Ptr(sv)
			}
		}
	}
	if runID, ok := props["runId"].(string); ok && runID != "" {
		if params.Tags == nil {
			params.Tags = make(map[string]*string)
		}
		for k, v := range runTags(runID) {
			params.Tags[k] = v
		}
	}

	return params, nil
}

// EnsurePresent creates the server if it does not exist yet. An existing
// server satisfies the desired state, so the second call with the same
// payload is a pure read. Flexible servers reject Create against a live
// instance, hence the read-before-create.
func (s *DatabaseServer) EnsurePresent(ctx context.Context) (facts.Record, error) {
	existing, err := s.Client.ServersClient.Get(ctx, s.Config.ResourceGroup, s.name, nil)
	if err == nil {
		return serializeServerFacts(&existing.Server), nil
	}
	if !azerr.IsNotFound(err) {
		return nil, azerr.Wrap(err, s.name, "provision")
	}

	params, err := s.buildServerParams()
	if err != nil {
		return nil, err
	}

	poller, err := s.Client.ServersClient.BeginCreate(ctx, s.Config.ResourceGroup, s.name, *params, nil)
	if err != nil {
		return nil, azerr.Wrap(err, s.name, "provision")
	}

	result, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, azerr.Wrap(err, s.name, "provision")
	}

	return serializeServerFacts(&result.Server), nil
}

// Facts returns the observed state of this server. Absent servers yield an
// empty result.
func (s *DatabaseServer) Facts(ctx context.Context) (*facts.Result, error) {
	result := facts.NewResult()

	resp, err := s.Client.ServersClient.Get(ctx, s.Config.ResourceGroup, s.name, nil)
	if err != nil {
		if azerr.IsNotFound(err) {
			return result, nil
		}
		return nil, azerr.Wrap(err, s.name, "observe")
	}

	result.Add(s.name, serializeServerFacts(&resp.Server))
	return result, nil
}

// GroupFacts returns the observed state of every flexible server in the
// resource group.
func (s *DatabaseServer) GroupFacts(ctx context.Context) (*facts.Result, error) {
	result := facts.NewResult()

	pager := s.Client.ServersClient.NewListByResourceGroupPager(s.Config.ResourceGroup, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, azerr.Wrap(err, s.Config.ResourceGroup, "observe")
		}
		for _, server := range page.Value {
			if server.Name == nil {
				continue
			}
			result.Add(*server.Name, serializeServerFacts(server))
		}
	}

	return result, nil
}

// EnsureAbsent deletes the server and waits for the deletion to finish.
// NotFound at any point means the goal is already met.
func (s *DatabaseServer) EnsureAbsent(ctx context.Context) error {
	poller, err := s.Client.ServersClient.BeginDelete(ctx, s.Config.ResourceGroup, s.name, nil)
	if err != nil {
		if azerr.IsNotFound(err) {
			return nil
		}
		return azerr.Wrap(err, s.name, "decommission")
	}

	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		if azerr.IsNotFound(err) {
			return nil
		}
		return azerr.Wrap(err, s.name, "decommission")
	}

	return nil
}
