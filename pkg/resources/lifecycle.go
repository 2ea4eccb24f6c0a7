// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package resources implements the idempotent lifecycle contract for each
// Azure resource kind the harness exercises. Every kind moves between exactly
// two states, absent and present-with-properties: EnsurePresent drives
// absent→present, EnsureAbsent drives present→absent, and the two facts
// queries observe without mutating.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/azerr"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/client"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/config"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/facts"
)

// Lifecycler is the four-phase contract every resource kind implements.
type Lifecycler interface {
	// Kind returns the resource kind identifier, e.g. "Azure::Network::LoadBalancer".
	Kind() string
	// Name returns the resource's name within its resource group.
	Name() string

	// EnsurePresent makes sure a resource with the declared properties
	// exists and returns its observed state. Idempotent: if the resource
	// already exists the call observes and returns without changing it.
	EnsurePresent(ctx context.Context) (facts.Record, error)

	// Facts returns the observed state of this one resource, keyed by name.
	// An absent resource yields an empty result, not an error.
	Facts(ctx context.Context) (*facts.Result, error)

	// GroupFacts returns the observed state of every resource of this kind
	// in the resource group, keyed by name.
	GroupFacts(ctx context.Context) (*facts.Result, error)

	// EnsureAbsent makes sure no such resource exists afterward. Idempotent:
	// deleting an already-absent resource is a no-op, not an error.
	EnsureAbsent(ctx context.Context) error
}

// Factory builds a Lifecycler for a named resource from its JSON
// desired-state payload.
type Factory func(c *client.Client, cfg *config.Config, name string, props json.RawMessage) (Lifecycler, error)

var registry = make(map[string]Factory)

// Register registers a factory for a resource kind. Called from init in each
// resource file.
func Register(kind string, factory Factory) {
	registry[kind] = factory
}

// New builds a Lifecycler for the given kind. An unknown kind is a
// configuration error, never a silent nil.
func New(kind string, c *client.Client, cfg *config.Config, name string, props json.RawMessage) (Lifecycler, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, azerr.New(azerr.CodeConfiguration, kind, "configure",
			fmt.Sprintf("unknown resource kind (known: %v)", Kinds()))
	}
	return factory(c, cfg, name, props)
}

// Kinds returns the registered kind identifiers, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
