// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package harness

import (
	"context"
	"errors"

	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/client"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/config"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/resources"
)

// LifecyclerFactory builds a lifecycler for a kind and name. The sweep goes
// through a factory rather than concrete constructors so it covers every
// registered kind.
type LifecyclerFactory func(kind, name string) (resources.Lifecycler, error)

// NewLifecyclerFactory returns a factory backed by the kind registry.
func NewLifecyclerFactory(c *client.Client, cfg *config.Config) LifecyclerFactory {
	return func(kind, name string) (resources.Lifecycler, error) {
		return resources.New(kind, c, cfg, name, nil)
	}
}

// sweepOrder lists the swept kinds with dependents before their dependencies:
// a load balancer holds a reference to its public address, so it must go
// first. The resource group itself is never swept.
var sweepOrder = []string{
	resources.KindLoadBalancer,
	resources.KindPublicAddress,
	resources.KindDatabaseServer,
}

// Sweep removes every resource in the group tagged with the given run ID and
// returns how many it removed. Leftovers exist when a run was interrupted
// before its deferred decommissioning could finish; the tag is the only record
// of what the run created. Failures are collected so one stuck resource does
// not shadow the rest.
func (r *Runner) Sweep(ctx context.Context, build LifecyclerFactory, runID string) (int, error) {
	removed := 0
	var errs []error

	for _, kind := range sweepOrder {
		// Group queries ignore the resource name; the run ID stands in.
		lister, err := build(kind, runID)
		if err != nil {
			return removed, err
		}

		listCtx, cancel := context.WithTimeout(ctx, r.Config.RequestTimeout)
		result, err := lister.GroupFacts(listCtx)
		cancel()
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for name, rec := range result.Resources {
			tags, _ := rec["tags"].(map[string]string)
			if tags[resources.RunTagKey] != runID {
				continue
			}

			leftover, err := build(kind, name)
			if err != nil {
				errs = append(errs, err)
				continue
			}

			r.logger.Info("sweeping leftover", "kind", kind, "name", name, "run", runID)
			deleteCtx, cancel := context.WithTimeout(ctx, r.Config.ProvisionTimeout)
			err = leftover.EnsureAbsent(deleteCtx)
			cancel()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			removed++
		}
	}

	return removed, errors.Join(errs...)
}
