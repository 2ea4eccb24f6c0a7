// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package harness drives the four-phase resource lifecycle: provision the
// declared resources, observe them through the facts queries and check every
// descriptive field is populated, decommission them, and observe again to
// confirm they are gone. Cleanup is best-effort: resources provisioned before
// a failure are still torn down.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/azerr"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/client"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/config"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/facts"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/naming"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/resources"
)

// Step pairs a resource with the descriptive fields its facts record must
// populate once provisioned.
type Step struct {
	Resource   resources.Lifecycler
	WantFields []string
}

// Flow is an ordered set of steps provisioned front to back and
// decommissioned back to front.
type Flow struct {
	Name  string
	Steps []Step
}

// Options tune a run.
type Options struct {
	// VerifyIdempotency re-runs EnsurePresent after provisioning and
	// EnsureAbsent after decommissioning; the second calls must be no-ops.
	VerifyIdempotency bool
	// KeepResources skips decommissioning, leaving resources for inspection.
	KeepResources bool
	// SkipGroupEnsure assumes the resource group already exists instead of
	// creating it. Used when the caller owns group setup.
	SkipGroupEnsure bool
}

// Runner executes flows against one subscription and resource group.
type Runner struct {
	Client *client.Client
	Config *config.Config

	logger *slog.Logger
	opts   Options
}

func NewRunner(c *client.Client, cfg *config.Config, logger *slog.Logger, opts Options) *Runner {
	return &Runner{Client: c, Config: cfg, logger: logger, opts: opts}
}

// Run executes the flow. The resource group is ensured first and is never
// removed: it is a shared namespace owned by the caller.
func (r *Runner) Run(ctx context.Context, flow *Flow) (err error) {
	if run := naming.FromContext(ctx); run != nil {
		scoped := *r
		scoped.logger = r.logger.With("run", run.ID)
		r = &scoped
	}

	r.logger.Info("starting flow", "flow", flow.Name, "steps", len(flow.Steps))

	if !r.opts.SkipGroupEnsure {
		if err := r.ensureGroup(ctx); err != nil {
			return err
		}
	}

	var provisioned []Step
	defer func() {
		if r.opts.KeepResources {
			r.logger.Warn("keeping resources", "flow", flow.Name)
			return
		}
		// Teardown must survive cancellation of the run context (Ctrl-C
		// lands here with ctx already done); per-call timeouts still apply.
		cleanupCtx := context.WithoutCancel(ctx)
		if cleanupErr := r.decommission(cleanupCtx, flow, provisioned); cleanupErr != nil && err == nil {
			err = cleanupErr
		}
	}()

	for _, step := range flow.Steps {
		if err := r.provision(ctx, step); err != nil {
			return err
		}
		provisioned = append(provisioned, step)

		if err := r.verifyPresent(ctx, step); err != nil {
			return err
		}
	}

	r.logger.Info("flow provisioned and verified", "flow", flow.Name)
	return nil
}

func (r *Runner) ensureGroup(ctx context.Context) error {
	group, err := resources.NewResourceGroup(r.Client, r.Config, r.Config.ResourceGroup, nil)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.Config.RequestTimeout)
	defer cancel()

	if _, err := group.EnsurePresent(callCtx); err != nil {
		return err
	}
	r.logger.Debug("resource group ensured", "group", r.Config.ResourceGroup)
	return nil
}

func (r *Runner) provision(ctx context.Context, step Step) error {
	res := step.Resource
	r.logger.Info("provisioning", "kind", res.Kind(), "name", res.Name())

	callCtx, cancel := context.WithTimeout(ctx, r.Config.ProvisionTimeout)
	defer cancel()

	rec, err := res.EnsurePresent(callCtx)
	if err != nil {
		return err
	}
	r.logger.Debug("provisioned", "name", res.Name(), "fields", len(rec))

	if r.opts.VerifyIdempotency {
		again, err := res.EnsurePresent(callCtx)
		if err != nil {
			return azerr.Wrap(fmt.Errorf("second provision call failed: %w", err), res.Name(), "provision")
		}
		if missing := facts.MissingFields(again, step.WantFields); len(missing) > 0 {
			return azerr.New(azerr.CodeUnknown, res.Name(), "provision",
				fmt.Sprintf("state degraded after repeated provisioning, missing %s", strings.Join(missing, ", ")))
		}
		r.logger.Debug("provision idempotency verified", "name", res.Name())
	}

	return nil
}

// verifyPresent checks the invariant: after provisioning, both the scoped and
// the group-wide query return the resource with every expected descriptive
// field populated, and neither query reports a change.
func (r *Runner) verifyPresent(ctx context.Context, step Step) error {
	res := step.Resource

	callCtx, cancel := context.WithTimeout(ctx, r.Config.RequestTimeout)
	defer cancel()

	scoped, err := res.Facts(callCtx)
	if err != nil {
		return err
	}
	if err := checkRecord(scoped, res.Name(), step.WantFields, "scoped"); err != nil {
		return err
	}

	grouped, err := res.GroupFacts(callCtx)
	if err != nil {
		return err
	}
	if err := checkRecord(grouped, res.Name(), step.WantFields, "group-wide"); err != nil {
		return err
	}

	r.logger.Info("verified present", "kind", res.Kind(), "name", res.Name())
	return nil
}

func checkRecord(result *facts.Result, name string, wantFields []string, scope string) error {
	if result.Changed {
		return azerr.New(azerr.CodeUnknown, name, "observe", scope+" facts query reported a change")
	}
	rec, ok := result.Get(name)
	if !ok {
		return azerr.New(azerr.CodeNotFound, name, "observe", scope+" facts query did not return the resource")
	}
	if missing := facts.MissingFields(rec, wantFields); len(missing) > 0 {
		return azerr.New(azerr.CodeUnknown, name, "observe",
			fmt.Sprintf("%s facts record is missing fields: %s", scope, strings.Join(missing, ", ")))
	}
	return nil
}

// decommission tears down the provisioned steps in reverse order and checks
// both query forms no longer return them. Errors are collected rather than
// aborting so later steps still get cleaned up.
func (r *Runner) decommission(ctx context.Context, flow *Flow, provisioned []Step) error {
	var errs []error
	for i := len(provisioned) - 1; i >= 0; i-- {
		step := provisioned[i]
		res := step.Resource
		r.logger.Info("decommissioning", "kind", res.Kind(), "name", res.Name())

		callCtx, cancel := context.WithTimeout(ctx, r.Config.ProvisionTimeout)

		if err := res.EnsureAbsent(callCtx); err != nil {
			errs = append(errs, err)
			cancel()
			continue
		}

		if r.opts.VerifyIdempotency {
			if err := res.EnsureAbsent(callCtx); err != nil {
				errs = append(errs, azerr.Wrap(fmt.Errorf("second decommission call failed: %w", err), res.Name(), "decommission"))
				cancel()
				continue
			}
			r.logger.Debug("decommission idempotency verified", "name", res.Name())
		}
		cancel()

		if err := r.verifyAbsent(ctx, step); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("decommissioning %s: %w", flow.Name, errors.Join(errs...))
	}
	return nil
}

// verifyAbsent checks the invariant: after decommissioning, the scoped query
// is empty and the group-wide query omits the resource's key.
func (r *Runner) verifyAbsent(ctx context.Context, step Step) error {
	res := step.Resource

	callCtx, cancel := context.WithTimeout(ctx, r.Config.RequestTimeout)
	defer cancel()

	scoped, err := res.Facts(callCtx)
	if err != nil {
		return err
	}
	if scoped.Len() != 0 {
		return azerr.New(azerr.CodeUnknown, res.Name(), "observe", "scoped facts query still returns the resource after decommissioning")
	}

	grouped, err := res.GroupFacts(callCtx)
	if err != nil {
		return err
	}
	if grouped.Has(res.Name()) {
		return azerr.New(azerr.CodeUnknown, res.Name(), "observe", "group-wide facts query still includes the resource after decommissioning")
	}

	r.logger.Info("verified absent", "kind", res.Kind(), "name", res.Name())
	return nil
}
