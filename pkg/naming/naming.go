// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package naming

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/rand"

	"github.com/segmentio/ksuid"
)

// DeriveSuffix builds a short name suffix from a resource group key and a
// per-run seed. The hash part is stable for a given group, so resources from
// the same group share a recognizable prefix; the seed part varies per run so
// repeated runs against the same group do not collide with leftovers from
// earlier runs. Collision resistance is probabilistic only, and the suffix is
// not a secret.
func DeriveSuffix(groupKey string, seed uint64) string {
	hash := sha256.Sum256([]byte(groupKey))
	return fmt.Sprintf("%x%04d", hash[:3], seed%10000)
}

// Run is the naming state for one harness run. It is threaded through the
// context rather than held in a package-level variable so that concurrent
// flows in the same process can carry independent runs.
type Run struct {
	// ID uniquely identifies the run across its lifetime, even when the same
	// group and seed recur. Resources are tagged with it for bulk cleanup.
	ID string
	// Suffix is appended to every resource name created during the run.
	Suffix string
}

// NewRun derives a run for the given resource group key with a random seed.
func NewRun(groupKey string) *Run {
	return NewRunWithSeed(groupKey, rand.Uint64())
}

// NewRunWithSeed is NewRun with an explicit seed, for reproducible names.
func NewRunWithSeed(groupKey string, seed uint64) *Run {
	return &Run{
		ID:     ksuid.New().String(),
		Suffix: DeriveSuffix(groupKey, seed),
	}
}

// ResourceName builds a name for one resource of the run.
func (r *Run) ResourceName(prefix string) string {
	return prefix + r.Suffix
}

type ctxKey struct{}

// WithRun attaches a run to the context.
func WithRun(ctx context.Context, run *Run) context.Context {
	return context.WithValue(ctx, ctxKey{}, run)
}

// FromContext returns the run attached to the context, or nil.
func FromContext(ctx context.Context) *Run {
	run, _ := ctx.Value(ctxKey{}).(*Run)
	return run
}
