// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package harness

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/config"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/facts"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/log"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/naming"
)

// fakeStore is an in-memory stand-in for the provider: resources flip
// between absent and present-with-properties exactly like the two-state
// lifecycle the real kinds implement.
type fakeStore struct {
	mu           sync.Mutex
	records      map[string]facts.Record
	provisions   map[string]int
	deletes      map[string]int
	removedOrder []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:    make(map[string]facts.Record),
		provisions: make(map[string]int),
		deletes:    make(map[string]int),
	}
}

func (s *fakeStore) hasRecord(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[name]
	return ok
}

type fakeResource struct {
	store   *fakeStore
	kind    string
	name    string
	desired facts.Record

	provisionErr  error
	onProvision   func()
	reportChanged bool
}

func (f *fakeResource) Kind() string { return f.kind }
func (f *fakeResource) Name() string { return f.name }

func (f *fakeResource) EnsurePresent(ctx context.Context) (facts.Record, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	f.store.provisions[f.name]++
	if f.onProvision != nil {
		f.onProvision()
	}
	if f.provisionErr != nil {
		return nil, f.provisionErr
	}
	if rec, ok := f.store.records[f.name]; ok {
		return rec, nil
	}

	rec := facts.Record{"id": "/fake/" + f.name, "name": f.name, "type": f.kind}
	for k, v := range f.desired {
		rec[k] = v
	}
	f.store.records[f.name] = rec
	return rec, nil
}

func (f *fakeResource) Facts(ctx context.Context) (*facts.Result, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	result := facts.NewResult()
	result.Changed = f.reportChanged
	if rec, ok := f.store.records[f.name]; ok {
		result.Add(f.name, rec)
	}
	return result, nil
}

func (f *fakeResource) GroupFacts(ctx context.Context) (*facts.Result, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	result := facts.NewResult()
	result.Changed = f.reportChanged
	for name, rec := range f.store.records {
		if rec["type"] == f.kind {
			result.Add(name, rec)
		}
	}
	return result, nil
}

func (f *fakeResource) EnsureAbsent(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	f.store.deletes[f.name]++
	f.store.removedOrder = append(f.store.removedOrder, f.name)
	delete(f.store.records, f.name)
	return nil
}

func testRunner(opts Options) *Runner {
	opts.SkipGroupEnsure = true
	logger := log.NewLoggerTo(io.Discard, log.DefaultConfig())
	return NewRunner(nil, config.New("sub-1", "rg-1"), logger, opts)
}

func TestRunner_FlowLifecycle(t *testing.T) {
	store := newFakeStore()
	db := &fakeResource{
		store: store,
		kind:  "DatabaseServer",
		name:  "db1",
		desired: facts.Record{
			"location": "eastus",
			"sku":      map[string]any{"name": "GP_Gen4_2", "tier": "GeneralPurpose"},
		},
	}

	flow := &Flow{
		Name: "database-server",
		Steps: []Step{
			{Resource: db, WantFields: []string{"id", "name", "location", "sku"}},
		},
	}

	err := testRunner(Options{}).Run(context.Background(), flow)
	require.NoError(t, err)

	// Provisioned once, decommissioned once, nothing left behind.
	assert.Equal(t, 1, store.provisions["db1"])
	assert.Equal(t, 1, store.deletes["db1"])
	assert.Empty(t, store.records)
}

func TestRunner_VerifyIdempotency(t *testing.T) {
	store := newFakeStore()
	db := &fakeResource{
		store:   store,
		kind:    "DatabaseServer",
		name:    "db1",
		desired: facts.Record{"location": "eastus"},
	}

	flow := &Flow{
		Name:  "database-server",
		Steps: []Step{{Resource: db, WantFields: []string{"id", "location"}}},
	}

	err := testRunner(Options{VerifyIdempotency: true}).Run(context.Background(), flow)
	require.NoError(t, err)

	// Each phase ran twice; the second calls were no-ops.
	assert.Equal(t, 2, store.provisions["db1"])
	assert.Equal(t, 2, store.deletes["db1"])
	assert.Empty(t, store.records)
}

func TestRunner_GroupScenario(t *testing.T) {
	// Scenario: create db1 with tier GeneralPurpose, find it in the group
	// facts with that tier, delete it, confirm the group facts omit it.
	store := newFakeStore()
	db := &fakeResource{
		store: store,
		kind:  "DatabaseServer",
		name:  "db1",
		desired: facts.Record{
			"sku": map[string]any{"name": "GP_Gen4_2", "tier": "GeneralPurpose"},
		},
	}
	ctx := context.Background()

	_, err := db.EnsurePresent(ctx)
	require.NoError(t, err)

	grouped, err := db.GroupFacts(ctx)
	require.NoError(t, err)
	rec, ok := grouped.Get("db1")
	require.True(t, ok)
	sku := rec["sku"].(map[string]any)
	assert.Equal(t, "GeneralPurpose", sku["tier"])

	require.NoError(t, db.EnsureAbsent(ctx))

	grouped, err = db.GroupFacts(ctx)
	require.NoError(t, err)
	assert.False(t, grouped.Has("db1"))

	scoped, err := db.Facts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, scoped.Len())
}

func TestRunner_MissingFieldFails(t *testing.T) {
	store := newFakeStore()
	db := &fakeResource{
		store:   store,
		kind:    "DatabaseServer",
		name:    "db1",
		desired: facts.Record{"location": "eastus"},
	}

	flow := &Flow{
		Name:  "database-server",
		Steps: []Step{{Resource: db, WantFields: []string{"id", "fullyQualifiedDomainName"}}},
	}

	err := testRunner(Options{}).Run(context.Background(), flow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fullyQualifiedDomainName")

	// Cleanup still ran.
	assert.Empty(t, store.records)
}

func TestRunner_ChangedQueryFails(t *testing.T) {
	store := newFakeStore()
	db := &fakeResource{
		store:         store,
		kind:          "DatabaseServer",
		name:          "db1",
		desired:       facts.Record{"location": "eastus"},
		reportChanged: true,
	}

	flow := &Flow{
		Name:  "database-server",
		Steps: []Step{{Resource: db, WantFields: []string{"id"}}},
	}

	err := testRunner(Options{}).Run(context.Background(), flow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reported a change")
}

func TestRunner_CleanupOnFailure(t *testing.T) {
	store := newFakeStore()
	pip := &fakeResource{
		store:   store,
		kind:    "PublicAddress",
		name:    "pip1",
		desired: facts.Record{"location": "eastus"},
	}
	lb := &fakeResource{
		store:        store,
		kind:         "LoadBalancer",
		name:         "lb1",
		provisionErr: errors.New("quota exhausted"),
	}

	flow := &Flow{
		Name: "load-balancer",
		Steps: []Step{
			{Resource: pip, WantFields: []string{"id"}},
			{Resource: lb, WantFields: []string{"id"}},
		},
	}

	err := testRunner(Options{}).Run(context.Background(), flow)
	require.Error(t, err)

	// The address provisioned before the failure was still torn down; the
	// balancer never provisioned and was not touched by cleanup.
	assert.Equal(t, 1, store.deletes["pip1"])
	assert.Equal(t, 0, store.deletes["lb1"])
	assert.Empty(t, store.records)
}

func TestRunner_KeepResources(t *testing.T) {
	store := newFakeStore()
	db := &fakeResource{
		store:   store,
		kind:    "DatabaseServer",
		name:    "db1",
		desired: facts.Record{"location": "eastus"},
	}

	flow := &Flow{
		Name:  "database-server",
		Steps: []Step{{Resource: db, WantFields: []string{"id"}}},
	}

	err := testRunner(Options{KeepResources: true}).Run(context.Background(), flow)
	require.NoError(t, err)

	assert.Equal(t, 0, store.deletes["db1"])
	assert.Len(t, store.records, 1)
}

func TestRunner_CleanupSurvivesCancellation(t *testing.T) {
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pip := &fakeResource{
		store:   store,
		kind:    "PublicAddress",
		name:    "pip1",
		desired: facts.Record{"location": "eastus"},
	}
	lb := &fakeResource{
		store:        store,
		kind:         "LoadBalancer",
		name:         "lb1",
		provisionErr: errors.New("interrupted"),
		onProvision:  cancel,
	}

	flow := &Flow{
		Name: "load-balancer",
		Steps: []Step{
			{Resource: pip, WantFields: []string{"id"}},
			{Resource: lb, WantFields: []string{"id"}},
		},
	}

	err := testRunner(Options{}).Run(ctx, flow)
	require.Error(t, err)

	// The run context was cancelled mid-provision; teardown still removed
	// what had been provisioned.
	assert.Equal(t, 1, store.deletes["pip1"])
	assert.Empty(t, store.records)
}

func TestRunner_LogsRunID(t *testing.T) {
	store := newFakeStore()
	db := &fakeResource{
		store:   store,
		kind:    "DatabaseServer",
		name:    "db1",
		desired: facts.Record{"location": "eastus"},
	}

	flow := &Flow{
		Name:  "database-server",
		Steps: []Step{{Resource: db, WantFields: []string{"id"}}},
	}

	var buf bytes.Buffer
	logger := log.NewLoggerTo(&buf, log.DefaultConfig())
	runner := NewRunner(nil, config.New("sub-1", "rg-1"), logger, Options{SkipGroupEnsure: true})

	run := naming.NewRunWithSeed("rg-1", 7)
	err := runner.Run(naming.WithRun(context.Background(), run), flow)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), run.ID)
}

func TestDatabaseServerFlow_Naming(t *testing.T) {
	cfg := config.New("sub-1", "rg-1")
	run := naming.NewRunWithSeed("rg-1", 7)

	flow, err := DatabaseServerFlow(nil, cfg, run)
	require.NoError(t, err)

	require.Len(t, flow.Steps, 1)
	assert.Equal(t, "db"+run.Suffix, flow.Steps[0].Resource.Name())
	assert.Contains(t, flow.Steps[0].WantFields, "fullyQualifiedDomainName")
	assert.Contains(t, flow.Steps[0].WantFields, "sku")
}

func TestLoadBalancerFlow_Ordering(t *testing.T) {
	cfg := config.New("sub-1", "rg-1")
	run := naming.NewRunWithSeed("rg-1", 7)

	flow, err := LoadBalancerFlow(nil, cfg, run)
	require.NoError(t, err)

	// The address comes first so the balancer frontend can bind to it;
	// decommissioning runs in reverse.
	require.Len(t, flow.Steps, 2)
	assert.Equal(t, "pip"+run.Suffix, flow.Steps[0].Resource.Name())
	assert.Equal(t, "lb"+run.Suffix, flow.Steps[1].Resource.Name())
}
