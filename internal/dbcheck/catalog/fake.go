package catalog

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FakeCatalog is an in-memory Catalog backed by a fixed, ordered
// collection list, for unit tests that don't need a live replica set.
type FakeCatalog struct {
	Collections []CollectionMetadata
}

var _ Catalog = (*FakeCatalog)(nil)

func (f *FakeCatalog) ListCollections(_ context.Context) ([]CollectionMetadata, error) {
	return f.Collections, nil
}

func (f *FakeCatalog) CollectionMetadata(_ context.Context, namespace string) (CollectionMetadata, error) {
	for _, c := range f.Collections {
		if c.Namespace == namespace {
			return c, nil
		}
	}
	return CollectionMetadata{}, errors.Errorf("no such collection: %s", namespace)
}

// FakeWriteLog is an in-memory WriteLog. Each Append is assigned an
// increasing fake timestamp, mimicking oplog ordering.
type FakeWriteLog struct {
	mu      sync.Mutex
	Records []any
	nextTS  uint32
}

var _ WriteLog = (*FakeWriteLog)(nil)

func (f *FakeWriteLog) Append(_ context.Context, record any) (primitive.Timestamp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextTS++
	f.Records = append(f.Records, record)
	return primitive.Timestamp{T: f.nextTS, I: 1}, nil
}

// FakeLeadershipOracle is a LeadershipOracle whose primary status a test
// can flip directly.
type FakeLeadershipOracle struct {
	mu        sync.RWMutex
	isPrimary bool
}

var _ LeadershipOracle = (*FakeLeadershipOracle)(nil)

// NewFakeLeadershipOracle returns an oracle that starts out as primary.
func NewFakeLeadershipOracle() *FakeLeadershipOracle {
	return &FakeLeadershipOracle{isPrimary: true}
}

func (f *FakeLeadershipOracle) IsPrimary() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.isPrimary
}

func (f *FakeLeadershipOracle) Stepdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isPrimary = false
}

// SetPrimary lets a test force the oracle's reported status directly,
// e.g. to simulate a stepdown that didn't go through this oracle.
func (f *FakeLeadershipOracle) SetPrimary(isPrimary bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isPrimary = isPrimary
}

// AlwaysAllowAuthorizer is an Authorizer that never rejects a request.
// It's the default wiring for a deployment that enforces authorization
// upstream of this module (see SPEC_FULL.md §6).
type AlwaysAllowAuthorizer struct{}

var _ Authorizer = AlwaysAllowAuthorizer{}

func (AlwaysAllowAuthorizer) CheckReadPrivilege(_ context.Context, _ string) error {
	return nil
}

// FixedFeatureCompatibility is a FeatureCompatibility that always
// reports the version it was constructed with.
type FixedFeatureCompatibility struct {
	version []int
}

var _ FeatureCompatibility = FixedFeatureCompatibility{}

func NewFixedFeatureCompatibility(major, minor int) FixedFeatureCompatibility {
	return FixedFeatureCompatibility{version: []int{major, minor}}
}

func (f FixedFeatureCompatibility) Version(_ context.Context) ([]int, error) {
	return f.version, nil
}
