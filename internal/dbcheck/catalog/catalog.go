// Package catalog defines the collaborator interfaces a dbCheck run
// depends on: the collection catalog, the write log it publishes batch
// boundaries and digests to, the health-log sink it records progress and
// findings to, the leadership oracle that can interrupt a run, and the
// authorizer/FCV gate the command surface consults before launching one.
//
// Each interface has a mongo-driver-backed implementation (mongo.go) and
// an in-memory fake (fake.go) for unit tests, mirroring the teacher's
// habit of defining a narrow collaborator interface per external
// dependency (see web_server.go's MigrationVerifierAPI).
package catalog

import (
	"context"

	"github.com/10gen/dbcheck/dbkey"
	"github.com/10gen/dbcheck/internal/util"
	"github.com/10gen/dbcheck/option"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CollectionInfo is C3's output for a single collection: the bounds and
// caps a run will apply while walking it.
type CollectionInfo struct {
	Namespace string
	StartKey  dbkey.Key
	EndKey    dbkey.Key

	MaxDocs  int64
	MaxBytes int64

	// MaxCountPerSecond is accepted from the command surface and carried
	// through, but deliberately unenforced (see DESIGN.md).
	MaxCountPerSecond option.Option[int64]
}

// Run is C3's overall output: the ordered sequence of collections a
// worker will process, strictly in order.
type Run []CollectionInfo

// CollectionMetadata is what the catalog reports about a collection: its
// identity, its position in an implied whole-database ordering (Prev/Next
// UUID, following the original's collection-chain records), and enough
// schema information for a Collection log record.
type CollectionMetadata struct {
	Namespace string
	UUID      util.UUID
	Prev      option.Option[util.UUID]
	Next      option.Option[util.UUID]
	Indexes   []bson.Raw
	Options   bson.Raw
}

// Catalog answers questions about what collections exist and their
// metadata. The mongo-backed implementation wraps listCollections; the
// fake is a static, ordered list set up by a test.
type Catalog interface {
	// ListCollections returns every collection in the database, in
	// catalog order (see planner.PlanAll for why order matters, and for
	// the eligibility filtering it applies to this list).
	ListCollections(ctx context.Context) ([]CollectionMetadata, error)

	// CollectionMetadata returns metadata for a single named collection.
	CollectionMetadata(ctx context.Context, namespace string) (CollectionMetadata, error)
}

// WriteLog is the oplog stand-in a run publishes Collection and Batch
// records to. Append returns the timestamp the record was durably
// assigned. Health-log entries do not record this timestamp; their own
// Timestamp is the time the batch hash finished.
type WriteLog interface {
	Append(ctx context.Context, record any) (primitive.Timestamp, error)
}

// LeadershipOracle reports whether the process is still primary and lets
// a caller observe a stepdown. A run must stop the moment IsPrimary
// starts returning false.
type LeadershipOracle interface {
	IsPrimary() bool

	// Stepdown demotes the node. It does not itself provide the
	// "no stepdown commits mid-append" exclusion the original's global
	// IX lock guarantees — that blocking behavior lives in
	// logbridge.Bridge.Stepdown, which a production oracle should be
	// wired to call (via MongoLeadershipOracle.OnStepdown) the moment it
	// observes a stepdown that did not go through Stepdown itself.
	Stepdown()
}

// Authorizer gates a dbCheck invocation on the caller's read privilege
// for the target namespace. Enforcement itself is out of scope (see
// SPEC_FULL.md §1); this module wires a pluggable interface and ships an
// always-allow default.
type Authorizer interface {
	CheckReadPrivilege(ctx context.Context, namespace string) error
}

// FeatureCompatibility reports the replica set's feature compatibility
// version, gating dbCheck on a minimum FCV per the original command's
// eligibility check.
type FeatureCompatibility interface {
	Version(ctx context.Context) ([]int, error)
}
