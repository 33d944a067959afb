package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/10gen/dbcheck/internal/util"
	"github.com/10gen/dbcheck/mmongo"
	"github.com/10gen/dbcheck/msync"
	"github.com/10gen/dbcheck/option"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoCatalog is a Catalog backed by a live database's listCollections
// output, chaining collections into the Prev/Next order the original
// dbCheck's full-database run walks them in.
type MongoCatalog struct {
	db *mongo.Database
}

var _ Catalog = (*MongoCatalog)(nil)

// NewMongoCatalog returns a Catalog for the given database.
func NewMongoCatalog(db *mongo.Database) *MongoCatalog {
	return &MongoCatalog{db: db}
}

type listCollectionsEntry struct {
	Name    string   `bson:"name"`
	Options bson.Raw `bson:"options"`
	Info    *struct {
		UUID primitive.Binary `bson:"uuid"`
	} `bson:"info"`
}

func (c *MongoCatalog) ListCollections(ctx context.Context) ([]CollectionMetadata, error) {
	cur, err := c.db.ListCollections(ctx, bson.D{{"type", "collection"}})
	if err != nil {
		return nil, errors.Wrap(err, "listing collections")
	}
	defer cur.Close(ctx)

	var entries []listCollectionsEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, errors.Wrap(err, "decoding listCollections results")
	}

	metas := make([]CollectionMetadata, 0, len(entries))
	for i, e := range entries {
		meta, err := c.buildMetadata(ctx, e)
		if err != nil {
			return nil, err
		}

		if i > 0 {
			meta.Prev = option.Some(metas[i-1].UUID)
			prevMeta := metas[i-1]
			prevMeta.Next = option.Some(meta.UUID)
			metas[i-1] = prevMeta
		}

		metas = append(metas, meta)
	}

	return metas, nil
}

func (c *MongoCatalog) buildMetadata(ctx context.Context, e listCollectionsEntry) (CollectionMetadata, error) {
	namespace := c.db.Name() + "." + e.Name

	indexCur, err := c.db.Collection(e.Name).Indexes().List(ctx)
	if err != nil {
		return CollectionMetadata{}, errors.Wrapf(err, "listing indexes for %s", namespace)
	}
	defer indexCur.Close(ctx)

	var indexes []bson.Raw
	for indexCur.Next(ctx) {
		indexes = append(indexes, append(bson.Raw{}, indexCur.Current...))
	}
	if err := indexCur.Err(); err != nil {
		return CollectionMetadata{}, errors.Wrapf(err, "iterating indexes for %s", namespace)
	}

	var uuid util.UUID
	if e.Info != nil {
		uuid = util.ParseBinary(&e.Info.UUID)
	}

	return CollectionMetadata{
		Namespace: namespace,
		UUID:      uuid,
		Indexes:   indexes,
		Options:   e.Options,
	}, nil
}

func (c *MongoCatalog) CollectionMetadata(ctx context.Context, namespace string) (CollectionMetadata, error) {
	_, collName := mmongo.SplitNamespace(namespace)

	cur, err := c.db.ListCollections(ctx, bson.D{{"name", collName}})
	if err != nil {
		return CollectionMetadata{}, errors.Wrapf(err, "listing collection %s", namespace)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return CollectionMetadata{}, errors.Wrapf(err, "looking up %s", namespace)
		}
		return CollectionMetadata{}, errors.Wrapf(mongo.ErrNoDocuments, "collection %s not found", namespace)
	}

	var e listCollectionsEntry
	if err := cur.Decode(&e); err != nil {
		return CollectionMetadata{}, errors.Wrapf(err, "decoding metadata for %s", namespace)
	}

	return c.buildMetadata(ctx, e)
}

// MongoWriteLog is a WriteLog backed by an ordinary (or capped) mongo
// collection acting as the oplog stand-in described in SPEC_FULL.md §5.
type MongoWriteLog struct {
	coll *mongo.Collection
}

var _ WriteLog = (*MongoWriteLog)(nil)

func NewMongoWriteLog(coll *mongo.Collection) *MongoWriteLog {
	return &MongoWriteLog{coll: coll}
}

func (w *MongoWriteLog) Append(ctx context.Context, record any) (primitive.Timestamp, error) {
	if _, err := w.coll.InsertOne(ctx, record); err != nil {
		return primitive.Timestamp{}, errors.Wrap(err, "appending write-log record")
	}

	var pingReply struct {
		ClusterTime struct {
			ClusterTime primitive.Timestamp `bson:"clusterTime"`
		} `bson:"$clusterTime"`
	}
	if err := w.coll.Database().RunCommand(ctx, bson.D{{"ping", 1}}).Decode(&pingReply); err != nil {
		return primitive.Timestamp{}, errors.Wrap(err, "fetching cluster time for write-log append")
	}

	return pingReply.ClusterTime.ClusterTime, nil
}

// MongoFeatureCompatibility reads the replica set's FCV from
// admin.system.version, per the original command's eligibility check.
type MongoFeatureCompatibility struct {
	client *mongo.Client
}

var _ FeatureCompatibility = MongoFeatureCompatibility{}

func NewMongoFeatureCompatibility(client *mongo.Client) MongoFeatureCompatibility {
	return MongoFeatureCompatibility{client: client}
}

func (f MongoFeatureCompatibility) Version(ctx context.Context) ([]int, error) {
	var doc struct {
		Version struct {
			Version string `bson:"version"`
		} `bson:"featureCompatibilityVersion"`
	}

	err := f.client.Database("admin").Collection("system.version").
		FindOne(ctx, bson.D{{"_id", "featureCompatibilityVersion"}}).Decode(&doc)
	if err != nil {
		return nil, errors.Wrap(err, "reading featureCompatibilityVersion")
	}

	var major, minor int
	if _, err := fmt.Sscanf(doc.Version.Version, "%d.%d", &major, &minor); err != nil {
		return nil, errors.Wrapf(err, "parsing FCV %q", doc.Version.Version)
	}

	return []int{major, minor}, nil
}

// helloState is the bit of hello's reply MongoLeadershipOracle cares
// about, held behind a DataGuard so poll's read-modify-write (comparing
// the previous state to the new one, to detect the falling edge) is
// race-safe against a concurrent IsPrimary call.
type helloState struct {
	isPrimary bool
}

// MongoLeadershipOracle tracks primary status by polling hello, and
// demotes itself for real via replSetStepDown, so a run driven by it
// stops the moment an actual election happens elsewhere in the set.
type MongoLeadershipOracle struct {
	client     *mongo.Client
	hello      *msync.DataGuard[helloState]
	onStepdown func()
}

var _ LeadershipOracle = (*MongoLeadershipOracle)(nil)

// NewMongoLeadershipOracle returns an oracle that assumes it's primary
// until the first poll completes; call Watch to start polling.
func NewMongoLeadershipOracle(client *mongo.Client) *MongoLeadershipOracle {
	return &MongoLeadershipOracle{
		client: client,
		hello:  msync.NewDataGuard(helloState{isPrimary: true}),
	}
}

func (o *MongoLeadershipOracle) IsPrimary() bool {
	var isPrimary bool
	o.hello.Load(func(s helloState) {
		isPrimary = s.isPrimary
	})
	return isPrimary
}

// OnStepdown registers cb to run the instant poll observes this node
// has lost primary status through an election triggered elsewhere in
// the set (another node winning a vote, or rs.stepDown() issued
// directly against this mongod). A Stepdown issued through this oracle
// records the loss itself, so poll sees no falling edge and cb does not
// run for it. Wiring
// logbridge.Bridge.Stepdown in as cb (see cmd/dbcheckd/main.go) is what
// makes the bridge's stepdown-exclusion lock engage on a real stepdown,
// not only on one this process initiated itself.
func (o *MongoLeadershipOracle) OnStepdown(cb func()) {
	o.onStepdown = cb
}

// Stepdown asks the server to step this node down as primary and
// records the loss of status immediately, rather than waiting on the
// next Watch poll to notice it.
func (o *MongoLeadershipOracle) Stepdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := bson.D{{"replSetStepDown", 60}, {"secondaryCatchUpPeriodSecs", 10}}
	_ = o.client.Database("admin").RunCommand(ctx, cmd).Err()
	o.hello.Store(func(helloState) helloState {
		return helloState{isPrimary: false}
	})
}

// Watch polls hello every interval until ctx is cancelled, keeping
// IsPrimary current.
func (o *MongoLeadershipOracle) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

func (o *MongoLeadershipOracle) poll(ctx context.Context) {
	var reply struct {
		IsWritablePrimary bool `bson:"isWritablePrimary"`
	}

	err := o.client.Database("admin").RunCommand(ctx, bson.D{{"hello", 1}}).Decode(&reply)
	isPrimary := err == nil && reply.IsWritablePrimary

	var lostPrimary bool
	o.hello.Store(func(prev helloState) helloState {
		lostPrimary = prev.isPrimary && !isPrimary
		return helloState{isPrimary: isPrimary}
	})

	// Only fire on the falling edge: onStepdown (logbridge.Bridge.Stepdown)
	// takes a write lock it never releases, so calling it a second time
	// on a later poll that still finds the node non-primary would hang
	// forever waiting on a lock nothing will ever release.
	if lostPrimary && o.onStepdown != nil {
		o.onStepdown()
	}
}
