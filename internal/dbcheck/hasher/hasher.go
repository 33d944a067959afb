// Package hasher implements C2, the batch hasher: given a namespace and
// a key range, it walks documents in key order and produces a content
// digest plus the boundary the batch actually stopped at, bounded by
// document count, byte count, and the range's own end key.
package hasher

import (
	"context"
	"crypto/md5" //nolint:gosec // used only as a lightweight change detector, not for security.
	"time"

	"github.com/10gen/dbcheck/dbkey"
	"github.com/10gen/dbcheck/internal/util"
	"github.com/10gen/dbcheck/mmongo"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
)

// Default batch caps, unchanged from the original dbcheck.cpp's
// kBatchDocs / kBatchBytes constants.
const (
	DefaultMaxDocs  = 5000
	DefaultMaxBytes = 20_000_000
)

// BatchStats is C2's output: how many documents and bytes the batch
// covered, the key it actually stopped at (which may be short of the
// requested end key if a cap was hit first), and the content digest.
type BatchStats struct {
	NDocs        int64
	NBytes       int64
	LastKey      dbkey.Key
	Digest       [16]byte
	LogTimestamp time.Time
}

// ErrSnapshotUnavailable indicates the cursor failed for a reason other
// than the collection having been dropped mid-scan (e.g. an interrupted
// or killed cursor from a replication rollback).
var ErrSnapshotUnavailable = errors.New("snapshot unavailable for batch hash")

// ErrCollectionDropped indicates the collection disappeared during the
// scan, which the caller should treat as non-fatal for the overall run.
var ErrCollectionDropped = errors.New("collection dropped during batch hash")

// Params configures a single HashBatch call.
type Params struct {
	Namespace string
	StartKey  dbkey.Key
	EndKey    dbkey.Key
	MaxDocs   int64
	MaxBytes  int64
}

// HashBatch reads documents in the (StartKey, EndKey] range (StartKey is
// included only when it is MinKey), in ascending _id order, hashing each document's canonical BSON bytes into
// a single MD5 digest until it exhausts the range or hits MaxDocs /
// MaxBytes, whichever comes first.
func HashBatch(ctx context.Context, db *mongo.Database, p Params) (BatchStats, error) {
	maxDocs := p.MaxDocs
	if maxDocs <= 0 {
		maxDocs = DefaultMaxDocs
	}
	maxBytes := p.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	_, collName := mmongo.SplitNamespace(p.Namespace)

	// The very first batch includes StartKey (MinKey, matched inclusively
	// since no document can equal it anyway); every later batch's
	// StartKey is the previous batch's LastKey, a real document already
	// covered by that batch's digest, so it must be excluded here or it
	// gets hashed and counted twice.
	lowerBoundOp := "$gt"
	if p.StartKey.IsMin() {
		lowerBoundOp = "$gte"
	}

	// EndKey is an inclusive upper bound, matching the original command's
	// own "maxKey: <last key, inclusive>" contract: a document whose key
	// equals EndKey belongs to this batch. The sentinel MaxKey case is
	// unaffected either way, since no real document can equal it.
	filter := bson.D{{"_id", bson.D{
		{lowerBoundOp, p.StartKey.RawValue()},
		{"$lte", p.EndKey.RawValue()},
	}}}

	findOpts := options.Find().
		SetSort(bson.D{{"_id", 1}}).
		SetBatchSize(int32(maxDocs))

	coll := db.Collection(collName, options.Collection().
		SetReadConcern(readconcern.Available()))

	cur, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		if util.IsNamespaceNotFoundError(err) {
			return BatchStats{}, ErrCollectionDropped
		}
		return BatchStats{}, errors.Wrap(ErrSnapshotUnavailable, err.Error())
	}
	defer cur.Close(ctx)

	digest := md5.New() //nolint:gosec
	stats := BatchStats{LastKey: p.StartKey}
	hitCap := false

	for cur.Next(ctx) {
		raw := cur.Current

		stats.NDocs++
		stats.NBytes += int64(len(raw))
		digest.Write(raw)

		idVal := raw.Lookup("_id")
		stats.LastKey = dbkey.FromRawValue(idVal)

		if stats.NDocs >= maxDocs || stats.NBytes >= maxBytes {
			hitCap = true
			break
		}
	}

	// A batch that stopped because it hit a cap is indistinguishable,
	// from the counts alone, from one that hit a cap at the exact
	// moment the range was also exhausted: both end with
	// NDocs==maxDocs or NBytes>=maxBytes. Peeking one document past the
	// cap (without folding it into this batch's digest or counts)
	// resolves the ambiguity: if nothing follows, this batch's LastKey
	// legitimately closes out the whole range, the same as a batch that
	// never hit a cap at all. Getting this wrong silently drops the
	// MaxKey-closing Batch record whenever a collection's size is an
	// exact multiple of the batch cap.
	hasMore := hitCap && cur.Next(ctx)

	if err := cur.Err(); err != nil {
		if util.IsNamespaceNotFoundError(err) {
			return BatchStats{}, ErrCollectionDropped
		}
		if util.IsContextCanceledError(err) {
			return BatchStats{}, ctx.Err()
		}
		return BatchStats{}, errors.Wrap(ErrSnapshotUnavailable, err.Error())
	}

	if stats.NDocs > 0 {
		copy(stats.Digest[:], digest.Sum(nil))
	}

	if !hitCap || !hasMore {
		// Either the cursor exhausted the range before hitting a cap, or
		// it hit a cap exactly as the range ran out: either way, this
		// batch legitimately covers all the way to the requested end.
		stats.LastKey = p.EndKey
	}

	stats.LogTimestamp = time.Now()

	return stats, nil
}
