// Package job implements C4, the batch executor: the goroutine a
// webserver handler launches to walk a Run, publishing a Collection
// record before each collection and a Batch record plus a health-log
// entry after each batch, stopping the moment leadership is lost or an
// explicit interrupt arrives.
package job

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/10gen/dbcheck/dbkey"
	"github.com/10gen/dbcheck/internal/dbcheck/catalog"
	"github.com/10gen/dbcheck/internal/dbcheck/hasher"
	"github.com/10gen/dbcheck/internal/dbcheck/healthlog"
	"github.com/10gen/dbcheck/internal/dbcheck/logbridge"
	"github.com/10gen/dbcheck/internal/logger"
	"github.com/10gen/dbcheck/msync"
	clone "github.com/huandu/go-clone/generic"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

// CollectionRecord is the write-log record C4 publishes before it starts
// walking a collection.
type CollectionRecord struct {
	Type      string                     `bson:"type"`
	Namespace string                     `bson:"nss"`
	Metadata  catalog.CollectionMetadata `bson:",inline"`
}

// BatchRecord is the write-log record C4 publishes after each completed
// batch. Digest is hex-encoded for the wire record, matching the
// original's "md5" string field, even though hasher.BatchStats keeps it
// as a raw [16]byte in memory.
type BatchRecord struct {
	Type      string    `bson:"type"`
	Namespace string    `bson:"nss"`
	MinKey    dbkey.Key `bson:"minKey"`
	MaxKey    dbkey.Key `bson:"maxKey"`
	Digest    string    `bson:"md5"`
}

// Job runs a single Run to completion (or until interrupted), applying
// the batch-hashing and log-publication procedure to each collection in
// order.
type Job struct {
	db     *mongo.Database
	bridge *logbridge.Bridge
	cat    catalog.Catalog
	oracle catalog.LeadershipOracle
	sink   healthlog.Sink
	log    *logger.Logger

	interrupted *msync.TypedAtomic[bool]
}

// New returns a Job that hashes collections from db, publishes records
// through bridge, records progress to sink, and consults cat for
// collection metadata and oracle for leadership status.
func New(
	db *mongo.Database,
	bridge *logbridge.Bridge,
	cat catalog.Catalog,
	oracle catalog.LeadershipOracle,
	sink healthlog.Sink,
	log *logger.Logger,
) *Job {
	return &Job{
		db:          db,
		bridge:      bridge,
		cat:         cat,
		oracle:      oracle,
		sink:        sink,
		log:         log,
		interrupted: msync.NewTypedAtomic(false),
	}
}

// Interrupt asks the job to stop after its current batch. It also
// interrupts the underlying log bridge, so a caller doesn't need to
// coordinate the two separately.
func (j *Job) Interrupt() {
	j.interrupted.Store(true)
	j.bridge.Interrupt()
}

// Run walks every collection in run, in order, until it either finishes,
// is interrupted, or loses leadership. It's meant to be launched with
// `go job.Run(...)` against a context derived from context.Background(),
// never the HTTP request context that triggered the run: an operator
// closing their connection must not cancel an in-progress check.
func (j *Job) Run(ctx context.Context, run catalog.Run) error {
	for _, info := range run {
		if err := j.checkCanContinue(); err != nil {
			j.recordTerminalStop(ctx, info.Namespace)
			return nil
		}

		if err := j.runCollection(ctx, info); err != nil {
			if errors.Is(err, errStopped) {
				j.recordTerminalStop(ctx, info.Namespace)
				return nil
			}
			j.log.Warn().Err(err).Str("namespace", info.Namespace).
				Msg("dbCheck failed for collection, continuing with the rest of the run.")
		}
	}

	return nil
}

var errStopped = errors.New("dbCheck run stopped")

func (j *Job) checkCanContinue() error {
	if j.interrupted.Load() {
		return errStopped
	}
	if !j.oracle.IsPrimary() {
		return errStopped
	}
	return nil
}

// isTerminal reports whether err means the run has lost its ability to
// write at all (lost primary status, or an explicit interrupt), as
// opposed to an ordinary per-batch failure that should only abort the
// current collection.
func (j *Job) isTerminal(err error) bool {
	return errors.Is(err, logbridge.ErrNotWritable) || errors.Is(err, logbridge.ErrInterrupted)
}

// recordError appends an error/warning health-log entry describing a
// failure, so a caller watching the health log has visibility into it
// even though runCollection's own return value never reaches the
// client that launched the run.
func (j *Job) recordError(ctx context.Context, namespace string, severity healthlog.Severity, msg string) {
	if err := j.sink.Record(ctx, healthlog.Entry{
		Namespace: namespace,
		Timestamp: time.Now(),
		Severity:  severity,
		Msg:       msg,
	}); err != nil {
		j.log.Warn().Err(err).Str("namespace", namespace).Msg("failed to record health-log error entry")
	}
}

// recordTerminalStop records the single error entry that marks the run
// having stopped for good, either because it was interrupted or because
// this node lost primary status; no further records follow it.
func (j *Job) recordTerminalStop(ctx context.Context, namespace string) {
	j.recordError(ctx, namespace, healthlog.SeverityError,
		"dbCheck run stopped: lost primary status or was interrupted")
}

func (j *Job) runCollection(ctx context.Context, info catalog.CollectionInfo) error {
	meta, err := j.cat.CollectionMetadata(ctx, info.Namespace)
	if err != nil {
		err = errors.Wrapf(err, "looking up metadata for %s", info.Namespace)
		j.recordError(ctx, info.Namespace, healthlog.SeverityError, err.Error())
		return err
	}

	if _, err := j.bridge.Append(ctx, CollectionRecord{
		Type:      "Collection",
		Namespace: info.Namespace,
		Metadata:  meta,
	}); err != nil {
		if j.isTerminal(err) {
			return errStopped
		}
		err = errors.Wrapf(err, "publishing collection record for %s", info.Namespace)
		j.recordError(ctx, info.Namespace, healthlog.SeverityError, err.Error())
		return err
	}

	throughput := healthlog.NewThroughput(time.Minute)

	remaining := info.MaxDocs
	remainingBytes := info.MaxBytes
	cursor := info.StartKey

	for dbkey.Compare(cursor, info.EndKey) < 0 {
		if err := j.checkCanContinue(); err != nil {
			return err
		}

		// Clone the run's owned CollectionInfo before deriving this
		// batch's bounded caps, so the loop's shrinking remaining/
		// remainingBytes bookkeeping never aliases the run's own data.
		batchInfo := clone.Clone(info)
		batchInfo.StartKey = cursor

		maxDocs := hasher.DefaultMaxDocs
		if remaining > 0 && remaining < int64(maxDocs) {
			maxDocs = int(remaining)
		}
		maxBytes := hasher.DefaultMaxBytes
		if remainingBytes > 0 && remainingBytes < int64(maxBytes) {
			maxBytes = int(remainingBytes)
		}

		stats, err := hasher.HashBatch(ctx, j.db, hasher.Params{
			Namespace: batchInfo.Namespace,
			StartKey:  batchInfo.StartKey,
			EndKey:    info.EndKey,
			MaxDocs:   int64(maxDocs),
			MaxBytes:  int64(maxBytes),
		})
		if err != nil {
			if errors.Is(err, hasher.ErrCollectionDropped) {
				j.recordError(ctx, info.Namespace, healthlog.SeverityWarning,
					"collection dropped mid-run, moving to the next collection.")
				return nil
			}
			err = errors.Wrapf(err, "hashing batch of %s", info.Namespace)
			j.recordError(ctx, info.Namespace, healthlog.SeverityError, err.Error())
			return err
		}

		// An empty collection's very first batch legitimately covers
		// zero documents; it still gets one Batch record and health-log
		// entry spanning the whole requested range, same as any other
		// batch. A zero-doc batch on a later iteration means the range
		// is already exhausted (the prior batch's LastKey reached
		// EndKey, which would have ended the loop already), so there's
		// nothing left to publish for it.
		if stats.NDocs == 0 && !cursor.IsMin() {
			break
		}

		if _, err := j.bridge.Append(ctx, BatchRecord{
			Type:      "Batch",
			Namespace: info.Namespace,
			MinKey:    cursor,
			MaxKey:    stats.LastKey,
			Digest:    hex.EncodeToString(stats.Digest[:]),
		}); err != nil {
			if j.isTerminal(err) {
				return errStopped
			}
			err = errors.Wrapf(err, "publishing batch record for %s", info.Namespace)
			j.recordError(ctx, info.Namespace, healthlog.SeverityError, err.Error())
			return err
		}

		throughput.Add(stats.NDocs)

		if err := j.sink.Record(ctx, healthlog.Entry{
			Namespace: info.Namespace,
			Timestamp: stats.LogTimestamp,
			Severity:  healthlog.SeverityInfo,
			Msg:       "dbCheck batch complete",
			MinKey:    cursor,
			MaxKey:    stats.LastKey,
			Md5:       hex.EncodeToString(stats.Digest[:]),
			NDocs:     stats.NDocs,
			NBytes:    stats.NBytes,
		}); err != nil {
			return errors.Wrapf(err, "recording health-log entry for %s", info.Namespace)
		}

		if stats.NDocs == 0 {
			break
		}

		if remaining > 0 {
			remaining -= stats.NDocs
			if remaining <= 0 {
				break
			}
		}
		if remainingBytes > 0 {
			remainingBytes -= stats.NBytes
			if remainingBytes <= 0 {
				break
			}
		}

		cursor = stats.LastKey
	}

	j.log.Info().
		Str("namespace", info.Namespace).
		Float64("docsPerSecond", throughput.DocsPerSecond()).
		Msg("dbCheck finished collection.")

	return nil
}
