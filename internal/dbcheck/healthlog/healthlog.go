// Package healthlog defines the append-only health-log entry schema a
// dbCheck run records progress and findings to, mirroring the server's
// local.system.healthlog collection, plus a throughput tracker built on
// the teacher's history package.
package healthlog

import (
	"context"
	"time"

	"github.com/10gen/dbcheck/dbkey"
	"github.com/10gen/dbcheck/history"
	"github.com/10gen/dbcheck/internal/logger"
	"github.com/10gen/dbcheck/internal/reportutils"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

// Severity classifies a health-log entry, matching the original's
// {info, warning, error} triage used to decide whether a finding merits
// operator attention.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Entry is a single health-log record. Md5 is always populated by the
// primary; ExpectedMd5 is reserved for a secondary-side comparator (out
// of scope here) to record its own digest alongside the primary's,
// rather than overloading a single "md5" field's meaning by position.
type Entry struct {
	Namespace string    `bson:"namespace"`
	Timestamp time.Time `bson:"timestamp"`
	Severity  Severity  `bson:"severity"`
	Msg       string    `bson:"msg"`

	MinKey dbkey.Key `bson:"minKey,omitempty"`
	MaxKey dbkey.Key `bson:"maxKey,omitempty"`

	Md5         string  `bson:"md5,omitempty"`
	ExpectedMd5 *string `bson:"expectedMd5,omitempty"`

	NDocs  int64 `bson:"nDocs,omitempty"`
	NBytes int64 `bson:"nBytes,omitempty"`
}

// Sink is where a run publishes health-log entries.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// MongoSink is a Sink backed by a mongo collection, ordinarily created
// as a capped collection so old entries roll off automatically the way
// local.system.healthlog does on a real server.
type MongoSink struct {
	coll *mongo.Collection
	log  *logger.Logger
}

var _ Sink = (*MongoSink)(nil)

func NewMongoSink(coll *mongo.Collection, log *logger.Logger) *MongoSink {
	return &MongoSink{coll: coll, log: log}
}

func (s *MongoSink) Record(ctx context.Context, entry Entry) error {
	if _, err := s.coll.InsertOne(ctx, entry); err != nil {
		return errors.Wrapf(err, "recording health-log entry for %s", entry.Namespace)
	}

	s.log.Debug().
		Str("namespace", entry.Namespace).
		Str("severity", string(entry.Severity)).
		Str("nBytes", reportutils.FmtBytes(entry.NBytes)).
		Msg(entry.Msg)

	return nil
}

// FakeSink is an in-memory Sink for unit tests.
type FakeSink struct {
	Entries []Entry
}

var _ Sink = (*FakeSink)(nil)

func (f *FakeSink) Record(_ context.Context, entry Entry) error {
	f.Entries = append(f.Entries, entry)
	return nil
}

// Throughput tracks a run's recent documents-per-second rate using a
// bounded time window, adapted from the teacher's history.History, which
// this module otherwise leaves untouched.
type Throughput struct {
	docs *history.History[int64]
}

// NewThroughput returns a Throughput tracker retaining samples for window.
func NewThroughput(window time.Duration) *Throughput {
	return &Throughput{docs: history.New[int64](window)}
}

// Add records that nDocs documents were just processed.
func (t *Throughput) Add(nDocs int64) {
	t.docs.Add(nDocs)
}

// DocsPerSecond returns the current windowed throughput.
func (t *Throughput) DocsPerSecond() float64 {
	logs := t.docs.Get()
	if len(logs) == 0 {
		return 0
	}

	elapsed := time.Since(logs[0].At)
	if elapsed <= 0 {
		return 0
	}

	return float64(history.SumLogs(logs)) / elapsed.Seconds()
}
