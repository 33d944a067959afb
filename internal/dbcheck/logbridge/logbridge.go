// Package logbridge implements C5, the log bridge: the single path a
// run uses to publish Collection and Batch records to the write log. It
// enforces the original's ordering rule — an interrupt/writability
// check immediately before a retried, single-unit-of-work append — and
// models the "global IX lock incompatible with leadership transfer" as
// a sync.RWMutex, since Go has no native global-lock concept.
package logbridge

import (
	"context"
	"sync"
	"time"

	"github.com/10gen/dbcheck/internal/dbcheck/catalog"
	"github.com/10gen/dbcheck/internal/logger"
	"github.com/10gen/dbcheck/internal/retry"
	"github.com/10gen/dbcheck/msync"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInterrupted indicates the bridge was told to stop (via Interrupt)
// before or during the append.
var ErrInterrupted = errors.New("log bridge interrupted")

// ErrNotWritable indicates the node is no longer primary, so the append
// was refused outright rather than attempted.
var ErrNotWritable = errors.New("log bridge is not writable: not primary")

// Bridge serializes access to a WriteLog against a leadership stepdown,
// the way the original serializes logOp against a global IX lock that a
// stepdown's global lock acquisition would otherwise race.
type Bridge struct {
	log      catalog.WriteLog
	oracle   catalog.LeadershipOracle
	retryer  *retry.Retryer
	stepdown sync.RWMutex
	done     *msync.TypedAtomic[bool]
	logger   *logger.Logger
}

// New returns a Bridge that appends to log, refusing to do so once
// oracle reports the node is no longer primary. It retries a transient
// append failure for up to retryLimit before giving up.
func New(log catalog.WriteLog, oracle catalog.LeadershipOracle, retryLimit time.Duration, log_ *logger.Logger) *Bridge {
	return &Bridge{
		log:     log,
		oracle:  oracle,
		retryer: retry.New(retryLimit),
		done:    msync.NewTypedAtomic(false),
		logger:  log_,
	}
}

// Interrupt sets the bridge's terminal flag. Once set, every subsequent
// Append fails with ErrInterrupted; this is the _done flag from the
// original, checked before every logOp.
func (b *Bridge) Interrupt() {
	b.done.Store(true)
}

// Interrupted reports whether Interrupt has been called.
func (b *Bridge) Interrupted() bool {
	return b.done.Load()
}

// Stepdown blocks until any in-flight Append finishes, then marks the
// bridge unwritable. This reproduces "no stepdown can commit between the
// interrupt check and the log append": the write lock can't be acquired
// while an Append holds the read lock, and once acquired here, no new
// Append can proceed until Stepdown releases it (which it never does,
// since a demoted node stays demoted).
func (b *Bridge) Stepdown() {
	b.stepdown.Lock()
	b.oracle.Stepdown()
	// Deliberately not unlocked: once stepped down, this bridge never
	// becomes writable again. A fresh Bridge is created if the node is
	// later re-elected.
}

// Append publishes record to the write log, retrying on transient
// errors, and returns the timestamp the server assigned it.
func (b *Bridge) Append(ctx context.Context, record any) (primitive.Timestamp, error) {
	if b.Interrupted() {
		return primitive.Timestamp{}, ErrInterrupted
	}

	if !b.oracle.IsPrimary() {
		return primitive.Timestamp{}, ErrNotWritable
	}

	if !b.stepdown.TryRLock() {
		return primitive.Timestamp{}, ErrNotWritable
	}
	defer b.stepdown.RUnlock()

	var ts primitive.Timestamp
	err := b.retryer.Run(ctx, b.logger, func(ctx context.Context, fi *retry.FuncInfo) error {
		var appendErr error
		ts, appendErr = b.log.Append(ctx, record)
		return appendErr
	})
	if err != nil {
		return primitive.Timestamp{}, errors.Wrap(err, "appending write-log record")
	}

	return ts, nil
}
