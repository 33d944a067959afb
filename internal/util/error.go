package util

import (
	"context"
	"io"
	"net"
	"strings"

	"github.com/10gen/dbcheck/mmongo"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// Server error codes referenced by name elsewhere in this module, drawn
// from https://github.com/mongodb/mongo/blob/master/src/mongo/base/error_codes.yml.
const (
	NamespaceNotFound = 26
	PrimarySteppedDown = 189
	Interrupted        = 11601
)

// IsNamespaceNotFoundError returns true if this is a NamespaceNotFoundError.
func IsNamespaceNotFoundError(err error) bool {
	return GetErrorCode(err) == NamespaceNotFound
}

// IsNoDocumentsError returns true if this is a ErrNoDocuments.
func IsNoDocumentsError(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// IsContextCanceledError returns true if this is a Context Canceled error.
func IsContextCanceledError(err error) bool {
	return errors.Is(err, context.Canceled) || strings.Contains(err.Error(), context.Canceled.Error())
}

func isRetryablePoolError(err error) bool {
	rerr, ok := err.(driver.RetryablePoolError)
	return ok && rerr.Retryable()
}

func isServerSelectionError(err error) bool {
	_, ok := err.(topology.ServerSelectionError)
	return ok
}

func isConnectionError(err error) bool {
	if connErr, ok := err.(topology.ConnectionError); ok {
		return isNetworkError(connErr.Wrapped)
	}
	return false
}

// IsTransientError returns true if this is an error that is reconnectable
// and can be retried, per the taxonomy of an error's write-log append
// classifying it as terminal for the run vs. retryable within a single
// call.
func IsTransientError(err error) bool {
	err = errors.Cause(err)
	if err == nil {
		return false
	}

	if IsContextCanceledError(err) {
		return false
	}

	if _, ok := err.(*mongo.WriteConcernError); ok {
		return true
	}

	if isNetworkError(err) {
		return true
	}

	if isConnectionError(err) {
		return true
	}

	if hasTransientErrorCode(err) {
		return true
	}

	if hasTransientErrorLabel(err) {
		return true
	}

	if isRetryablePoolError(err) {
		return true
	}

	if isServerSelectionError(err) {
		return true
	}

	return false
}

func isNetworkError(err error) bool {
	if _, ok := err.(net.Error); ok {
		return true
	}

	if err == io.EOF || err.Error() == "no reachable servers" || err.Error() == "Closed explicitly" {
		return true
	}

	return mongo.IsNetworkError(err)
}

// transientErrorCodes lists server error codes that are safe to retry.
// Ported from the teacher's internal/util/error.go, trimmed to the codes
// this module's write-log append and batch iteration can plausibly meet.
var transientErrorCodes = mapset.NewSet(
	6,  // HostUnreachable
	7,  // HostNotFound
	43, // CursorNotFound
	50, // MaxTimeMSExpired
	89, // NetworkTimeout
	90, // CallbackCanceled
	91, // ShutdownInProgress
	112, // WriteConflict
	117, // ConflictingOperationInProgress
	175, // QueryPlanKilled
	189, // PrimarySteppedDown
	202, // NetworkInterfaceExceededTimeLimit
	251, // NoSuchTransaction
	262, // ExceededTimeLimit
	9001,  // SocketException
	10107, // NotWritablePrimary
	11600, // InterruptedAtShutdown
	11601, // Interrupted
	11602, // InterruptedDueToReplStateChange
)

func hasTransientErrorCode(err error) bool {
	if GetErrorCode(err) == 0 {
		if strings.Contains(err.Error(), "not master") {
			return true
		}
	}

	for code := range transientErrorCodes.Iter() {
		if mmongo.ErrorHasCode(err, code) {
			return true
		}
	}

	return false
}

var transientErrorLabels = [3]string{
	"ResumableChangeStreamError",
	"RetryableWriteError",
	"TransientTransactionError",
}

func hasTransientErrorLabel(err error) bool {
	if err, ok := err.(mongo.ServerError); ok {
		for _, l := range transientErrorLabels {
			if err.HasErrorLabel(l) {
				return true
			}
		}
	}
	return false
}

// GetErrorCode returns the provided error's top-level error code. It
// returns 0 if the error is nil or not one of the supported error types.
func GetErrorCode(err error) int {
	switch e := errors.Cause(err).(type) {
	case mongo.CommandError:
		return int(e.Code)
	case driver.Error:
		return int(e.Code)
	case mongo.WriteError:
		return e.Code
	case mongo.WriteConcernError:
		return e.Code
	case mongo.WriteException:
		for _, we := range e.WriteErrors {
			return GetErrorCode(we)
		}
		if e.WriteConcernError != nil {
			return e.WriteConcernError.Code
		}
		return 0
	default:
		return 0
	}
}
