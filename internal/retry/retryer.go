package retry

import (
	"context"
	"time"

	"github.com/10gen/dbcheck/internal/logger"
	"github.com/10gen/dbcheck/internal/util"
	"golang.org/x/sync/errgroup"
)

// Retryer runs one or more functions repeatedly until they all succeed,
// a non-transient error occurs, the context is canceled, or the retry
// duration limit is exceeded.
type Retryer struct {
	retryLimit           time.Duration
	additionalErrorCodes []int
}

// New returns a new Retryer with the given duration limit.
func New(retryLimit time.Duration) *Retryer {
	return &Retryer{retryLimit: retryLimit}
}

// WithErrorCodes returns a new Retryer that also retries on the given
// server error codes, in addition to the codes that IsTransientError
// already recognizes. This replaces any codes set by a prior call.
func (r *Retryer) WithErrorCodes(codes ...int) *Retryer {
	r2 := *r
	r2.additionalErrorCodes = codes

	return &r2
}

// Run invokes each of fns once per attempt. If exactly one function is
// given it runs directly; if more than one is given they run concurrently,
// and a failure in any one of them cancels the others' context. Every
// function receives its own FuncInfo, which persists across attempts so
// that FuncInfo.NoteSuccess can reset that function's individual duration
// clock.
//
// Run keeps retrying as long as the most recent error is transient (per
// IsTransientError or the Retryer's additional error codes) and the
// longest-running function hasn't exceeded the duration limit.
func (r *Retryer) Run(
	ctx context.Context,
	log *logger.Logger,
	fns ...func(context.Context, *FuncInfo) error,
) error {
	loopInfo := &LoopInfo{durationLimit: r.retryLimit}

	now := time.Now()
	infos := make([]*FuncInfo, len(fns))
	for i := range infos {
		infos[i] = &FuncInfo{loopInfo: loopInfo, lastResetTime: now}
	}

	sleepTime := minSleepTime

	for {
		err := r.runOnce(ctx, fns, infos)
		if err == nil {
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if !r.shouldRetry(log, err) {
			return err
		}

		longest := time.Duration(0)
		for _, info := range infos {
			if d := time.Since(info.lastResetTime); d > longest {
				longest = d
			}
		}

		if longest > loopInfo.durationLimit {
			return RetryDurationLimitExceededErr{
				lastErr:  err,
				attempts: loopInfo.attemptsSoFar + 1,
				duration: longest,
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepTime):
		}

		sleepTime *= sleepTimeMultiplier
		if sleepTime > maxSleepTime {
			sleepTime = maxSleepTime
		}
		loopInfo.attemptsSoFar++
	}
}

func (r *Retryer) runOnce(
	ctx context.Context,
	fns []func(context.Context, *FuncInfo) error,
	infos []*FuncInfo,
) error {
	if len(fns) == 1 {
		return fns[0](ctx, infos[0])
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			if err := fn(gctx, infos[i]); err != nil {
				return errgroupErr{funcNum: i, errFromCallback: err}
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Retryer) shouldRetry(log *logger.Logger, err error) bool {
	errCode := util.GetErrorCode(err)

	if util.IsTransientError(err) {
		log.Warn().Int("error code", errCode).Err(err).Msg("Retrying after transient error.")
		return true
	}

	for _, code := range r.additionalErrorCodes {
		if code == errCode {
			log.Warn().Int("error code", errCode).Err(err).
				Msg("Retrying after an error because it is in the additional codes list.")
			return true
		}
	}

	log.Debug().Err(err).Int("error code", errCode).
		Msg("Not retrying on error because it is not transient nor in the additional codes list.")
	return false
}
