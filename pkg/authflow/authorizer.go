// Package authflow checks, initiates and waits for per-tool user
// authorization against the remote API. No grant state is kept locally; every
// check is re-derived from the remote.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/harun/arcade/internal/metrics"
	"github.com/harun/arcade/pkg/arcade"
)

const (
	DefaultTimeout      = 5 * time.Minute
	DefaultPollInterval = time.Second
)

// Remote is the subset of the API client used for authorization.
type Remote interface {
	Authorize(ctx context.Context, toolName string) (arcade.AuthorizationStatus, error)
	AuthStatus(ctx context.Context, authorizationID string) (arcade.AuthorizationStatus, error)
}

// Options configures an Authorizer.
type Options struct {
	// DedupeInitiation shares one in-flight remote initiation between
	// concurrent callers for the same tool.
	DedupeInitiation    bool
	DefaultTimeout      time.Duration
	DefaultPollInterval time.Duration
	Logger              zerolog.Logger
	Metrics             *metrics.Metrics
}

// WaitOptions bounds a blocking wait.
type WaitOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
	// OnPoll is called after every unresolved poll attempt, before the next
	// wait. A failed attempt reports the last status observed.
	OnPoll func(attempt int, status arcade.AuthorizationStatus)
}

// Authorizer drives the check, initiate and poll cycle.
type Authorizer struct {
	remote   Remote
	dedupe   bool
	timeout  time.Duration
	interval time.Duration
	group    singleflight.Group
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// New creates an Authorizer.
func New(remote Remote, opts Options) *Authorizer {
	a := &Authorizer{
		remote:   remote,
		dedupe:   opts.DedupeInitiation,
		timeout:  opts.DefaultTimeout,
		interval: opts.DefaultPollInterval,
		logger:   opts.Logger.With().Str("component", "authflow").Logger(),
		metrics:  opts.Metrics,
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	if a.interval <= 0 {
		a.interval = DefaultPollInterval
	}
	return a
}

// CheckOrAuthorize returns Completed when a grant exists, or Pending with a
// fresh authorization URL. A Failed status is returned as a value.
func (a *Authorizer) CheckOrAuthorize(ctx context.Context, toolName string) (arcade.AuthorizationStatus, error) {
	var (
		status arcade.AuthorizationStatus
		err    error
	)
	if a.dedupe {
		status, err = a.shared(ctx, toolName)
	} else {
		status, err = a.remote.Authorize(ctx, toolName)
	}
	if err != nil {
		return arcade.AuthorizationStatus{}, fmt.Errorf("authorize %s: %w", toolName, err)
	}

	a.metrics.RecordAuthorization(string(status.Status))
	a.logger.Debug().
		Str("tool", toolName).
		Str("status", string(status.Status)).
		Msg("Authorization checked")
	return status, nil
}

// shared runs the initiation through the single-flight group. The remote call
// is detached from any one caller's cancellation; each caller can still stop
// waiting on its own context.
func (a *Authorizer) shared(ctx context.Context, toolName string) (arcade.AuthorizationStatus, error) {
	detached := context.WithoutCancel(ctx)
	ch := a.group.DoChan(toolName, func() (interface{}, error) {
		return a.remote.Authorize(detached, toolName)
	})

	select {
	case <-ctx.Done():
		return arcade.AuthorizationStatus{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return arcade.AuthorizationStatus{}, res.Err
		}
		if res.Shared {
			a.logger.Debug().Str("tool", toolName).Msg("Joined in-flight authorization")
		}
		return res.Val.(arcade.AuthorizationStatus), nil
	}
}

// Wait polls a pending authorization until it completes, fails or the
// timeout elapses. Abandoning the wait leaves the remote request untouched.
func (a *Authorizer) Wait(ctx context.Context, authorizationID string, opts WaitOptions) (arcade.AuthorizationStatus, error) {
	if authorizationID == "" {
		return arcade.AuthorizationStatus{}, fmt.Errorf("authorization id is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = a.timeout
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = a.interval
	}

	start := time.Now()
	defer func() { a.metrics.RecordAuthorizationWait(time.Since(start)) }()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	last := arcade.AuthorizationStatus{Status: arcade.AuthPending, AuthorizationID: authorizationID}
	for attempt := 1; ; attempt++ {
		status, err := a.remote.AuthStatus(waitCtx, authorizationID)
		switch {
		case ctx.Err() != nil:
			return arcade.AuthorizationStatus{}, ctx.Err()
		case waitCtx.Err() != nil:
			return arcade.AuthorizationStatus{}, a.timeoutError(authorizationID, timeout)
		case errors.Is(err, arcade.ErrRemoteUnavailable):
			a.logger.Warn().Err(err).Str("authorization_id", authorizationID).Int("attempt", attempt).Msg("Authorization poll failed, retrying")
			if opts.OnPoll != nil {
				opts.OnPoll(attempt, last)
			}
		case err != nil:
			return arcade.AuthorizationStatus{}, fmt.Errorf("poll authorization %s: %w", authorizationID, err)
		case status.IsTerminal():
			a.metrics.RecordAuthorization(string(status.Status))
			a.logger.Info().
				Str("authorization_id", authorizationID).
				Str("status", string(status.Status)).
				Dur("waited", time.Since(start)).
				Msg("Authorization resolved")
			return status, nil
		default:
			last = status
			if opts.OnPoll != nil {
				opts.OnPoll(attempt, status)
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return arcade.AuthorizationStatus{}, ctx.Err()
			}
			return arcade.AuthorizationStatus{}, a.timeoutError(authorizationID, timeout)
		case <-timer.C:
		}
	}
}

func (a *Authorizer) timeoutError(authorizationID string, timeout time.Duration) error {
	a.metrics.RecordAuthorization("timeout")
	return fmt.Errorf("%w after %s waiting on %s; run authorize again for a new link", arcade.ErrAuthorizationTimeout, timeout, authorizationID)
}
