package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"whosout/internal/extract"
)

// Page is the read side of the page-automation layer for one session.
type Page interface {
	HeaderLabels(ctx context.Context) ([]string, error)
	Rows(ctx context.Context) ([]extract.RowHandle, error)
	SelectionCounterText(ctx context.Context) (string, error)
}

// Session is implemented by pages that must log in and apply the
// "select all employees" update before the grid can be trusted.
type Session interface {
	PrepareSelection(ctx context.Context) error
}

// RetryPolicy bounds retries of collaborator calls.
type RetryPolicy struct {
	Attempts    int
	Backoff     time.Duration
	Incremental bool
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var b backoff.BackOff
	if p.Incremental {
		eb := backoff.NewExponentialBackOff()
		if p.Backoff > 0 {
			eb.InitialInterval = p.Backoff
		}
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	} else {
		b = backoff.NewConstantBackOff(p.Backoff)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Permanent is implemented by collaborator errors that retrying cannot fix,
// such as rejected credentials.
type Permanent interface {
	Permanent() bool
}

func isPermanent(err error) bool {
	var p Permanent
	return errors.As(err, &p) && p.Permanent()
}

// Do runs op until it succeeds, the attempts are used up, ctx ends or op
// returns a Permanent error.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && (ctx.Err() != nil || isPermanent(err)) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx))
}
