// Package readiness polls an observable value until it reaches a terminal
// state or a timeout elapses.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimeout      = 120 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

var ErrTimeout = errors.New("readiness timeout")

// Sampler returns the currently observed text. Errors count as "not yet".
type Sampler func(ctx context.Context) (string, error)

// Predicate reports whether an observed value is terminal.
type Predicate func(value string) bool

type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration
	// OnSample, when set, is called after every sample attempt.
	OnSample func(value string, err error)
}

// TimeoutError carries the last value observed before the deadline.
type TimeoutError struct {
	Last    string
	Elapsed time.Duration
	Samples int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("readiness timeout after %s (%d samples), last seen %q", e.Elapsed.Round(time.Millisecond), e.Samples, e.Last)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// Await samples until isTerminal accepts a value and returns that value.
func Await(ctx context.Context, sample Sampler, isTerminal Predicate, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	start := time.Now()
	deadline := start.Add(timeout)
	last := ""
	samples := 0

	for {
		value, err := sample(ctx)
		samples++
		if opts.OnSample != nil {
			opts.OnSample(value, err)
		}
		if err == nil {
			value = strings.TrimSpace(value)
			if value != "" {
				last = value
			}
			if isTerminal(value) {
				return value, nil
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return last, ctxErr
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return last, &TimeoutError{Last: last, Elapsed: time.Since(start), Samples: samples}
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}
}

var ratioRegex = regexp.MustCompile(`^(\d+)\s*/\s*(\d+)$`)
var percentRegex = regexp.MustCompile(`(^|[^\d.])100\s*%`)

// SelectionApplied is the terminal predicate for the bulk "select all, then
// apply" counter: "N / M" with M > 0 and N == M, or a "100%" token. A
// pre-populated "0 / 0" is never terminal.
func SelectionApplied(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return false
	}
	if m := ratioRegex.FindStringSubmatch(v); m != nil {
		n, errN := strconv.Atoi(m[1])
		total, errM := strconv.Atoi(m[2])
		if errN != nil || errM != nil {
			return false
		}
		return total > 0 && n == total
	}
	return percentRegex.MatchString(v)
}
