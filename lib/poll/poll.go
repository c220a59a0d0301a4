// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package poll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shockpay/shockpay/lib/clock"
)

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("poll: timed out")

// TimeoutError reports that no acceptable value arrived within the
// budget. LastErr is the most recent read error in pull mode, if any.
type TimeoutError struct {
	Waited   time.Duration
	Attempts int
	LastErr  error
}

func (e *TimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("poll: no accepted value after %v (%d attempts, last error: %v)", e.Waited, e.Attempts, e.LastErr)
	}
	if e.Attempts > 0 {
		return fmt.Sprintf("poll: no accepted value after %v (%d attempts)", e.Waited, e.Attempts)
	}
	return fmt.Sprintf("poll: no accepted value after %v", e.Waited)
}

// Is makes errors.Is(err, ErrTimeout) true.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Unwrap exposes the last read error.
func (e *TimeoutError) Unwrap() error { return e.LastErr }

const (
	defaultInitialInterval = 250 * time.Millisecond
	defaultMaxInterval     = 2 * time.Second
	defaultJitter          = 0.5
)

// Config bounds a wait. Timeout is required.
type Config struct {
	Timeout time.Duration

	// InitialInterval and MaxInterval shape the pull-mode backoff.
	// Defaults: 250ms and 2s.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// NoJitter disables backoff randomization, for deterministic tests.
	NoJitter bool

	// Clock defaults to clock.Real().
	Clock clock.Clock
}

func (c Config) validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("poll: Timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

func (c Config) clock() clock.Clock {
	if c.Clock == nil {
		return clock.Real()
	}
	return c.Clock
}

func (c Config) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultInitialInterval
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	b.MaxInterval = defaultMaxInterval
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	b.RandomizationFactor = defaultJitter
	if c.NoJitter {
		b.RandomizationFactor = 0
	}
	// The overall budget is enforced here, not by the backoff.
	b.MaxElapsedTime = 0
	b.Clock = c.clock()
	b.Reset()
	return b
}

// SubscribeFunc starts delivering values to deliver and returns a
// function that stops the delivery. Deliveries may continue briefly
// after stop returns; they are ignored.
type SubscribeFunc[T any] func(deliver func(T)) (stop func(), err error)

// Subscribe resolves with the first delivered value for which
// keepWaiting returns false.
func Subscribe[T any](ctx context.Context, cfg Config, subscribe SubscribeFunc[T], keepWaiting func(T) bool) (T, error) {
	var zero T
	if err := cfg.validate(); err != nil {
		return zero, err
	}
	clk := cfg.clock()

	found := make(chan T, 1)
	var once sync.Once
	var deliveries int
	var mu sync.Mutex
	stop, err := subscribe(func(value T) {
		mu.Lock()
		deliveries++
		mu.Unlock()
		if keepWaiting(value) {
			return
		}
		once.Do(func() { found <- value })
	})
	if err != nil {
		return zero, fmt.Errorf("poll: subscribing: %w", err)
	}
	defer stop()

	timeout := clk.After(cfg.Timeout)
	select {
	case value := <-found:
		return value, nil
	case <-ctx.Done():
		return zero, fmt.Errorf("poll: %w", ctx.Err())
	case <-timeout:
		// A value that raced the deadline still counts.
		select {
		case value := <-found:
			return value, nil
		default:
		}
		mu.Lock()
		attempts := deliveries
		mu.Unlock()
		return zero, &TimeoutError{Waited: cfg.Timeout, Attempts: attempts}
	}
}

// ReadFunc performs one read of the source.
type ReadFunc[T any] func(ctx context.Context) (T, error)

// Read calls read until it returns a value for which keepWaiting is
// false. Read errors count as "keep waiting"; the latest one is kept
// on the TimeoutError.
func Read[T any](ctx context.Context, cfg Config, read ReadFunc[T], keepWaiting func(T) bool) (T, error) {
	var zero T
	if err := cfg.validate(); err != nil {
		return zero, err
	}
	clk := cfg.clock()
	schedule := cfg.newBackOff()
	deadline := clk.After(cfg.Timeout)

	var attempts int
	var lastErr error
	for {
		attempts++
		value, err := read(ctx)
		if err == nil && !keepWaiting(value) {
			return value, nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-clk.After(schedule.NextBackOff()):
		case <-deadline:
			return zero, &TimeoutError{Waited: cfg.Timeout, Attempts: attempts, LastErr: lastErr}
		case <-ctx.Done():
			return zero, fmt.Errorf("poll: %w", ctx.Err())
		}
	}
}
