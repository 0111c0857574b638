package utils

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"
)

type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type Backoff struct {
	base       time.Duration
	maxRetries int
}

func NewBackoff(base time.Duration, maxRetries int) Backoff {
	return Backoff{base: base, maxRetries: maxRetries}
}

func (b Backoff) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var err error
	for i := 0; i <= b.maxRetries; i++ {
		err = fn(ctx, i)
		if err == nil || !IsTransient(err) || ctx.Err() != nil {
			return err
		}
		if i == b.maxRetries {
			break
		}
		// backoff exponencial + jitter
		t := time.Duration(1<<i) * b.base
		t += time.Duration(rand.Int64N(int64(t)/2 + 1))
		timer := time.NewTimer(t)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
