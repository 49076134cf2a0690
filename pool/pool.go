// Package pool provides a small data-parallel worker pool for the
// per-element cryptographic operations (hash-to-curve, scalar
// multiplication, encryption) that make up a PSI-SUM round. Per the
// session's concurrency model, parallel execution must not leak element
// order: Map preserves the input index in its output slice, and any
// shuffling happens afterward, once, in the caller's reduction step.
package pool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the number of goroutines Map spawns
// concurrently when the caller passes a concurrency of zero or less.
const DefaultConcurrency = 8

// Map applies fn to every element of in concurrently, bounded to
// concurrency simultaneous goroutines, and returns results in input order.
// If any call to fn returns an error, Map cancels outstanding work and
// returns the first error encountered.
func Map[T, R any](ctx context.Context, concurrency int, in []T, fn func(context.Context, int, T) (R, error)) ([]R, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	out := make([]R, len(in))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, item := range in {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(ctx, i, item)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
