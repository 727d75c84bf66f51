// Package workpool runs units of work in fixed-size windows.
package workpool

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Windowed calls fn for every index in [0, count). Indexes are grouped into
// consecutive windows of at most size; all units in a window run concurrently
// and the window settles before the next one starts. Between windows it waits
// for pause. Unit failures are the caller's concern: fn reports nothing back.
//
// It returns ctx.Err() when the context ends before every window started.
func Windowed(ctx context.Context, count, size int, pause time.Duration, fn func(ctx context.Context, i int)) error {
	if size < 1 {
		size = 1
	}
	for start := 0; start < count; start += size {
		if start > 0 && pause > 0 {
			t := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+size, count)
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				fn(ctx, i)
				return nil
			})
		}
		_ = g.Wait()
	}
	return nil
}
