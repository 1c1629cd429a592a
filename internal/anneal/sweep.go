package anneal

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/haricheung/cribcrack/internal/ngram"
)

// Sweep runs one independent Search per key length, at most jobs at a time (jobs <= 0
// means unbounded). optsFor builds each run's options; its KeyLength is overwritten
// with the run's key length and a nil Context is set to the sweep's. Models are
// shared read-only between runs.
//
// Expectations:
//   - Returns one Result per length, sorted by score ascending (ties by key length)
//   - Each run is identical to Search called alone with the same options
//   - Returns ctx.Err() when ctx is cancelled; runs in progress stop at their next step
//   - Returns the first run error, wrapped with its key length
func Sweep(ctx context.Context, ciphertext []byte, models []*ngram.Model, lengths []int, jobs int, optsFor func(keyLength int) Options) ([]Result, error) {
	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	results := make([]Result, len(lengths))
	for i, kl := range lengths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			opts := optsFor(kl)
			opts.KeyLength = kl
			if opts.Context == nil {
				opts.Context = ctx
			}
			res, err := Search(ciphertext, models, opts)
			if err != nil {
				return fmt.Errorf("key length %d: %w", kl, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].KeyLength < results[j].KeyLength
	})
	return results, nil
}

// KeyLengths returns lo..hi inclusive, or nil when hi < lo.
func KeyLengths(lo, hi int) []int {
	if hi < lo {
		return nil
	}
	out := make([]int, 0, hi-lo+1)
	for kl := lo; kl <= hi; kl++ {
		out = append(out, kl)
	}
	return out
}
