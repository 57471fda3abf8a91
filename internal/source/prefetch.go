package source

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// maxParallelDownloads caps concurrent downloads against one mirror.
const maxParallelDownloads = 4

// Prefetch downloads every remote location into the cache concurrently and
// returns the local paths in input order. The first failure cancels the
// remaining downloads.
func (f *Fetcher) Prefetch(ctx context.Context, locations ...string) ([]string, error) {
	paths := make([]string, len(locations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDownloads)
	for i, location := range locations {
		if location == "" {
			continue
		}
		g.Go(func() error {
			p, err := f.Fetch(gctx, location)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
