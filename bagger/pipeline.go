package bagger

import (
	"context"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ndlib/bagger/bagit"
)

// result carries the digests computed for one file.
type result struct {
	File
	sums map[bagit.Algorithm]string
}

// digestAll runs the digest pipeline: the collector produces files onto a
// work channel while a fixed pool of workers consumes them, each computing
// the full algorithm set for one file in a single read pass. Results are
// gathered by this goroutine alone, so no locking guards manifest state.
// The first error cancels the group and discards all progress.
func digestAll(ctx context.Context, c *collector, algorithms []bagit.Algorithm, workers int) ([]result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	files := make(chan File)
	results := make(chan result, workers)

	g.Go(func() error {
		defer close(files)
		return c.run(ctx, files)
	})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for f := range files {
				sums, err := digestFile(f, algorithms)
				if err != nil {
					return err
				}
				select {
				case results <- result{File: f, sums: sums}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var out []result
	for r := range results {
		out = append(out, r)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func digestFile(f File, algorithms []bagit.Algorithm) (map[bagit.Algorithm]string, error) {
	log.WithField("path", f.Abs).Info("calculating digests")
	in, err := os.Open(f.Abs)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", f.Abs)
	}
	defer in.Close()
	sums, err := bagit.DigestReader(in, algorithms)
	if err != nil {
		if _, isAlg := err.(*bagit.AlgorithmError); !isAlg {
			err = errors.Wrapf(err, "reading %s", f.Abs)
		}
		return nil, err
	}
	return sums, nil
}
