package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdsync "sync"
)

var errCrawlerPanic = errors.New("sync: panic in crawler")

// Source feeds the bulk queue from one or more crawlers. It owns the queue
// lifecycle: when Run returns the queue is complete, whatever happened.
type Source struct {
	crawlers []Crawler
	logger   *slog.Logger
}

// NewSource creates a source that runs crawlers in the given order.
func NewSource(logger *slog.Logger, crawlers ...Crawler) *Source {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Source{crawlers: crawlers, logger: logger}
}

// Run executes the crawlers one after the other, never concurrently, and
// marks q complete exactly once afterwards. A crawler error stops the
// remaining crawlers and is returned.
func (s *Source) Run(ctx context.Context, q *TripletQueue) error {
	var once stdsync.Once

	complete := func() { once.Do(q.MarkComplete) }
	defer complete()

	for i, c := range s.crawlers {
		if err := s.crawl(ctx, i, c, q); err != nil {
			s.logger.Error("source: crawl failed", slog.Int("crawler", i), slog.String("error", err.Error()))
			return err
		}
	}

	s.logger.Debug("source: all crawlers finished", slog.Int("crawlers", len(s.crawlers)))

	return nil
}

func (s *Source) crawl(ctx context.Context, i int, c Crawler, q *TripletQueue) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: crawler %d: %v", errCrawlerPanic, i, rec)
		}
	}()

	return c.Crawl(ctx, q)
}
