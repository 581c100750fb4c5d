package search

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nutrilog/nutrilog/internal/cache"
)

// Cached memoizes lookups; the upstream API rate-limits aggressively and
// the same foods come up turn after turn. Cache failures degrade to a
// direct lookup.
type Cached struct {
	next  Searcher
	cache cache.Cache
	ttl   time.Duration
	log   *logrus.Logger
}

func NewCached(next Searcher, c cache.Cache, ttl time.Duration, log *logrus.Logger) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cached{next: next, cache: c, ttl: ttl, log: log}
}

func cacheKey(query string) string {
	return "search:nutrition:" + strings.ToLower(strings.TrimSpace(query))
}

func (s *Cached) Search(ctx context.Context, query string) (string, error) {
	key := cacheKey(query)

	var cached string
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.log.WithError(err).Warn("search cache read failed")
	} else if hit {
		return cached, nil
	}

	out, err := s.next.Search(ctx, query)
	if err != nil {
		return "", err
	}

	if err := s.cache.SetJSON(ctx, key, out, s.ttl); err != nil {
		s.log.WithError(err).Warn("search cache write failed")
	}
	return out, nil
}
