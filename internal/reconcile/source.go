package reconcile

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"photo-reconciler/internal/catalog"
)

// Source yields the remote photos of an album as an Index. The engine does
// not care whether the index is backed by the live service or a local store.
type Source interface {
	Photos(ctx context.Context, a catalog.Album) (catalog.Index, error)
}

// Fetcher lists an album's photos from the live service.
type Fetcher interface {
	FetchPhotos(ctx context.Context, albumID string, total int) iter.Seq2[catalog.Photo, error]
}

type cachedIndex struct {
	snap *catalog.Snapshot
	err  error
}

// LiveSource fetches each album's photos at most once per run and serves
// every later request from the frozen snapshot. Concurrent requests for
// the same album share a single fetch. Failures are cached as well.
type LiveSource struct {
	client  Fetcher
	log     *zap.Logger
	group   singleflight.Group
	fetches atomic.Int64

	mu    sync.Mutex
	cache map[string]cachedIndex
}

// NewLiveSource returns a LiveSource reading through client.
func NewLiveSource(client Fetcher, log *zap.Logger) *LiveSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &LiveSource{client: client, log: log, cache: make(map[string]cachedIndex)}
}

func (s *LiveSource) lookup(id string) (cachedIndex, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache[id]
	return c, ok
}

// Photos returns the snapshot of album a, fetching it on first use.
func (s *LiveSource) Photos(ctx context.Context, a catalog.Album) (catalog.Index, error) {
	c, ok := s.lookup(a.ID)
	if !ok {
		v, _, _ := s.group.Do(a.ID, func() (any, error) {
			if c, ok := s.lookup(a.ID); ok {
				return c, nil
			}
			s.fetches.Add(1)
			snap, err := catalog.Collect(s.client.FetchPhotos(ctx, a.ID, a.NumPhotos))
			c := cachedIndex{snap: snap, err: err}
			if err != nil {
				s.log.Warn("failed to fetch album photos", zap.String("album_id", a.ID), zap.Error(err))
			} else {
				s.log.Debug("album photos fetched", zap.String("album_id", a.ID), zap.Int("photos", snap.Len()))
			}
			s.mu.Lock()
			s.cache[a.ID] = c
			s.mu.Unlock()
			return c, nil
		})
		c = v.(cachedIndex)
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.snap, nil
}

// Fetches returns how many album fetches were issued.
func (s *LiveSource) Fetches() int64 {
	return s.fetches.Load()
}
