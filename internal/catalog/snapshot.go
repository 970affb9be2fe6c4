package catalog

import (
	"context"
	"iter"
	"time"
)

// Index answers the two questions reconciliation asks of an album's photos.
type Index interface {
	// ByTime returns the photos whose capture time equals t.
	ByTime(ctx context.Context, t time.Time) ([]Photo, error)
	// ByUniqueID returns the photos whose unique id or photo id equals id.
	ByUniqueID(ctx context.Context, id string) ([]Photo, error)
}

// Snapshot is an in-memory Index over a fixed set of photos.
type Snapshot struct {
	photos []Photo
	byTime map[int64][]Photo
	byUID  map[string][]Photo
}

// NewSnapshot indexes photos.
func NewSnapshot(photos []Photo) *Snapshot {
	s := &Snapshot{
		photos: photos,
		byTime: make(map[int64][]Photo),
		byUID:  make(map[string][]Photo),
	}
	for _, p := range photos {
		if !p.Time.IsZero() {
			k := p.Time.UnixMilli()
			s.byTime[k] = append(s.byTime[k], p)
		}
		if p.UniqueID != "" {
			s.byUID[p.UniqueID] = append(s.byUID[p.UniqueID], p)
		}
		if p.ID != "" && p.ID != p.UniqueID {
			s.byUID[p.ID] = append(s.byUID[p.ID], p)
		}
	}
	return s
}

// Collect drains a photo sequence into a Snapshot. It stops at the first error.
func Collect(seq iter.Seq2[Photo, error]) (*Snapshot, error) {
	var photos []Photo
	for p, err := range seq {
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return NewSnapshot(photos), nil
}

// Len returns the number of photos in the snapshot.
func (s *Snapshot) Len() int { return len(s.photos) }

// Photos returns the indexed photos in their original order.
func (s *Snapshot) Photos() []Photo { return s.photos }

func (s *Snapshot) ByTime(_ context.Context, t time.Time) ([]Photo, error) {
	return s.byTime[t.UnixMilli()], nil
}

func (s *Snapshot) ByUniqueID(_ context.Context, id string) ([]Photo, error) {
	if id == "" {
		return nil, nil
	}
	return s.byUID[id], nil
}
