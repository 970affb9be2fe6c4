// Package reconcile classifies local images against the remote catalog.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"photo-reconciler/internal/album"
	"photo-reconciler/internal/catalog"
	"photo-reconciler/internal/metadata"
)

// Resolver maps a local directory to its remote album.
type Resolver interface {
	Resolve(ctx context.Context, title, dir string) (catalog.Album, error)
}

// Options configures an Engine.
type Options struct {
	Workers      int    // Albums reconciled concurrently, defaults to 1
	DefaultAlbum string // Album for images at the scan root; empty skips them
	Retry        RetryPolicy
	Logger       *zap.Logger
}

// RetryPolicy bounds upload retries.
type RetryPolicy = catalog.RetryPolicy

// Engine produces a Report for a set of local images.
// Classification never writes to the remote service.
type Engine struct {
	resolver     Resolver
	source       Source
	workers      int
	defaultAlbum string
	retry        RetryPolicy
	log          *zap.Logger
}

// New returns an Engine.
func New(resolver Resolver, source Source, opts Options) *Engine {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		resolver:     resolver,
		source:       source,
		workers:      workers,
		defaultAlbum: opts.DefaultAlbum,
		retry:        opts.Retry,
		log:          log,
	}
}

// group is the set of images that live in one local directory.
type group struct {
	dir     string
	title   string
	indexes []int // Positions in Report.Records
}

// Run classifies every image. Records keep the order of images.
// The returned error is non-nil only when ctx is cancelled.
func (e *Engine) Run(ctx context.Context, images []metadata.LocalImage) (*Report, error) {
	report := &Report{
		RunID:       uuid.New(),
		Records:     make([]Record, len(images)),
		Duplicates:  Duplicates(images),
		AlbumErrors: make(map[string]error),
	}

	groups := make(map[string]*group)
	var order []*group
	for i, img := range images {
		rec := &report.Records[i]
		rec.Image = img

		if !img.HasCaptureTime() {
			rec.Class, rec.Reason = Skipped, ReasonNoTime
			continue
		}
		title := img.AlbumTitle
		if title == "" {
			title = e.defaultAlbum
		}
		if title == "" {
			rec.Class, rec.Reason = Skipped, ReasonNoAlbum
			continue
		}

		dir := img.Dir()
		g, ok := groups[dir]
		if !ok {
			g = &group{dir: dir, title: title}
			groups[dir] = g
			order = append(order, g)
		}
		g.indexes = append(g.indexes, i)
	}

	// Titles shared by several directories are decided up front so the
	// outcome does not depend on which directory resolves first.
	dirsByTitle := make(map[string][]string)
	for _, g := range order {
		dirsByTitle[g.title] = append(dirsByTitle[g.title], g.dir)
	}
	collisions := album.Collisions(dirsByTitle)

	var mu sync.Mutex
	albumFailed := func(title string, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.AlbumErrors[title] = err
	}

	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for _, grp := range order {
		if dirs, ok := collisions[grp.title]; ok {
			err := fmt.Errorf("%w: %q is used by %v", album.ErrTitleConflict, grp.title, dirs)
			e.fill(report, grp, Conflict, ReasonTitleConflict, err)
			albumFailed(grp.title, err)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.reconcileGroup(ctx, report, grp, albumFailed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

func (e *Engine) fill(report *Report, g *group, c Classification, r Reason, err error) {
	for _, i := range g.indexes {
		rec := &report.Records[i]
		rec.Class, rec.Reason, rec.Err = c, r, err
	}
}

func (e *Engine) reconcileGroup(ctx context.Context, report *Report, g *group, albumFailed func(string, error)) {
	log := e.log.With(zap.String("dir", g.dir), zap.String("title", g.title))

	a, err := e.resolver.Resolve(ctx, g.title, g.dir)
	switch {
	case errors.Is(err, album.ErrTitleConflict):
		log.Warn("album title conflict", zap.Error(err))
		e.fill(report, g, Conflict, ReasonTitleConflict, err)
		albumFailed(g.title, err)
		return
	case errors.Is(err, album.ErrAlbumMissing):
		// Nothing can be synced with an album that does not exist yet.
		e.fill(report, g, ToUpload, ReasonAlbumMissing, nil)
		return
	case errors.Is(err, album.ErrCreateFailed):
		log.Warn("failed to create album", zap.Error(err))
		e.fill(report, g, Skipped, ReasonCreateFailed, err)
		albumFailed(g.title, err)
		return
	case err != nil:
		log.Warn("failed to resolve album", zap.Error(err))
		e.fill(report, g, Skipped, ReasonFetchFailed, err)
		albumFailed(g.title, err)
		return
	}

	idx, err := e.source.Photos(ctx, a)
	if err != nil {
		log.Warn("failed to fetch album", zap.String("album_id", a.ID), zap.Error(err))
		for _, i := range g.indexes {
			report.Records[i].Album = a
		}
		e.fill(report, g, Skipped, ReasonFetchFailed, err)
		albumFailed(g.title, err)
		return
	}

	for _, i := range g.indexes {
		rec := &report.Records[i]
		rec.Album = a
		classify(ctx, idx, rec)
		log.Debug("classified",
			zap.String("path", rec.Image.RelPath),
			zap.Stringer("class", rec.Class),
			zap.Stringer("reason", rec.Reason))
	}
}

// classify runs the per-image decision: unique id first, capture time second.
func classify(ctx context.Context, idx catalog.Index, rec *Record) {
	img := rec.Image

	if img.UniqueID != "" {
		matches, err := idx.ByUniqueID(ctx, img.UniqueID)
		if err != nil {
			rec.Class, rec.Reason, rec.Err = Skipped, ReasonFetchFailed, err
			return
		}
		switch len(matches) {
		case 0:
		case 1:
			rec.Class, rec.Reason, rec.Match = Synced, ReasonUniqueID, &matches[0]
			return
		default:
			rec.Class, rec.Reason = Conflict, ReasonAmbiguousUniqueID
			return
		}
	}

	matches, err := idx.ByTime(ctx, img.CaptureTime)
	if err != nil {
		rec.Class, rec.Reason, rec.Err = Skipped, ReasonFetchFailed, err
		return
	}
	switch len(matches) {
	case 0:
		rec.Class, rec.Reason = ToUpload, ReasonNoMatch
	case 1:
		rec.Class, rec.Reason, rec.Match = Synced, ReasonTimeMatch, &matches[0]
	default:
		rec.Class, rec.Reason = Conflict, ReasonAmbiguousTime
	}
}

// Duplicates groups images by checksum and returns every group with more
// than one path, ordered by checksum.
func Duplicates(images []metadata.LocalImage) []DuplicateSet {
	byChecksum := make(map[string][]string)
	for _, img := range images {
		if img.Checksum == "" {
			continue
		}
		byChecksum[img.Checksum] = append(byChecksum[img.Checksum], img.RelPath)
	}
	var out []DuplicateSet
	for sum, paths := range byChecksum {
		if len(paths) < 2 {
			continue
		}
		sort.Strings(paths)
		out = append(out, DuplicateSet{Checksum: sum, Paths: paths})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Checksum < out[j].Checksum })
	return out
}
