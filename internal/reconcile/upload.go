package reconcile

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"photo-reconciler/internal/catalog"
)

// Uploader transfers one file into an album.
type Uploader interface {
	UploadPhoto(ctx context.Context, albumID, path, title string) (catalog.Photo, error)
}

// Upload sends every ToUpload record that has a resolved album and records
// the outcome on it. Failed uploads keep their classification and carry the
// error. It returns the number of uploaded files; the error is non-nil only
// when ctx is cancelled.
func (e *Engine) Upload(ctx context.Context, report *Report, up Uploader) (int, error) {
	var uploaded atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for i := range report.Records {
		rec := &report.Records[i]
		if rec.Class != ToUpload || rec.Album.ID == "" || rec.Uploaded != nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := e.uploadWithRetry(ctx, up, rec)
			if err != nil {
				rec.Err = err
				e.log.Warn("upload failed", zap.String("path", rec.Image.RelPath),
					zap.String("album_id", rec.Album.ID), zap.Error(err))
				return nil
			}
			rec.Uploaded = &p
			e.log.Info("uploaded", zap.String("path", rec.Image.RelPath),
				zap.String("album_id", rec.Album.ID), zap.String("photo_id", p.ID))
			uploaded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(uploaded.Load()), err
	}
	return int(uploaded.Load()), ctx.Err()
}

func (e *Engine) uploadWithRetry(ctx context.Context, up Uploader, rec *Record) (catalog.Photo, error) {
	title := filepath.Base(rec.Image.Path)
	var p catalog.Photo
	err := e.retry.Do(ctx, func() error {
		var err error
		p, err = up.UploadPhoto(ctx, rec.Album.ID, rec.Image.Path, title)
		return err
	}, func(retry int, delay time.Duration, err error) {
		e.log.Debug("retrying upload", zap.String("path", rec.Image.RelPath),
			zap.Int("attempt", retry+1), zap.Duration("delay", delay), zap.Error(err))
	})
	if err != nil {
		return catalog.Photo{}, err
	}
	if p.AlbumID == "" {
		p.AlbumID = rec.Album.ID
	}
	if p.Time.IsZero() {
		p.Time = rec.Image.CaptureTime
	}
	if p.UniqueID == "" {
		p.UniqueID = rec.Image.UniqueID
	}
	return p, nil
}
