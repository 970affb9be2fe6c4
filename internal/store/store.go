// Package store keeps a local SQLite mirror of the remote catalog so runs
// can reconcile without listing every album again.
package store

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"photo-reconciler/internal/catalog"
)

const batchSize = 200

// Store is a gorm-backed catalog mirror.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open opens or creates the database at path and migrates its schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	if err := db.AutoMigrate(&albumRow{}, &photoRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	log.Debug("store opened", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveAlbum inserts or replaces an album.
func (s *Store) SaveAlbum(ctx context.Context, a catalog.Album) error {
	row := newAlbumRow(a)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// SavePhoto inserts or replaces a photo.
func (s *Store) SavePhoto(ctx context.Context, p catalog.Photo) error {
	row := newPhotoRow(p)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// DeleteAlbum removes an album and its photos.
func (s *Store) DeleteAlbum(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("album_id = ?", id).Delete(&photoRow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&albumRow{}).Error
	})
}

// Albums returns every stored album ordered by title.
func (s *Store) Albums(ctx context.Context) ([]catalog.Album, error) {
	var rows []albumRow
	if err := s.db.WithContext(ctx).Order("title, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]catalog.Album, len(rows))
	for i, r := range rows {
		out[i] = r.album()
	}
	return out, nil
}

// Photos returns an Index that queries the stored photos of one album.
func (s *Store) Photos(_ context.Context, a catalog.Album) (catalog.Index, error) {
	return albumIndex{db: s.db, albumID: a.ID}, nil
}

// CountPhotos returns how many photos of an album are stored.
func (s *Store) CountPhotos(ctx context.Context, albumID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&photoRow{}).Where("album_id = ?", albumID).Count(&n).Error
	return n, err
}

type albumIndex struct {
	db      *gorm.DB
	albumID string
}

func (x albumIndex) ByTime(ctx context.Context, t time.Time) ([]catalog.Photo, error) {
	return x.find(ctx, "album_id = ? AND taken_at = ?", x.albumID, t.UnixMilli())
}

func (x albumIndex) ByUniqueID(ctx context.Context, id string) ([]catalog.Photo, error) {
	if id == "" {
		return nil, nil
	}
	return x.find(ctx, "album_id = ? AND (unique_id = ? OR id = ?)", x.albumID, id, id)
}

func (x albumIndex) find(ctx context.Context, query string, args ...any) ([]catalog.Photo, error) {
	var rows []photoRow
	if err := x.db.WithContext(ctx).Where(query, args...).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]catalog.Photo, len(rows))
	for i, r := range rows {
		out[i] = r.photo()
	}
	return out, nil
}

// =============================================================================
// Mirroring
// =============================================================================

// Catalog is the read side of the remote catalog.
type Catalog interface {
	FetchAlbums(ctx context.Context) iter.Seq2[catalog.Album, error]
	FetchPhotos(ctx context.Context, albumID string, total int) iter.Seq2[catalog.Photo, error]
}

// MirrorStats summarises a Mirror run.
type MirrorStats struct {
	Albums int
	Photos int
	Failed map[string]error // Album id -> fetch error
}

// Mirror copies every album and photo of the remote catalog into the store.
// Each album is written in its own transaction; an album whose photos fail
// to list is recorded in Failed and left as it was.
func (s *Store) Mirror(ctx context.Context, src Catalog) (MirrorStats, error) {
	stats := MirrorStats{Failed: map[string]error{}}
	for a, err := range src.FetchAlbums(ctx) {
		if err != nil {
			return stats, fmt.Errorf("failed to list albums: %w", err)
		}

		var rows []photoRow
		var fetchErr error
		for p, err := range src.FetchPhotos(ctx, a.ID, a.NumPhotos) {
			if err != nil {
				fetchErr = err
				break
			}
			rows = append(rows, newPhotoRow(p))
		}
		if fetchErr != nil {
			s.log.Warn("failed to mirror album", zap.String("album_id", a.ID), zap.Error(fetchErr))
			stats.Failed[a.ID] = fetchErr
			continue
		}

		album := newAlbumRow(a)
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&album).Error; err != nil {
				return err
			}
			if err := tx.Where("album_id = ?", a.ID).Delete(&photoRow{}).Error; err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, batchSize).Error
		})
		if err != nil {
			return stats, fmt.Errorf("failed to store album %s: %w", a.ID, err)
		}
		stats.Albums++
		stats.Photos += len(rows)
		s.log.Info("album mirrored", zap.String("album_id", a.ID), zap.String("title", a.Title), zap.Int("photos", len(rows)))
	}
	return stats, nil
}
