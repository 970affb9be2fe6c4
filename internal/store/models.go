package store

import (
	"time"

	"photo-reconciler/internal/catalog"
)

// albumRow is a remote album mirrored locally. Times are Unix milliseconds.
type albumRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Title     string `gorm:"index;not null"`
	Author    string
	Access    string
	Summary   string
	NumPhotos int
	Updated   int64
	Published int64
}

func (albumRow) TableName() string {
	return "albums"
}

// photoRow is a remote photo mirrored locally.
type photoRow struct {
	ID       string `gorm:"primaryKey"`
	AlbumID  string `gorm:"index:idx_photos_album_time,priority:1;not null"`
	TakenAt  int64  `gorm:"index:idx_photos_album_time,priority:2"` // Unix milliseconds, 0 when unknown
	UniqueID string `gorm:"index"`
	URL      string
	Title    string
	Size     int64
	Width    int
	Height   int
}

func (photoRow) TableName() string {
	return "photos"
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func newAlbumRow(a catalog.Album) albumRow {
	return albumRow{
		ID:        a.ID,
		Name:      a.Name,
		Title:     a.Title,
		Author:    a.Author,
		Access:    a.Access,
		Summary:   a.Summary,
		NumPhotos: a.NumPhotos,
		Updated:   toMillis(a.Updated),
		Published: toMillis(a.Published),
	}
}

func (r albumRow) album() catalog.Album {
	return catalog.Album{
		ID:        r.ID,
		Name:      r.Name,
		Title:     r.Title,
		Author:    r.Author,
		Access:    r.Access,
		Summary:   r.Summary,
		NumPhotos: r.NumPhotos,
		Updated:   fromMillis(r.Updated),
		Published: fromMillis(r.Published),
	}
}

func newPhotoRow(p catalog.Photo) photoRow {
	return photoRow{
		ID:       p.ID,
		AlbumID:  p.AlbumID,
		TakenAt:  toMillis(p.Time),
		UniqueID: p.UniqueID,
		URL:      p.URL,
		Title:    p.Title,
		Size:     p.Size,
		Width:    p.Width,
		Height:   p.Height,
	}
}

func (r photoRow) photo() catalog.Photo {
	return catalog.Photo{
		ID:       r.ID,
		AlbumID:  r.AlbumID,
		URL:      r.URL,
		Size:     r.Size,
		Time:     fromMillis(r.TakenAt),
		Title:    r.Title,
		Width:    r.Width,
		Height:   r.Height,
		UniqueID: r.UniqueID,
	}
}
