package store

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-reconciler/internal/catalog"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "catalog.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var noon = time.Date(2015, 6, 1, 10, 30, 0, 0, time.UTC)

func TestSaveAndQuery(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	paris := catalog.Album{ID: "1", Title: "paris", NumPhotos: 2, Updated: noon}
	require.NoError(t, s.SaveAlbum(ctx, paris))
	require.NoError(t, s.SaveAlbum(ctx, catalog.Album{ID: "2", Title: "amsterdam"}))
	require.NoError(t, s.SavePhoto(ctx, catalog.Photo{ID: "p1", AlbumID: "1", Time: noon, UniqueID: "u1", Size: 10}))
	require.NoError(t, s.SavePhoto(ctx, catalog.Photo{ID: "p2", AlbumID: "1", Time: noon}))
	require.NoError(t, s.SavePhoto(ctx, catalog.Photo{ID: "p3", AlbumID: "2", Time: noon}))

	albums, err := s.Albums(ctx)
	require.NoError(t, err)
	require.Len(t, albums, 2)
	assert.Equal(t, "amsterdam", albums[0].Title)
	assert.Equal(t, paris, albums[1])

	idx, err := s.Photos(ctx, paris)
	require.NoError(t, err)

	byTime, err := idx.ByTime(ctx, noon)
	require.NoError(t, err)
	require.Len(t, byTime, 2)
	assert.Equal(t, "p1", byTime[0].ID)
	assert.Equal(t, noon, byTime[0].Time)

	byUID, err := idx.ByUniqueID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, byUID, 1)
	assert.Equal(t, int64(10), byUID[0].Size)

	byID, err := idx.ByUniqueID(ctx, "p2")
	require.NoError(t, err)
	assert.Len(t, byID, 1)

	other, err := idx.ByUniqueID(ctx, "p3")
	require.NoError(t, err)
	assert.Empty(t, other, "lookups are scoped to one album")
}

func TestSaveIsUpsert(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.SavePhoto(ctx, catalog.Photo{ID: "p1", AlbumID: "1", Title: "old"}))
	require.NoError(t, s.SavePhoto(ctx, catalog.Photo{ID: "p1", AlbumID: "1", Title: "new", Time: noon}))

	n, err := s.CountPhotos(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	idx, _ := s.Photos(ctx, catalog.Album{ID: "1"})
	got, err := idx.ByTime(ctx, noon)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Title)
}

type fakeCatalog struct {
	albums []catalog.Album
	photos map[string][]catalog.Photo
	fail   map[string]error
}

func (f *fakeCatalog) FetchAlbums(ctx context.Context) iter.Seq2[catalog.Album, error] {
	return func(yield func(catalog.Album, error) bool) {
		for _, a := range f.albums {
			if !yield(a, nil) {
				return
			}
		}
	}
}

func (f *fakeCatalog) FetchPhotos(ctx context.Context, albumID string, total int) iter.Seq2[catalog.Photo, error] {
	return func(yield func(catalog.Photo, error) bool) {
		if err := f.fail[albumID]; err != nil {
			yield(catalog.Photo{}, err)
			return
		}
		for _, p := range f.photos[albumID] {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func TestMirror(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	boom := errors.New("status 500")

	// A stale photo from a previous mirror must disappear.
	require.NoError(t, s.SavePhoto(ctx, catalog.Photo{ID: "stale", AlbumID: "1"}))

	src := &fakeCatalog{
		albums: []catalog.Album{{ID: "1", Title: "paris"}, {ID: "2", Title: "rome"}, {ID: "3", Title: "empty"}},
		photos: map[string][]catalog.Photo{
			"1": {{ID: "a", AlbumID: "1", Time: noon}, {ID: "b", AlbumID: "1"}},
		},
		fail: map[string]error{"2": boom},
	}
	stats, err := s.Mirror(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Albums)
	assert.Equal(t, 2, stats.Photos)
	assert.ErrorIs(t, stats.Failed["2"], boom)

	n, err := s.CountPhotos(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	albums, err := s.Albums(ctx)
	require.NoError(t, err)
	assert.Len(t, albums, 2)
}

func TestDeleteAlbum(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAlbum(ctx, catalog.Album{ID: "1", Title: "paris"}))
	require.NoError(t, s.SaveAlbum(ctx, catalog.Album{ID: "2", Title: "rome"}))
	require.NoError(t, s.SavePhoto(ctx, catalog.Photo{ID: "p1", AlbumID: "1"}))
	require.NoError(t, s.SavePhoto(ctx, catalog.Photo{ID: "p2", AlbumID: "2"}))

	require.NoError(t, s.DeleteAlbum(ctx, "1"))

	albums, err := s.Albums(ctx)
	require.NoError(t, err)
	require.Len(t, albums, 1)
	assert.Equal(t, "2", albums[0].ID)
	n, err := s.CountPhotos(ctx, "1")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, _ = s.CountPhotos(ctx, "2")
	assert.Equal(t, int64(1), n)
}
