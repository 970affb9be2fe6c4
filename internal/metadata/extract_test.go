package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-reconciler/internal/scan"
)

type fakeTimezone struct {
	offset   int
	err      error
	calls    int
	lat, lon float64
	at       time.Time
}

func (f *fakeTimezone) RawOffset(ctx context.Context, lat, lon float64, at time.Time) (int, error) {
	f.calls++
	f.lat, f.lon, f.at = lat, lon, at
	return f.offset, f.err
}

func fileFor(t *testing.T, root, path string) scan.File {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	rel, err := filepath.Rel(root, path)
	require.NoError(t, err)
	return scan.File{Path: path, RelPath: rel, Size: info.Size(), ModTime: info.ModTime()}
}

func newExtractor(t *testing.T, opts Options) *Extractor {
	t.Helper()
	e, err := NewExtractor(opts)
	require.NoError(t, err)
	return e
}

func fullExif() []byte {
	return buildTIFF(
		[]ifdEntry{asciiTag(tagDateTime, "2010:01:01 00:00:00")},
		[]ifdEntry{
			asciiTag(tagDateTimeOriginal, "2015:06:01 12:30:00"),
			asciiTag(tagDateTimeDigitized, "2015:06:01 12:31:00"),
			asciiTag(tagImageUniqueID, "0d4bfa6c1e9b4c7a8a1c2b3d4e5f6071"),
		},
		parisGPS(),
	)
}

func TestExtractAllFields(t *testing.T) {
	root := t.TempDir()
	path := writeFixture(t, root, filepath.Join("2015", "paris", "IMG_0001.jpg"), buildJPEG(1024, 768, fullExif()))
	tz := &fakeTimezone{offset: 7200}

	img, err := newExtractor(t, Options{Timezone: tz}).Extract(context.Background(), fileFor(t, root, path))
	require.NoError(t, err)

	assert.Equal(t, 1024, img.Width)
	assert.Equal(t, 768, img.Height)
	assert.Len(t, img.Checksum, 32)
	assert.Equal(t, "paris", img.AlbumTitle)
	assert.Equal(t, "0d4bfa6c1e9b4c7a8a1c2b3d4e5f6071", img.UniqueID)

	require.NotNil(t, img.Location)
	assert.InDelta(t, 48.858222, img.Location.Lat, 1e-5)
	assert.InDelta(t, 2.294500, img.Location.Lon, 1e-5)

	// 12:30 local at UTC+2 is 10:30 UTC.
	assert.True(t, img.TimeCorrected)
	assert.Equal(t, time.Date(2015, 6, 1, 10, 30, 0, 0, time.UTC), img.CaptureTime)
	assert.Equal(t, 1, tz.calls)
	assert.Equal(t, time.Date(2015, 6, 1, 12, 30, 0, 0, time.UTC), tz.at)
	assert.Empty(t, img.Issues)
}

func TestExtractTimezoneFailureKeepsCameraTime(t *testing.T) {
	root := t.TempDir()
	path := writeFixture(t, root, filepath.Join("paris", "a.jpg"), buildJPEG(10, 10, fullExif()))
	tz := &fakeTimezone{err: errors.New("quota exceeded")}

	img, err := newExtractor(t, Options{Timezone: tz}).Extract(context.Background(), fileFor(t, root, path))
	require.NoError(t, err)

	assert.False(t, img.TimeCorrected)
	assert.Equal(t, time.Date(2015, 6, 1, 12, 30, 0, 0, time.UTC), img.CaptureTime)
	assert.Equal(t, "0d4bfa6c1e9b4c7a8a1c2b3d4e5f6071", img.UniqueID)
}

func TestExtractSouthWestHemisphere(t *testing.T) {
	root := t.TempDir()
	gps := []ifdEntry{
		asciiTag(tagGPSLatitudeRef, "S"),
		rationalTag(tagGPSLatitude, [2]uint32{33, 1}, [2]uint32{52, 1}, [2]uint32{0, 1}),
		asciiTag(tagGPSLongitudeRef, "W"),
		rationalTag(tagGPSLongitude, [2]uint32{70, 1}, [2]uint32{30, 1}, [2]uint32{0, 1}),
	}
	data := buildJPEG(10, 10, buildTIFF(nil, []ifdEntry{asciiTag(tagDateTimeOriginal, "2019:03:04 05:06:07")}, gps))
	path := writeFixture(t, root, "sw.jpg", data)
	tz := &fakeTimezone{offset: -10800}

	img, err := newExtractor(t, Options{Timezone: tz}).Extract(context.Background(), fileFor(t, root, path))
	require.NoError(t, err)

	require.NotNil(t, img.Location)
	assert.InDelta(t, -33.866667, img.Location.Lat, 1e-5)
	assert.InDelta(t, -70.5, img.Location.Lon, 1e-5)
	assert.InDelta(t, -33.866667, tz.lat, 1e-5)
	assert.Equal(t, time.Date(2019, 3, 4, 8, 6, 7, 0, time.UTC), img.CaptureTime)
	assert.Equal(t, "", img.AlbumTitle)
}

func TestExtractDateFallbackOrder(t *testing.T) {
	root := t.TempDir()
	onlyGeneric := buildTIFF([]ifdEntry{asciiTag(tagDateTime, "2010:01:01 08:00:00")}, nil, nil)
	badOriginal := buildTIFF(
		[]ifdEntry{asciiTag(tagDateTime, "2010:01:01 08:00:00")},
		[]ifdEntry{
			asciiTag(tagDateTimeOriginal, "not a date"),
			asciiTag(tagDateTimeDigitized, "2012:02:02 09:00:00"),
		},
		nil,
	)
	e := newExtractor(t, Options{})

	img, err := e.Extract(context.Background(), fileFor(t, root, writeFixture(t, root, "a.jpg", buildJPEG(1, 1, onlyGeneric))))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2010, 1, 1, 8, 0, 0, 0, time.UTC), img.CaptureTime)
	assert.False(t, img.TimeCorrected)
	assert.Nil(t, img.Location)

	img, err = e.Extract(context.Background(), fileFor(t, root, writeFixture(t, root, "b.jpg", buildJPEG(1, 1, badOriginal))))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2012, 2, 2, 9, 0, 0, 0, time.UTC), img.CaptureTime)
	require.NotEmpty(t, img.Issues)
	assert.Equal(t, exif.DateTimeOriginal, img.Issues[0].Field)
	assert.Equal(t, TagInvalid, img.Issues[0].Kind)
}

func TestExtractBadHemisphereKeepsOtherFields(t *testing.T) {
	root := t.TempDir()
	gps := parisGPS()
	gps[0] = asciiTag(tagGPSLatitudeRef, "Q")
	data := buildJPEG(3, 2, buildTIFF(nil, []ifdEntry{
		asciiTag(tagDateTimeOriginal, "2015:06:01 12:30:00"),
		asciiTag(tagImageUniqueID, "abc"),
	}, gps))
	tz := &fakeTimezone{offset: 3600}

	img, err := newExtractor(t, Options{Timezone: tz}).Extract(context.Background(), fileFor(t, root, writeFixture(t, root, "q.jpg", data)))
	require.NoError(t, err)

	assert.Nil(t, img.Location)
	assert.Zero(t, tz.calls)
	assert.Equal(t, time.Date(2015, 6, 1, 12, 30, 0, 0, time.UTC), img.CaptureTime)
	assert.Equal(t, "abc", img.UniqueID)
	assert.Contains(t, img.Issues, TagError{Field: exif.GPSLatitudeRef, Kind: TagInvalid, Err: errBadHemisphere})
}

func TestExtractWithoutExif(t *testing.T) {
	root := t.TempDir()
	path := writeFixture(t, root, filepath.Join("holiday", "IMG_20250619_123456.jpg"), buildJPEG(5, 4, nil))

	img, err := newExtractor(t, Options{}).Extract(context.Background(), fileFor(t, root, path))
	require.NoError(t, err)
	assert.False(t, img.HasCaptureTime())
	assert.Equal(t, 5, img.Width)
	require.Len(t, img.Issues, 1)
	assert.Equal(t, TagMissing, img.Issues[0].Kind)

	img, err = newExtractor(t, Options{FilenameDates: true}).Extract(context.Background(), fileFor(t, root, path))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 19, 12, 34, 56, 0, time.UTC), img.CaptureTime)
}

func TestExtractMalformed(t *testing.T) {
	root := t.TempDir()
	path := writeFixture(t, root, "broken.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J'})

	_, err := newExtractor(t, Options{}).Extract(context.Background(), fileFor(t, root, path))
	assert.ErrorIs(t, err, ErrMalformedImage)
}

func TestNewExtractorRejectsUnknownChecksum(t *testing.T) {
	_, err := NewExtractor(Options{Checksum: "sha3"})
	assert.Error(t, err)
}

func TestExtractAllIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, filepath.Join("paris", "a.jpg"), buildJPEG(10, 10, fullExif()))
	writeFixture(t, root, filepath.Join("paris", "b.jpg"), buildJPEG(20, 10, nil))
	writeFixture(t, root, filepath.Join("rome", "c.jpg"), buildJPEG(30, 10, nil))
	writeFixture(t, root, filepath.Join("rome", "broken.jpg"), []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00})

	s := scan.New(scan.Options{Recursive: true})
	e := newExtractor(t, Options{})

	type key struct{ rel, sum string }
	run := func() map[key]bool {
		images, failed, err := e.ExtractAll(context.Background(), s.Scan(root), 3)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.ErrorIs(t, failed[0], ErrMalformedImage)
		set := map[key]bool{}
		for _, img := range images {
			set[key{img.RelPath, img.Checksum}] = true
		}
		return set
	}

	first := run()
	assert.Len(t, first, 3)
	assert.Equal(t, first, run())
}

func TestExtractAllSortsByPath(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"z.jpg", "a.jpg", filepath.Join("m", "x.jpg")} {
		writeFixture(t, root, rel, buildJPEG(1, 1, nil))
	}
	images, failed, err := newExtractor(t, Options{}).ExtractAll(context.Background(), scan.New(scan.Options{Recursive: true}).Scan(root), 2)
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, images, 3)
	assert.Equal(t, "a.jpg", images[0].RelPath)
	assert.Equal(t, filepath.Join("m", "x.jpg"), images[1].RelPath)
	assert.Equal(t, "z.jpg", images[2].RelPath)
}

func TestAlbumTitle(t *testing.T) {
	assert.Equal(t, "", AlbumTitle("a.jpg"))
	assert.Equal(t, "summer", AlbumTitle(filepath.Join("summer", "a.jpg")))
	assert.Equal(t, "deep", AlbumTitle(filepath.Join("summer", "deep", "a.jpg")))
}
