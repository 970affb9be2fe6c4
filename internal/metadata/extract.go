// Package metadata derives the identity of a local photo from its bytes:
// checksum, pixel dimensions, capture time and vendor unique id.
package metadata

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"photo-reconciler/internal/scan"
)

// Options configures an Extractor.
type Options struct {
	Checksum      Algorithm      // Defaults to MD5
	FilenameDates bool           // Fall back to dates embedded in file names
	Timezone      TimezoneLookup // Optional; nil disables GPS time correction
	Logger        *zap.Logger
}

// Extractor turns scanned files into LocalImages.
type Extractor struct {
	algo          Algorithm
	filenameDates bool
	tz            TimezoneLookup
	log           *zap.Logger
}

// NewExtractor returns an Extractor for the given options.
func NewExtractor(opts Options) (*Extractor, error) {
	if _, err := opts.Checksum.New(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{
		algo:          opts.Checksum,
		filenameDates: opts.FilenameDates,
		tz:            opts.Timezone,
		log:           log,
	}, nil
}

// Extract reads one file. Only I/O failures and ErrMalformedImage are
// returned as errors; every EXIF-derived field is best effort and its
// failure is recorded in LocalImage.Issues.
func (e *Extractor) Extract(ctx context.Context, f scan.File) (LocalImage, error) {
	img := LocalImage{
		Path:       f.Path,
		RelPath:    f.RelPath,
		Size:       f.Size,
		ModTime:    f.ModTime,
		AlbumTitle: AlbumTitle(f.RelPath),
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return img, err
	}
	defer fh.Close()

	if img.Checksum, err = Checksum(fh, e.algo); err != nil {
		return img, fmt.Errorf("failed to hash: %w", err)
	}

	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return img, err
	}
	if img.Width, img.Height, err = ParseDimensions(fh); err != nil {
		return img, err
	}

	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return img, err
	}
	x, err := exif.Decode(fh)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		img.Issues = append(img.Issues, TagError{Field: "EXIF", Kind: TagMissing, Err: err})
		e.applyFilenameDate(&img)
		return img, nil
	}

	e.readTags(ctx, x, &img)
	e.applyFilenameDate(&img)
	return img, nil
}

// readTags fills the EXIF-derived fields of img. Each field is independent.
func (e *Extractor) readTags(ctx context.Context, x tagSource, img *LocalImage) {
	naive, issues := captureTime(x)
	img.Issues = append(img.Issues, issues...)

	loc, issues := gpsLocation(x)
	img.Issues = append(img.Issues, issues...)
	img.Location = loc

	if !naive.IsZero() {
		img.CaptureTime = naive
		if loc != nil && e.tz != nil {
			corrected, err := correctTime(ctx, e.tz, *loc, naive)
			if err != nil {
				e.log.Warn("timezone lookup failed, keeping camera time",
					zap.String("path", img.Path), zap.Error(err))
			} else {
				img.CaptureTime = corrected
				img.TimeCorrected = true
			}
		}
	}

	if uid, terr := readString(x, exif.ImageUniqueID); terr == nil {
		img.UniqueID = uid
	} else if terr.Kind == TagInvalid {
		img.Issues = append(img.Issues, *terr)
	}
}

func (e *Extractor) applyFilenameDate(img *LocalImage) {
	if !e.filenameDates || img.HasCaptureTime() {
		return
	}
	if t, ok := dateFromFilename(filepath.Base(img.Path)); ok {
		img.CaptureTime = t
	}
}

// =============================================================================
// Pipeline
// =============================================================================

// ExtractAll extracts every file in the sequence using up to workers
// concurrent extractions. Files that fail are reported in the returned
// FileErrors and left out of the images, which come back sorted by
// relative path. The error is non-nil only when ctx is cancelled.
func (e *Extractor) ExtractAll(ctx context.Context, files iter.Seq2[scan.File, error], workers int) ([]LocalImage, []FileError, error) {
	if workers < 1 {
		workers = 1
	}
	var (
		mu     sync.Mutex
		images []LocalImage
		failed []FileError
	)
	fail := func(path string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, FileError{Path: path, Err: err})
		e.log.Warn("skipping file", zap.String("path", path), zap.Error(err))
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for f, err := range files {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			fail("", err)
			continue
		}
		g.Go(func() error {
			img, err := e.Extract(ctx, f)
			if err != nil {
				fail(f.Path, err)
				return nil
			}
			mu.Lock()
			images = append(images, img)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	sort.Slice(images, func(i, j int) bool { return images[i].RelPath < images[j].RelPath })
	sort.Slice(failed, func(i, j int) bool { return failed[i].Path < failed[j].Path })
	return images, failed, ctx.Err()
}
