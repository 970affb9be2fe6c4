// Package report renders reconciliation results as a CSV manifest and a
// printed summary.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"photo-reconciler/internal/catalog"
	"photo-reconciler/internal/metadata"
	"photo-reconciler/internal/reconcile"
)

const (
	dateFormat = "2006-01-02 15:04:05"
	mb         = 1024 * 1024
)

// Header is the first row of every CSV report.
var Header = []string{
	"run_id",            // Identifies the run that produced the row
	"filename",          // Base filename
	"relative_path",     // Path relative to the scan root
	"album_title",       // Title derived from the parent directory
	"album_id",          // Resolved remote album, if any
	"classification",    // synced, to_upload, conflict or skipped
	"reason",            // Why the image got its classification
	"capture_date",      // EXIF capture time, UTC
	"time_corrected",    // Whether GPS timezone correction was applied
	"unique_id",         // EXIF ImageUniqueID
	"width",             // Pixel width from the SOF segment
	"height",            // Pixel height from the SOF segment
	"file_size_bytes",   // Size in bytes
	"file_size_mb",      // Size in megabytes
	"file_hash",         // Content checksum
	"duplicate_count",   // Number of local files sharing the checksum
	"remote_photo_id",   // Matched remote photo
	"uploaded_photo_id", // Photo created by this run
	"error",             // Remote failure behind the decision
}

// Write writes the report as CSV, one row per record sorted by relative path.
func Write(w io.Writer, r *reconcile.Report) error {
	dupes := make(map[string]int)
	for _, d := range r.Duplicates {
		dupes[d.Checksum] = len(d.Paths)
	}

	records := append([]reconcile.Record(nil), r.Records...)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Image.RelPath < records[j].Image.RelPath
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(row(r, rec, dupes)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(r *reconcile.Report, rec reconcile.Record, dupes map[string]int) []string {
	img := rec.Image
	capture := ""
	if img.HasCaptureTime() {
		capture = img.CaptureTime.UTC().Format(dateFormat)
	}
	var matched, uploaded, errText string
	if rec.Match != nil {
		matched = rec.Match.ID
	}
	if rec.Uploaded != nil {
		uploaded = rec.Uploaded.ID
	}
	if rec.Err != nil {
		errText = rec.Err.Error()
	}
	dup := ""
	if n := dupes[img.Checksum]; n > 1 {
		dup = strconv.Itoa(n)
	}
	return []string{
		r.RunID.String(),
		filepath.Base(img.RelPath),
		filepath.ToSlash(img.RelPath),
		img.AlbumTitle,
		rec.Album.ID,
		rec.Class.String(),
		rec.Reason.String(),
		capture,
		strconv.FormatBool(img.TimeCorrected),
		img.UniqueID,
		strconv.Itoa(img.Width),
		strconv.Itoa(img.Height),
		strconv.FormatInt(img.Size, 10),
		fmt.Sprintf("%.2f", float64(img.Size)/mb),
		img.Checksum,
		dup,
		matched,
		uploaded,
		errText,
	}
}

// WriteFile writes the CSV report to path, creating its directory.
func WriteFile(path string, r *reconcile.Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// =============================================================================
// Summary
// =============================================================================

// PrintSummary prints classification counts, duplicate sets, album errors
// and the files that could not be read.
func PrintSummary(w io.Writer, r *reconcile.Report, failed []metadata.FileError) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Run %s\n", r.RunID)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	for _, c := range reconcile.Classifications {
		fmt.Fprintf(w, "  %-10s %d\n", c.String()+":", r.Count(c))
	}
	if n := r.Uploaded(); n > 0 {
		fmt.Fprintf(w, "  %-10s %d\n", "uploaded:", n)
	}

	if len(r.Duplicates) > 0 {
		fmt.Fprintf(w, "\nDuplicate files (%d sets):\n", len(r.Duplicates))
		for _, d := range r.Duplicates {
			fmt.Fprintf(w, "  %s\n", d.Checksum)
			for _, p := range d.Paths {
				fmt.Fprintf(w, "    %s\n", p)
			}
		}
	}

	if len(r.AlbumErrors) > 0 {
		titles := make([]string, 0, len(r.AlbumErrors))
		for t := range r.AlbumErrors {
			titles = append(titles, t)
		}
		sort.Strings(titles)
		fmt.Fprintf(w, "\nAlbums not reconciled (%d):\n", len(titles))
		for _, t := range titles {
			fmt.Fprintf(w, "  %s: %v\n", t, r.AlbumErrors[t])
		}
	}

	if len(failed) > 0 {
		fmt.Fprintf(w, "\nUnreadable files (%d):\n", len(failed))
		for _, f := range failed {
			fmt.Fprintf(w, "  %v\n", f)
		}
	}
}

// =============================================================================
// Listings
// =============================================================================

// PrintAlbums prints one line per album ordered by title, then id.
func PrintAlbums(w io.Writer, albums []catalog.Album) {
	sorted := append([]catalog.Album(nil), albums...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Title != sorted[j].Title {
			return sorted[i].Title < sorted[j].Title
		}
		return sorted[i].ID < sorted[j].ID
	})
	for _, a := range sorted {
		fmt.Fprintf(w, "%-20s %6d  %-9s %s\n", a.ID, a.NumPhotos, a.Access, a.Title)
	}
	fmt.Fprintf(w, "%d albums\n", len(sorted))
}

// PrintPhotos prints one line per photo in the order given. Photos without a
// capture time show a dash.
func PrintPhotos(w io.Writer, photos []catalog.Photo) {
	for _, p := range photos {
		taken := "-"
		if !p.Time.IsZero() {
			taken = p.Time.UTC().Format(dateFormat)
		}
		fmt.Fprintf(w, "%-20s %-19s %5dx%-5d %s\n", p.ID, taken, p.Width, p.Height, p.Title)
	}
	fmt.Fprintf(w, "%d photos\n", len(photos))
}
