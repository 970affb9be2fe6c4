package metadata

import (
	"path/filepath"
	"time"
)

// LocalImage is one physical JPEG file and the identity derived from it.
type LocalImage struct {
	Path    string    // Absolute location
	RelPath string    // Location relative to the scan root
	Size    int64     // File size in bytes
	ModTime time.Time // File modification time

	Checksum string // Content hash of the full file
	Width    int    // From the SOF segment, not from EXIF
	Height   int

	// CaptureTime is zero when no EXIF date could be read.
	// When TimeCorrected is set it is UTC-normalized using the GPS position;
	// otherwise it is the camera's wall-clock time expressed in UTC.
	CaptureTime   time.Time
	TimeCorrected bool
	Location      *Location

	UniqueID   string // EXIF ImageUniqueID, empty when absent
	AlbumTitle string // Parent directory name, empty for the scan root

	Issues []TagError // Fields that could not be extracted
}

// HasCaptureTime reports whether a capture time was found.
func (i LocalImage) HasCaptureTime() bool { return !i.CaptureTime.IsZero() }

// Dir returns the directory of the image relative to the scan root.
func (i LocalImage) Dir() string { return filepath.Dir(i.RelPath) }

// Location is a signed decimal GPS coordinate.
type Location struct {
	Lat, Lon float64
}

// AlbumTitle derives an album title from a path relative to the scan root:
// the name of the file's parent directory, or "" for files directly in the root.
func AlbumTitle(relPath string) string {
	dir := filepath.Dir(relPath)
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return filepath.Base(dir)
}
