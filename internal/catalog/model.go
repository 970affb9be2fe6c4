package catalog

import "time"

// Album access levels.
const (
	AccessPrivate   = "private"
	AccessProtected = "protected"
	AccessPublic    = "public"
)

// Album is a remote photo collection.
// ID is unique and immutable; Title is for display and may collide.
type Album struct {
	ID        string
	Name      string // Machine-safe identifier
	Title     string
	Author    string
	Access    string
	Summary   string
	NumPhotos int // Server-reported photo count
	Updated   time.Time
	Published time.Time
}

// Photo is a remote photo entry.
type Photo struct {
	ID       string
	AlbumID  string
	URL      string
	Size     int64
	Time     time.Time // Capture time as recorded by the service, UTC
	Title    string
	Width    int
	Height   int
	UniqueID string // EXIF ImageUniqueID kept by the service, if any
}
