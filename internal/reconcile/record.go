package reconcile

import (
	"github.com/google/uuid"

	"photo-reconciler/internal/catalog"
	"photo-reconciler/internal/metadata"
)

// Classification is the outcome of reconciling one local image.
type Classification int

const (
	Synced   Classification = iota // Already present remotely
	ToUpload                       // Missing remotely
	Conflict                       // Cannot be decided without guessing
	Skipped                        // Not reconciled
)

var classNames = [...]string{"synced", "to_upload", "conflict", "skipped"}

func (c Classification) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return "unknown"
	}
	return classNames[c]
}

// Classifications lists every classification in report order.
var Classifications = []Classification{Synced, ToUpload, Conflict, Skipped}

// Reason explains a classification.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNoTime
	ReasonNoAlbum
	ReasonUniqueID
	ReasonTimeMatch
	ReasonNoMatch
	ReasonAmbiguousTime
	ReasonAmbiguousUniqueID
	ReasonTitleConflict
	ReasonAlbumMissing
	ReasonFetchFailed
	ReasonCreateFailed
)

var reasonNames = [...]string{
	"",
	"no_capture_time",
	"no_album",
	"unique_id_match",
	"time_match",
	"no_match",
	"ambiguous_time",
	"ambiguous_unique_id",
	"title_conflict",
	"album_missing",
	"fetch_failed",
	"create_failed",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}
	return reasonNames[r]
}

// Record is the decision for one local image in one run.
type Record struct {
	Image    metadata.LocalImage
	Album    catalog.Album  // Zero when no album was resolved
	Match    *catalog.Photo // The remote photo the image was matched to
	Class    Classification
	Reason   Reason
	Err      error          // Remote or lookup failure behind the decision
	Uploaded *catalog.Photo // Set once an upload succeeded
}

// DuplicateSet is a group of local files with identical content.
type DuplicateSet struct {
	Checksum string
	Paths    []string // Relative paths, sorted
}

// Report is the result of one run.
type Report struct {
	RunID      uuid.UUID
	Records    []Record // In input order
	Duplicates []DuplicateSet
	// AlbumErrors holds the remote failures that stopped an album from
	// being reconciled, keyed by album title.
	AlbumErrors map[string]error
}

// Count returns the number of records with classification c.
func (r *Report) Count(c Classification) int {
	n := 0
	for _, rec := range r.Records {
		if rec.Class == c {
			n++
		}
	}
	return n
}

// Uploaded returns the number of records uploaded during the run.
func (r *Report) Uploaded() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Uploaded != nil {
			n++
		}
	}
	return n
}
