package metadata

import (
	"errors"
	"fmt"

	"github.com/rwcarlsen/goexif/exif"
)

// ErrMalformedImage is returned when a file's JPEG header cannot be parsed.
// Such files are skipped; the scan carries on.
var ErrMalformedImage = errors.New("malformed image")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedImage, fmt.Sprintf(format, args...))
}

// TagErrorKind distinguishes an absent EXIF field from an unusable one.
type TagErrorKind int

const (
	TagMissing TagErrorKind = iota // The field is not present
	TagInvalid                     // The field is present but holds an unusable value
)

func (k TagErrorKind) String() string {
	if k == TagMissing {
		return "missing"
	}
	return "invalid"
}

// TagError records why one EXIF-derived attribute could not be extracted.
// It is informational: the other attributes of the image are unaffected.
type TagError struct {
	Field exif.FieldName
	Kind  TagErrorKind
	Err   error
}

func (e TagError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tag %s %s: %v", e.Field, e.Kind, e.Err)
	}
	return fmt.Sprintf("tag %s %s", e.Field, e.Kind)
}

func (e TagError) Unwrap() error { return e.Err }

// FileError ties a per-file failure to the path that caused it.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return e.Path + ": " + e.Err.Error()
}

func (e FileError) Unwrap() error { return e.Err }
