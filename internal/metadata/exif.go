package metadata

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// =============================================================================
// EXIF Tags
// =============================================================================

// This is what dates look like in EXIF tags.
const exifDateFormat = "2006:01:02 15:04:05"

// captureTimeTags lists the EXIF fields that may hold the capture time, most
// specific first. The generic Image DateTime is only a last resort.
var captureTimeTags = []exif.FieldName{
	exif.DateTimeOriginal,
	exif.DateTimeDigitized,
	exif.DateTime,
}

// Some phones and cameras write 2002-12-08 12:00:00 into date fields.
var exifDateBug = time.Date(2002, 12, 8, 12, 0, 0, 0, time.UTC)

var errBadHemisphere = errors.New("unknown hemisphere reference")

// TimezoneLookup returns the raw UTC offset, in seconds, at a position and time.
type TimezoneLookup interface {
	RawOffset(ctx context.Context, lat, lon float64, at time.Time) (int, error)
}

// tagSource is satisfied by *exif.Exif.
type tagSource interface {
	Get(name exif.FieldName) (*tiff.Tag, error)
}

func lookup(x tagSource, name exif.FieldName) (*tiff.Tag, *TagError) {
	tag, err := x.Get(name)
	if err != nil {
		if exif.IsTagNotPresentError(err) {
			return nil, &TagError{Field: name, Kind: TagMissing}
		}
		return nil, &TagError{Field: name, Kind: TagInvalid, Err: err}
	}
	return tag, nil
}

// readString returns a trimmed ASCII tag value.
func readString(x tagSource, name exif.FieldName) (string, *TagError) {
	tag, terr := lookup(x, name)
	if terr != nil {
		return "", terr
	}
	if tag.Format() != tiff.StringVal {
		return "", &TagError{Field: name, Kind: TagInvalid, Err: fmt.Errorf("not a string value")}
	}
	s, err := tag.StringVal()
	if err != nil {
		return "", &TagError{Field: name, Kind: TagInvalid, Err: err}
	}
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" {
		return "", &TagError{Field: name, Kind: TagMissing}
	}
	return s, nil
}

// readRationals returns the n rational values of a tag as big.Rats.
// Zero denominators are rejected rather than handed to big.NewRat.
func readRationals(x tagSource, name exif.FieldName, n int) ([]*big.Rat, *TagError) {
	tag, terr := lookup(x, name)
	if terr != nil {
		return nil, terr
	}
	if tag.Format() != tiff.RatVal || int(tag.Count) != n {
		return nil, &TagError{Field: name, Kind: TagInvalid, Err: fmt.Errorf("want %d rationals", n)}
	}
	out := make([]*big.Rat, n)
	for i := range out {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return nil, &TagError{Field: name, Kind: TagInvalid, Err: err}
		}
		if den == 0 {
			return nil, &TagError{Field: name, Kind: TagInvalid, Err: fmt.Errorf("zero denominator")}
		}
		out[i] = big.NewRat(num, den)
	}
	return out, nil
}

// =============================================================================
// Capture Time
// =============================================================================

// captureTime returns the first usable date in captureTimeTags order.
// Invalid tags met on the way are always reported; absent ones only when no
// date was found at all. The result is naive wall-clock time expressed in UTC.
func captureTime(x tagSource) (time.Time, []TagError) {
	var issues, missing []TagError
	for _, name := range captureTimeTags {
		s, terr := readString(x, name)
		if terr != nil {
			if terr.Kind == TagMissing {
				missing = append(missing, *terr)
			} else {
				issues = append(issues, *terr)
			}
			continue
		}
		t, err := time.ParseInLocation(exifDateFormat, s, time.UTC)
		if err != nil {
			issues = append(issues, TagError{Field: name, Kind: TagInvalid, Err: err})
			continue
		}
		if t.Equal(exifDateBug) {
			issues = append(issues, TagError{Field: name, Kind: TagInvalid, Err: fmt.Errorf("known camera date bug")})
			continue
		}
		return t, issues
	}
	return time.Time{}, append(issues, missing...)
}

// correctTime shifts a naive capture time by the raw UTC offset of the place
// it was taken. The naive time is returned unchanged when the lookup fails.
func correctTime(ctx context.Context, tz TimezoneLookup, loc Location, naive time.Time) (time.Time, error) {
	offset, err := tz.RawOffset(ctx, loc.Lat, loc.Lon, naive)
	if err != nil {
		return naive, err
	}
	return naive.Add(-time.Duration(offset) * time.Second), nil
}

// =============================================================================
// GPS Location
// =============================================================================

// 60 in big.Rat format for conversion
var rational60 = big.NewRat(60, 1)

// toDecimalDegrees converts degrees, minutes and seconds to decimal degrees.
func toDecimalDegrees(deg, min, sec *big.Rat) float64 {
	d := new(big.Rat).Quo(sec, rational60)
	d.Add(d, min)
	d.Quo(d, rational60)
	d.Add(d, deg)
	f, _ := d.Float64()
	return f
}

// coordinate reads one signed GPS axis from its value and reference tags.
func coordinate(x tagSource, value, ref exif.FieldName, negative, positive string) (float64, *TagError) {
	hemisphere, terr := readString(x, ref)
	if terr != nil {
		return 0, terr
	}
	dms, terr := readRationals(x, value, 3)
	if terr != nil {
		return 0, terr
	}
	v := toDecimalDegrees(dms[0], dms[1], dms[2])
	switch strings.ToUpper(hemisphere) {
	case positive:
		return v, nil
	case negative:
		return -v, nil
	}
	return 0, &TagError{Field: ref, Kind: TagInvalid, Err: errBadHemisphere}
}

// gpsLocation returns the signed position when latitude, longitude and both
// hemisphere references are all usable.
func gpsLocation(x tagSource) (*Location, []TagError) {
	var issues []TagError
	lat, terr := coordinate(x, exif.GPSLatitude, exif.GPSLatitudeRef, "S", "N")
	if terr != nil {
		issues = append(issues, *terr)
	}
	lon, terr2 := coordinate(x, exif.GPSLongitude, exif.GPSLongitudeRef, "W", "E")
	if terr2 != nil {
		issues = append(issues, *terr2)
	}
	if terr != nil || terr2 != nil {
		return nil, issues
	}
	return &Location{Lat: lat, Lon: lon}, nil
}
