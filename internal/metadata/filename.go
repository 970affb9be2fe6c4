package metadata

import (
	"regexp"
	"time"
)

// datePatterns contains regex patterns for extracting dates from filenames.
// Patterns are tried in order; first match wins.
var datePatterns = []struct {
	regex  *regexp.Regexp
	layout string
}{
	// Generic timestamp: IMG_20250619_123456.jpg
	{regexp.MustCompile(`(\d{8}_\d{6})`), "20060102_150405"},

	// ISO date: 2025-06-19_photo.jpg
	{regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`), "2006-01-02"},

	// Compact date: 20250619_photo.jpg (last resort, less specific)
	{regexp.MustCompile(`(\d{8})`), "20060102"},
}

// dateFromFilename attempts to extract a date from a file name.
func dateFromFilename(name string) (time.Time, bool) {
	for _, p := range datePatterns {
		m := p.regex.FindStringSubmatch(name)
		if len(m) < 2 {
			continue
		}
		if t, err := time.ParseInLocation(p.layout, m[1], time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
