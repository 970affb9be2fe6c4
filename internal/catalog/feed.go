package catalog

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// =============================================================================
// GData JSON feed
// =============================================================================

// Values in the feed are wrapped: {"gphoto$access": {"$t": "private"}}.
// Numbers arrive either as JSON numbers or as strings.
type gvalue struct {
	T string
}

func (v *gvalue) UnmarshalJSON(b []byte) error {
	var raw struct {
		T json.RawMessage `json:"$t"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw.T) == 0 || string(raw.T) == "null" {
		return nil
	}
	if raw.T[0] == '"' {
		return json.Unmarshal(raw.T, &v.T)
	}
	v.T = string(raw.T)
	return nil
}

func (v gvalue) asInt() (int64, error) {
	if v.T == "" {
		return 0, nil
	}
	return strconv.ParseInt(v.T, 10, 64)
}

func (v gvalue) asTime() (time.Time, error) {
	if v.T == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v.T)
}

type feedEntry struct {
	ID        gvalue `json:"gphoto$id"`
	Name      gvalue `json:"gphoto$name"`
	Title     gvalue `json:"title"`
	Summary   gvalue `json:"summary"`
	Access    gvalue `json:"gphoto$access"`
	NumPhotos gvalue `json:"gphoto$numphotos"`
	Updated   gvalue `json:"updated"`
	Published gvalue `json:"published"`
	Author    []struct {
		Name gvalue `json:"name"`
	} `json:"author"`

	AlbumID   gvalue `json:"gphoto$albumid"`
	Timestamp gvalue `json:"gphoto$timestamp"`
	Size      gvalue `json:"gphoto$size"`
	Width     gvalue `json:"gphoto$width"`
	Height    gvalue `json:"gphoto$height"`
	Media     struct {
		Content []struct {
			URL string `json:"url"`
		} `json:"media$content"`
	} `json:"media$group"`
	Exif struct {
		UniqueID gvalue `json:"exif$imageUniqueID"`
	} `json:"exif$tags"`
}

// feedPage is one page of a paginated feed. Entry is nil when the
// server left the field out altogether.
type feedPage struct {
	Entry        []feedEntry `json:"entry"`
	TotalResults gvalue      `json:"openSearch$totalResults"`
}

func decodePage(r io.Reader) (feedPage, int, error) {
	var env struct {
		Feed feedPage `json:"feed"`
	}
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return feedPage{}, 0, err
	}
	total, err := env.Feed.TotalResults.asInt()
	if err != nil {
		return feedPage{}, 0, fmt.Errorf("bad totalResults: %w", err)
	}
	return env.Feed, int(total), nil
}

// decodeAlbumFeed reads a single-album feed, whose album fields sit at the
// feed level rather than in an entry.
func decodeAlbumFeed(r io.Reader) (Album, error) {
	var env struct {
		Feed feedEntry `json:"feed"`
	}
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return Album{}, err
	}
	return env.Feed.album()
}

func (e feedEntry) album() (Album, error) {
	n, err := e.NumPhotos.asInt()
	if err != nil {
		return Album{}, fmt.Errorf("album %s: bad numphotos: %w", e.ID.T, err)
	}
	updated, err := e.Updated.asTime()
	if err != nil {
		return Album{}, fmt.Errorf("album %s: bad updated: %w", e.ID.T, err)
	}
	published, err := e.Published.asTime()
	if err != nil {
		return Album{}, fmt.Errorf("album %s: bad published: %w", e.ID.T, err)
	}
	a := Album{
		ID:        e.ID.T,
		Name:      e.Name.T,
		Title:     e.Title.T,
		Access:    e.Access.T,
		Summary:   e.Summary.T,
		NumPhotos: int(n),
		Updated:   updated,
		Published: published,
	}
	if len(e.Author) > 0 {
		a.Author = e.Author[0].Name.T
	}
	return a, nil
}

func (e feedEntry) photo() (Photo, error) {
	ms, err := e.Timestamp.asInt()
	if err != nil {
		return Photo{}, fmt.Errorf("photo %s: bad timestamp: %w", e.ID.T, err)
	}
	size, err := e.Size.asInt()
	if err != nil {
		return Photo{}, fmt.Errorf("photo %s: bad size: %w", e.ID.T, err)
	}
	w, err := e.Width.asInt()
	if err != nil {
		return Photo{}, fmt.Errorf("photo %s: bad width: %w", e.ID.T, err)
	}
	h, err := e.Height.asInt()
	if err != nil {
		return Photo{}, fmt.Errorf("photo %s: bad height: %w", e.ID.T, err)
	}
	p := Photo{
		ID:       e.ID.T,
		AlbumID:  e.AlbumID.T,
		Size:     size,
		Title:    e.Title.T,
		Width:    int(w),
		Height:   int(h),
		UniqueID: e.Exif.UniqueID.T,
	}
	if ms != 0 {
		p.Time = time.UnixMilli(ms).UTC()
	}
	if len(e.Media.Content) > 0 {
		p.URL = e.Media.Content[0].URL
	}
	return p, nil
}

// =============================================================================
// Atom XML (writes)
// =============================================================================

const (
	nsAtom   = "http://www.w3.org/2005/Atom"
	nsGPhoto = "http://schemas.google.com/photos/2007"
)

type atomEntry struct {
	XMLName xml.Name `xml:"http://www.w3.org/2005/Atom entry"`
	ID      string   `xml:"http://schemas.google.com/photos/2007 id"`
}

// entryID returns the gphoto:id of an Atom entry document.
func entryID(r io.Reader) (string, error) {
	var e atomEntry
	if err := xml.NewDecoder(r).Decode(&e); err != nil {
		return "", err
	}
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return "", fmt.Errorf("response has no gphoto:id")
	}
	return id, nil
}

func escape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

// albumEntry is the Atom document that creates an album.
func albumEntry(title, access string, now time.Time) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<entry xmlns="` + nsAtom + `" xmlns:media="http://search.yahoo.com/mrss/" xmlns:gphoto="` + nsGPhoto + `">
  <category scheme="http://schemas.google.com/g/2005#kind" term="http://schemas.google.com/photos/2007#album"/>
  <media:group/>
  <title type="text">` + escape(title) + `</title>
  <summary type="text"></summary>
  <gphoto:timestamp>` + strconv.FormatInt(now.UnixMilli(), 10) + `</gphoto:timestamp>
  <gphoto:commentingEnabled>true</gphoto:commentingEnabled>
  <gphoto:access>` + escape(access) + `</gphoto:access>
</entry>`
}
