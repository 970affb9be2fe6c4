// Package catalog reads and writes the remote photo catalog: a paginated
// feed of albums, each holding a paginated feed of photos.
package catalog

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// =============================================================================
// Configuration
// =============================================================================

const (
	DefaultBaseURL  = "https://picasaweb.google.com/data"
	DefaultPageSize = 50
	DefaultTimeout  = 30 * time.Second

	albumFields = "entry(title,gphoto:id,gphoto:name,gphoto:access,gphoto:numphotos,updated,published,author(name))," +
		"openSearch:totalResults"
	photoFields = "entry(title,gphoto:id,gphoto:albumid,gphoto:timestamp,gphoto:size,gphoto:width,gphoto:height," +
		"media:group(media:content),exif:tags(exif:imageUniqueID)),openSearch:totalResults"
	singleAlbumFields = "title,gphoto:id,gphoto:name,gphoto:access,gphoto:numphotos,updated,published,author(name)"
)

// Options configures a Client.
type Options struct {
	BaseURL  string // Defaults to DefaultBaseURL
	User     string // Account name; an e-mail address is reduced to its local part
	Token    string // OAuth2 bearer token
	PageSize int    // Entries requested per page, defaults to DefaultPageSize
	Timeout  time.Duration
	Logger   *zap.Logger

	// HTTPClient is the base client the bearer transport wraps.
	// Tests inject httptest clients here.
	HTTPClient *http.Client
}

// Client talks to the remote catalog. It is safe for concurrent use.
type Client struct {
	http     *http.Client
	base     string
	user     string
	pageSize int
	log      *zap.Logger
}

// NewClient returns a Client authenticating every request with opts.Token.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: opts.Token,
		TokenType:   "Bearer",
	}))
	hc.Timeout = timeout

	return &Client{
		http:     hc,
		base:     base,
		user:     Username(opts.User),
		pageSize: pageSize,
		log:      log,
	}
}

// Username reduces an account e-mail to the user name used in feed URLs.
func Username(login string) string {
	name, _, _ := strings.Cut(login, "@")
	return name
}

func (c *Client) feedURL(parts ...string) string {
	return c.base + "/feed/api/user/" + url.PathEscape(c.user) + joinPath(parts)
}

func (c *Client) entryURL(parts ...string) string {
	return c.base + "/entry/api/user/" + url.PathEscape(c.user) + joinPath(parts)
}

func joinPath(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// =============================================================================
// Reads
// =============================================================================

// FetchAlbums lazily lists every album of the user.
func (c *Client) FetchAlbums(ctx context.Context) iter.Seq2[Album, error] {
	params := url.Values{"kind": {"album"}, "fields": {albumFields}}
	return func(yield func(Album, error) bool) {
		for e, err := range c.paginate(ctx, c.feedURL(), params, 0) {
			if err != nil {
				yield(Album{}, err)
				return
			}
			a, err := e.album()
			if err != nil {
				yield(Album{}, &FetchError{URL: c.feedURL(), StatusCode: http.StatusOK, Err: err})
				return
			}
			if !yield(a, nil) {
				return
			}
		}
	}
}

// FetchPhotos lazily lists the photos of one album. total is the
// caller-known photo count; when positive it bounds pagination instead of
// the count the server reports. Pass 0 when unknown.
func (c *Client) FetchPhotos(ctx context.Context, albumID string, total int) iter.Seq2[Photo, error] {
	u := c.feedURL("albumid", albumID)
	params := url.Values{"kind": {"photo"}, "fields": {photoFields}}
	return func(yield func(Photo, error) bool) {
		for e, err := range c.paginate(ctx, u, params, total) {
			if err != nil {
				yield(Photo{}, err)
				return
			}
			p, err := e.photo()
			if err != nil {
				yield(Photo{}, &FetchError{URL: u, StatusCode: http.StatusOK, Err: err})
				return
			}
			if p.AlbumID == "" {
				p.AlbumID = albumID
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

// GetAlbum fetches the metadata of a single album.
func (c *Client) GetAlbum(ctx context.Context, id string) (Album, error) {
	u := c.feedURL("albumid", id)
	params := url.Values{
		"alt":         {"json"},
		"fields":      {singleAlbumFields},
		"max-results": {"1"},
		"start-index": {"1"},
	}
	body, err := c.get(ctx, u, params)
	if err != nil {
		return Album{}, err
	}
	defer body.Close()

	a, err := decodeAlbumFeed(body)
	if err != nil {
		return Album{}, &FetchError{URL: u, StatusCode: http.StatusOK, Err: err}
	}
	if a.ID == "" {
		a.ID = id
	}
	return a, nil
}

// paginate walks a feed page by page. Pages start at index 1. A positive
// knownTotal takes precedence over the totalResults the server reports.
// An absent entry list ends the walk.
func (c *Client) paginate(ctx context.Context, u string, params url.Values, knownTotal int) iter.Seq2[feedEntry, error] {
	return func(yield func(feedEntry, error) bool) {
		total := knownTotal
		for start := 1; ; start += c.pageSize {
			q := url.Values{}
			for k, v := range params {
				q[k] = v
			}
			q.Set("alt", "json")
			q.Set("imgmax", "d")
			q.Set("max-results", strconv.Itoa(c.pageSize))
			q.Set("start-index", strconv.Itoa(start))

			c.log.Debug("fetching page", zap.String("url", u), zap.Int("start_index", start))
			page, reported, err := c.fetchPage(ctx, u, q)
			if err != nil {
				yield(feedEntry{}, err)
				return
			}
			if knownTotal <= 0 {
				total = reported
			}

			if page.Entry == nil {
				if start <= total {
					c.log.Warn("feed ended before expected total",
						zap.String("url", u), zap.Int("start_index", start), zap.Int("total", total))
				}
				return
			}
			for _, e := range page.Entry {
				if !yield(e, nil) {
					return
				}
			}

			if start+c.pageSize-1 >= total {
				return
			}
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, u string, q url.Values) (feedPage, int, error) {
	body, err := c.get(ctx, u, q)
	if err != nil {
		return feedPage{}, 0, err
	}
	defer body.Close()

	page, total, err := decodePage(body)
	if err != nil {
		return feedPage{}, 0, &FetchError{URL: u, StatusCode: http.StatusOK, Err: err}
	}
	return page, total, nil
}

// get issues a GData GET and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, u string, q url.Values) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	req.Header.Set("GData-Version", "2")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &FetchError{URL: u, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// =============================================================================
// Writes
// =============================================================================

// CreateAlbum creates an album and returns its id.
func (c *Client) CreateAlbum(ctx context.Context, title, access string) (string, error) {
	if access == "" {
		access = AccessPrivate
	}
	u := c.feedURL()
	body := albumEntry(title, access, time.Now())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(body))
	if err != nil {
		return "", &WriteError{Op: "create album", URL: u, Err: err}
	}
	req.Header.Set("GData-Version", "2")
	req.Header.Set("Content-Type", "application/atom+xml")

	id, err := c.write(req, "create album", http.StatusCreated)
	if err != nil {
		return "", err
	}
	c.log.Info("created album", zap.String("title", title), zap.String("album_id", id))
	return id, nil
}

// UploadPhoto uploads a JPEG file into an album.
func (c *Client) UploadPhoto(ctx context.Context, albumID, path, title string) (Photo, error) {
	u := c.feedURL("albumid", albumID)
	f, err := os.Open(path)
	if err != nil {
		return Photo{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Photo{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, f)
	if err != nil {
		return Photo{}, &WriteError{Op: "upload", URL: u, Err: err}
	}
	req.ContentLength = info.Size()
	req.Header.Set("GData-Version", "2")
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Slug", title)

	id, err := c.write(req, "upload", http.StatusCreated)
	if err != nil {
		return Photo{}, err
	}
	return Photo{ID: id, AlbumID: albumID, Title: title, Size: info.Size()}, nil
}

// DeleteAlbum removes an album regardless of its current version.
func (c *Client) DeleteAlbum(ctx context.Context, id string) error {
	u := c.entryURL("albumid", id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return &WriteError{Op: "delete album", URL: u, Err: err}
	}
	req.Header.Set("GData-Version", "2")
	req.Header.Set("If-Match", "*")

	resp, err := c.http.Do(req)
	if err != nil {
		return &WriteError{Op: "delete album", URL: u, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &WriteError{Op: "delete album", URL: u, StatusCode: resp.StatusCode}
	}
	return nil
}

// write sends req and returns the gphoto:id of the Atom entry it answers with.
func (c *Client) write(req *http.Request, op string, want int) (string, error) {
	u := req.URL.String()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &WriteError{Op: op, URL: u, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		io.Copy(io.Discard, resp.Body)
		return "", &WriteError{Op: op, URL: u, StatusCode: resp.StatusCode}
	}
	id, err := entryID(resp.Body)
	if err != nil {
		return "", &WriteError{Op: op, URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad response: %w", err)}
	}
	return id, nil
}
