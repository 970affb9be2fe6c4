// Package timezone looks up the UTC offset of a place from a Google Time
// Zone API compatible service.
package timezone

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// DefaultURL is the public Google Time Zone API endpoint.
const DefaultURL = "https://maps.googleapis.com/maps/api/timezone/json"

// Client queries the time zone service. Answers are memoized for the
// lifetime of the Client, keyed by position rounded to two decimals and
// by calendar day.
type Client struct {
	url  string
	key  string
	http *http.Client
	log  *zap.Logger

	mu    sync.Mutex
	cache map[cacheKey]int
}

type cacheKey struct {
	lat, lon int64
	day      string
}

type response struct {
	Status       string  `json:"status"`
	ErrorMessage string  `json:"errorMessage"`
	RawOffset    float64 `json:"rawOffset"`
	DSTOffset    float64 `json:"dstOffset"`
	TimeZoneID   string  `json:"timeZoneId"`
}

// New returns a Client. An empty baseURL selects DefaultURL.
func New(baseURL, key string, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:   baseURL,
		key:   key,
		http:  &http.Client{Timeout: timeout},
		log:   log,
		cache: make(map[cacheKey]int),
	}
}

// RawOffset returns the raw offset from UTC, in seconds, that applied at
// the given position and time. Daylight saving is not included.
func (c *Client) RawOffset(ctx context.Context, lat, lon float64, at time.Time) (int, error) {
	k := cacheKey{
		lat: int64(math.Round(lat * 100)),
		lon: int64(math.Round(lon * 100)),
		day: at.Format("2006-01-02"),
	}
	c.mu.Lock()
	if v, ok := c.cache[k]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	q := url.Values{}
	q.Set("location", strconv.FormatFloat(lat, 'f', 6, 64)+","+strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("timestamp", strconv.FormatInt(at.Unix(), 10))
	if c.key != "" {
		q.Set("key", c.key)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("timezone lookup: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("timezone lookup: unexpected status %d", res.StatusCode)
	}

	var body response
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("timezone lookup: %w", err)
	}
	if body.Status != "OK" {
		return 0, fmt.Errorf("timezone lookup: status %s %s", body.Status, body.ErrorMessage)
	}

	offset := int(body.RawOffset)
	c.log.Debug("timezone resolved",
		zap.Float64("lat", lat), zap.Float64("lon", lon),
		zap.String("zone", body.TimeZoneID), zap.Int("raw_offset", offset))

	c.mu.Lock()
	c.cache[k] = offset
	c.mu.Unlock()
	return offset, nil
}
