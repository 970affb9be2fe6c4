// Package album maps local directories to remote albums.
package album

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"photo-reconciler/internal/catalog"
)

var (
	// ErrTitleConflict means a title cannot be tied to exactly one album:
	// two local directories share it, or the remote side holds it twice.
	ErrTitleConflict = errors.New("album title conflict")

	// ErrAlbumMissing means no remote album has the title and the resolver
	// is not allowed to create one.
	ErrAlbumMissing = errors.New("album does not exist remotely")

	// ErrCreateFailed means the album had to be created and every attempt
	// was refused.
	ErrCreateFailed = errors.New("album creation failed")
)

// Client is the slice of the catalog the resolver writes through.
type Client interface {
	CreateAlbum(ctx context.Context, title, access string) (string, error)
	GetAlbum(ctx context.Context, id string) (catalog.Album, error)
}

// Options configures a Resolver.
type Options struct {
	Access   string // Access level of created albums
	ReadOnly bool   // Never create albums
	Retry    catalog.RetryPolicy
	Logger   *zap.Logger
}

// Resolver resolves album titles against a run's view of the remote catalog.
// It is safe for concurrent use; creation is serialized so a title is never
// created twice in one run.
type Resolver struct {
	client   Client
	access   string
	readOnly bool
	retry    catalog.RetryPolicy
	log      *zap.Logger

	mu      sync.Mutex
	byTitle map[string][]catalog.Album
	claimed map[string]string // title -> local directory that resolved it first
}

// NewResolver returns a Resolver seeded with the albums known to exist.
func NewResolver(client Client, known []catalog.Album, opts Options) *Resolver {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	access := opts.Access
	if access == "" {
		access = catalog.AccessPrivate
	}
	byTitle := make(map[string][]catalog.Album, len(known))
	for _, a := range known {
		byTitle[a.Title] = append(byTitle[a.Title], a)
	}
	return &Resolver{
		client:   client,
		access:   access,
		readOnly: opts.ReadOnly,
		retry:    opts.Retry,
		log:      log,
		byTitle:  byTitle,
		claimed:  make(map[string]string),
	}
}

// Resolve returns the remote album for the local directory dir whose
// derived title is title. An exact title match wins; otherwise the album
// is created and then re-read, since the creation response does not carry
// the full album.
func (r *Resolver) Resolve(ctx context.Context, title, dir string) (catalog.Album, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.claimed[title]; ok && owner != dir {
		return catalog.Album{}, fmt.Errorf("%w: %q is used by %s and %s", ErrTitleConflict, title, owner, dir)
	}
	r.claimed[title] = dir

	switch matches := r.byTitle[title]; len(matches) {
	case 0:
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, a := range matches {
			ids[i] = a.ID
		}
		return catalog.Album{}, fmt.Errorf("%w: %d remote albums titled %q (%s)",
			ErrTitleConflict, len(matches), title, strings.Join(ids, ", "))
	}

	if r.readOnly {
		return catalog.Album{}, fmt.Errorf("%w: %q", ErrAlbumMissing, title)
	}

	var id string
	err := r.retry.Do(ctx, func() error {
		var err error
		id, err = r.client.CreateAlbum(ctx, title, r.access)
		return err
	}, func(retry int, delay time.Duration, err error) {
		r.log.Warn("retrying album creation", zap.String("title", title),
			zap.Int("attempt", retry+1), zap.Duration("delay", delay), zap.Error(err))
	})
	if err != nil {
		return catalog.Album{}, fmt.Errorf("%w: %q: %w", ErrCreateFailed, title, err)
	}

	a, err := r.client.GetAlbum(ctx, id)
	if err != nil {
		// The album exists remotely; keep its id so nothing creates it twice.
		r.log.Warn("created album could not be read back", zap.String("title", title),
			zap.String("album_id", id), zap.Error(err))
		a = catalog.Album{ID: id, Title: title, Access: r.access}
	}
	r.byTitle[title] = append(r.byTitle[title], a)
	r.log.Info("album created", zap.String("title", title), zap.String("album_id", a.ID), zap.String("dir", dir))
	return a, nil
}

// Albums returns every album the resolver knows of, including the ones it
// created, ordered by title then id.
func (r *Resolver) Albums() []catalog.Album {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []catalog.Album
	for _, as := range r.byTitle {
		out = append(out, as...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Collisions returns the titles claimed by more than one distinct local
// directory, each with its sorted directory list.
func Collisions(dirsByTitle map[string][]string) map[string][]string {
	out := make(map[string][]string)
	for title, dirs := range dirsByTitle {
		seen := make(map[string]bool, len(dirs))
		var uniq []string
		for _, d := range dirs {
			if !seen[d] {
				seen[d] = true
				uniq = append(uniq, d)
			}
		}
		if len(uniq) > 1 {
			sort.Strings(uniq)
			out[title] = uniq
		}
	}
	return out
}
