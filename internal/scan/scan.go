// Package scan walks a local photo tree and yields the JPEG files found in it.
package scan

import (
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// =============================================================================
// Configuration
// =============================================================================

// DefaultSkipDirs contains directory names skipped during scanning.
// These are system folders or camera-specific directories that don't
// contain user photos.
var DefaultSkipDirs = []string{
	".stfolder",       // Syncthing
	".fseventsd",      // macOS filesystem events
	".Trashes",        // macOS trash
	".Spotlight-V100", // macOS Spotlight index
	"PRIVATE",         // Camera system folder
	"AVF_INFO",        // Sony AVCHD info
	"THMBNL",          // Sony thumbnails
}

// jpegMIME is the only content type handed to callers.
const jpegMIME = "image/jpeg"

// Options controls a Scanner.
type Options struct {
	Recursive      bool     // Descend into subdirectories
	FollowSymlinks bool     // Treat symlinked files and directories as real ones
	SkipDirs       []string // Directory names never entered
	Logger         *zap.Logger
}

// =============================================================================
// Data Types
// =============================================================================

// File describes one candidate photo found under the scan root.
type File struct {
	Path    string    // Absolute location
	RelPath string    // Location relative to the scan root
	Size    int64     // Size in bytes
	ModTime time.Time // Modification time
}

// Scanner produces JPEG files under a root directory.
// A Scanner holds no iteration state; every call to Scan is independent.
type Scanner struct {
	recursive bool
	follow    bool
	skip      map[string]bool
	log       *zap.Logger
}

// New returns a Scanner for the given options.
func New(opts Options) *Scanner {
	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, name := range opts.SkipDirs {
		skip[name] = true
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{
		recursive: opts.Recursive,
		follow:    opts.FollowSymlinks,
		skip:      skip,
		log:       log,
	}
}

// =============================================================================
// Traversal
// =============================================================================

// Scan returns a lazy depth-first sequence of the JPEG files under root.
// Files are yielded as they are discovered; directories are never yielded.
// Unreadable directories and files are reported as errors in the sequence
// and traversal carries on with the next entry.
func (s *Scanner) Scan(root string) iter.Seq2[File, error] {
	return func(yield func(File, error) bool) {
		abs, err := filepath.Abs(root)
		if err != nil {
			yield(File{}, fmt.Errorf("failed to resolve scan root %s: %w", root, err))
			return
		}

		visited := map[string]bool{}
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			visited[real] = true
		}

		// Depth-first over an explicit stack.
		stack := []string{abs}
		for len(stack) > 0 {
			dir := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entries, err := os.ReadDir(dir)
			if err != nil {
				if !yield(File{}, fmt.Errorf("failed to read directory %s: %w", dir, err)) {
					return
				}
				continue
			}

			var subdirs []string
			for _, e := range entries {
				name := e.Name()
				if strings.HasPrefix(name, ".") {
					continue
				}
				full := filepath.Join(dir, name)

				info, isDir, ok := s.resolve(full, e)
				if !ok {
					continue
				}
				if isDir {
					if !s.recursive || s.skip[name] {
						continue
					}
					if e.Type()&fs.ModeSymlink != 0 {
						real, err := filepath.EvalSymlinks(full)
						if err != nil || visited[real] {
							continue
						}
						visited[real] = true
					}
					subdirs = append(subdirs, full)
					continue
				}

				f, err := s.candidate(abs, full, info)
				if err != nil {
					if !yield(File{}, err) {
						return
					}
					continue
				}
				if f == nil {
					continue
				}
				if !yield(*f, nil) {
					return
				}
			}

			// Push in reverse so the lexically first subdirectory is visited next.
			for i := len(subdirs) - 1; i >= 0; i-- {
				stack = append(stack, subdirs[i])
			}
		}
	}
}

// resolve returns the file info for an entry and whether it is a directory.
// ok is false for entries that must be ignored: symlinks when not following
// them, dangling links, and anything that is neither a directory nor a
// regular file.
func (s *Scanner) resolve(full string, e fs.DirEntry) (info fs.FileInfo, isDir bool, ok bool) {
	var err error
	if e.Type()&fs.ModeSymlink != 0 {
		if !s.follow {
			return nil, false, false
		}
		info, err = os.Stat(full)
	} else {
		info, err = e.Info()
	}
	if err != nil {
		s.log.Debug("skipping unreadable entry", zap.String("path", full), zap.Error(err))
		return nil, false, false
	}
	if info.IsDir() {
		return info, true, true
	}
	return info, false, info.Mode().IsRegular()
}

// candidate sniffs a regular file and returns it when it holds JPEG data.
// A nil File with a nil error means the file is not a JPEG.
func (s *Scanner) candidate(root, full string, info fs.FileInfo) (*File, error) {
	mtype, err := mimetype.DetectFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to sniff %s: %w", full, err)
	}
	if !mtype.Is(jpegMIME) {
		s.log.Debug("unwanted content type", zap.String("path", full), zap.String("mime", mtype.String()))
		return nil, nil
	}
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return nil, fmt.Errorf("failed to relativize %s: %w", full, err)
	}
	return &File{
		Path:    full,
		RelPath: rel,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}
