// Photo Reconciler - compare a local photo tree with a remote album service
//
// This tool scans a directory of JPEG photos, derives a stable identity for
// each one (content checksum, pixel dimensions, EXIF capture time corrected
// to UTC from GPS, EXIF unique id) and reconciles it against the remote album
// named after the photo's parent directory.
//
// Every photo ends up in one of four classes:
//   - synced:    already present remotely (matched by unique id or capture time)
//   - to_upload: missing remotely
//   - conflict:  ambiguous, needs a human (several time matches, title clash)
//   - skipped:   not reconciled (no capture time, no album, remote failure)
//
// Usage:
//
//	photo-reconciler                 # Preview (dry-run, default)
//	photo-reconciler -x              # Create missing albums and upload
//	photo-reconciler -x -m           # Upload and write the CSV report
//	photo-reconciler -init           # Mirror the remote catalog locally
//	photo-reconciler -offline        # Reconcile against the local mirror
//	photo-reconciler -list           # List remote albums
//	photo-reconciler -list -album ID # List the photos of one album
//	photo-reconciler -root /path     # Use custom root directory
//
// Expected directory structure:
//
//	Photos/
//	├── Paris 2015/    <- One directory per album, named like the album
//	├── Rome/
//	└── _Manifest/     <- Reconciliation CSV
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"photo-reconciler/internal/album"
	"photo-reconciler/internal/catalog"
	"photo-reconciler/internal/config"
	"photo-reconciler/internal/metadata"
	"photo-reconciler/internal/reconcile"
	"photo-reconciler/internal/report"
	"photo-reconciler/internal/scan"
	"photo-reconciler/internal/store"
	"photo-reconciler/internal/timezone"
)

// =============================================================================
// Command Line
// =============================================================================

// options holds the parsed command-line flags.
type options struct {
	execute     bool
	manifest    bool
	initCatalog bool
	offline     bool
	deleteAlbum string
	list        bool
	albumID     string
	configPath  string
}

// parseFlags registers the flags, parses them, and applies the ones the
// user set on top of cfg.
func parseFlags(cfg *config.Config) options {
	execute := flag.Bool("execute", false, "Create missing albums and upload (default is dry-run)")
	executeShort := flag.Bool("x", false, "Create and upload (short for --execute)")
	manifest := flag.Bool("manifest", false, "Write the reconciliation CSV report")
	manifestShort := flag.Bool("m", false, "Write report (short for --manifest)")
	rootDir := flag.String("root", "", "Photo root directory (default: current directory)")
	configPath := flag.String("config", "", "YAML configuration file")
	initFlag := flag.Bool("init", false, "Mirror the remote catalog into the local store")
	offline := flag.Bool("offline", false, "Reconcile against the local store instead of the remote service")
	deleteAlbum := flag.String("delete-album", "", "Delete a remote album by id")
	list := flag.Bool("list", false, "List remote albums, or the photos of --album")
	albumID := flag.String("album", "", "Album id for --list")
	flat := flag.Bool("flat", false, "Do not descend into subdirectories")
	followLinks := flag.Bool("follow-symlinks", false, "Follow symbolic links while scanning")
	workers := flag.Int("workers", 0, "Concurrent workers (default from config)")
	defaultAlbum := flag.String("default-album", "", "Album for photos directly under the root")
	checksum := flag.String("checksum", "", "Checksum algorithm: md5 or blake3")
	reportPath := flag.String("report", "", "CSV report path, relative to the root unless absolute")
	debug := flag.Bool("debug", false, "Verbose development logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Photo Reconciler - Compare local photos with a remote album service\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  %s, %s, %s, %s, %s\n",
			config.EnvUser, config.EnvToken, config.EnvTZKey, config.EnvAPIURL, config.EnvStore)
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                  # Preview (dry-run, default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -x               # Create albums and upload\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -x -m            # Upload and write report\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --root /path     # Use custom root directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --init           # Mirror remote catalog\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --offline -m     # Report against the mirror\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --list --album ID  # Photos of one album\n", os.Args[0])
	}

	flag.Parse()

	// The config file is named on the command line, so flags are parsed
	// before it is loaded and applied after.
	loaded, err := config.Load(*configPath, config.EnvFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}
	*cfg = loaded

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["root"] {
		cfg.Root = *rootDir
	}
	if *flat {
		cfg.Recursive = false
	}
	if *followLinks {
		cfg.FollowSymlinks = true
	}
	if set["workers"] {
		cfg.Workers = *workers
	}
	if set["default-album"] {
		cfg.DefaultAlbum = *defaultAlbum
	}
	if set["checksum"] {
		cfg.Checksum = *checksum
	}
	if set["report"] {
		cfg.ReportPath = *reportPath
	}
	if *debug {
		cfg.Debug = true
	}

	return options{
		execute:     *execute || *executeShort,
		manifest:    *manifest || *manifestShort,
		initCatalog: *initFlag,
		offline:     *offline,
		deleteAlbum: *deleteAlbum,
		list:        *list,
		albumID:     *albumID,
		configPath:  *configPath,
	}
}

// newLogger builds the process logger: console output when debugging,
// JSON at info level otherwise.
func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// =============================================================================
// Remote Catalog
// =============================================================================

func newClient(cfg config.Config, log *zap.Logger) *catalog.Client {
	return catalog.NewClient(catalog.Options{
		BaseURL:  cfg.APIURL,
		User:     cfg.User,
		Token:    cfg.Token,
		PageSize: cfg.PageSize,
		Timeout:  time.Duration(cfg.Timeout),
		Logger:   log.Named("catalog"),
	})
}

func openStore(cfg config.Config, log *zap.Logger) (*store.Store, error) {
	path, err := cfg.StoreFile()
	if err != nil {
		return nil, err
	}
	return store.Open(path, log.Named("store"))
}

// mirrorCatalog copies the remote catalog into the local store.
func mirrorCatalog(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Printf("Mirroring catalog of %s...\n", catalog.Username(cfg.User))
	stats, err := st.Mirror(ctx, newClient(cfg, log))
	if err != nil {
		return err
	}
	fmt.Printf("Stored %d albums, %d photos\n", stats.Albums, stats.Photos)
	for id, err := range stats.Failed {
		fmt.Printf("  Album %s not mirrored: %v\n", id, err)
	}
	return nil
}

// deleteAlbum removes an album remotely and from the local store.
func deleteAlbum(ctx context.Context, cfg config.Config, log *zap.Logger, id string) error {
	if err := newClient(cfg, log).DeleteAlbum(ctx, id); err != nil {
		return err
	}
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.DeleteAlbum(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted album %s\n", id)
	return nil
}

// retryPolicy bounds retries of remote writes.
func retryPolicy(cfg config.Config) catalog.RetryPolicy {
	return catalog.RetryPolicy{
		Attempts: cfg.UploadRetries,
		Base:     time.Duration(cfg.RetryBase),
		Max:      time.Duration(cfg.RetryMax),
	}
}

// listCatalog prints the remote albums, or the photos of one album when
// albumID is set.
func listCatalog(ctx context.Context, cfg config.Config, log *zap.Logger, albumID string) error {
	client := newClient(cfg, log)
	if albumID == "" {
		albums, err := listAlbums(ctx, client)
		if err != nil {
			return err
		}
		report.PrintAlbums(os.Stdout, albums)
		return nil
	}
	snap, err := catalog.Collect(client.FetchPhotos(ctx, albumID, 0))
	if err != nil {
		return err
	}
	report.PrintPhotos(os.Stdout, snap.Photos())
	return nil
}

// listAlbums collects every remote album.
func listAlbums(ctx context.Context, client *catalog.Client) ([]catalog.Album, error) {
	var albums []catalog.Album
	for a, err := range client.FetchAlbums(ctx) {
		if err != nil {
			return nil, err
		}
		albums = append(albums, a)
	}
	return albums, nil
}

// recordUploads saves the albums the run knows of, including the ones it
// created, and the photos it uploaded into the local store so later offline
// runs see them.
func recordUploads(ctx context.Context, st *store.Store, albums []catalog.Album, rep *reconcile.Report) error {
	for _, a := range albums {
		if err := st.SaveAlbum(ctx, a); err != nil {
			return err
		}
	}
	for _, rec := range rep.Records {
		if rec.Uploaded == nil {
			continue
		}
		if err := st.SavePhoto(ctx, *rec.Uploaded); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Main Entry Point
// =============================================================================

func main() {
	var cfg config.Config
	opts := parseFlags(&cfg)

	log, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Println("Error creating logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if opts.execute && opts.offline {
		fmt.Println("Error: --execute cannot be combined with --offline")
		os.Exit(1)
	}
	if opts.albumID != "" && !opts.list {
		fmt.Println("Error: --album requires --list")
		os.Exit(1)
	}
	remote := opts.initCatalog || opts.deleteAlbum != "" || opts.list || !opts.offline
	if err := cfg.Validate(remote); err != nil {
		fmt.Printf("Invalid configuration:\n%v\n", err)
		os.Exit(1)
	}
	log.Debug("configuration", zap.String("config", opts.configPath), zap.Stringer("settings", cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Handle catalog maintenance
	if opts.initCatalog {
		if err := mirrorCatalog(ctx, cfg, log); err != nil {
			fmt.Printf("Error mirroring catalog: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	if opts.deleteAlbum != "" {
		if err := deleteAlbum(ctx, cfg, log, opts.deleteAlbum); err != nil {
			fmt.Printf("Error deleting album: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	if opts.list {
		if err := listCatalog(ctx, cfg, log, opts.albumID); err != nil {
			fmt.Printf("Error listing catalog: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		fmt.Println("Error resolving root directory:", err)
		os.Exit(1)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		fmt.Printf("Error: photo root not found at %s\n", root)
		os.Exit(1)
	}
	dryRun := !opts.execute

	// Print banner
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("Photo Reconciler")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Root:      %s\n", root)
	if opts.offline {
		fmt.Println("Catalog:   local store")
	} else {
		fmt.Printf("Catalog:   %s (%s)\n", cfg.APIURL, catalog.Username(cfg.User))
	}
	fmt.Println()

	if dryRun {
		fmt.Println("[DRY RUN MODE - use --execute or -x to create albums and upload]")
		fmt.Println()
	}

	// Scan and extract
	scanner := scan.New(scan.Options{
		Recursive:      cfg.Recursive,
		FollowSymlinks: cfg.FollowSymlinks,
		SkipDirs:       cfg.SkipDirs,
		Logger:         log.Named("scan"),
	})
	var tz metadata.TimezoneLookup
	if cfg.TimezoneKey != "" {
		tz = timezone.New(cfg.TimezoneURL, cfg.TimezoneKey, time.Duration(cfg.Timeout), log.Named("timezone"))
	}
	extractor, err := metadata.NewExtractor(metadata.Options{
		Checksum:      metadata.Algorithm(cfg.Checksum),
		FilenameDates: cfg.FilenameDates,
		Timezone:      tz,
		Logger:        log.Named("metadata"),
	})
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	images, failed, err := extractor.ExtractAll(ctx, scanner.Scan(root), cfg.Workers)
	if err != nil {
		fmt.Println("Interrupted:", err)
		os.Exit(1)
	}
	fmt.Printf("Found %d photos (%d unreadable)\n", len(images), len(failed))

	// Build the catalog view
	var (
		client   *catalog.Client
		st       *store.Store
		resolver *album.Resolver
		source   reconcile.Source
	)
	if opts.offline {
		st, err = openStore(cfg, log)
		if err != nil {
			fmt.Println("Error opening store:", err)
			os.Exit(1)
		}
		defer st.Close()
		albums, err := st.Albums(ctx)
		if err != nil {
			fmt.Println("Error reading store:", err)
			os.Exit(1)
		}
		resolver = album.NewResolver(nil, albums, album.Options{ReadOnly: true, Logger: log.Named("album")})
		source = st
	} else {
		client = newClient(cfg, log)
		albums, err := listAlbums(ctx, client)
		if err != nil {
			fmt.Println("Error listing albums:", err)
			os.Exit(1)
		}
		fmt.Printf("Found %d remote albums\n", len(albums))
		resolver = album.NewResolver(client, albums, album.Options{
			Access:   cfg.Access,
			ReadOnly: dryRun,
			Retry:    retryPolicy(cfg),
			Logger:   log.Named("album"),
		})
		source = reconcile.NewLiveSource(client, log.Named("source"))
	}

	// Reconcile
	engine := reconcile.New(resolver, source, reconcile.Options{
		Workers:      cfg.Workers,
		DefaultAlbum: cfg.DefaultAlbum,
		Retry:        retryPolicy(cfg),
		Logger:       log.Named("reconcile"),
	})
	rep, err := engine.Run(ctx, images)
	if err != nil {
		fmt.Println("Interrupted:", err)
		os.Exit(1)
	}

	// Upload (only when actually executing)
	if !dryRun {
		if n := rep.Count(reconcile.ToUpload); n > 0 {
			fmt.Printf("\nUploading %d photos...\n", n)
			uploaded, err := engine.Upload(ctx, rep, client)
			if err != nil && !errors.Is(err, context.Canceled) {
				fmt.Println("Error uploading:", err)
			}
			fmt.Printf("Uploaded %d photos\n", uploaded)
		}

		if st, err := openStore(cfg, log); err != nil {
			log.Warn("uploads not recorded", zap.Error(err))
		} else {
			if err := recordUploads(ctx, st, resolver.Albums(), rep); err != nil {
				log.Warn("uploads not recorded", zap.Error(err))
			}
			st.Close()
		}
	}

	if opts.manifest {
		path := cfg.ReportPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		if err := report.WriteFile(path, rep); err != nil {
			fmt.Println("Error writing report:", err)
		} else {
			fmt.Printf("Report written to %s\n", path)
		}
	}

	report.PrintSummary(os.Stdout, rep, failed)
	fmt.Println("\nDone!")
}
