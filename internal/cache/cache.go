// Package cache provides the scoped directory fetched artifacts are cached in.
//
// A persistent scope refers to a fixed directory that outlives the run. An
// ephemeral scope gets a fresh temporary directory that is removed when the
// scope exits, whether or not the scoped function failed. Entries are written
// atomically and recorded in a SQLite manifest so they can expire.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrUnsafeClear is returned when Clear is pointed at a directory it must not remove.
var ErrUnsafeClear = eris.New("cache: refusing to clear directory")

// DefaultDir is the persistent cache location used when none is configured.
const DefaultDir = ".cache"

const manifestFile = "manifest.db"

// Options configures a cache scope.
type Options struct {
	Persist bool          // keep entries in Dir across runs
	Dir     string        // persistent location; DefaultDir if empty
	TTL     time.Duration // entries older than this are refetched; 0 = never expire
}

// Dir is a handle on the cache directory, valid for the duration of a scope.
type Dir struct {
	root       string
	persistent bool
	ttl        time.Duration
	manifest   *Manifest
	now        func() time.Time
}

// With opens a cache scope, runs fn with it, and closes it. Removal failures
// of an ephemeral directory are returned, joined with fn's error if any.
func With(ctx context.Context, opts Options, fn func(*Dir) error) (err error) {
	d, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := d.close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	return fn(d)
}

func open(ctx context.Context, opts Options) (*Dir, error) {
	log := zap.L().With(zap.String("component", "cache"))

	var root string
	if opts.Persist {
		root = opts.Dir
		if root == "" {
			root = DefaultDir
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, eris.Wrapf(err, "cache: create %s", root)
		}
	} else {
		tmp, err := os.MkdirTemp("", "spatial-prep-cache-*")
		if err != nil {
			return nil, eris.Wrap(err, "cache: create temp dir")
		}
		root = tmp
	}

	m, err := OpenManifest(ctx, filepath.Join(root, manifestFile))
	if err != nil {
		if !opts.Persist {
			_ = os.RemoveAll(root)
		}
		return nil, err
	}

	log.Debug("cache scope opened", zap.String("dir", root), zap.Bool("persist", opts.Persist))

	return &Dir{
		root:       root,
		persistent: opts.Persist,
		ttl:        opts.TTL,
		manifest:   m,
		now:        time.Now,
	}, nil
}

func (d *Dir) close() error {
	var errs []error
	if err := d.manifest.Close(); err != nil {
		errs = append(errs, err)
	}
	if !d.persistent {
		if err := os.RemoveAll(d.root); err != nil {
			errs = append(errs, eris.Wrapf(err, "cache: remove %s", d.root))
		}
	}
	return errors.Join(errs...)
}

// Path returns the directory backing this scope.
func (d *Dir) Path() string { return d.root }

// Persistent reports whether entries outlive the scope.
func (d *Dir) Persistent() bool { return d.persistent }

// EntryPath returns where an entry with the given key lives.
func (d *Dir) EntryPath(key string) (string, error) {
	if key == "" || key == manifestFile || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", eris.Errorf("cache: invalid key %q", key)
	}
	return filepath.Join(d.root, key), nil
}

// Lookup returns the path of a usable entry. An entry is usable when its file
// exists, is non-empty, and has not outlived the TTL. Files placed in the
// directory without a manifest row count as fresh.
func (d *Dir) Lookup(ctx context.Context, key string) (string, bool, error) {
	path, err := d.EntryPath(key)
	if err != nil {
		return "", false, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "cache: stat %s", key)
	}
	if info.IsDir() || info.Size() == 0 {
		return "", false, nil
	}

	if d.ttl > 0 {
		entry, found, err := d.manifest.Get(ctx, key)
		if err != nil {
			return "", false, err
		}
		if found && d.now().Sub(entry.FetchedAt) > d.ttl {
			zap.L().Info("cache entry expired",
				zap.String("component", "cache"),
				zap.String("key", key),
				zap.Time("fetched_at", entry.FetchedAt),
			)
			return "", false, nil
		}
	}

	return path, true, nil
}

// Store writes r under key atomically (temp file + rename) and records it in
// the manifest. source is informational, usually the URL the bytes came from.
func (d *Dir) Store(ctx context.Context, key, source string, r io.Reader) (string, error) {
	path, err := d.EntryPath(key)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(d.root, "."+key+".*.tmp")
	if err != nil {
		return "", eris.Wrapf(err, "cache: create temp for %s", key)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		return "", eris.Wrapf(err, "cache: write %s", key)
	}
	if err := tmp.Sync(); err != nil {
		return "", eris.Wrapf(err, "cache: sync %s", key)
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrapf(err, "cache: close %s", key)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", eris.Wrapf(err, "cache: commit %s", key)
	}
	committed = true

	entry := Entry{
		Key:       key,
		Size:      n,
		SHA256:    hex.EncodeToString(h.Sum(nil)),
		Source:    source,
		FetchedAt: d.now().UTC(),
	}
	if err := d.manifest.Put(ctx, entry); err != nil {
		return "", err
	}

	zap.L().Debug("cache entry stored",
		zap.String("component", "cache"),
		zap.String("key", key),
		zap.Int64("bytes", n),
	)
	return path, nil
}

// Remove deletes an entry and its manifest row. Missing entries are not an error.
func (d *Dir) Remove(ctx context.Context, key string) error {
	path, err := d.EntryPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "cache: remove %s", key)
	}
	return d.manifest.Delete(ctx, key)
}

// Entries lists manifest rows.
func (d *Dir) Entries(ctx context.Context) ([]Entry, error) {
	return d.manifest.List(ctx)
}

// Clear removes a persistent cache directory and everything in it. It refuses
// an empty path, the working directory or any directory above it, and any
// directory that contains one of keep.
func Clear(dir string, keep ...string) error {
	if strings.TrimSpace(dir) == "" {
		return eris.Wrap(ErrUnsafeClear, "empty path")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return eris.Wrapf(err, "cache: resolve %s", dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return eris.Wrap(err, "cache: working directory")
	}
	if contains(abs, cwd) {
		return eris.Wrapf(ErrUnsafeClear, "%s holds the working directory", dir)
	}
	for _, k := range keep {
		if k == "" {
			continue
		}
		ka, err := filepath.Abs(k)
		if err != nil {
			return eris.Wrapf(err, "cache: resolve %s", k)
		}
		if contains(abs, ka) {
			return eris.Wrapf(ErrUnsafeClear, "%s holds %s", dir, k)
		}
	}

	if err := os.RemoveAll(abs); err != nil {
		return eris.Wrapf(err, "cache: clear %s", dir)
	}
	return nil
}

// contains reports whether path is dir or lies beneath it.
func contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
