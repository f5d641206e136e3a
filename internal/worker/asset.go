package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"quantplane/internal/channel"
)

// acquireInputAsset materializes the source model under the work directory,
// serving from the channel cache when it is complete and falling back to a
// fresh download otherwise. A fresh download is written back to the cache,
// payload first and completeness marker last.
func (a *Agent) acquireInputAsset(ctx context.Context) error {
	dir := a.sourceDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return assetErr(err)
	}

	if a.cacheComplete(ctx) {
		a.log.Info("input asset cache hit", "source", a.req.Source)
		err := a.restoreFromCache(ctx, dir)
		if err == nil {
			return nil
		}
		// A cache that will not restore is treated like a miss.
		a.log.Warn("cache restore failed, downloading fresh", "err", err)
	} else {
		a.log.Info("input asset cache miss", "source", a.req.Source)
	}

	if err := a.fetcher.Fetch(ctx, a.req.Source, dir); err != nil {
		return assetErr(fmt.Errorf("fetch %s: %w", a.req.Source, err))
	}
	if empty, err := dirEmpty(dir); err != nil || empty {
		return assetErr(fmt.Errorf("download of %s produced no files", a.req.Source))
	}

	if err := a.writeBackCache(ctx, dir); err != nil {
		// The build can proceed on the local copy; only later jobs lose
		// the cache benefit.
		a.log.Warn("cache write-back failed", "err", err)
	}
	return nil
}

// cacheComplete applies the validity rule: completeness marker present and
// at least one payload object beside it.
func (a *Agent) cacheComplete(ctx context.Context) bool {
	if _, err := a.ch.Stat(ctx, channel.CacheCompleteName(a.req.Source)); err != nil {
		return false
	}
	infos, err := a.ch.List(ctx, channel.CacheDir(a.req.Source))
	if err != nil {
		return false
	}
	for _, info := range infos {
		if !strings.HasSuffix(info.Name, "/.complete") {
			return true
		}
	}
	return false
}

func (a *Agent) restoreFromCache(ctx context.Context, dir string) error {
	prefix := channel.CacheDir(a.req.Source)
	infos, err := a.ch.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, info := range infos {
		rel := strings.TrimPrefix(info.Name, prefix)
		if rel == ".complete" {
			continue
		}
		data, err := a.ch.Get(ctx, info.Name)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) writeBackCache(ctx context.Context, dir string) error {
	prefix := channel.CacheDir(a.req.Source)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return a.ch.Put(ctx, prefix+filepath.ToSlash(rel), data)
	})
	if err != nil {
		return err
	}
	// Marker written last: its presence implies the payload preceded it.
	return a.ch.Put(ctx, channel.CacheCompleteName(a.req.Source), []byte("ok"))
}

func dirEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	return len(entries) == 0, nil
}
