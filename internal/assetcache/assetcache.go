package assetcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"reelforge/internal/config"
	"reelforge/internal/logging"
)

// freeSpaceFloor is the minimum free-space ratio allowed before pruning.
const freeSpaceFloor = 0.10

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Manager stores and prunes content-addressed assets.
type Manager struct {
	root     string
	maxBytes int64
	logger   *slog.Logger
	statfs   statfsFunc
}

// Stats describes current cache usage.
type Stats struct {
	Entries    int     `json:"entries"`
	TotalBytes int64   `json:"total_bytes"`
	MaxBytes   int64   `json:"max_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
	FreeRatio  float64 `json:"free_ratio"`
}

// NewManager builds a cache manager rooted at the configured cache
// directory. A zero size budget disables pruning.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	manager := &Manager{
		root:     strings.TrimSpace(cfg.Paths.CacheDir),
		maxBytes: int64(cfg.Paths.CacheMaxGiB) * 1024 * 1024 * 1024,
		statfs:   realStatfs,
	}
	manager.SetLogger(logger)
	return manager
}

// SetLogger refreshes the manager's logging destination.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	m.logger = logging.NewComponentLogger(logger, "assetcache")
}

// Root returns the cache directory.
func (m *Manager) Root() string {
	return m.root
}

// Write streams content into the cache and returns its reference. The bytes
// are hashed while they are written; an entry that already exists is reused
// untouched, so writes are idempotent.
func (m *Manager) Write(ctx context.Context, r io.Reader, ext string) (string, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", fmt.Errorf("assetcache: create root: %w", err)
	}
	tmp, err := os.CreateTemp(m.root, "incoming-*")
	if err != nil {
		return "", fmt.Errorf("assetcache: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("assetcache: write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("assetcache: close temp file: %w", err)
	}
	if size == 0 {
		return "", errors.New("assetcache: refusing to store empty content")
	}

	ref := refFor(hex.EncodeToString(hasher.Sum(nil)), ext)
	final := filepath.Join(m.root, filepath.FromSlash(ref))
	if info, err := os.Stat(final); err == nil && info.Size() > 0 {
		m.logger.DebugContext(ctx, "cache hit", logging.String("asset_ref", ref))
		now := time.Now()
		_ = os.Chtimes(final, now, now)
		return ref, nil
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return "", fmt.Errorf("assetcache: create shard dir: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return "", fmt.Errorf("assetcache: finalize entry: %w", err)
	}
	m.logger.DebugContext(ctx, "stored asset",
		logging.String("asset_ref", ref),
		logging.Int64("size_bytes", size),
	)
	return ref, nil
}

// WriteBytes stores an in-memory artifact.
func (m *Manager) WriteBytes(ctx context.Context, data []byte, ext string) (string, error) {
	return m.Write(ctx, bytes.NewReader(data), ext)
}

// Has reports whether a reference resolves to a non-empty cache entry.
func (m *Manager) Has(ref string) bool {
	if m == nil || strings.TrimSpace(ref) == "" {
		return false
	}
	info, err := os.Stat(m.Resolve(ref))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// Resolve returns the absolute path behind a cache reference.
func (m *Manager) Resolve(ref string) string {
	return filepath.Join(m.root, filepath.FromSlash(ref))
}

// Open opens a cached asset for reading.
func (m *Manager) Open(ref string) (*os.File, error) {
	file, err := os.Open(m.Resolve(ref))
	if err != nil {
		return nil, fmt.Errorf("assetcache: open %q: %w", ref, err)
	}
	return file, nil
}

// Stats returns cache usage and filesystem free-space info.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	entries, total, err := m.scan()
	if err != nil {
		return s, err
	}
	totalFS, freeFS, err := m.statfs(m.root)
	if err != nil {
		return s, fmt.Errorf("assetcache: statfs: %w", err)
	}
	ratio := 1.0
	if totalFS > 0 {
		ratio = float64(freeFS) / float64(totalFS)
	}
	s = Stats{
		Entries:    len(entries),
		TotalBytes: total,
		MaxBytes:   m.maxBytes,
		FreeBytes:  freeFS,
		FreeRatio:  ratio,
	}
	if len(entries) == 0 {
		m.logger.DebugContext(ctx, "asset cache empty")
	}
	return s, nil
}

// Prune evicts least-recently-touched entries until the size budget and
// free-space floor are satisfied. Pinned references are never evicted; if
// limits cannot be met without removing a pinned entry, Prune errors.
func (m *Manager) Prune(ctx context.Context, pinned ...string) error {
	if m.maxBytes <= 0 {
		return nil
	}
	keep := make(map[string]struct{}, len(pinned))
	for _, ref := range pinned {
		if ref = strings.TrimSpace(ref); ref != "" {
			keep[m.Resolve(ref)] = struct{}{}
		}
	}

	entries, total, err := m.scan()
	if err != nil {
		return err
	}
	for len(entries) > 0 {
		freeOK, err := m.freeSpaceOK()
		if err != nil {
			return err
		}
		if total <= m.maxBytes && freeOK {
			return nil
		}
		oldest := entries[0]
		if _, protected := keep[oldest.path]; protected {
			entries = entries[1:]
			if len(entries) == 0 {
				return fmt.Errorf("assetcache: over limits but every remaining entry is pinned")
			}
			continue
		}
		if err := os.Remove(oldest.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("assetcache: remove %q: %w", oldest.path, err)
		}
		m.logger.InfoContext(ctx, "pruned cache entry",
			logging.String("asset_path", oldest.path),
			logging.Int64("entry_size_bytes", oldest.sizeBytes),
		)
		total -= oldest.sizeBytes
		entries = entries[1:]
	}
	return nil
}

type cacheEntry struct {
	path      string
	sizeBytes int64
	modTime   time.Time
}

func (m *Manager) scan() ([]cacheEntry, int64, error) {
	entries := make([]cacheEntry, 0)
	var total int64
	err := filepath.WalkDir(m.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), "incoming-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		entries = append(entries, cacheEntry{path: path, sizeBytes: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, 0, nil
		}
		return nil, 0, fmt.Errorf("assetcache: scan: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})
	return entries, total, nil
}

func (m *Manager) freeSpaceOK() (bool, error) {
	total, free, err := m.statfs(m.root)
	if err != nil {
		return false, fmt.Errorf("assetcache: statfs: %w", err)
	}
	if total == 0 {
		return true, nil
	}
	return float64(free)/float64(total) >= freeSpaceFloor, nil
}

func refFor(digest, ext string) string {
	ext = strings.TrimSpace(strings.ToLower(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return digest[:2] + "/" + digest + ext
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
