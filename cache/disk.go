package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/agentkit-go/agentkit/internal/metrics"
)

// diskTier persists entries as one JSON file per key, named by the
// sha256 of the key so arbitrary keys map to safe filenames.
type diskTier struct {
	dir      string
	maxBytes int64
	logger   *zap.Logger
}

// persistedEntry is the on-disk layout. Type records the Go runtime type
// of the value at write time; the value itself round-trips through JSON.
type persistedEntry struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Tags      []string  `json:"tags,omitempty"`
	Priority  int       `json:"priority"`
	Type      string    `json:"runtime_type"`
}

func newDiskTier(dir string, maxBytes int64, logger *zap.Logger) (*diskTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &diskTier{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

func (d *diskTier) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(d.dir, hex.EncodeToString(sum[:])+".json")
}

func (d *diskTier) write(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pe := persistedEntry{
		Key:       e.Key,
		Value:     e.Value,
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
		Tags:      e.Tags,
		Priority:  e.Priority,
		Type:      fmt.Sprintf("%T", e.Value),
	}
	data, err := json.Marshal(pe)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := os.WriteFile(d.path(e.Key), data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	d.evict()
	return nil
}

// read loads the entry for key. A file that fails to parse is removed
// and reported as a miss, never as an error.
func (d *diskTier) read(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := d.path(key)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, ErrCacheMiss
	}
	var pe persistedEntry
	if err := json.Unmarshal(data, &pe); err != nil {
		d.logger.Warn("removing corrupt cache file", zap.String("path", p), zap.Error(err))
		os.Remove(p)
		return nil, ErrCacheMiss
	}
	return &Entry{
		Key:       pe.Key,
		Value:     pe.Value,
		CreatedAt: pe.CreatedAt,
		ExpiresAt: pe.ExpiresAt,
		Tags:      pe.Tags,
		Priority:  pe.Priority,
	}, nil
}

func (d *diskTier) remove(ctx context.Context, key string) {
	if ctx.Err() != nil {
		return
	}
	os.Remove(d.path(key))
}

func (d *diskTier) clear(ctx context.Context) error {
	files, err := filepath.Glob(filepath.Join(d.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		os.Remove(f)
	}
	return nil
}

func (d *diskTier) clearTag(ctx context.Context, tag string) error {
	files, err := filepath.Glob(filepath.Join(d.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		var pe persistedEntry
		if err := json.Unmarshal(data, &pe); err != nil {
			os.Remove(f)
			continue
		}
		for _, t := range pe.Tags {
			if t == tag {
				os.Remove(f)
				break
			}
		}
	}
	return nil
}

// evict deletes oldest-modified files until the tier is within maxBytes.
func (d *diskTier) evict() {
	if d.maxBytes <= 0 {
		return
	}
	files, err := filepath.Glob(filepath.Join(d.dir, "*.json"))
	if err != nil {
		return
	}
	type fileInfo struct {
		path    string
		size    int64
		modTime time.Time
	}
	var (
		infos []fileInfo
		total int64
	)
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{path: f, size: fi.Size(), modTime: fi.ModTime()})
		total += fi.Size()
	}
	if total <= d.maxBytes {
		return
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].modTime.Before(infos[j].modTime)
	})
	for _, fi := range infos {
		if total <= d.maxBytes {
			break
		}
		if err := os.Remove(fi.path); err != nil {
			continue
		}
		total -= fi.size
		metrics.ObserveCache("disk", "evict")
	}
	d.logger.Debug("disk cache evicted", zap.Int64("bytes", total))
}
