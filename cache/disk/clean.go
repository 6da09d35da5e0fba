package disk

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"

	"github.com/opencontainers/go-digest"
	"golang.org/x/image/webp"

	"github.com/meigma/iconcache/cache"
	"github.com/meigma/iconcache/validate"
)

// ValidateAndClean removes entries that fail a cheap content check: vector
// entries must look like SVG markup and raster entries must carry a decodable
// PNG or WebP header. It returns the number of entries removed.
func (s *Store) ValidateAndClean(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return 0, fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()

	var bad []entry
	err = s.walkBuckets(func(e entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := root.ReadFile(e.path)
		if err != nil || !entryValid(e.bucket, data) {
			bad = append(bad, e)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan cache: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	removed := 0
	for _, e := range bad {
		if err := root.Remove(e.path); err != nil {
			s.logger.Debug("failed to remove invalid entry", slog.String("path", e.path), slog.Any("error", err))
			continue
		}
		s.bytes.Add(-e.size)
		removed++
		s.logger.Debug("removed invalid entry",
			slog.String("bucket", string(e.bucket)),
			slog.String("entry", digest.FromString(e.path).Encoded()[:12]))
	}
	if removed > 0 {
		s.logger.Info("icon store cleaned", slog.Int("removed", removed))
	}
	return removed, nil
}

func entryValid(bucket cache.Bucket, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if bucket == cache.BucketVector {
		return validate.Quick(data)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err == nil {
		return true
	}
	_, err := webp.DecodeConfig(bytes.NewReader(data))
	return err == nil
}
