package disk

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/meigma/iconcache/cache"
)

// entry is one stored asset found by a bucket walk.
type entry struct {
	bucket cache.Bucket
	path   string // relative to the store root
	size   int64
}

// walkBuckets visits every stored entry. Temp files and nested directories
// are skipped.
func (s *Store) walkBuckets(fn func(entry) error) error {
	for _, b := range []cache.Bucket{cache.BucketVector, cache.BucketRaster} {
		dir := filepath.Join(s.dir, string(b))
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != dir {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			return fn(entry{
				bucket: b,
				path:   filepath.Join(string(b), d.Name()),
				size:   info.Size(),
			})
		})
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) bucketBytes() (int64, error) {
	var total int64
	err := s.walkBuckets(func(e entry) error {
		total += e.size
		return nil
	})
	return total, err
}

func (s *Store) stats() (cache.Stats, error) {
	var st cache.Stats
	err := s.walkBuckets(func(e entry) error {
		switch e.bucket {
		case cache.BucketVector:
			st.VectorCount++
		case cache.BucketRaster:
			st.RasterCount++
		}
		st.TotalBytes += e.size
		return nil
	})
	return st, err
}
