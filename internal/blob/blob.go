// Package blob stores downloaded watch images on a pluggable filesystem.
package blob

import (
	"io"
	"os"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
)

// ImageNamespace is the storage prefix for fetched watch images.
const ImageNamespace = "watch-images"

// Storage writes and reads objects under a root directory.
type Storage struct {
	fs afero.Fs
}

// NewOSStorage returns a Storage rooted at dir on the local disk.
func NewOSStorage(dir string) *Storage {
	return &Storage{fs: afero.NewBasePathFs(afero.NewOsFs(), dir)}
}

// NewMemStorage returns an in-memory Storage.
func NewMemStorage() *Storage {
	return &Storage{fs: afero.NewMemMapFs()}
}

// New wraps an arbitrary afero filesystem.
func New(fs afero.Fs) *Storage {
	return &Storage{fs: fs}
}

// ImagePath returns the storage path for an image filename.
func ImagePath(filename string) string {
	return path.Join(ImageNamespace, filename)
}

// Put writes data at key, creating parent directories. Existing objects are
// overwritten.
func (s *Storage) Put(key string, data []byte) error {
	key, err := clean(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return eris.Wrapf(err, "blob: mkdir for %s", key)
	}
	if err := afero.WriteFile(s.fs, key, data, 0o644); err != nil {
		return eris.Wrapf(err, "blob: write %s", key)
	}
	return nil
}

// Open returns a reader for the object at key.
func (s *Storage) Open(key string) (io.ReadCloser, error) {
	key, err := clean(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(err, "blob: %s not found", key)
		}
		return nil, eris.Wrapf(err, "blob: open %s", key)
	}
	return f, nil
}

// Exists reports whether an object is stored at key.
func (s *Storage) Exists(key string) (bool, error) {
	key, err := clean(key)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(s.fs, key)
	if err != nil {
		return false, eris.Wrapf(err, "blob: stat %s", key)
	}
	return ok, nil
}

// Delete removes the object at key. Missing objects are not an error.
func (s *Storage) Delete(key string) error {
	key, err := clean(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "blob: delete %s", key)
	}
	return nil
}

func clean(key string) (string, error) {
	k := path.Clean("/" + strings.TrimSpace(key))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", eris.New("blob: empty key")
	}
	return k, nil
}
