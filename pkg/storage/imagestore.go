package storage

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	apperrors "moodiary/pkg/errors"
	"moodiary/pkg/logger"
	"moodiary/pkg/utils"
)

// ImageStore keeps uploaded photos as plain files in one flat directory,
// named {unix}_{original name}.
type ImageStore struct {
	dir   string
	mutex sync.Mutex
	log   *logger.Logger
	now   func() time.Time
}

// NewImageStore creates a new image store instance
func NewImageStore(dir string, log *logger.Logger) (*ImageStore, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.WriteFailed(err, dir)
	}

	return &ImageStore{
		dir: dir,
		log: log.WithComponent("image_store"),
		now: time.Now,
	}, nil
}

// Dir returns the uploads directory
func (is *ImageStore) Dir() string {
	return is.dir
}

// SaveImage writes the uploaded bytes under a timestamp-prefixed name and
// returns the path to embed in a DiaryEntry. An existing file is never
// overwritten; a short uuid is inserted into the name instead.
func (is *ImageStore) SaveImage(data []byte, suggestedName string) (string, error) {
	is.mutex.Lock()
	defer is.mutex.Unlock()

	if err := os.MkdirAll(is.dir, 0755); err != nil {
		return "", apperrors.WriteFailed(err, is.dir)
	}

	name := utils.SanitizeFilename(suggestedName)
	stamp := strconv.FormatInt(is.now().Unix(), 10)

	fname := stamp + "_" + name
	f, err := os.OpenFile(filepath.Join(is.dir, fname), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		fname = fmt.Sprintf("%s_%s_%s", stamp, utils.GenerateShortUUID(), name)
		f, err = os.OpenFile(filepath.Join(is.dir, fname), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	}
	if err != nil {
		return "", apperrors.WriteFailed(err, filepath.Join(is.dir, fname))
	}

	fullPath := filepath.Join(is.dir, fname)
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(fullPath)
		return "", apperrors.WriteFailed(err, fullPath)
	}
	if err := f.Close(); err != nil {
		os.Remove(fullPath)
		return "", apperrors.WriteFailed(err, fullPath)
	}

	is.log.Infow("Image stored", "file", fname, "size", len(data))
	return filepath.ToSlash(fullPath), nil
}

// Resolve maps a path stored in an entry onto a file in the uploads
// directory. Only the base name is used, so entries cannot point elsewhere.
func (is *ImageStore) Resolve(stored string) string {
	return filepath.Join(is.dir, filepath.Base(filepath.FromSlash(stored)))
}

// Check opens a stored image and decodes its header. Any failure is an
// image error the caller shows as a text fallback.
func (is *ImageStore) Check(stored string) error {
	path := is.Resolve(stored)

	f, err := os.Open(path)
	if err != nil {
		return apperrors.ImageUnreadable(err, stored)
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return apperrors.ImageUnreadable(err, stored)
	}
	return nil
}

// Open returns the stored file for serving along with its format name
func (is *ImageStore) Open(name string) (*os.File, string, error) {
	f, err := os.Open(is.Resolve(name))
	if err != nil {
		return nil, "", apperrors.ImageUnreadable(err, name)
	}
	_, format, err := image.DecodeConfig(f)
	if err != nil {
		f.Close()
		return nil, "", apperrors.ImageUnreadable(err, name)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, "", apperrors.ReadFailed(err, name)
	}
	return f, format, nil
}

// Remove deletes a stored photo. A missing file is not an error.
func (is *ImageStore) Remove(stored string) error {
	is.mutex.Lock()
	defer is.mutex.Unlock()

	path := is.Resolve(stored)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperrors.WriteFailed(err, path)
	}
	return nil
}
