package storage

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "moodiary/pkg/errors"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestImageStore(t *testing.T) *ImageStore {
	t.Helper()
	store, err := NewImageStore(filepath.Join(t.TempDir(), "uploads"), nil)
	require.NoError(t, err)
	store.now = func() time.Time { return time.Unix(1717400000, 0) }
	return store
}

func TestImageStoreSaveImage(t *testing.T) {
	store := newTestImageStore(t)
	data := pngBytes(t)

	stored, err := store.SaveImage(data, "beach.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.ToSlash(filepath.Join(store.Dir(), "1717400000_beach.png")), stored)

	onDisk, err := os.ReadFile(store.Resolve(stored))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)
	assert.NoError(t, store.Check(stored))
}

func TestImageStoreNeverOverwrites(t *testing.T) {
	store := newTestImageStore(t)

	first, err := store.SaveImage([]byte("first"), "same.png")
	require.NoError(t, err)
	second, err := store.SaveImage([]byte("second"), "same.png")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(filepath.Base(second), "1717400000_"))
	assert.True(t, strings.HasSuffix(second, "_same.png"))

	data, err := os.ReadFile(store.Resolve(first))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestImageStoreSanitizesNames(t *testing.T) {
	store := newTestImageStore(t)

	stored, err := store.SaveImage([]byte("x"), `..\..\evil/../passwd.png`)
	require.NoError(t, err)
	assert.Equal(t, store.Dir(), filepath.Dir(filepath.FromSlash(stored)))
	assert.Equal(t, "1717400000_passwd.png", filepath.Base(stored))
}

func TestImageStoreResolveStaysInDir(t *testing.T) {
	store := newTestImageStore(t)

	assert.Equal(t, filepath.Join(store.Dir(), "passwd"), store.Resolve("../../etc/passwd"))
	assert.Equal(t, filepath.Join(store.Dir(), "1_a.png"), store.Resolve("uploads/1_a.png"))
}

func TestImageStoreCheckFailures(t *testing.T) {
	store := newTestImageStore(t)

	err := store.Check("uploads/missing.png")
	assert.True(t, errors.Is(err, apperrors.ErrImage))

	stored, err := store.SaveImage([]byte("definitely not a png"), "fake.png")
	require.NoError(t, err)
	err = store.Check(stored)
	assert.True(t, errors.Is(err, apperrors.ErrImage))
	assert.Equal(t, "(image could not be displayed)", apperrors.ToFrontendError(err).Message)
}

func TestImageStoreOpen(t *testing.T) {
	store := newTestImageStore(t)
	data := pngBytes(t)
	stored, err := store.SaveImage(data, "a.png")
	require.NoError(t, err)

	f, format, err := store.Open(filepath.Base(stored))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "png", format)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(f)
	require.NoError(t, err)
	assert.Equal(t, data, buf.Bytes(), "file must be rewound after sniffing")

	_, _, err = store.Open("nope.png")
	assert.True(t, errors.Is(err, apperrors.ErrImage))
}

func TestImageStoreRemove(t *testing.T) {
	store := newTestImageStore(t)
	stored, err := store.SaveImage([]byte("x"), "a.png")
	require.NoError(t, err)

	require.NoError(t, store.Remove(stored))
	_, err = os.Stat(store.Resolve(stored))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Remove(stored), "removing twice is fine")
}
