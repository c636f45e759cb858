// Package imagestore persists pipeline images (room photos, styled outputs,
// region crops) on local disk under opaque refs. Refs are generated, never
// user-supplied paths, and every lookup validates the ref before touching
// the filesystem.
package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// maxConcurrentThumbnails bounds on-the-fly thumbnail generation, which
// decodes full images and is the memory-heaviest read path.
const maxConcurrentThumbnails = 3

// LocalStore stores images as flat files under a single root directory.
type LocalStore struct {
	root         string
	thumbnailSem *semaphore.Weighted
}

// New creates the root directory if needed and returns the store.
func New(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("image store root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.Wrap(err, "create image store root")
	}
	return &LocalStore{
		root:         root,
		thumbnailSem: semaphore.NewWeighted(maxConcurrentThumbnails),
	}, nil
}

// Save writes data under a fresh ref and returns it. ext is the file
// extension including the dot; when empty the content type is sniffed.
func (s *LocalStore) Save(data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("refusing to save empty image")
	}
	if ext == "" {
		ext = ExtForContent(data)
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	ref := shortuuid.New() + ext
	if err := os.WriteFile(filepath.Join(s.root, ref), data, 0o640); err != nil {
		return "", errors.Wrapf(err, "write image %s", ref)
	}
	return ref, nil
}

// Read returns the bytes stored under ref.
func (s *LocalStore) Read(ref string) ([]byte, error) {
	path, err := s.Path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read image %s", ref)
	}
	return data, nil
}

// Path validates ref and returns its absolute location. Refs never contain
// path separators, so anything that would escape the root is rejected here.
func (s *LocalStore) Path(ref string) (string, error) {
	if ref == "" || strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") || ref != filepath.Base(ref) {
		return "", errors.Errorf("invalid image ref %q", ref)
	}
	return filepath.Join(s.root, ref), nil
}

// Stat returns the stored size, or an error when the ref does not resolve.
func (s *LocalStore) Stat(ref string) (int64, error) {
	path, err := s.Path(ref)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "stat image %s", ref)
	}
	return info.Size(), nil
}

// Delete removes the image under ref. Missing files are not an error so
// retention sweeps stay idempotent.
func (s *LocalStore) Delete(ref string) error {
	path, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete image %s", ref)
	}
	return nil
}

// SaveCrop cuts the box out of source and stores it as PNG.
func (s *LocalStore) SaveCrop(source []byte, x, y, width, height int) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(source))
	if err != nil {
		return "", errors.Wrap(err, "decode crop source")
	}
	crop := imaging.Crop(img, image.Rect(x, y, x+width, y+height))
	bounds := crop.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return "", errors.Errorf("crop %dx%d at (%d,%d) is outside the image", width, height, x, y)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, crop, imaging.PNG); err != nil {
		return "", errors.Wrap(err, "encode crop")
	}
	return s.Save(buf.Bytes(), ".png")
}

// Thumbnail renders ref downscaled to fit maxSize in both dimensions,
// preserving aspect ratio. Generation is semaphore-bounded.
func (s *LocalStore) Thumbnail(ctx context.Context, ref string, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		return nil, errors.Errorf("invalid thumbnail size %d", maxSize)
	}
	if err := s.thumbnailSem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "acquire thumbnail slot")
	}
	defer s.thumbnailSem.Release(1)

	data, err := s.Read(ref)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "decode image %s", ref)
	}
	thumb := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)

	format, err := imaging.FormatFromExtension(filepath.Ext(ref))
	if err != nil {
		format = imaging.PNG
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, format); err != nil {
		return nil, errors.Wrap(err, "encode thumbnail")
	}
	return buf.Bytes(), nil
}

// ExtForContent sniffs data and returns a matching file extension.
func ExtForContent(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
