package imaging

import (
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff" // Register TIFF format decoder

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
)

// MaxInputFiles is the default cap on images picked up by a folder scan.
const MaxInputFiles = 99

// outputMarker excludes result folders written by earlier runs from scans.
const outputMarker = "Output"

var acceptedExtensions = map[string]string{
	".png":  "png",
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".tif":  "tiff",
	".tiff": "tiff",
}

// IsAccepted reports whether path has one of the accepted image extensions.
// The comparison is case-insensitive.
func IsAccepted(path string) bool {
	_, ok := acceptedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ImageCache provides thread-safe caching of decoded images to avoid
// redundant disk reads.
//
// The cache stores decoded image.Image objects keyed by their file path. Once
// an image is loaded, subsequent Load() calls for the same path return the
// cached copy without disk I/O. Cached images are shared and must be treated
// as read-only; every pipeline stage copies before it writes.
//
// ImageCache is safe for concurrent use by multiple goroutines.
//
// # Memory Management
//
// Cached images remain in memory until explicitly removed via Evict() or
// Clear(). Long-running servers should evict images once a calibration or
// analysis that used them has finished.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
	}
}

// Load retrieves an image from the cache or loads it from disk if not cached.
//
// Parameters:
//   - path: Absolute or relative file path to the image. Supported formats are
//     PNG, JPEG and TIFF.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: An input error if the extension is not accepted, or if the file
//     cannot be opened or decoded.
//
// The image is cached using the exact path string provided. Different paths to
// the same file (e.g., relative vs absolute) result in separate cache entries.
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := Open(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Clear removes all images from the cache, freeing the associated memory.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
//
// If the path is not in the cache, this method does nothing.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Open decodes the image at path without caching it. Files whose extension is
// not accepted are rejected before they are read.
func Open(path string) (image.Image, error) {
	if !IsAccepted(path) {
		return nil, apperrors.NewInputError(
			fmt.Sprintf("unsupported image format %q", filepath.Ext(path)), nil).WithFile(path)
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, apperrors.NewInputError("failed to open image", err).WithFile(path)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, apperrors.NewInputError("image has zero area", nil).WithFile(path)
	}
	return img, nil
}

// Decode reads an image from r. name is only used to check the extension
// and to tag errors.
func Decode(r io.Reader, name string) (image.Image, error) {
	if !IsAccepted(name) {
		return nil, apperrors.NewInputError(
			fmt.Sprintf("unsupported image format %q", filepath.Ext(name)), nil).WithFile(name)
	}
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, apperrors.NewInputError("failed to decode image", err).WithFile(name)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, apperrors.NewInputError("image has zero area", nil).WithFile(name)
	}
	return img, nil
}

// ImageInfo contains metadata about an image file.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the decoder that recognised the file: "png", "jpeg" or "tiff".
	Format string `json:"format"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo reads only the image header and returns its metadata.
//
// Unlike ImageCache.Load, the pixel data is not decoded, which keeps this
// cheap enough to run over a whole folder before a batch starts.
func LoadImageInfo(path string) (*ImageInfo, error) {
	if !IsAccepted(path) {
		return nil, apperrors.NewInputError(
			fmt.Sprintf("unsupported image format %q", filepath.Ext(path)), nil).WithFile(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewInputError("failed to open image", err).WithFile(path)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, apperrors.NewInputError("failed to decode image header", err).WithFile(path)
	}

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &ImageInfo{
		Width:         cfg.Width,
		Height:        cfg.Height,
		Format:        format,
		FileSizeBytes: stat.Size(),
	}, nil
}

// CollectImages walks dir recursively and returns the accepted image files in
// lexical order. Directories whose path contains "Output" are skipped so that
// results written by earlier runs are never fed back in. At most limit files
// are returned; truncated reports whether the limit cut the scan short.
func CollectImages(dir string, limit int) (files []string, truncated bool, err error) {
	if limit <= 0 {
		limit = MaxInputFiles
	}
	if strings.Contains(dir, outputMarker) {
		return nil, false, apperrors.NewInputError("refusing to scan an output folder", nil).WithFile(dir)
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.Contains(d.Name(), outputMarker) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsAccepted(path) {
			return nil
		}
		if len(files) >= limit {
			truncated = true
			return filepath.SkipAll
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, false, apperrors.NewInputError("failed to scan folder", err).WithFile(dir)
	}
	return files, truncated, nil
}
