package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

// ErrBadArchive is returned when the input bytes cannot be parsed as a ZIP archive
var ErrBadArchive = errors.New("not a valid zip archive")

// PreviewSize is the longest side of the preview thumbnail in pixels
const PreviewSize = 96

// ImageAsset is a single decoded image extracted from an archive
type ImageAsset struct {
	Name    string      // base filename of the archive entry
	Image   image.Image // full decoded bitmap
	Preview image.Image // thumbnail for display, longest side PreviewSize
	Data    []byte      // original compressed-format bytes (JPEG/PNG/...)
}

// IsImageFile checks if the given file extension is one of the supported image extensions
func IsImageFile(p string) bool {
	var desiredExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

	ext := path.Ext(p)
	ext = strings.ToLower(ext) // handle cases where extension is upper case

	for _, v := range desiredExtensions {
		if v == ext {
			return true
		}
	}
	return false
}

// IsMetadataPath reports whether an archive entry path is platform metadata
// (macOS resource forks and Finder/Explorer droppings) rather than content
func IsMetadataPath(p string) bool {
	normalized := strings.ReplaceAll(p, "\\", "/")
	base := path.Base(normalized)

	if strings.HasPrefix(base, "._") {
		return true
	}
	if base == ".DS_Store" || base == "Thumbs.db" {
		return true
	}

	for _, part := range strings.Split(normalized, "/") {
		if part == "__MACOSX" {
			return true
		}
	}
	return false
}

// Extract parses a ZIP archive and returns the decoded image assets it
// contains, in archive enumeration order. Entries that are directories,
// non-images or platform metadata are skipped, as are entries whose bytes
// do not decode as an image. An archive with no qualifying entries yields
// an empty slice, not an error.
func Extract(data []byte) ([]ImageAsset, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}

	var assets []ImageAsset
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if !IsImageFile(entry.Name) || IsMetadataPath(entry.Name) {
			continue
		}

		raw, err := readEntry(entry)
		if err != nil {
			continue
		}

		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			// Image extension but undecodable content, skip it
			continue
		}

		assets = append(assets, ImageAsset{
			Name:    path.Base(strings.ReplaceAll(entry.Name, "\\", "/")),
			Image:   img,
			Preview: Thumbnail(img),
			Data:    raw,
		})
	}

	return assets, nil
}

// Thumbnail scales an image down so that its longest side is PreviewSize.
// Images already smaller than PreviewSize are returned unscaled.
func Thumbnail(img image.Image) image.Image {
	return resize.Thumbnail(PreviewSize, PreviewSize, img, resize.Lanczos3)
}

func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}
