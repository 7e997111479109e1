// Package images stores listing photos on a pluggable host addressed by an
// opaque public id.
package images

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nfnt/resize"
	"golang.org/x/exp/rand"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

type Image struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

type Host interface {
	Upload(ctx context.Context, file io.Reader, folder, filename string) (Image, error)
	Delete(ctx context.Context, publicID string) error
}

// DiskHost keeps images under a local directory served at <baseURL>/uploads.
// The public id is the path relative to that directory.
type DiskHost struct {
	dir      string
	baseURL  string
	maxWidth uint
}

func NewDiskHost(dir, baseURL string, maxWidth uint) *DiskHost {
	return &DiskHost{dir: dir, baseURL: baseURL, maxWidth: maxWidth}
}

func (h *DiskHost) Upload(_ context.Context, file io.Reader, folder, filename string) (Image, error) {
	img, format, err := image.Decode(file)
	if err != nil {
		return Image{}, ErrUnsupportedFormat
	}

	var ext string
	switch format {
	case "jpeg":
		ext = ".jpg"
	case "png":
		ext = ".png"
	default:
		return Image{}, ErrUnsupportedFormat
	}

	// Oversized uploads are downscaled before they hit disk.
	if h.maxWidth > 0 && uint(img.Bounds().Dx()) > h.maxWidth {
		img = resize.Resize(h.maxWidth, 0, img, resize.Lanczos3)
	}

	if err := os.MkdirAll(filepath.Join(h.dir, folder), os.ModePerm); err != nil {
		return Image{}, err
	}

	// Generate new filename
	randomNumber := rand.Intn(1000)
	timestamp := time.Now().Unix()
	newFileName := fmt.Sprintf("%s_%d_%d%s", folder, timestamp, randomNumber, ext)
	publicID := folder + "/" + newFileName

	destFile, err := os.Create(filepath.Join(h.dir, folder, newFileName))
	if err != nil {
		return Image{}, err
	}
	defer destFile.Close()

	switch format {
	case "jpeg":
		err = jpeg.Encode(destFile, img, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(destFile, img)
	}
	if err != nil {
		return Image{}, err
	}

	return Image{
		URL:      h.baseURL + "/uploads/" + publicID,
		PublicID: publicID,
	}, nil
}

func (h *DiskHost) Delete(_ context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	return os.Remove(filepath.Join(h.dir, filepath.FromSlash(publicID)))
}
