// Package imageio reads and writes image files for the converter. Decoding
// honours EXIF orientation and accepts JPEG, PNG, GIF, BMP, TIFF and WebP;
// encoding supports every format except WebP.
package imageio

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/cjeanneret/FishGo/internal/raster"
)

// JPEGQuality is used whenever an output is written as JPEG.
const JPEGQuality = 95

// Load decodes the image file at path, applying its EXIF orientation.
func Load(path string) (*raster.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	out, err := raster.FromImage(img)
	if err != nil {
		return nil, fmt.Errorf("convert image %s: %w", path, err)
	}
	return out, nil
}

// Decode reads an image from r, applying its EXIF orientation.
func Decode(r io.Reader) (*raster.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return raster.FromImage(img)
}

// DecodeConfig reads only the header of the image in r and returns its
// stored width and height, before any EXIF rotation.
func DecodeConfig(r io.Reader) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// CheckOutputPath reports whether path has an extension Save can write.
func CheckOutputPath(path string) error {
	if _, err := imaging.FormatFromFilename(path); err != nil {
		return fmt.Errorf("output %s: %w", path, err)
	}
	return nil
}

// Save encodes img to path. The format follows the file extension.
func Save(path string, img *raster.Image) error {
	if err := img.Validate(); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := imaging.Save(img.ToImage(), path, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// EncodePNG writes img to w as PNG.
func EncodePNG(w io.Writer, img *raster.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	return imaging.Encode(w, img.ToImage(), imaging.PNG)
}

// CropSquare returns the centred square of img whose side is the shorter
// dimension. A square img is returned unchanged.
func CropSquare(img *raster.Image) (*raster.Image, error) {
	side := img.Width
	if img.Height < side {
		side = img.Height
	}
	if img.Width == img.Height {
		return img, nil
	}
	cropped := imaging.CropCenter(img.ToImage(), side, side)
	out, err := raster.FromImage(cropped)
	if err != nil {
		return nil, fmt.Errorf("crop square: %w", err)
	}
	if img.Channels == 1 {
		return toGray(out)
	}
	return out, nil
}

// toGray collapses an RGB(A) image whose channels are equal back to one
// channel, so cropping keeps grayscale inputs grayscale.
func toGray(img *raster.Image) (*raster.Image, error) {
	if img.Channels == 1 {
		return img, nil
	}
	out, err := raster.New(img.Width, img.Height, 1)
	if err != nil {
		return nil, err
	}
	for i := range out.Pix {
		out.Pix[i] = img.Pix[i*img.Channels]
	}
	return out, nil
}
