package publish

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"strings"
)

const jpegQuality = 95

// NormalizeImage re-encodes the image at path as baseline JPEG, flattening
// any transparency onto a white background. The upload endpoint rejects alpha
// channels and non-JPEG containers. Returns the path to use for upload: the
// processed copy next to the original, or the original path unchanged when
// the file cannot be decoded (the upload then fails with the real error
// instead of a local one).
func NormalizeImage(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("image read failed, uploading original", slog.String("file", path), slog.Any("err", err))
		return path
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("image decode failed, uploading original", slog.String("file", path), slog.Any("err", err))
		return path
	}

	// Flatten onto white so transparent regions do not come out black.
	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Over)

	processed := processedPath(path)
	f, err := os.Create(processed)
	if err != nil {
		slog.Warn("processed image create failed, uploading original", slog.String("file", processed), slog.Any("err", err))
		return path
	}
	if err := jpeg.Encode(f, flat, &jpeg.Options{Quality: jpegQuality}); err != nil {
		f.Close()
		os.Remove(processed)
		slog.Warn("jpeg encode failed, uploading original", slog.String("file", path), slog.Any("err", err))
		return path
	}
	if err := f.Close(); err != nil {
		slog.Warn("processed image close failed, uploading original", slog.String("file", processed), slog.Any("err", err))
		return path
	}
	slog.Debug("image normalized", slog.String("from", format), slog.String("file", processed))
	return processed
}

func processedPath(path string) string {
	base := path
	if i := strings.LastIndex(path, "."); i > strings.LastIndexByte(path, os.PathSeparator) {
		base = path[:i]
	}
	return base + "_processed.jpg"
}

// thumbWidth/thumbHeight match the standard square post dimensions.
const (
	thumbWidth  = 1080
	thumbHeight = 1080
)

// FallbackThumbnail writes a plain black JPEG at path for videos whose real
// thumbnail could not be produced; the upload endpoint requires one.
func FallbackThumbnail(path string) error {
	img := image.NewRGBA(image.Rect(0, 0, thumbWidth, thumbHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		f.Close()
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return f.Close()
}
