package manipulator

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/pavel-fokin/media-library/internal/conversion"
	"github.com/pavel-fokin/media-library/internal/media"
)

const (
	defaultJPEGQuality  = 90
	DefaultMaxDimension = 4096
)

// ImageGenerator renders conversions of raster images with imaging.
type ImageGenerator struct {
	// MaxDimension caps requested widths and heights; zero means
	// DefaultMaxDimension.
	MaxDimension int
}

func (ImageGenerator) CanConvert(t media.Type) bool {
	return t == media.TypeImage
}

// Convert applies every step of conv in order. The output format follows
// the extension of targetPath.
func (g ImageGenerator) Convert(ctx context.Context, sourcePath string, conv *conversion.Conversion, targetPath string) error {
	if _, err := imaging.FormatFromFilename(targetPath); err != nil {
		return fmt.Errorf("unsupported output format %q: %w", targetPath, err)
	}

	img, err := imaging.Open(sourcePath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}

	quality := defaultJPEGQuality
	for _, step := range conv.Manipulations() {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err = applyStep(img, step, g.maxDimension())
		if err != nil {
			return err
		}
		if q, ok := intParam(step, conversion.ParamQuality); ok && q > 0 && q <= 100 {
			quality = q
		}
	}

	if err := imaging.Save(img, targetPath, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

func (g ImageGenerator) maxDimension() int {
	if g.MaxDimension > 0 {
		return g.MaxDimension
	}
	return DefaultMaxDimension
}

func applyStep(img image.Image, step *media.Map, maxDimension int) (image.Image, error) {
	if deg, ok := intParam(step, conversion.ParamOrientation); ok {
		switch deg {
		case 90:
			img = imaging.Rotate90(img)
		case 180:
			img = imaging.Rotate180(img)
		case 270:
			img = imaging.Rotate270(img)
		}
	}

	if v, ok := step.Get(conversion.ParamCrop); ok {
		rect, err := parseCrop(v.Text())
		if err != nil {
			return nil, err
		}
		img = imaging.Crop(img, rect)
	}

	img = resize(img, step, maxDimension)

	if v, ok := floatParam(step, conversion.ParamBrightness); ok {
		img = imaging.AdjustBrightness(img, v)
	}
	if v, ok := floatParam(step, conversion.ParamContrast); ok {
		img = imaging.AdjustContrast(img, v)
	}
	if v, ok := floatParam(step, conversion.ParamGamma); ok && v > 0 {
		img = imaging.AdjustGamma(img, v)
	}
	if v, ok := floatParam(step, conversion.ParamSharpen); ok && v > 0 {
		img = imaging.Sharpen(img, v/10)
	}
	if v, ok := step.Get(conversion.ParamFilter); ok && v.Text() == "greyscale" {
		img = imaging.Grayscale(img)
	}
	if v, ok := floatParam(step, conversion.ParamBlur); ok && v > 0 {
		img = imaging.Blur(img, v/10)
	}

	return img, nil
}

// resize handles w, h and fit. "contain" and "max" never upscale. Both
// dimensions are clamped to maxDimension.
func resize(img image.Image, step *media.Map, maxDimension int) image.Image {
	w, _ := intParam(step, conversion.ParamWidth)
	h, _ := intParam(step, conversion.ParamHeight)
	w, h = min(w, maxDimension), min(h, maxDimension)
	if w <= 0 && h <= 0 {
		return img
	}

	fit := "contain"
	if v, ok := step.Get(conversion.ParamFit); ok && v.Text() != "" {
		fit = v.Text()
	}

	switch {
	case fit == "stretch" && w > 0 && h > 0:
		return imaging.Resize(img, w, h, imaging.Lanczos)
	case fit == "crop" && w > 0 && h > 0:
		return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
	case w > 0 && h > 0:
		return imaging.Fit(img, w, h, imaging.Lanczos)
	}

	bounds := img.Bounds()
	if (w > 0 && w >= bounds.Dx()) || (h > 0 && h >= bounds.Dy()) {
		return img
	}
	return imaging.Resize(img, max(w, 0), max(h, 0), imaging.Lanczos)
}

// parseCrop reads "width,height,x,y".
func parseCrop(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("invalid crop %q", s)
	}

	var n [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid crop %q: %w", s, err)
		}
		n[i] = v
	}

	return image.Rect(n[2], n[3], n[2]+n[0], n[3]+n[1]), nil
}

func intParam(step *media.Map, key string) (int, bool) {
	v, ok := step.Get(key)
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

func floatParam(step *media.Map, key string) (float64, bool) {
	v, ok := step.Get(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.Text(), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
