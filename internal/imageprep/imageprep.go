// Package imageprep makes sure the still image is in a format the video
// encoder accepts, converting PNG input to an RGB JPEG when needed.
package imageprep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maauso/stillcast/internal/mediatype"
)

// ErrNotConvertible is returned for images that are neither compatible
// nor convertible.
var ErrNotConvertible = errors.New("image format cannot be converted")

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 95

// TempWriter creates uniquely named files. storage.LocalStorage satisfies it.
type TempWriter interface {
	SaveTemp(ctx context.Context, dir, pattern string, data io.Reader) (string, error)
}

// Image is the image path actually used for composition.
type Image struct {
	// Path is the file to encode.
	Path string
	// Source is the path the caller asked for.
	Source string
	// Derived is true when Path is a new file owned by the caller.
	Derived bool
}

// Normalizer converts images into an encoder-compatible raster format.
type Normalizer struct {
	store      TempWriter
	scratchDir string
	quality    int
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithScratchDir writes derived images into dir instead of beside the source.
func WithScratchDir(dir string) Option {
	return func(n *Normalizer) {
		n.scratchDir = dir
	}
}

// WithQuality sets the JPEG quality (1-100). Out-of-range values are ignored.
func WithQuality(q int) Option {
	return func(n *Normalizer) {
		if q >= 1 && q <= 100 {
			n.quality = q
		}
	}
}

// New creates a Normalizer that writes derived files through store.
func New(store TempWriter, opts ...Option) *Normalizer {
	n := &Normalizer{
		store:   store,
		quality: DefaultQuality,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns an encoder-compatible image for path.
//
// JPEG input is returned unchanged and nothing is written. PNG input is
// decoded, flattened to RGB and written as "<base>-<random>.jpg" next to
// the source (or in the scratch directory). The source is never modified.
func (n *Normalizer) Normalize(ctx context.Context, path string) (Image, error) {
	switch {
	case mediatype.IsCompatibleImage(path):
		return Image{Path: path, Source: path}, nil
	case mediatype.IsConvertibleImage(path):
	default:
		return Image{}, fmt.Errorf("%w: %s", ErrNotConvertible, path)
	}

	img, err := decodePNG(path)
	if err != nil {
		return Image{}, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Flatten(img), &jpeg.Options{Quality: n.quality}); err != nil {
		return Image{}, fmt.Errorf("encode jpeg: %w", err)
	}

	dir := n.scratchDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	derived, err := n.store.SaveTemp(ctx, dir, base+"-*.jpg", &buf)
	if err != nil {
		return Image{}, fmt.Errorf("write converted image: %w", err)
	}

	return Image{Path: derived, Source: path, Derived: true}, nil
}

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode png %s: %w", path, err)
	}
	return img, nil
}

// Flatten copies src into an opaque RGB image. Alpha is discarded and the
// straight (non-premultiplied) colour channels are kept as they are.
func Flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}
