// Package render turns a normalized field into an 8-bit grayscale image,
// applies optional post filters and encodes the result.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/moire/internal/pattern"
	"github.com/aquilax/go-perlin"
	"github.com/disintegration/gift"
)

// Options controls post-processing and encoding.
type Options struct {
	// PNGCompression is one of default, speed, best, none.
	PNGCompression string
	// Upscale enlarges the image by an integer factor (0 or 1 disables).
	Upscale int
	// Soften is the Gaussian blur sigma in output pixels (0 disables).
	Soften float32
	// Grain is the strength of a Perlin grain overlay in [0,1] (0 disables).
	Grain float64
	// GrainScale is the grain feature size in output pixels (default 8).
	GrainScale float64
	Seed       int64
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.Upscale < 0 {
		return fmt.Errorf("upscale must be non-negative, got %d", o.Upscale)
	}
	if o.Soften < 0 {
		return fmt.Errorf("soften must be non-negative, got %v", o.Soften)
	}
	if o.Grain < 0 || o.Grain > 1 {
		return fmt.Errorf("grain must be within [0,1], got %v", o.Grain)
	}
	if o.GrainScale < 0 {
		return fmt.Errorf("grain scale must be non-negative, got %v", o.GrainScale)
	}
	if _, err := parsePNGCompression(o.PNGCompression); err != nil {
		return err
	}
	return nil
}

// Tag describes the options that change the encoded bytes of format, with
// defaults normalized away. Options rendering identical output share a tag;
// plain options yield "".
func (o Options) Tag(format Format) string {
	var parts []string
	if o.Upscale > 1 {
		parts = append(parts, "upscale="+strconv.Itoa(o.Upscale))
	}
	if o.Soften > 0 {
		parts = append(parts, "soften="+strconv.FormatFloat(float64(o.Soften), 'g', -1, 32))
	}
	if o.Grain > 0 {
		scale := o.GrainScale
		if scale == 0 {
			scale = 8
		}
		parts = append(parts,
			"grain="+strconv.FormatFloat(o.Grain, 'g', -1, 64),
			"grain_scale="+strconv.FormatFloat(scale, 'g', -1, 64),
			"seed="+strconv.FormatInt(o.Seed, 10),
		)
	}
	if format == FormatPNG {
		if c := strings.ToLower(o.PNGCompression); c != "" && c != "default" {
			parts = append(parts, "png="+c)
		}
	}
	return strings.Join(parts, ",")
}

// ToGray maps field values in [0,1] to gray levels 0..255. Values outside
// the range are clamped.
func ToGray(f *pattern.Field) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for row := 0; row < f.Height; row++ {
		src := f.Row(row)
		dst := img.Pix[row*img.Stride : row*img.Stride+f.Width]
		for col, v := range src {
			dst[col] = toByte(v * 255)
		}
	}
	return img
}

// Process applies the configured post filters in order: upscale, soften, grain.
func Process(img *image.Gray, opts Options) *image.Gray {
	var filters []gift.Filter
	if opts.Upscale > 1 {
		b := img.Bounds()
		filters = append(filters, gift.Resize(b.Dx()*opts.Upscale, b.Dy()*opts.Upscale, gift.LanczosResampling))
	}
	if opts.Soften > 0 {
		filters = append(filters, gift.GaussianBlur(opts.Soften))
	}

	out := img
	if len(filters) > 0 {
		g := gift.New(filters...)
		out = image.NewGray(g.Bounds(img.Bounds()))
		g.Draw(out, img)
	}
	if opts.Grain > 0 {
		out = applyGrain(out, opts)
	}
	return out
}

// applyGrain perturbs every pixel by seeded Perlin noise.
func applyGrain(img *image.Gray, opts Options) *image.Gray {
	scale := opts.GrainScale
	if scale == 0 {
		scale = 8
	}
	// alpha: persistence, beta: lacunarity, n: octaves
	p := perlin.NewPerlin(2.0, 2.0, 3, opts.Seed)

	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			noise := p.Noise2D(float64(x)/scale, float64(y)/scale)
			v := float64(img.GrayAt(x, y).Y) + noise*opts.Grain*127.5
			out.SetGray(x, y, color.Gray{Y: toByte(v)})
		}
	}
	return out
}

func toByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
