package render

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/moire/internal/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func testField(t *testing.T) *pattern.Field {
	t.Helper()
	f, err := pattern.NewField(2, 3)
	require.NoError(t, err)
	copy(f.Data, []float64{0, 0.5, 1, -0.2, 1.7, 0.25})
	return f
}

func TestToGray(t *testing.T) {
	img := ToGray(testField(t))
	require.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	assert.Equal(t, uint8(0), img.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(128), img.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), img.GrayAt(2, 0).Y)
	assert.Equal(t, uint8(0), img.GrayAt(0, 1).Y, "clamped below")
	assert.Equal(t, uint8(255), img.GrayAt(1, 1).Y, "clamped above")
	assert.Equal(t, uint8(64), img.GrayAt(2, 1).Y)
}

func TestProcess(t *testing.T) {
	f, err := pattern.LineGrating(16, 16, 4, 30)
	require.NoError(t, err)
	img := ToGray(f)

	t.Run("no filters returns input", func(t *testing.T) {
		assert.Same(t, img, Process(img, Options{}))
	})

	t.Run("upscale", func(t *testing.T) {
		out := Process(img, Options{Upscale: 3})
		assert.Equal(t, 48, out.Bounds().Dx())
		assert.Equal(t, 48, out.Bounds().Dy())
	})

	t.Run("soften keeps size", func(t *testing.T) {
		out := Process(img, Options{Soften: 1.5})
		assert.Equal(t, img.Bounds(), out.Bounds())
		assert.NotEqual(t, img.Pix, out.Pix)
	})

	t.Run("grain is seeded", func(t *testing.T) {
		a := Process(img, Options{Grain: 0.5, Seed: 7})
		b := Process(img, Options{Grain: 0.5, Seed: 7})
		assert.Equal(t, a.Pix, b.Pix)
		assert.NotEqual(t, img.Pix, a.Pix)
	})
}

func TestOptionsValidate(t *testing.T) {
	require.NoError(t, Options{}.Validate())
	require.NoError(t, Options{PNGCompression: "best", Upscale: 2, Soften: 1, Grain: 1}.Validate())
	require.Error(t, Options{Upscale: -1}.Validate())
	require.Error(t, Options{Soften: -1}.Validate())
	require.Error(t, Options{Grain: 1.5}.Validate())
	require.Error(t, Options{GrainScale: -2}.Validate())
	require.Error(t, Options{PNGCompression: "ultra"}.Validate())
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{path: "out.png", want: FormatPNG},
		{path: "dir/out.PNG", want: FormatPNG},
		{path: "out.tif", want: FormatTIFF},
		{path: "out.tiff", want: FormatTIFF},
		{path: "out.bmp", want: FormatBMP},
		{path: "out.jpg", wantErr: true},
		{path: "out", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, ".tiff", FormatTIFF.Ext())
	assert.Equal(t, "image/png", FormatPNG.ContentType())
}

func TestEncodeRoundTrip(t *testing.T) {
	f, err := pattern.HexLattice(12, 12, 5, 10)
	require.NoError(t, err)
	want := ToGray(pattern.Normalize(f))

	decoders := map[Format]func([]byte) (image.Image, error){
		FormatPNG:  func(b []byte) (image.Image, error) { return png.Decode(bytes.NewReader(b)) },
		FormatTIFF: func(b []byte) (image.Image, error) { return tiff.Decode(bytes.NewReader(b)) },
		FormatBMP:  func(b []byte) (image.Image, error) { return bmp.Decode(bytes.NewReader(b)) },
	}
	for format, decode := range decoders {
		t.Run(string(format), func(t *testing.T) {
			data, err := EncodeField(pattern.Normalize(f), format, Options{PNGCompression: "best"})
			require.NoError(t, err)
			img, err := decode(data)
			require.NoError(t, err)
			require.Equal(t, want.Bounds(), img.Bounds())
			for y := 0; y < 12; y++ {
				for x := 0; x < 12; x++ {
					r, _, _, _ := img.At(x, y).RGBA()
					require.Equal(t, want.GrayAt(x, y).Y, uint8(r>>8), "pixel %d,%d", x, y)
				}
			}
		})
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "pattern.png")
	f, err := pattern.LineGrating(8, 8, 3, 0)
	require.NoError(t, err)

	require.NoError(t, WriteFile(path, f, Options{}))
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())

	require.Error(t, WriteFile(filepath.Join(dir, "pattern.gif"), f, Options{}))
}

func TestOptionsTag(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		format Format
		want   string
	}{
		{name: "defaults", opts: Options{}, format: FormatPNG, want: ""},
		{name: "no-op values", opts: Options{Upscale: 1, PNGCompression: "Default", GrainScale: 3, Seed: 9}, format: FormatPNG, want: ""},
		{name: "upscale", opts: Options{Upscale: 4}, format: FormatPNG, want: "upscale=4"},
		{name: "grain defaults scale", opts: Options{Grain: 0.25, Seed: 7}, format: FormatBMP, want: "grain=0.25,grain_scale=8,seed=7"},
		{name: "compression only for png", opts: Options{PNGCompression: "best", Soften: 1.5}, format: FormatTIFF, want: "soften=1.5"},
		{name: "png compression", opts: Options{PNGCompression: "BEST"}, format: FormatPNG, want: "png=best"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.Tag(tt.format))
		})
	}
}
