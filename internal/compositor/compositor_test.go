package compositor

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/MeKo-Tech/moire/internal/layer"
	"github.com/MeKo-Tech/moire/internal/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCompositor() *Compositor {
	return New(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Workers: 2})
}

func TestComposeEmpty(t *testing.T) {
	c := newTestCompositor()
	f, report, err := c.Compose(nil, 7)
	require.NoError(t, err)
	require.Equal(t, 7, f.Height)
	require.Equal(t, 7, f.Width)
	for _, v := range f.Data {
		require.Equal(t, 1.0, v)
	}
	assert.Zero(t, report.Applied)
	assert.Empty(t, report.Skipped)

	n, _, err := c.ComposeAndNormalize(nil, 7)
	require.NoError(t, err)
	for _, v := range n.Data {
		require.Equal(t, 1.0, v, "normalizing the neutral field is a no-op")
	}
}

func TestComposeInvalidResolution(t *testing.T) {
	c := newTestCompositor()
	for _, res := range []int{0, -3} {
		_, _, err := c.Compose([]layer.Spec{{"type": "lines"}}, res)
		require.ErrorIs(t, err, pattern.ErrInvalidShape)
		_, _, err = c.ComposeDefinitions([]string{"type=lines"}, res)
		require.ErrorIs(t, err, pattern.ErrInvalidShape)
	}
}

func TestComposeIsProductOfLayers(t *testing.T) {
	c := newTestCompositor()
	specs := []layer.Spec{
		{"type": "lines", "pitch": 12.0, "angle": 15.0},
		{"type": "hex", "const": 30.0, "angle": 3.0},
	}
	f, report, err := c.Compose(specs, 32)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Applied)

	lines, err := pattern.LineGrating(32, 32, 12, 15)
	require.NoError(t, err)
	hex, err := pattern.HexLattice(32, 32, 30, 3)
	require.NoError(t, err)
	for i := range f.Data {
		assert.InDelta(t, lines.Data[i]*hex.Data[i], f.Data[i], 1e-12)
	}
}

func TestComposeCommutative(t *testing.T) {
	c := newTestCompositor()
	a := layer.Spec{"type": "hex", "const": 25.0, "angle": 0.0}
	b := layer.Spec{"type": "hex", "const": 25.0, "angle": 4.0}

	ab, _, err := c.Compose([]layer.Spec{a, b}, 48)
	require.NoError(t, err)
	ba, _, err := c.Compose([]layer.Spec{b, a}, 48)
	require.NoError(t, err)
	assert.InDeltaSlice(t, ab.Data, ba.Data, 1e-12)
}

func TestComposeSkipsBadLayers(t *testing.T) {
	c := newTestCompositor()
	specs := []layer.Spec{
		{"type": "circles"},
		{"type": "lines", "pitch": 0.0},
		{"type": "lines", "pitch": 8.0},
		{"type": "hex", "const": -1.0},
	}
	f, report, err := c.Compose(specs, 16)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	require.Len(t, report.Skipped, 3)

	assert.Equal(t, 1, report.Skipped[0].Index)
	assert.ErrorIs(t, report.Skipped[0].Err, layer.ErrUnknownType)
	assert.Equal(t, 2, report.Skipped[1].Index)
	assert.ErrorIs(t, report.Skipped[1].Err, pattern.ErrInvalidParameter)
	assert.Equal(t, 4, report.Skipped[2].Index)
	assert.ErrorIs(t, report.Skipped[2].Err, pattern.ErrInvalidParameter)

	only, err := pattern.LineGrating(16, 16, 8, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, only.Data, f.Data, 1e-12)
}

func TestComposeDefinitions(t *testing.T) {
	c := newTestCompositor()
	defs := []string{
		"type=lines, pitch=10",
		"type=lines; pitch=6; angle=30",
		"type=squares",
		"",
	}
	f, report, err := c.ComposeDefinitions(defs, 20)
	require.NoError(t, err)
	require.Equal(t, 20, f.Height)

	// The blank definition is an empty spec and defaults to lines, pitch 10.
	assert.Equal(t, 2, report.Applied)
	require.Len(t, report.Skipped, 2)
	assert.Equal(t, 1, report.Skipped[0].Index)
	assert.ErrorIs(t, report.Skipped[0].Err, layer.ErrMalformedSpec)
	assert.Equal(t, "type=lines, pitch=10", report.Skipped[0].Input)
	assert.Equal(t, 3, report.Skipped[1].Index)
	assert.ErrorIs(t, report.Skipped[1].Err, layer.ErrUnknownType)
	assert.Equal(t, "type=squares", report.Skipped[1].Input)

	want, _, err := c.Compose([]layer.Spec{{"type": "lines", "pitch": 6.0, "angle": 30.0}, {}}, 20)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Data, f.Data, 1e-12)
}

func TestComposeAndNormalizeClosedForm(t *testing.T) {
	c := newTestCompositor()
	f, _, err := c.ComposeAndNormalize([]layer.Spec{{"type": "lines", "pitch": 2.0, "angle": 0.0}}, 4)
	require.NoError(t, err)

	xs := []float64{-2, -2.0 / 3, 2.0 / 3, 2}
	raw := make([]float64, 0, 16)
	for row := 0; row < 4; row++ {
		for _, x := range xs {
			raw = append(raw, (math.Cos(math.Pi*x)+1)/2)
		}
	}
	want := pattern.NormalizeValues(raw)
	assert.InDeltaSlice(t, want, f.Data, 1e-9)
	assert.InDeltaSlice(t, []float64{1, 0, 0, 1}, f.Row(0), 1e-9)
}

func TestComposeShapePreserved(t *testing.T) {
	c := newTestCompositor()
	for _, n := range []int{0, 1, 3} {
		specs := make([]layer.Spec, n)
		for i := range specs {
			specs[i] = layer.Spec{"type": "hex", "const": 10.0 + float64(i), "angle": float64(i * 7)}
		}
		f, _, err := c.ComposeAndNormalize(specs, 24)
		require.NoError(t, err)
		assert.Equal(t, 24, f.Height)
		assert.Equal(t, 24, f.Width)
		assert.Len(t, f.Data, 24*24)
		for _, v := range f.Data {
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestMergeSkipped(t *testing.T) {
	a := []Skipped{{Index: 1}, {Index: 4}}
	b := []Skipped{{Index: 2}, {Index: 3}, {Index: 6}}
	got := mergeSkipped(a, b)
	idx := make([]int, len(got))
	for i, s := range got {
		idx[i] = s.Index
	}
	assert.Equal(t, []int{1, 2, 3, 4, 6}, idx)
}
