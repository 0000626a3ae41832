package sweep

import (
	"testing"

	"github.com/MeKo-Tech/moire/internal/layer"
	"github.com/MeKo-Tech/moire/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange_Angles(t *testing.T) {
	tests := []struct {
		name  string
		r     Range
		want  []float64
		count int
	}{
		{name: "inclusive", r: Range{Min: 0, Max: 2, Step: 1}, want: []float64{0, 1, 2}, count: 3},
		{name: "fractional step", r: Range{Min: 0, Max: 0.3, Step: 0.1}, want: []float64{0, 0.1, 0.2, 0.3}, count: 4},
		{name: "single", r: Range{Min: 5, Max: 5, Step: 1}, want: []float64{5}, count: 1},
		{name: "max not on grid", r: Range{Min: 0, Max: 2.5, Step: 1}, want: []float64{0, 1, 2}, count: 3},
		{name: "negative", r: Range{Min: -1, Max: 1, Step: 1}, want: []float64{-1, 0, 1}, count: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.r.Validate())
			assert.Equal(t, tt.count, tt.r.Count())
			assert.InDeltaSlice(t, tt.want, tt.r.Angles(), 1e-12)
		})
	}
}

func TestRange_Validate(t *testing.T) {
	bad := []Range{
		{Min: 0, Max: 1, Step: 0},
		{Min: 0, Max: 1, Step: -0.5},
		{Min: 2, Max: 1, Step: 1},
		{Min: 0, Max: 1e9, Step: 1},
	}
	for _, r := range bad {
		assert.Error(t, r.Validate(), "%+v", r)
		assert.Equal(t, 0, r.Count())
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		angle float64
		want  string
	}{
		{angle: 1.5, want: "twist_1.50"},
		{angle: -0.25, want: "twist_-0.25"},
		{angle: 0, want: "twist_0.00"},
		{angle: -0.0000000001, want: "twist_0.00"},
		{angle: 10, want: "twist_10.00"},
		{angle: 0.001, want: "twist_0.001"},
		{angle: 0.1 + 0.2, want: "twist_0.30"},
		{angle: 2.0625, want: "twist_2.0625"},
		{angle: 1.0 / 3, want: "twist_0.333333333"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(tt.angle))
		})
	}
}

func TestParseName(t *testing.T) {
	angle, err := ParseName("twist_1.50")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, angle, 1e-12)

	for _, bad := range []string{"z13_x1_y2", "twist_", "twist_1.5x", "twist_NaN", "1.50"} {
		_, err := ParseName(bad)
		assert.Error(t, err, bad)
	}
}

func TestSortNames(t *testing.T) {
	names := []string{"twist_10.00", "readme", "twist_-1.00", "twist_9.50", "extra", "twist_0.001"}
	SortNames(names)
	assert.Equal(t, []string{"twist_-1.00", "twist_0.001", "twist_9.50", "twist_10.00", "extra", "readme"}, names)
}

func TestTasks_FineStepsKeepDistinctNames(t *testing.T) {
	base := []layer.Spec{{"type": "hex", "const": 12.0}}
	tasks, err := Tasks(base, Range{Min: 0, Max: 0.004, Step: 0.001}, 8, false)
	require.NoError(t, err)

	names := make([]string, len(tasks))
	for i, task := range tasks {
		names[i] = task.Name
	}
	assert.Equal(t, []string{"twist_0.00", "twist_0.001", "twist_0.002", "twist_0.003", "twist_0.004"}, names)

	// Below the angle resolution names would collide.
	_, err = Tasks(base, Range{Min: 0, Max: 1e-9, Step: 1e-11}, 8, false)
	require.ErrorIs(t, err, worker.ErrDuplicateName)
}

func TestTwist(t *testing.T) {
	base := []layer.Spec{{"type": "hex", "const": 20.0, "angle": 10.0}}
	layers, err := Twist(base, 1.5)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, 10.0, layers[0]["angle"])
	assert.Equal(t, 11.5, layers[1]["angle"])
	assert.Equal(t, 20.0, layers[1]["const"])
	assert.Equal(t, 10.0, base[0]["angle"], "base must not be modified")

	_, err = Twist([]layer.Spec{{"type": "hex", "angle": "steep"}}, 1)
	require.Error(t, err)
}

func TestTasks(t *testing.T) {
	base := []layer.Spec{{"type": "lines", "pitch": 6.0}}
	tasks, err := Tasks(base, Range{Min: 0, Max: 1, Step: 0.5}, 64, true)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	names := []string{"twist_0.00", "twist_0.50", "twist_1.00"}
	for i, task := range tasks {
		assert.Equal(t, names[i], task.Name)
		assert.Equal(t, 64, task.Resolution)
		assert.True(t, task.Force)
		require.Len(t, task.Layers, 2)
	}
	assert.Equal(t, 0.5, tasks[1].Layers[1]["angle"])

	_, err = Tasks(nil, Range{Min: 0, Max: 1, Step: 1}, 64, false)
	require.Error(t, err)
	_, err = Tasks(base, Range{Min: 0, Max: 1, Step: 1}, 0, false)
	require.Error(t, err)
	_, err = Tasks(base, Range{Min: 0, Max: 1, Step: 0}, 64, false)
	require.Error(t, err)
}
