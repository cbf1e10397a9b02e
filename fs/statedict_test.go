package fs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketchgan/sketchgan/ml"
)

func TestStateDictOrder(t *testing.T) {
	sd := NewStateDict()
	sd.Set("up4.0.weight", ml.Zeros(2, 3, 4, 4))
	sd.Set("down1.0.weight", ml.Zeros(2, 3, 4, 4))
	sd.Set("down1.0.bias", ml.Zeros(2))

	assert.Equal(t, []string{"up4.0.weight", "down1.0.weight", "down1.0.bias"}, sd.Keys())
	assert.Equal(t, 3, sd.Len())
	assert.Equal(t, 2*3*4*4*2+2, sd.NumParams())

	// Ersetzen behaelt die Position
	sd.Set("up4.0.weight", ml.Zeros(1))
	assert.Equal(t, "up4.0.weight", sd.Keys()[0])

	got, ok := sd.Get("down1.0.bias")
	require.True(t, ok)
	assert.Equal(t, []int{2}, got.Shape())

	_, ok = sd.Get("missing")
	assert.False(t, ok)
}

func TestStateDictEach(t *testing.T) {
	sd := NewStateDict()
	sd.Set("a", ml.Zeros(1))
	sd.Set("b", ml.Zeros(1))

	stop := errors.New("stop")
	var visited []string
	err := sd.Each(func(name string, _ *ml.Tensor) error {
		visited = append(visited, name)
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a"}, visited)
}

func TestStateDictWithPrefix(t *testing.T) {
	sd := NewStateDict()
	sd.Set("res_blocks.0.block.1.weight", ml.Zeros(1))
	sd.Set("res_blocks.0.block.5.weight", ml.Zeros(1))
	sd.Set("res_blocks.1.block.1.weight", ml.Zeros(1))

	sub := sd.WithPrefix("res_blocks.0.")
	assert.Equal(t, []string{"block.1.weight", "block.5.weight"}, sub.Keys())
}

func TestCheckpointSections(t *testing.T) {
	ckpt := NewCheckpoint(FormatPyTorch, "model.pth")
	ckpt.AddSection("G_sketch_to_real", NewStateDict())
	ckpt.AddSection("D_real", NewStateDict())

	assert.Equal(t, []string{"G_sketch_to_real", "D_real"}, ckpt.Sections())

	_, err := ckpt.Section("G_sketch_to_real")
	require.NoError(t, err)

	_, err = ckpt.Section("G_real_to_sketch")
	require.ErrorIs(t, err, ErrSectionNotFound)
	assert.Contains(t, err.Error(), "D_real")
}
