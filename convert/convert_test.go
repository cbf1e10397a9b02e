package convert

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketchgan/sketchgan/fs"
	"github.com/sketchgan/sketchgan/fs/gguf"
	"github.com/sketchgan/sketchgan/ml"
)

func testCheckpoint(t *testing.T) *fs.Checkpoint {
	t.Helper()

	weight, err := ml.New([]int{2, 1, 1, 2}, []float32{0.5, -1, 2, 0.25})
	require.NoError(t, err)
	bias, err := ml.New([]int{2}, []float32{0.1, 0.2})
	require.NoError(t, err)

	gen := fs.NewStateDict()
	gen.Set("down1.0.weight", weight)
	gen.Set("down1.0.bias", bias)

	disc := fs.NewStateDict()
	disc.Set("model.0.weight", weight)

	ckpt := fs.NewCheckpoint(fs.FormatPyTorch, "/models/model_epoch_100.pth")
	ckpt.AddSection("G_sketch_to_real", gen)
	ckpt.AddSection("D_real", disc)
	return ckpt
}

func TestPlan(t *testing.T) {
	kvs, ts, err := Plan(testCheckpoint(t), Options{Sections: []string{"G_sketch_to_real"}, Type: gguf.TensorTypeF16})
	require.NoError(t, err)

	require.Len(t, ts, 2)
	assert.Equal(t, "G_sketch_to_real/down1.0.weight", ts[0].Name)
	assert.Equal(t, gguf.TensorTypeF16, ts[0].Type)
	assert.Equal(t, []uint64{2, 1, 1, 2}, ts[0].Shape)
	assert.Equal(t, gguf.TensorTypeF32, ts[1].Type, "Biases bleiben F32")

	meta := map[string]any{}
	for _, kv := range kvs {
		meta[kv.Key] = kv.Value
	}
	assert.Equal(t, "sketchgan", meta["general.architecture"])
	assert.Equal(t, "model_epoch_100", meta["general.name"])
	assert.Equal(t, uint32(1), meta["general.file_type"])
	assert.Equal(t, []string{"G_sketch_to_real"}, meta[gguf.KeySections])
}

func TestPlanUnknownSection(t *testing.T) {
	_, _, err := Plan(testCheckpoint(t), Options{Sections: []string{"G_real_to_sketch"}})
	assert.ErrorIs(t, err, fs.ErrSectionNotFound)
}

func TestToGGUFRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gguf")
	require.NoError(t, ToGGUF(testCheckpoint(t), path, Options{}))

	ckpt, err := gguf.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"G_sketch_to_real", "D_real"}, ckpt.Sections())

	sd, err := ckpt.Section("G_sketch_to_real")
	require.NoError(t, err)
	w, ok := sd.Get("down1.0.weight")
	require.True(t, ok)
	assert.Equal(t, []int{2, 1, 1, 2}, w.Shape())
	assert.Equal(t, []float32{0.5, -1, 2, 0.25}, w.Data())
}
