package model_test

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketchgan/sketchgan/fs"
	"github.com/sketchgan/sketchgan/ml"
	"github.com/sketchgan/sketchgan/ml/nn"
	"github.com/sketchgan/sketchgan/model"
	"github.com/sketchgan/sketchgan/model/modeltest"
)

func randomInput(t *testing.T, shape ...int) *ml.Tensor {
	t.Helper()
	r := rand.New(rand.NewPCG(42, 7))
	x := ml.Zeros(shape...)
	for i := range x.Data() {
		x.Data()[i] = r.Float32()*2 - 1
	}
	return x
}

func tinyGenerator(t *testing.T) *model.Generator {
	t.Helper()
	return tinyGeneratorFrom(t, modeltest.StateDict(modeltest.TinyConfig(), 1))
}

func tinyGeneratorFrom(t *testing.T, sd *fs.StateDict) *model.Generator {
	t.Helper()
	g := model.NewGenerator(modeltest.TinyConfig())
	require.NoError(t, g.Load(sd))
	return g
}

func TestConfigFromStateDict(t *testing.T) {
	cases := []model.Config{
		modeltest.TinyConfig(),
		{InChannels: 1, OutChannels: 3, NGF: 2, NumResBlocks: 3, ImageSize: 128},
		{InChannels: 3, OutChannels: 1, NGF: 2, NumResBlocks: 0, ImageSize: 128},
	}

	for _, want := range cases {
		got, err := model.ConfigFromStateDict(modeltest.StateDict(want, 1))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := model.ConfigFromStateDict(fs.NewStateDict())
	assert.ErrorIs(t, err, model.ErrMissingTensor)
}

func TestGeneratorForward(t *testing.T) {
	g := tinyGenerator(t)

	cases := [][]int{
		{1, 3, 128, 128},
		{1, 3, 32, 32},
		{1, 3, 64, 32},
		{2, 3, 32, 48},
	}

	for _, shape := range cases {
		y, err := g.Forward(ml.CPU(), randomInput(t, shape...))
		require.NoError(t, err, "Eingabe %v", shape)
		assert.Equal(t, shape, y.Shape(), "Ausgabeform muss der Eingabeform entsprechen")

		for _, v := range y.Data() {
			if v < -1 || v > 1 {
				t.Fatalf("Wert %v ausserhalb von [-1, 1]", v)
			}
		}
	}
}

func TestGeneratorDeterministic(t *testing.T) {
	g := tinyGenerator(t)
	x := randomInput(t, 1, 3, 64, 64)

	a, err := g.Forward(ml.NewDevice(ml.BackendCPU, 1), x)
	require.NoError(t, err)
	b, err := g.Forward(ml.NewDevice(ml.BackendCPU, 4), x)
	require.NoError(t, err)
	c, err := g.Forward(ml.NewDevice(ml.BackendCPU, 4), x)
	require.NoError(t, err)

	assert.Equal(t, a.Data(), b.Data())
	assert.Equal(t, b.Data(), c.Data())
}

func TestGeneratorInputShape(t *testing.T) {
	g := tinyGenerator(t)

	cases := map[string][]int{
		"rang 3":           {3, 32, 32},
		"ein kanal":        {1, 1, 32, 32},
		"nicht teilbar":    {1, 3, 40, 40},
		"zu klein":         {1, 3, 16, 16},
		"breite unpassend": {1, 3, 32, 36},
	}

	for name, shape := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := g.Forward(ml.CPU(), ml.Zeros(shape...))
			assert.ErrorIs(t, err, model.ErrInputShape)
		})
	}
}

func TestGeneratorLoadStrict(t *testing.T) {
	cfg := modeltest.TinyConfig()

	t.Run("fehlender tensor", func(t *testing.T) {
		sd := modeltest.StateDict(cfg, 1)
		partial := fs.NewStateDict()
		for _, name := range sd.Keys() {
			if name != "up2.0.bias" {
				w, _ := sd.Get(name)
				partial.Set(name, w)
			}
		}
		err := model.NewGenerator(cfg).Load(partial)
		assert.ErrorIs(t, err, model.ErrMissingTensor)
		assert.Contains(t, err.Error(), "up2.0.bias")
	})

	t.Run("unerwarteter tensor", func(t *testing.T) {
		sd := modeltest.StateDict(cfg, 1)
		sd.Set("down1.1.running_mean", ml.Zeros(4))
		err := model.NewGenerator(cfg).Load(sd)
		assert.ErrorIs(t, err, model.ErrUnexpectedTensor)
	})

	t.Run("falsche form", func(t *testing.T) {
		sd := modeltest.StateDict(cfg, 1)
		sd.Set("down2.0.weight", ml.Zeros(8, 4, 3, 3))
		err := model.NewGenerator(cfg).Load(sd)
		assert.ErrorIs(t, err, ml.ErrShapeMismatch)
	})

	t.Run("zu viele res blocks", func(t *testing.T) {
		bigger := cfg
		bigger.NumResBlocks = 3
		err := model.NewGenerator(bigger).Load(modeltest.StateDict(cfg, 1))
		assert.ErrorIs(t, err, model.ErrMissingTensor)
	})
}

func TestParameterNames(t *testing.T) {
	cfg := modeltest.TinyConfig()
	names := model.ParameterNames(model.NewGenerator(cfg))

	assert.Len(t, names, 8*2+cfg.NumResBlocks*4)
	assert.Equal(t, "down1.0.weight", names[0])
	assert.Contains(t, names, "res_blocks.1.block.5.bias")
	assert.Equal(t, "up4.0.bias", names[len(names)-1])
	assert.ElementsMatch(t, modeltest.StateDict(cfg, 1).Keys(), names)
}

func TestResidualBlockShape(t *testing.T) {
	for _, c := range []int{1, 3, 8} {
		b := &model.ResidualBlock{
			Conv1: &nn.Conv2D{Weight: randomInput(t, c, c, 3, 3), Bias: randomInput(t, c)},
			Conv2: &nn.Conv2D{Weight: randomInput(t, c, c, 3, 3), Bias: randomInput(t, c)},
		}

		x := randomInput(t, 1, c, 6, 5)
		y, err := b.Forward(ml.CPU(), x)
		require.NoError(t, err)
		assert.Equal(t, x.Shape(), y.Shape(), "C=%d", c)
	}
}

func TestResidualBlockChannelMismatch(t *testing.T) {
	b := &model.ResidualBlock{
		Conv1: &nn.Conv2D{Weight: ml.Zeros(3, 3, 3, 3), Bias: ml.Zeros(3)},
		Conv2: &nn.Conv2D{Weight: ml.Zeros(3, 3, 3, 3), Bias: ml.Zeros(3)},
	}

	_, err := b.Forward(ml.CPU(), ml.Zeros(1, 4, 8, 8))
	assert.ErrorIs(t, err, ml.ErrShapeMismatch)
}

func TestLoadGGUF(t *testing.T) {
	path := modeltest.WriteGGUF(t, t.TempDir())

	format, err := model.DetectFormat(path)
	require.NoError(t, err)
	assert.Equal(t, fs.FormatGGUF, format)

	g, err := model.Load(path, model.DefaultSection)
	require.NoError(t, err)
	assert.Equal(t, modeltest.TinyConfig(), g.Config)

	_, err = model.Load(path, "G_real_to_sketch")
	assert.ErrorIs(t, err, fs.ErrSectionNotFound)
}

func TestLoadPyTorch(t *testing.T) {
	cfg := modeltest.TinyConfig()
	path := modeltest.WritePTH(t, t.TempDir(), modeltest.TrainingCheckpoint(cfg, 1))

	format, err := model.DetectFormat(path)
	require.NoError(t, err)
	assert.Equal(t, fs.FormatPyTorch, format)

	ckpt, err := model.LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, []string{model.DefaultSection, "G_real_to_sketch"}, ckpt.Sections(), "Epoche und Optimizer werden uebersprungen")

	g, err := model.Load(path, model.DefaultSection)
	require.NoError(t, err)
	assert.Equal(t, cfg, g.Config)

	// die Gewichte kommen unveraendert an
	want := modeltest.StateDict(cfg, 1)
	got, err := ckpt.Section(model.DefaultSection)
	require.NoError(t, err)
	assert.Equal(t, want.Keys(), got.Keys())
	for _, name := range want.Keys() {
		w, _ := want.Get(name)
		loaded, _ := got.Get(name)
		assert.Equal(t, w.Shape(), loaded.Shape(), name)
		assert.Equal(t, w.Data(), loaded.Data(), name)
	}

	other, err := model.Load(path, "G_real_to_sketch")
	require.NoError(t, err)
	assert.Equal(t, cfg, other.Config)
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]struct {
		content []byte
		want    fs.Format
		wantErr bool
	}{
		"zip.pth":    {[]byte("PK\x03\x04rest"), fs.FormatPyTorch, false},
		"legacy.pth": {[]byte{0x80, 0x02, 0x8a, 0x0a}, fs.FormatPyTorch, false},
		"text.pth":   {[]byte("hello"), "", true},
		"short.pth":  {[]byte("P"), "", true},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, tt.content, 0o644))

			got, err := model.DetectFormat(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := model.DetectFormat(filepath.Join(dir, "fehlt.pth"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
