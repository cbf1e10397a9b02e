package nn

import "github.com/sketchgan/sketchgan/ml"

// InstanceNorm2D hat keine lernbaren Parameter (affine=False)
type InstanceNorm2D struct {
	Eps float32
}

func (m *InstanceNorm2D) Forward(dev *ml.Device, t *ml.Tensor) (*ml.Tensor, error) {
	eps := m.Eps
	if eps == 0 {
		eps = ml.DefaultNormEps
	}
	return ml.InstanceNorm2D(dev, t, eps)
}
