package nn

import "github.com/sketchgan/sketchgan/ml"

type Conv2D struct {
	Weight *ml.Tensor `pth:"weight"`
	Bias   *ml.Tensor `pth:"bias"`
}

func (m *Conv2D) Forward(dev *ml.Device, t *ml.Tensor, stride, pad int) (*ml.Tensor, error) {
	return ml.Conv2D(dev, t, m.Weight, m.Bias, stride, pad)
}

// ConvTranspose2D erwartet Gewichte im Layout [in_channels, out_channels, kH, kW]
type ConvTranspose2D struct {
	Weight *ml.Tensor `pth:"weight"`
	Bias   *ml.Tensor `pth:"bias"`
}

func (m *ConvTranspose2D) Forward(dev *ml.Device, t *ml.Tensor, stride, pad int) (*ml.Tensor, error) {
	return ml.ConvTranspose2D(dev, t, m.Weight, m.Bias, stride, pad)
}
