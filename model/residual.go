// residual.go - Residual-Block des Bottlenecks
package model

import (
	"fmt"
	"slices"

	"github.com/sketchgan/sketchgan/ml"
	"github.com/sketchgan/sketchgan/ml/nn"
)

// ResidualBlock berechnet x + F(x) mit
// F = Pad, Conv3x3, IN, ReLU, Pad, Conv3x3, IN.
// Die Indizes 1 und 5 entsprechen den Positionen in der Sequenz.
type ResidualBlock struct {
	Conv1 *nn.Conv2D `pth:"block.1"`
	Conv2 *nn.Conv2D `pth:"block.5"`

	Norm nn.InstanceNorm2D
}

// Forward gibt einen Tensor mit der Form von x zurueck
func (b *ResidualBlock) Forward(dev *ml.Device, x *ml.Tensor) (*ml.Tensor, error) {
	h, err := ml.ReflectionPad2D(dev, x, 1)
	if err != nil {
		return nil, err
	}
	if h, err = b.Conv1.Forward(dev, h, 1, 0); err != nil {
		return nil, err
	}
	if h, err = b.Norm.Forward(dev, h); err != nil {
		return nil, err
	}
	h = ml.ReLU(h)

	if h, err = ml.ReflectionPad2D(dev, h, 1); err != nil {
		return nil, err
	}
	if h, err = b.Conv2.Forward(dev, h, 1, 0); err != nil {
		return nil, err
	}
	if h, err = b.Norm.Forward(dev, h); err != nil {
		return nil, err
	}

	return ml.Add(x, h)
}

// validate prueft die Gewichtsformen fuer c Kanaele
func (b *ResidualBlock) validate(name string, c int) error {
	if err := checkShape(name+".block.1.weight", b.Conv1.Weight, c, c, 3, 3); err != nil {
		return err
	}
	if err := checkShape(name+".block.1.bias", b.Conv1.Bias, c); err != nil {
		return err
	}
	if err := checkShape(name+".block.5.weight", b.Conv2.Weight, c, c, 3, 3); err != nil {
		return err
	}
	return checkShape(name+".block.5.bias", b.Conv2.Bias, c)
}

// checkShape vergleicht die Form eines gebundenen Tensors
func checkShape(name string, t *ml.Tensor, shape ...int) error {
	if t == nil {
		return fmt.Errorf("%w: %s", ErrMissingTensor, name)
	}
	if !slices.Equal(t.Shape(), shape) {
		return fmt.Errorf("%w: %s has shape %v, expected %v", ml.ErrShapeMismatch, name, t.Shape(), shape)
	}
	return nil
}
