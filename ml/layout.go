// layout.go - Achsen-Permutation fuer die Bildausgabe
package ml

import (
	"fmt"
	"slices"

	"github.com/pdevine/tensor"
)

// ToHWC permutiert einen Bild-Tensor [C, H, W] oder [1, C, H, W] in
// zeilenweise angeordnete Pixel [H, W, C]. Das Ergebnis ist eine neue Slice.
func ToHWC(t *Tensor) ([]float32, []int, error) {
	shape := t.shape
	if len(shape) == 4 {
		if shape[0] != 1 {
			return nil, nil, fmt.Errorf("%w: ToHWC needs a single image, got batch %d", ErrShapeMismatch, shape[0])
		}
		shape = shape[1:]
	}
	if len(shape) != 3 {
		return nil, nil, fmt.Errorf("%w: ToHWC needs rank 3, got %v", ErrShapeMismatch, t.shape)
	}

	c, h, w := shape[0], shape[1], shape[2]
	n := tensor.New(tensor.WithShape(c, h, w), tensor.WithBacking(slices.Clone(t.data)))
	if err := n.T(1, 2, 0); err != nil {
		return nil, nil, err
	}
	if err := n.Transpose(); err != nil {
		return nil, nil, err
	}

	data, ok := n.Data().([]float32)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected tensor backing %T", n.Data())
	}
	return data, []int{h, w, c}, nil
}
