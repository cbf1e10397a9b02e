// ops_norm.go - Normalisierung pro Instanz und Kanal
package ml

import (
	"math"
)

// DefaultNormEps entspricht dem Standard-Epsilon von InstanceNorm2d
const DefaultNormEps = 1e-5

// InstanceNorm2D normalisiert jede (n, c)-Ebene auf Mittelwert 0 und
// Varianz 1. Die Varianz ist biased (Division durch H*W), ohne affine Parameter.
func InstanceNorm2D(dev *Device, x *Tensor, eps float32) (*Tensor, error) {
	n, c, h, w, err := x.nchw()
	if err != nil {
		return nil, err
	}

	plane := h * w
	out := Zeros(n, c, h, w)

	dev.parallel(n*c, func(p int) {
		src := x.data[p*plane : (p+1)*plane]
		dst := out.data[p*plane : (p+1)*plane]

		var sum float64
		for _, v := range src {
			sum += float64(v)
		}
		mean := sum / float64(plane)

		var sq float64
		for _, v := range src {
			d := float64(v) - mean
			sq += d * d
		}
		inv := 1 / math.Sqrt(sq/float64(plane)+float64(eps))

		for i, v := range src {
			dst[i] = float32((float64(v) - mean) * inv)
		}
	})

	return out, nil
}
