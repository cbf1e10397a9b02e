// ops_activation.go - Elementweise Aktivierungen
//
// Alle Funktionen geben einen neuen Tensor zurueck, die Eingabe bleibt unveraendert.
package ml

import (
	"math"
	"slices"
)

// ReLU setzt negative Werte auf 0
func ReLU(x *Tensor) *Tensor {
	return mapElements(x, func(v float32) float32 {
		return max(v, 0)
	})
}

// LeakyReLU skaliert negative Werte mit slope
func LeakyReLU(x *Tensor, slope float32) *Tensor {
	return mapElements(x, func(v float32) float32 {
		if v < 0 {
			return v * slope
		}
		return v
	})
}

// Tanh wendet den hyperbolischen Tangens an
func Tanh(x *Tensor) *Tensor {
	return mapElements(x, func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}

// Clamp begrenzt alle Werte auf [lo, hi]
func Clamp(x *Tensor, lo, hi float32) *Tensor {
	return mapElements(x, func(v float32) float32 {
		return min(max(v, lo), hi)
	})
}

// Affine berechnet v*scale + shift, z.B. fuer die Rueckabbildung von [-1, 1] nach [0, 1]
func Affine(x *Tensor, scale, shift float32) *Tensor {
	return mapElements(x, func(v float32) float32 {
		return v*scale + shift
	})
}

func mapElements(x *Tensor, fn func(float32) float32) *Tensor {
	out := make([]float32, len(x.data))
	for i, v := range x.data {
		out[i] = fn(v)
	}
	return &Tensor{shape: slices.Clone(x.shape), data: out}
}
