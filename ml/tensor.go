// tensor.go - Dichter float32-Tensor im NCHW-Layout
//
// Dieses Modul enthaelt:
// - Tensor: Form und zusammenhaengende Daten (row-major)
// - New/Zeros/FromSlice: Konstruktoren mit Formpruefung
// - Concat: Kanal-Konkatenation fuer Skip-Verbindungen
// - Add: Elementweise Addition fuer Residual-Verbindungen
package ml

import (
	"errors"
	"fmt"
	"slices"
)

// ErrShapeMismatch wird bei inkompatiblen Tensor-Formen zurueckgegeben
var ErrShapeMismatch = errors.New("shape mismatch")

// Tensor ist ein dichter float32-Tensor. Bilder liegen als [N, C, H, W] vor.
type Tensor struct {
	shape []int
	data  []float32
}

// New erstellt einen Tensor aus Form und Daten. Die Daten werden nicht kopiert.
func New(shape []int, data []float32) (*Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	return &Tensor{shape: slices.Clone(shape), data: data}, nil
}

// Zeros erstellt einen mit Nullen gefuellten Tensor
func Zeros(shape ...int) *Tensor {
	n, err := numElements(shape)
	if err != nil {
		panic(err)
	}
	return &Tensor{shape: slices.Clone(shape), data: make([]float32, n)}
}

// numElements berechnet die Elementanzahl und prueft die Dimensionen
func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrShapeMismatch)
	}
	n := 1
	for i, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: dimension %d must be > 0, got %d", ErrShapeMismatch, i, d)
		}
		n *= d
	}
	return n, nil
}

// Shape gibt eine Kopie der Form zurueck
func (t *Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

// Dim gibt die Groesse der Dimension i zurueck
func (t *Tensor) Dim(i int) int {
	return t.shape[i]
}

// Rank gibt die Anzahl der Dimensionen zurueck
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Data gibt die zugrunde liegenden Daten zurueck (keine Kopie)
func (t *Tensor) Data() []float32 {
	return t.data
}

// Len gibt die Anzahl der Elemente zurueck
func (t *Tensor) Len() int {
	return len(t.data)
}

// Clone erstellt eine tiefe Kopie
func (t *Tensor) Clone() *Tensor {
	return &Tensor{shape: slices.Clone(t.shape), data: slices.Clone(t.data)}
}

// SameShape prueft ob zwei Tensoren die gleiche Form haben
func (t *Tensor) SameShape(o *Tensor) bool {
	return slices.Equal(t.shape, o.shape)
}

// String implementiert Stringer
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.shape)
}

// nchw gibt die vier Dimensionen eines Bild-Tensors zurueck
func (t *Tensor) nchw() (n, c, h, w int, err error) {
	if len(t.shape) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("%w: expected rank 4, got %v", ErrShapeMismatch, t.shape)
	}
	return t.shape[0], t.shape[1], t.shape[2], t.shape[3], nil
}

// Add addiert zwei Tensoren gleicher Form elementweise
func Add(a, b *Tensor) (*Tensor, error) {
	if !a.SameShape(b) {
		return nil, fmt.Errorf("%w: add %v and %v", ErrShapeMismatch, a.shape, b.shape)
	}
	out := make([]float32, len(a.data))
	for i := range out {
		out[i] = a.data[i] + b.data[i]
	}
	return &Tensor{shape: slices.Clone(a.shape), data: out}, nil
}

// Concat verbindet NCHW-Tensoren entlang der Kanal-Achse.
// Batch und raeumliche Dimensionen muessen exakt uebereinstimmen.
func Concat(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrShapeMismatch)
	}

	n, _, h, w, err := ts[0].nchw()
	if err != nil {
		return nil, err
	}

	channels := 0
	for _, t := range ts {
		tn, tc, th, tw, err := t.nchw()
		if err != nil {
			return nil, err
		}
		if tn != n || th != h || tw != w {
			return nil, fmt.Errorf("%w: concat %v with %v", ErrShapeMismatch, ts[0].shape, t.shape)
		}
		channels += tc
	}

	out := Zeros(n, channels, h, w)
	plane := h * w
	for b := range n {
		dst := out.data[b*channels*plane:]
		offset := 0
		for _, t := range ts {
			size := t.shape[1] * plane
			copy(dst[offset:offset+size], t.data[b*size:(b+1)*size])
			offset += size
		}
	}
	return out, nil
}
