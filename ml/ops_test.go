package ml

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func randTensor(t *testing.T, seed uint64, shape ...int) *Tensor {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed+1))
	x := Zeros(shape...)
	for i := range x.data {
		x.data[i] = r.Float32()*2 - 1
	}
	return x
}

func at(x *Tensor, i ...int) float32 {
	idx := 0
	for d, v := range i {
		idx = idx*x.shape[d] + v
	}
	return x.data[idx]
}

// naiveConv2D ist die direkte Definition der Faltung als Referenz
func naiveConv2D(x, weight, bias *Tensor, stride, pad int) *Tensor {
	n, cin, h, w := x.shape[0], x.shape[1], x.shape[2], x.shape[3]
	cout, kh, kw := weight.shape[0], weight.shape[2], weight.shape[3]
	ho := (h+2*pad-kh)/stride + 1
	wo := (w+2*pad-kw)/stride + 1
	out := Zeros(n, cout, ho, wo)
	for b := range n {
		for co := range cout {
			for oy := range ho {
				for ox := range wo {
					var sum float64
					if bias != nil {
						sum = float64(bias.data[co])
					}
					for ci := range cin {
						for ki := range kh {
							for kj := range kw {
								iy, ix := oy*stride-pad+ki, ox*stride-pad+kj
								if iy < 0 || iy >= h || ix < 0 || ix >= w {
									continue
								}
								sum += float64(at(x, b, ci, iy, ix)) * float64(at(weight, co, ci, ki, kj))
							}
						}
					}
					out.data[((b*cout+co)*ho+oy)*wo+ox] = float32(sum)
				}
			}
		}
	}
	return out
}

// naiveConvTranspose2D verteilt jeden Eingabewert direkt auf die Ausgabe
func naiveConvTranspose2D(x, weight, bias *Tensor, stride, pad int) *Tensor {
	n, cin, h, w := x.shape[0], x.shape[1], x.shape[2], x.shape[3]
	cout, kh, kw := weight.shape[1], weight.shape[2], weight.shape[3]
	ho := (h-1)*stride - 2*pad + kh
	wo := (w-1)*stride - 2*pad + kw
	acc := make([]float64, n*cout*ho*wo)
	for b := range n {
		for ci := range cin {
			for iy := range h {
				for ix := range w {
					v := float64(at(x, b, ci, iy, ix))
					for co := range cout {
						for ki := range kh {
							for kj := range kw {
								oy, ox := iy*stride-pad+ki, ix*stride-pad+kj
								if oy < 0 || oy >= ho || ox < 0 || ox >= wo {
									continue
								}
								acc[((b*cout+co)*ho+oy)*wo+ox] += v * float64(at(weight, ci, co, ki, kj))
							}
						}
					}
				}
			}
		}
	}
	out := Zeros(n, cout, ho, wo)
	for i := range acc {
		out.data[i] = float32(acc[i])
		if bias != nil {
			out.data[i] += bias.data[(i/(ho*wo))%cout]
		}
	}
	return out
}

var approx = cmpopts.EquateApprox(0, 1e-4)

func TestConv2D(t *testing.T) {
	cases := []struct {
		name             string
		in, out, size, k int
		stride, pad      int
		expectedH        int
		withBias         bool
	}{
		{"k4 s2 p1", 3, 8, 16, 4, 2, 1, 8, true},
		{"k3 s1 p0", 4, 4, 10, 3, 1, 0, 8, true},
		{"ohne bias", 2, 5, 7, 3, 1, 1, 7, false},
	}

	dev := NewDevice(BackendCPU, 4)
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			x := randTensor(t, 1, 1, tt.in, tt.size, tt.size)
			weight := randTensor(t, 2, tt.out, tt.in, tt.k, tt.k)
			var bias *Tensor
			if tt.withBias {
				bias = randTensor(t, 3, tt.out)
			}

			got, err := Conv2D(dev, x, weight, bias, tt.stride, tt.pad)
			if err != nil {
				t.Fatalf("Conv2D fehlgeschlagen: %v", err)
			}
			want := []int{1, tt.out, tt.expectedH, tt.expectedH}
			if diff := cmp.Diff(want, got.Shape()); diff != "" {
				t.Fatalf("Form falsch (-want +got):\n%s", diff)
			}

			ref := naiveConv2D(x, weight, bias, tt.stride, tt.pad)
			if diff := cmp.Diff(ref.Data(), got.Data(), approx); diff != "" {
				t.Errorf("Werte weichen von der Referenz ab (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConvTranspose2D(t *testing.T) {
	dev := NewDevice(BackendCPU, 4)
	x := randTensor(t, 4, 1, 6, 8, 8)
	weight := randTensor(t, 5, 6, 3, 4, 4)
	bias := randTensor(t, 6, 3)

	got, err := ConvTranspose2D(dev, x, weight, bias, 2, 1)
	if err != nil {
		t.Fatalf("ConvTranspose2D fehlgeschlagen: %v", err)
	}
	if diff := cmp.Diff([]int{1, 3, 16, 16}, got.Shape()); diff != "" {
		t.Fatalf("Form falsch (-want +got):\n%s", diff)
	}

	ref := naiveConvTranspose2D(x, weight, bias, 2, 1)
	if diff := cmp.Diff(ref.Data(), got.Data(), approx); diff != "" {
		t.Errorf("Werte weichen von der Referenz ab (-want +got):\n%s", diff)
	}
}

func TestConvChannelMismatch(t *testing.T) {
	x := Zeros(1, 3, 8, 8)

	if _, err := Conv2D(nil, x, Zeros(4, 2, 3, 3), nil, 1, 1); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Conv2D: erwartet ErrShapeMismatch, bekommen %v", err)
	}
	if _, err := ConvTranspose2D(nil, x, Zeros(2, 4, 4, 4), nil, 2, 1); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("ConvTranspose2D: erwartet ErrShapeMismatch, bekommen %v", err)
	}
	if _, err := Conv2D(nil, x, Zeros(4, 3, 3, 3), Zeros(5), 1, 1); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Conv2D bias: erwartet ErrShapeMismatch, bekommen %v", err)
	}
	if _, err := Conv2D(nil, Zeros(3, 8, 8), Zeros(4, 3, 3, 3), nil, 1, 1); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Conv2D rank 3: erwartet ErrShapeMismatch, bekommen %v", err)
	}
}

func TestReflectionPad2D(t *testing.T) {
	x, err := New([]int{1, 1, 3, 3}, []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := ReflectionPad2D(nil, x, 1)
	if err != nil {
		t.Fatalf("ReflectionPad2D fehlgeschlagen: %v", err)
	}

	want := []float32{
		5, 4, 5, 6, 5,
		2, 1, 2, 3, 2,
		5, 4, 5, 6, 5,
		8, 7, 8, 9, 8,
		5, 4, 5, 6, 5,
	}
	if diff := cmp.Diff(want, got.Data()); diff != "" {
		t.Errorf("Padding falsch (-want +got):\n%s", diff)
	}

	if _, err := ReflectionPad2D(nil, x, 3); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("erwartet ErrShapeMismatch fuer zu grosses Padding, bekommen %v", err)
	}
}

func TestInstanceNorm2D(t *testing.T) {
	x := randTensor(t, 7, 1, 4, 6, 6)
	for i := range x.data {
		x.data[i] = x.data[i]*3 + 10
	}

	got, err := InstanceNorm2D(NewDevice(BackendCPU, 2), x, DefaultNormEps)
	if err != nil {
		t.Fatal(err)
	}

	plane := 36
	for c := range 4 {
		vals := got.data[c*plane : (c+1)*plane]
		var mean, variance float64
		for _, v := range vals {
			mean += float64(v)
		}
		mean /= float64(plane)
		for _, v := range vals {
			variance += (float64(v) - mean) * (float64(v) - mean)
		}
		variance /= float64(plane)

		if math.Abs(mean) > 1e-5 {
			t.Errorf("Kanal %d: Mittelwert %g, erwartet 0", c, mean)
		}
		if math.Abs(variance-1) > 1e-3 {
			t.Errorf("Kanal %d: Varianz %g, erwartet 1", c, variance)
		}
	}
}

func TestActivations(t *testing.T) {
	x, _ := New([]int{4}, []float32{-2, -0.5, 0, 3})

	cases := []struct {
		name string
		got  *Tensor
		want []float32
	}{
		{"relu", ReLU(x), []float32{0, 0, 0, 3}},
		{"leaky", LeakyReLU(x, 0.2), []float32{-0.4, -0.1, 0, 3}},
		{"clamp", Clamp(x, -1, 1), []float32{-1, -0.5, 0, 1}},
		{"affine", Affine(x, 0.5, 0.5), []float32{-0.5, 0.25, 0.5, 2}},
		{"tanh", Tanh(x), []float32{float32(math.Tanh(-2)), float32(math.Tanh(-0.5)), 0, float32(math.Tanh(3))}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got.Data(), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}

	// Eingabe bleibt unveraendert
	if diff := cmp.Diff([]float32{-2, -0.5, 0, 3}, x.Data()); diff != "" {
		t.Errorf("Eingabe wurde veraendert:\n%s", diff)
	}
}

func TestParallelDeterministic(t *testing.T) {
	x := randTensor(t, 8, 1, 8, 16, 16)
	weight := randTensor(t, 9, 16, 8, 4, 4)
	tweight := randTensor(t, 10, 8, 4, 4, 4)

	run := func(dev *Device) []float32 {
		y, err := Conv2D(dev, x, weight, nil, 2, 1)
		if err != nil {
			t.Fatal(err)
		}
		y, err = InstanceNorm2D(dev, y, DefaultNormEps)
		if err != nil {
			t.Fatal(err)
		}
		y, err = ConvTranspose2D(dev, y, randTensor(t, 11, 16, 8, 4, 4), nil, 2, 1)
		if err != nil {
			t.Fatal(err)
		}
		y, err = ConvTranspose2D(dev, ReLU(y), tweight, nil, 1, 1)
		if err != nil {
			t.Fatal(err)
		}
		return y.Data()
	}

	single := run(NewDevice(BackendCPU, 1))
	multi := run(NewDevice(BackendCPU, 8))
	if diff := cmp.Diff(single, multi); diff != "" {
		t.Errorf("Ergebnis haengt von der Thread-Anzahl ab:\n%s", diff)
	}
}

func TestConcat(t *testing.T) {
	a, _ := New([]int{1, 1, 2, 2}, []float32{1, 2, 3, 4})
	b, _ := New([]int{1, 2, 2, 2}, []float32{5, 6, 7, 8, 9, 10, 11, 12})

	got, err := Concat(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 3, 2, 2}, got.Shape()); diff != "" {
		t.Errorf("Form falsch:\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, got.Data()); diff != "" {
		t.Errorf("Daten falsch:\n%s", diff)
	}

	if _, err := Concat(a, Zeros(1, 1, 4, 4)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("erwartet ErrShapeMismatch bei abweichender Groesse, bekommen %v", err)
	}
	if _, err := Concat(); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("erwartet ErrShapeMismatch ohne Eingaben, bekommen %v", err)
	}
}

func TestAdd(t *testing.T) {
	a, _ := New([]int{2}, []float32{1, 2})
	b, _ := New([]int{2}, []float32{3, 4})
	got, err := Add(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{4, 6}, got.Data()); diff != "" {
		t.Errorf("Add falsch:\n%s", diff)
	}

	if _, err := Add(a, Zeros(3)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("erwartet ErrShapeMismatch, bekommen %v", err)
	}
}

func TestNew(t *testing.T) {
	if _, err := New([]int{2, 2}, make([]float32, 3)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("erwartet ErrShapeMismatch bei falscher Laenge, bekommen %v", err)
	}
	if _, err := New([]int{0, 2}, nil); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("erwartet ErrShapeMismatch bei Dimension 0, bekommen %v", err)
	}
}

func TestToHWC(t *testing.T) {
	// 2 Kanaele, 2x2 Pixel
	x, _ := New([]int{1, 2, 2, 2}, []float32{
		1, 2, 3, 4, // R
		5, 6, 7, 8, // G
	})

	data, shape, err := ToHWC(x)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{2, 2, 2}, shape); diff != "" {
		t.Errorf("Form falsch:\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1, 5, 2, 6, 3, 7, 4, 8}, data); diff != "" {
		t.Errorf("Permutation falsch (-want +got):\n%s", diff)
	}

	if _, _, err := ToHWC(Zeros(2, 3, 2, 2)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("erwartet ErrShapeMismatch fuer Batch 2, bekommen %v", err)
	}
}
