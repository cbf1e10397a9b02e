// ops_conv.go - Faltungs-Kernel fuer NCHW-Tensoren
//
// Dieses Modul enthaelt:
// - Conv2D: Faltung via im2col + SGEMM
// - ConvTranspose2D: Transponierte Faltung via SGEMM + col2im
// - ReflectionPad2D: Spiegel-Padding ohne Randwiederholung
//
// Gewichte folgen dem PyTorch-Layout:
// Conv2D [Cout, Cin, kH, kW], ConvTranspose2D [Cin, Cout, kH, kW].
package ml

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Conv2D faltet x [N, Cin, H, W] mit weight [Cout, Cin, kH, kW].
// bias darf nil sein. Ausserhalb des Bildes wird mit Nullen aufgefuellt.
func Conv2D(dev *Device, x, weight, bias *Tensor, stride, pad int) (*Tensor, error) {
	n, cin, h, w, err := x.nchw()
	if err != nil {
		return nil, err
	}
	cout, wcin, kh, kw, err := weight.nchw()
	if err != nil {
		return nil, fmt.Errorf("conv2d weight: %w", err)
	}
	if wcin != cin {
		return nil, fmt.Errorf("%w: conv2d input has %d channels, weight expects %d", ErrShapeMismatch, cin, wcin)
	}
	if err := checkBias(bias, cout); err != nil {
		return nil, err
	}
	if stride <= 0 || pad < 0 {
		return nil, fmt.Errorf("conv2d: invalid stride %d or padding %d", stride, pad)
	}

	ho := (h+2*pad-kh)/stride + 1
	wo := (w+2*pad-kw)/stride + 1
	if h+2*pad < kh || w+2*pad < kw || ho <= 0 || wo <= 0 {
		return nil, fmt.Errorf("%w: conv2d kernel %dx%d larger than padded input %dx%d", ErrShapeMismatch, kh, kw, h+2*pad, w+2*pad)
	}

	k := cin * kh * kw
	cols := make([]float32, k*ho*wo)
	out := Zeros(n, cout, ho, wo)

	for b := range n {
		src := x.data[b*cin*h*w : (b+1)*cin*h*w]

		// im2col: jeder Kanal fuellt seine eigenen kh*kw Zeilen
		dev.parallel(cin, func(c int) {
			plane := src[c*h*w : (c+1)*h*w]
			for ki := range kh {
				for kj := range kw {
					row := cols[((c*kh+ki)*kw+kj)*ho*wo:][:ho*wo]
					for oy := range ho {
						iy := oy*stride - pad + ki
						if iy < 0 || iy >= h {
							clear(row[oy*wo : (oy+1)*wo])
							continue
						}
						for ox := range wo {
							ix := ox*stride - pad + kj
							if ix < 0 || ix >= w {
								row[oy*wo+ox] = 0
							} else {
								row[oy*wo+ox] = plane[iy*w+ix]
							}
						}
					}
				}
			}
		})

		dst := out.data[b*cout*ho*wo : (b+1)*cout*ho*wo]
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			blas32.General{Rows: cout, Cols: k, Stride: k, Data: weight.data},
			blas32.General{Rows: k, Cols: ho * wo, Stride: ho * wo, Data: cols},
			0,
			blas32.General{Rows: cout, Cols: ho * wo, Stride: ho * wo, Data: dst},
		)

		addBias(dst, bias, ho*wo)
	}

	return out, nil
}

// ConvTranspose2D berechnet die transponierte Faltung von x [N, Cin, H, W]
// mit weight [Cin, Cout, kH, kW]. Ausgabegroesse: (H-1)*stride - 2*pad + kH.
func ConvTranspose2D(dev *Device, x, weight, bias *Tensor, stride, pad int) (*Tensor, error) {
	n, cin, h, w, err := x.nchw()
	if err != nil {
		return nil, err
	}
	wcin, cout, kh, kw, err := weight.nchw()
	if err != nil {
		return nil, fmt.Errorf("conv_transpose2d weight: %w", err)
	}
	if wcin != cin {
		return nil, fmt.Errorf("%w: conv_transpose2d input has %d channels, weight expects %d", ErrShapeMismatch, cin, wcin)
	}
	if err := checkBias(bias, cout); err != nil {
		return nil, err
	}
	if stride <= 0 || pad < 0 {
		return nil, fmt.Errorf("conv_transpose2d: invalid stride %d or padding %d", stride, pad)
	}

	ho := (h-1)*stride - 2*pad + kh
	wo := (w-1)*stride - 2*pad + kw
	if ho <= 0 || wo <= 0 {
		return nil, fmt.Errorf("%w: conv_transpose2d output would be %dx%d", ErrShapeMismatch, ho, wo)
	}

	k := cout * kh * kw
	cols := make([]float32, k*h*w)
	out := Zeros(n, cout, ho, wo)

	for b := range n {
		src := x.data[b*cin*h*w : (b+1)*cin*h*w]

		// cols[Cout*kH*kW, H*W] = W^T * X
		blas32.Gemm(blas.Trans, blas.NoTrans, 1,
			blas32.General{Rows: cin, Cols: k, Stride: k, Data: weight.data},
			blas32.General{Rows: cin, Cols: h * w, Stride: h * w, Data: src},
			0,
			blas32.General{Rows: k, Cols: h * w, Stride: h * w, Data: cols},
		)

		dst := out.data[b*cout*ho*wo : (b+1)*cout*ho*wo]

		// col2im: jeder Ausgabekanal akkumuliert nur in seine eigene Ebene
		dev.parallel(cout, func(co int) {
			plane := dst[co*ho*wo : (co+1)*ho*wo]
			for ki := range kh {
				for kj := range kw {
					row := cols[((co*kh+ki)*kw+kj)*h*w:][:h*w]
					for iy := range h {
						oy := iy*stride - pad + ki
						if oy < 0 || oy >= ho {
							continue
						}
						for ix := range w {
							ox := ix*stride - pad + kj
							if ox < 0 || ox >= wo {
								continue
							}
							plane[oy*wo+ox] += row[iy*w+ix]
						}
					}
				}
			}
		})

		addBias(dst, bias, ho*wo)
	}

	return out, nil
}

// ReflectionPad2D spiegelt die Raender von x um pad Pixel, ohne das
// Randpixel zu wiederholen (wie numpy "reflect").
func ReflectionPad2D(dev *Device, x *Tensor, pad int) (*Tensor, error) {
	n, c, h, w, err := x.nchw()
	if err != nil {
		return nil, err
	}
	if pad < 0 {
		return nil, fmt.Errorf("reflection_pad2d: invalid padding %d", pad)
	}
	if pad >= h || pad >= w {
		return nil, fmt.Errorf("%w: reflection padding %d needs input larger than %dx%d", ErrShapeMismatch, pad, h, w)
	}

	ho, wo := h+2*pad, w+2*pad
	out := Zeros(n, c, ho, wo)

	dev.parallel(n*c, func(p int) {
		src := x.data[p*h*w : (p+1)*h*w]
		dst := out.data[p*ho*wo : (p+1)*ho*wo]
		for oy := range ho {
			iy := reflectIndex(oy-pad, h)
			for ox := range wo {
				dst[oy*wo+ox] = src[iy*w+reflectIndex(ox-pad, w)]
			}
		}
	})

	return out, nil
}

// reflectIndex bildet einen Index ausserhalb von [0, n) auf den gespiegelten Index ab
func reflectIndex(i, n int) int {
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*(n-1) - i
	}
	return i
}

// checkBias prueft ob bias nil ist oder genau c Werte hat
func checkBias(bias *Tensor, c int) error {
	if bias != nil && bias.Len() != c {
		return fmt.Errorf("%w: bias has %d values, expected %d", ErrShapeMismatch, bias.Len(), c)
	}
	return nil
}

// addBias addiert pro Kanal den Bias auf eine Ebene der Groesse plane
func addBias(dst []float32, bias *Tensor, plane int) {
	if bias == nil {
		return
	}
	for c, v := range bias.data {
		p := dst[c*plane : (c+1)*plane]
		for i := range p {
			p[i] += v
		}
	}
}
