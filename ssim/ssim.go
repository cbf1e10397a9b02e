// Package ssim berechnet den Structural Similarity Index zweier Graustufenbilder.
//
// Die Berechnung folgt der ueblichen Variante mit gleichfoermigem Fenster:
// Mittelwerte, Varianzen und Kovarianz werden mit einem quadratischen
// Boxfilter (Rand gespiegelt) bestimmt, die Varianzen als Stichprobenvarianz.
// Der gemittelte Index ignoriert einen Rand von einer halben Fensterbreite.
package ssim

import (
	"errors"
	"fmt"
	"image"

	"gonum.org/v1/gonum/stat"

	"github.com/sketchgan/sketchgan/vision"
)

// Standardwerte
const (
	DefaultWindowSize = 7
	DefaultK1         = 0.01
	DefaultK2         = 0.03
	DefaultDataRange  = 255
	DefaultImageSize  = 128

	// MaxImageSize begrenzt die Kantenlaenge fuer CompareImages
	MaxImageSize = 4096
)

// Fehler-Definitionen
var (
	ErrSizeMismatch = errors.New("images differ in size")
	ErrTooSmall     = errors.New("image smaller than window")
	ErrSizeTooLarge = errors.New("comparison size too large")
)

// Options steuert die Berechnung. Nullwerte werden durch die Standardwerte ersetzt.
type Options struct {
	WindowSize int
	K1, K2     float64
	DataRange  float64
}

func (o Options) withDefaults() Options {
	if o.WindowSize <= 0 {
		o.WindowSize = DefaultWindowSize
	}
	if o.K1 == 0 {
		o.K1 = DefaultK1
	}
	if o.K2 == 0 {
		o.K2 = DefaultK2
	}
	if o.DataRange == 0 {
		o.DataRange = DefaultDataRange
	}
	return o
}

// Compare liefert den mittleren SSIM von a und b
func Compare(a, b *image.Gray, opts Options) (float64, error) {
	opts = opts.withDefaults()
	if opts.WindowSize%2 == 0 {
		return 0, fmt.Errorf("window size must be odd, got %d", opts.WindowSize)
	}

	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	if bw, bh := b.Bounds().Dx(), b.Bounds().Dy(); bw != w || bh != h {
		return 0, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, w, h, bw, bh)
	}
	if w < opts.WindowSize || h < opts.WindowSize {
		return 0, fmt.Errorf("%w: %dx%d < %d", ErrTooSmall, w, h, opts.WindowSize)
	}

	x := toFloat(a)
	y := toFloat(b)

	xx := make([]float64, len(x))
	yy := make([]float64, len(x))
	xy := make([]float64, len(x))
	for i := range x {
		xx[i] = x[i] * x[i]
		yy[i] = y[i] * y[i]
		xy[i] = x[i] * y[i]
	}

	win := opts.WindowSize
	ux := boxFilter(x, w, h, win)
	uy := boxFilter(y, w, h, win)
	uxx := boxFilter(xx, w, h, win)
	uyy := boxFilter(yy, w, h, win)
	uxy := boxFilter(xy, w, h, win)

	np := float64(win * win)
	covNorm := np / (np - 1)
	c1 := (opts.K1 * opts.DataRange) * (opts.K1 * opts.DataRange)
	c2 := (opts.K2 * opts.DataRange) * (opts.K2 * opts.DataRange)

	pad := (win - 1) / 2
	values := make([]float64, 0, (w-2*pad)*(h-2*pad))
	for r := pad; r < h-pad; r++ {
		for c := pad; c < w-pad; c++ {
			i := r*w + c
			vx := covNorm * (uxx[i] - ux[i]*ux[i])
			vy := covNorm * (uyy[i] - uy[i]*uy[i])
			vxy := covNorm * (uxy[i] - ux[i]*uy[i])

			a1 := 2*ux[i]*uy[i] + c1
			a2 := 2*vxy + c2
			b1 := ux[i]*ux[i] + uy[i]*uy[i] + c1
			b2 := vx + vy + c2
			values = append(values, (a1*a2)/(b1*b2))
		}
	}

	return stat.Mean(values, nil), nil
}

// CompareFiles laedt beide Bilder und vergleicht sie mit CompareImages
func CompareFiles(path1, path2 string, size int) (float64, error) {
	a, err := vision.LoadImage(path1)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path1, err)
	}
	b, err := vision.LoadImage(path2)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path2, err)
	}
	return CompareImages(a, b, size)
}

// CompareImages skaliert beide Bilder bilinear (ohne Tiefpass) auf
// size x size, wandelt sie in Graustufen um und vergleicht sie mit den
// Standardoptionen.
func CompareImages(a, b *vision.ImageInput, size int) (float64, error) {
	if size > MaxImageSize {
		return 0, fmt.Errorf("%w: %d > %d", ErrSizeTooLarge, size, MaxImageSize)
	}
	ga, err := resizeGray(a, size)
	if err != nil {
		return 0, err
	}
	gb, err := resizeGray(b, size)
	if err != nil {
		return 0, err
	}
	return Compare(ga, gb, Options{})
}

func resizeGray(img *vision.ImageInput, size int) (*image.Gray, error) {
	img, err := vision.ResizeLinear(img, size, size)
	if err != nil {
		return nil, err
	}
	return vision.ToGray(img), nil
}

func toFloat(g *image.Gray) []float64 {
	b := g.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, y):]
		for x := range b.Dx() {
			out = append(out, float64(row[x]))
		}
	}
	return out
}
