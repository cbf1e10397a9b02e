// generator.go - Encoder/Decoder-Generator mit Skip-Verbindungen
//
// Aufbau (ngf = Config.NGF):
// - down1..down4: Conv 4x4/2 auf ngf, 2ngf, 4ngf, 8ngf Kanaele mit LeakyReLU(0.2), InstanceNorm ab down2
// - res_blocks: Config.NumResBlocks Residual-Bloecke mit 8ngf Kanaelen
// - up1..up3: ConvTranspose 4x4/2 + InstanceNorm + ReLU, danach Konkatenation mit d3, d2, d1
// - up4: ConvTranspose 4x4/2 auf OutChannels + Tanh
package model

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/sketchgan/sketchgan/fs"
	"github.com/sketchgan/sketchgan/ml"
	"github.com/sketchgan/sketchgan/ml/nn"
)

// ErrInputShape wird fuer Eingaben zurueckgegeben, die das Netz nicht verarbeiten kann
var ErrInputShape = errors.New("invalid input shape")

const (
	kernelSize = 4
	stride     = 2
	padding    = 1
	leakySlope = 0.2

	// vier Stufen mit Stride 2
	sizeMultiple = 16

	// der Bottleneck braucht mindestens 2x2 fuer das Spiegel-Padding
	minInputSize = 2 * sizeMultiple
)

// DownBlock ist eine Encoder-Stufe
type DownBlock struct {
	Conv *nn.Conv2D `pth:"0"`

	Norm *nn.InstanceNorm2D
}

// Forward halbiert die raeumliche Groesse
func (b *DownBlock) Forward(dev *ml.Device, x *ml.Tensor) (*ml.Tensor, error) {
	h, err := b.Conv.Forward(dev, x, stride, padding)
	if err != nil {
		return nil, err
	}
	if b.Norm != nil {
		if h, err = b.Norm.Forward(dev, h); err != nil {
			return nil, err
		}
	}
	return ml.LeakyReLU(h, leakySlope), nil
}

// UpBlock ist eine Decoder-Stufe
type UpBlock struct {
	Conv *nn.ConvTranspose2D `pth:"0"`

	Norm *nn.InstanceNorm2D

	// Final ersetzt Normalisierung und ReLU durch Tanh
	Final bool
}

// Forward verdoppelt die raeumliche Groesse
func (b *UpBlock) Forward(dev *ml.Device, x *ml.Tensor) (*ml.Tensor, error) {
	h, err := b.Conv.Forward(dev, x, stride, padding)
	if err != nil {
		return nil, err
	}
	if b.Final {
		return ml.Tanh(h), nil
	}
	if h, err = b.Norm.Forward(dev, h); err != nil {
		return nil, err
	}
	return ml.ReLU(h), nil
}

// Generator bildet ein Bild [1, in, H, W] in [-1, 1] auf ein Bild
// [1, out, H, W] in [-1, 1] ab
type Generator struct {
	Config

	Down1 *DownBlock `pth:"down1"`
	Down2 *DownBlock `pth:"down2"`
	Down3 *DownBlock `pth:"down3"`
	Down4 *DownBlock `pth:"down4"`

	ResBlocks []*ResidualBlock `pth:"res_blocks"`

	Up1 *UpBlock `pth:"up1"`
	Up2 *UpBlock `pth:"up2"`
	Up3 *UpBlock `pth:"up3"`
	Up4 *UpBlock `pth:"up4"`
}

// NewGenerator erstellt einen Generator ohne Gewichte
func NewGenerator(cfg Config) *Generator {
	norm := &nn.InstanceNorm2D{Eps: ml.DefaultNormEps}
	g := &Generator{
		Config: cfg,
		Down1:  &DownBlock{},
		Down2:  &DownBlock{Norm: norm},
		Down3:  &DownBlock{Norm: norm},
		Down4:  &DownBlock{Norm: norm},
		Up1:    &UpBlock{Norm: norm},
		Up2:    &UpBlock{Norm: norm},
		Up3:    &UpBlock{Norm: norm},
		Up4:    &UpBlock{Final: true},
	}

	g.ResBlocks = make([]*ResidualBlock, cfg.NumResBlocks)
	for i := range g.ResBlocks {
		g.ResBlocks[i] = &ResidualBlock{Norm: *norm}
	}
	return g
}

// Load bindet ein StateDict strikt an den Generator und prueft alle Formen
func (g *Generator) Load(sd *fs.StateDict) error {
	if err := bind(g, sd); err != nil {
		return err
	}
	return g.validate()
}

// validate prueft alle gebundenen Gewichte gegen die Konfiguration
func (g *Generator) validate() error {
	ngf := g.NGF
	convs := []struct {
		name      string
		weight    *ml.Tensor
		bias      *ml.Tensor
		in, out   int
		transpose bool
	}{
		{"down1.0", g.Down1.Conv.Weight, g.Down1.Conv.Bias, g.InChannels, ngf, false},
		{"down2.0", g.Down2.Conv.Weight, g.Down2.Conv.Bias, ngf, 2 * ngf, false},
		{"down3.0", g.Down3.Conv.Weight, g.Down3.Conv.Bias, 2 * ngf, 4 * ngf, false},
		{"down4.0", g.Down4.Conv.Weight, g.Down4.Conv.Bias, 4 * ngf, 8 * ngf, false},
		{"up1.0", g.Up1.Conv.Weight, g.Up1.Conv.Bias, 8 * ngf, 4 * ngf, true},
		{"up2.0", g.Up2.Conv.Weight, g.Up2.Conv.Bias, 8 * ngf, 2 * ngf, true},
		{"up3.0", g.Up3.Conv.Weight, g.Up3.Conv.Bias, 4 * ngf, ngf, true},
		{"up4.0", g.Up4.Conv.Weight, g.Up4.Conv.Bias, 2 * ngf, g.OutChannels, true},
	}

	var errs []error
	for _, c := range convs {
		shape := []int{c.out, c.in, kernelSize, kernelSize}
		if c.transpose {
			shape = []int{c.in, c.out, kernelSize, kernelSize}
		}
		errs = append(errs,
			checkShape(c.name+".weight", c.weight, shape...),
			checkShape(c.name+".bias", c.bias, c.out),
		)
	}

	for i, b := range g.ResBlocks {
		errs = append(errs, b.validate("res_blocks."+strconv.Itoa(i), 8*ngf))
	}

	return errors.Join(errs...)
}

// Forward fuehrt einen Vorwaertsdurchlauf aus
func (g *Generator) Forward(dev *ml.Device, x *ml.Tensor) (*ml.Tensor, error) {
	if err := g.checkInput(x); err != nil {
		return nil, err
	}

	// Encoder
	d1, err := g.Down1.Forward(dev, x)
	if err != nil {
		return nil, fmt.Errorf("down1: %w", err)
	}
	d2, err := g.Down2.Forward(dev, d1)
	if err != nil {
		return nil, fmt.Errorf("down2: %w", err)
	}
	d3, err := g.Down3.Forward(dev, d2)
	if err != nil {
		return nil, fmt.Errorf("down3: %w", err)
	}
	d4, err := g.Down4.Forward(dev, d3)
	if err != nil {
		return nil, fmt.Errorf("down4: %w", err)
	}

	// Bottleneck
	r := d4
	for i, b := range g.ResBlocks {
		if r, err = b.Forward(dev, r); err != nil {
			return nil, fmt.Errorf("res_blocks.%d: %w", i, err)
		}
	}

	// Decoder mit Skip-Verbindungen
	u := r
	for _, stage := range []struct {
		name string
		up   *UpBlock
		skip *ml.Tensor
	}{
		{"up1", g.Up1, d3},
		{"up2", g.Up2, d2},
		{"up3", g.Up3, d1},
	} {
		if u, err = stage.up.Forward(dev, u); err != nil {
			return nil, fmt.Errorf("%s: %w", stage.name, err)
		}
		if u, err = ml.Concat(u, stage.skip); err != nil {
			return nil, fmt.Errorf("%s skip: %w", stage.name, err)
		}
	}

	out, err := g.Up4.Forward(dev, u)
	if err != nil {
		return nil, fmt.Errorf("up4: %w", err)
	}
	return out, nil
}

// checkInput prueft Rang, Kanalzahl und raeumliche Groesse
func (g *Generator) checkInput(x *ml.Tensor) error {
	if x.Rank() != 4 {
		return fmt.Errorf("%w: expected [N, %d, H, W], got %v", ErrInputShape, g.InChannels, x.Shape())
	}
	if c := x.Dim(1); c != g.InChannels {
		return fmt.Errorf("%w: expected %d channels, got %d", ErrInputShape, g.InChannels, c)
	}
	for _, d := range x.Shape()[2:] {
		if d%sizeMultiple != 0 || d < minInputSize {
			return fmt.Errorf("%w: height and width must be multiples of %d and at least %d, got %v", ErrInputShape, sizeMultiple, minInputSize, x.Shape()[2:])
		}
	}
	return nil
}
