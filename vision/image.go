// MODUL: image
// ZWECK: Laden, RGB-Konvertierung und Skalierung von Skizzen
// INPUT: Dateipfad, Bytes oder io.Reader
// OUTPUT: ImageInput Struktur mit deckendem RGB-Bild
// NEBENEFFEKTE: Dateisystem-Lesezugriff bei LoadImage
// ABHAENGIGKEITEN: golang.org/x/image/{draw,webp,bmp,tiff} (extern), image/jpeg, image/png, image/gif, envconfig
// HINWEISE: Alpha wird verworfen, nicht mit einem Hintergrund verrechnet

package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	// Standard-Decoder registrieren
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/sketchgan/sketchgan/envconfig"
)

// ErrImageTooLarge wird geliefert, wenn die Bildgroesse SKETCHGAN_MAX_PIXELS uebersteigt
var ErrImageTooLarge = errors.New("image too large")

// ImageInput enthaelt ein dekodiertes Bild mit Metadaten.
// Image ist immer deckend (Alpha 255).
type ImageInput struct {
	Image  *image.RGBA
	Width  int
	Height int
	Format ImageFormat
}

// LoadImage laedt ein Bild von einem Dateipfad
func LoadImage(path string) (*ImageInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return LoadImageFromBytes(data)
}

// LoadImageFromBytes dekodiert ein Bild aus Byte-Daten
func LoadImageFromBytes(data []byte) (*ImageInput, error) {
	format := DetectFormat(data)
	if err := ValidateFormat(format); err != nil {
		return nil, err
	}

	// Der Header reicht fuer die Groesse, dekodiert wird erst danach
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", format, err)
	}
	if err := checkPixels(cfg.Width, cfg.Height, envconfig.MaxImagePixels()); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", format, err)
	}
	return NewImageInput(img, format), nil
}

func checkPixels(width, height int, limit uint64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid image size: %dx%d", width, height)
	}
	if limit > 0 && uint64(width)*uint64(height) > limit {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, width, height, limit)
	}
	return nil
}

// DecodeImage dekodiert ein Bild aus einem io.Reader
func DecodeImage(reader io.Reader) (*ImageInput, error) {
	// Erst Daten puffern fuer Format-Erkennung
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return LoadImageFromBytes(data)
}

// NewImageInput konvertiert ein beliebiges Bild nach RGB
func NewImageInput(img image.Image, format ImageFormat) *ImageInput {
	rgb := ToRGB(img)
	return &ImageInput{
		Image:  rgb,
		Width:  rgb.Bounds().Dx(),
		Height: rgb.Bounds().Dy(),
		Format: format,
	}
}

// ToRGB liefert ein deckendes Bild mit Ursprung (0, 0). Die Farbkanaele
// werden ohne Vormultiplikation uebernommen, Alpha wird auf 255 gesetzt.
func ToRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	// Schneller Pfad fuer deckende Quellen
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
		return dst
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := dst.PixOffset(x-bounds.Min.X, y-bounds.Min.Y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

// ResizeImage skaliert ein Bild bilinear auf die angegebene Groesse
func ResizeImage(img *ImageInput, width, height int) (*ImageInput, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size: %dx%d", width, height)
	}
	if img.Width == width && img.Height == height {
		return img, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img.Image, img.Image.Bounds(), draw.Src, nil)

	return &ImageInput{
		Image:  dst,
		Width:  width,
		Height: height,
		Format: img.Format,
	}, nil
}

// ResizeLinear skaliert mit einfacher bilinearer Interpolation ohne
// Tiefpass, die Abtastpunkte liegen auf Pixelmitten:
// src = (dst + 0.5) * scale - 0.5, am Rand auf das letzte Pixel geklemmt.
// Beim Verkleinern wird damit jedes Zielpixel aus hoechstens vier
// Quellpixeln gemischt, anders als bei ResizeImage.
func ResizeLinear(img *ImageInput, width, height int) (*ImageInput, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size: %dx%d", width, height)
	}
	if img.Width == width && img.Height == height {
		return img, nil
	}

	xs := linearTaps(img.Width, width)
	ys := linearTaps(img.Height, height)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	src := img.Image
	for dy, ty := range ys {
		row0 := src.Pix[src.PixOffset(0, ty.i0):]
		row1 := src.Pix[src.PixOffset(0, ty.i1):]
		for dx, tx := range xs {
			o := dst.PixOffset(dx, dy)
			for c := range 3 {
				top := float64(row0[4*tx.i0+c])*(1-tx.a) + float64(row0[4*tx.i1+c])*tx.a
				bottom := float64(row1[4*tx.i0+c])*(1-tx.a) + float64(row1[4*tx.i1+c])*tx.a
				dst.Pix[o+c] = clampByte(top*(1-ty.a) + bottom*ty.a)
			}
			dst.Pix[o+3] = 0xff
		}
	}

	return &ImageInput{
		Image:  dst,
		Width:  width,
		Height: height,
		Format: img.Format,
	}, nil
}

// linearTap haelt die beiden Quellindizes und das Gewicht des zweiten
type linearTap struct {
	i0, i1 int
	a      float64
}

func linearTaps(srcLen, dstLen int) []linearTap {
	scale := float64(srcLen) / float64(dstLen)
	taps := make([]linearTap, dstLen)
	for d := range taps {
		f := (float64(d)+0.5)*scale - 0.5
		i := int(math.Floor(f))
		a := f - float64(i)
		if i < 0 {
			i, a = 0, 0
		}
		if i >= srcLen-1 {
			i, a = srcLen-1, 0
		}
		taps[d] = linearTap{i0: i, i1: min(i+1, srcLen-1), a: a}
	}
	return taps
}

func clampByte(v float64) uint8 {
	return uint8(math.Round(min(max(v, 0), 255)))
}
