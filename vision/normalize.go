// MODUL: normalize
// ZWECK: Umwandlung zwischen RGB-Bildern und normalisierten Bild-Tensoren
// INPUT: ImageInput bzw. Generator-Ausgabe, Normalisierungs-Parameter (mean, std)
// OUTPUT: ml.Tensor [1, 3, H, W] bzw. deckendes RGB-Bild
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml
// HINWEISE: Die Rueckwandlung schneidet Nachkommastellen ab statt zu runden

package vision

import (
	"fmt"
	"image"

	"github.com/sketchgan/sketchgan/ml"
)

// Standard-Normalisierung auf [-1, 1]
var (
	StandardMean = [3]float32{0.5, 0.5, 0.5}
	StandardStd  = [3]float32{0.5, 0.5, 0.5}
)

// NormalizeRGB normalisiert ein Bild mit gegebenen mean/std Werten.
// Gibt einen float32-Slice im CHW Format zurueck (Channel-First).
func NormalizeRGB(img *ImageInput, mean, std [3]float32) []float32 {
	size := img.Width * img.Height
	result := make([]float32, size*3)

	idx := 0
	for y := range img.Height {
		for x := range img.Width {
			i := img.Image.PixOffset(x, y)
			for c := range 3 {
				v := float32(img.Image.Pix[i+c]) / 255
				result[c*size+idx] = (v - mean[c]) / std[c]
			}
			idx++
		}
	}
	return result
}

// ToTensor liefert das Bild als Batch [1, 3, H, W] im Bereich [-1, 1]
func ToTensor(img *ImageInput) (*ml.Tensor, error) {
	return ml.New([]int{1, 3, img.Height, img.Width}, NormalizeRGB(img, StandardMean, StandardStd))
}

// ToImage bildet eine Generator-Ausgabe [1, C, H, W] oder [C, H, W] mit
// Werten in [-1, 1] auf ein deckendes Bild ab. C muss 1 oder 3 sein.
func ToImage(t *ml.Tensor) (*image.RGBA, error) {
	scaled := ml.Clamp(ml.Affine(t, 0.5, 0.5), 0, 1)

	pixels, shape, err := ml.ToHWC(scaled)
	if err != nil {
		return nil, err
	}

	h, w, c := shape[0], shape[1], shape[2]
	if c != 1 && c != 3 {
		return nil, fmt.Errorf("%w: image needs 1 or 3 channels, got %d", ml.ErrShapeMismatch, c)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for p := range h * w {
		src := pixels[p*c : p*c+c]
		o := p * 4
		for k := range 3 {
			// uint8-Konvertierung schneidet ab
			dst.Pix[o+k] = uint8(src[k%c] * 255)
		}
		dst.Pix[o+3] = 0xff
	}
	return dst, nil
}
