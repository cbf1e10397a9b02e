// MODUL: encode
// ZWECK: Kodierung von Ergebnisbildern nach Dateiendung
// INPUT: image.Image und Zielformat bzw. Zielpfad
// OUTPUT: Kodierte Bytes bzw. geschriebene Datei
// NEBENEFFEKTE: Dateisystem-Schreibzugriff bei SaveImage
// ABHAENGIGKEITEN: golang.org/x/image/{bmp,tiff} (extern), image/{png,jpeg,gif}
// HINWEISE: Es wird erst vollstaendig im Speicher kodiert, dann geschrieben

package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// JPEGQuality entspricht der ueblichen Voreinstellung von Bildbibliotheken
const JPEGQuality = 75

// Encode schreibt img im angegebenen Format nach w
func Encode(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	case FormatGIF:
		return gif.Encode(w, img, nil)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatUnknown:
		return ErrUnknownFormat
	default:
		return fmt.Errorf("%w: cannot write %s", ErrUnsupportedFormat, format)
	}
}

// EncodeBytes kodiert img vollstaendig im Speicher
func EncodeBytes(img image.Image, format ImageFormat) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// SaveImage waehlt das Format ueber die Endung von path. Die Datei wird erst
// angelegt, wenn die Kodierung gelungen ist.
func SaveImage(path string, img image.Image) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	data, err := EncodeBytes(img, format)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}
