// MODUL: formats
// ZWECK: Bildformat-Erkennung fuer Eingaben und Auswahl des Ausgabe-Encoders
// INPUT: Rohe Bild-Bytes bzw. Ausgabe-Dateipfad
// OUTPUT: ImageFormat Konstante oder Fehler
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine
// HINWEISE: Erkennung ueber Magic Bytes, Ausgabe ueber Dateiendung

package vision

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ImageFormat repraesentiert ein Bildformat
type ImageFormat string

const (
	FormatJPEG    ImageFormat = "jpeg"
	FormatPNG     ImageFormat = "png"
	FormatWebP    ImageFormat = "webp"
	FormatGIF     ImageFormat = "gif"
	FormatBMP     ImageFormat = "bmp"
	FormatTIFF    ImageFormat = "tiff"
	FormatUnknown ImageFormat = "unknown"
)

// Fehler-Definitionen
var (
	ErrUnknownFormat     = errors.New("unknown image format")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Magic Bytes fuer die Formaterkennung
var (
	magicJPEG    = []byte{0xFF, 0xD8, 0xFF}
	magicPNG     = []byte{0x89, 0x50, 0x4E, 0x47}
	magicWebP    = []byte("RIFF")
	magicGIF87   = []byte("GIF87a")
	magicGIF89   = []byte("GIF89a")
	magicBMP     = []byte("BM")
	magicTIFFLE  = []byte{'I', 'I', 0x2A, 0x00}
	magicTIFFBE  = []byte{'M', 'M', 0x00, 0x2A}
	webpFourCC   = []byte("WEBP")
	minMagicSize = 4
)

// DetectFormat erkennt das Bildformat anhand der Magic Bytes
func DetectFormat(data []byte) ImageFormat {
	if len(data) < minMagicSize {
		return FormatUnknown
	}

	switch {
	case bytes.HasPrefix(data, magicJPEG):
		return FormatJPEG
	case bytes.HasPrefix(data, magicPNG):
		return FormatPNG
	case bytes.HasPrefix(data, magicWebP) && isValidWebP(data):
		return FormatWebP
	case bytes.HasPrefix(data, magicGIF87), bytes.HasPrefix(data, magicGIF89):
		return FormatGIF
	case bytes.HasPrefix(data, magicTIFFLE), bytes.HasPrefix(data, magicTIFFBE):
		return FormatTIFF
	case bytes.HasPrefix(data, magicBMP):
		return FormatBMP
	}
	return FormatUnknown
}

// isValidWebP prueft auf "WEBP" Marker nach RIFF Header
func isValidWebP(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[8:12], webpFourCC)
}

// ValidateFormat prueft ob ein Format dekodiert werden kann
func ValidateFormat(format ImageFormat) error {
	switch format {
	case FormatJPEG, FormatPNG, FormatWebP, FormatGIF, FormatBMP, FormatTIFF:
		return nil
	case FormatUnknown:
		return ErrUnknownFormat
	default:
		return ErrUnsupportedFormat
	}
}

// FormatFromPath waehlt das Ausgabeformat anhand der Dateiendung.
// WebP kann nur gelesen werden.
func FormatFromPath(path string) (ImageFormat, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png":
		return FormatPNG, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".bmp":
		return FormatBMP, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".gif":
		return FormatGIF, nil
	case "":
		return FormatUnknown, fmt.Errorf("%w: %q has no file extension", ErrUnknownFormat, path)
	default:
		return FormatUnknown, fmt.Errorf("%w: cannot write %s files", ErrUnsupportedFormat, ext)
	}
}

// MimeType gibt den MIME-Type fuer ein Format zurueck
func (f ImageFormat) MimeType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatGIF:
		return "image/gif"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// Extension gibt die Dateiendung fuer ein Format zurueck
func (f ImageFormat) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatUnknown:
		return ".bin"
	default:
		return "." + string(f)
	}
}

// String implementiert Stringer Interface
func (f ImageFormat) String() string {
	return string(f)
}
