package vision

import "image"

// ToGray wandelt ein RGB-Bild mit den BT.601 Luma-Gewichten
// (0.299, 0.587, 0.114) in Graustufen um. Gerechnet wird in 14-Bit
// Festkomma mit Rundung, so wie OpenCV RGB2GRAY fuer 8-Bit-Bilder.
func ToGray(img *ImageInput) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
	for y := range img.Height {
		for x := range img.Width {
			i := img.Image.PixOffset(x, y)
			r := uint32(img.Image.Pix[i+0])
			g := uint32(img.Image.Pix[i+1])
			b := uint32(img.Image.Pix[i+2])
			dst.Pix[dst.PixOffset(x, y)] = uint8((r*4899 + g*9617 + b*1868 + 0x2000) >> 14)
		}
	}
	return dst
}
