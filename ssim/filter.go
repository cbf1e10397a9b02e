package ssim

// boxFilter mittelt jedes Pixel ueber ein size x size Fenster. Zeilen und
// Spalten werden getrennt gefiltert, der Rand wird einschliesslich des
// Randpixels gespiegelt (d c b a | a b c d | d c b a).
func boxFilter(src []float64, w, h, size int) []float64 {
	tmp := make([]float64, len(src))
	out := make([]float64, len(src))
	half := size / 2
	norm := 1 / float64(size)

	for y := range h {
		row := src[y*w : (y+1)*w]
		for x := range w {
			var sum float64
			for k := -half; k <= half; k++ {
				sum += row[mirror(x+k, w)]
			}
			tmp[y*w+x] = sum * norm
		}
	}

	for x := range w {
		for y := range h {
			var sum float64
			for k := -half; k <= half; k++ {
				sum += tmp[mirror(y+k, h)*w+x]
			}
			out[y*w+x] = sum * norm
		}
	}
	return out
}

// mirror bildet i symmetrisch auf [0, n) ab
func mirror(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
