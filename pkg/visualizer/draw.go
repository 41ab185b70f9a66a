package visualizer

import (
	"image"
	"image/color"
	"image/draw"
)

var (
	DefaultColor      = color.RGBA{R: 159, G: 122, B: 234, A: 255}
	DefaultBackground = color.RGBA{R: 11, G: 15, B: 26, A: 255}
)

// barWidth spreads n bars over width and stretches them by scale.
func barWidth(width, n int, scale float64) float64 {
	if n == 0 {
		return 0
	}
	return float64(width) / float64(n) * scale
}

// drawBars clears the surface and paints one bar per bin. Heights follow the
// bin magnitude and so does the bar opacity.
func drawBars(dst draw.Image, bins []byte, c, bg color.Color, scale float64, gap int) {
	bounds := dst.Bounds()
	draw.Draw(dst, bounds, image.NewUniform(bg), image.Point{}, draw.Src)

	r, g, b, _ := c.RGBA()
	bw := barWidth(bounds.Dx(), len(bins), scale)
	height := float64(bounds.Dy())
	x := float64(bounds.Min.X)
	for _, v := range bins {
		h := int(float64(v) / 255 * height)
		if h > 0 {
			alpha := 0.3 + 0.7*float64(v)/255
			fill := color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(alpha * 255)}
			rect := image.Rect(int(x), bounds.Max.Y-h, int(x+bw), bounds.Max.Y).Intersect(bounds)
			draw.Draw(dst, rect, image.NewUniform(fill), image.Point{}, draw.Over)
		}
		x += bw + float64(gap)
		if int(x) >= bounds.Max.X {
			break
		}
	}
}
