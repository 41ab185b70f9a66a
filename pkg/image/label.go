package image

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DrawLabel writes text at the top left corner with a dark shadow so it
// stays legible over the bars.
func DrawLabel(img draw.Image, label string, c color.Color) {
	face := basicfont.Face7x13
	bounds := img.Bounds()
	x := bounds.Min.X + 8
	y := bounds.Min.Y + 8 + face.Metrics().Ascent.Ceil()

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{0, 0, 0, 255}),
		Face: face,
		Dot:  fixed.P(x+1, y+1),
	}
	d.DrawString(label)

	d.Src = image.NewUniform(c)
	d.Dot = fixed.P(x, y)
	d.DrawString(label)
}
