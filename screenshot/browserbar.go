package screenshot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	barHeight    = 48
	fieldInsetX  = 60
	fieldTop     = 10
	fieldHeight  = 32
	fieldRadius  = 10
	buttonRadius = 7
)

var (
	barBackground = color.RGBA{R: 242, G: 242, B: 242, A: 255}
	barText       = color.RGBA{R: 44, G: 44, B: 44, A: 255}
	fieldOutline  = color.RGBA{R: 220, G: 220, B: 220, A: 255}
	windowButtons = []struct {
		x   int
		col color.RGBA
	}{
		{22, color.RGBA{R: 255, G: 94, B: 92, A: 255}},
		{46, color.RGBA{R: 255, G: 189, B: 46, A: 255}},
		{70, color.RGBA{R: 38, G: 201, B: 66, A: 255}},
	}
)

// AddBrowserBar rewrites the PNG at path with a browser address bar showing
// url drawn above it
func AddBrowserBar(path, url string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, DrawBrowserBar(img, url)); err != nil {
		out.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return out.Close()
}

// DrawBrowserBar returns a copy of img with a browser bar on top
func DrawBrowserBar(img image.Image, url string) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, w, h+barHeight))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(barBackground), image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(0, barHeight, w, h+barHeight), img, b.Min, draw.Src)

	field := image.Rect(fieldInsetX, fieldTop, w-fieldInsetX, fieldTop+fieldHeight)
	if field.Dx() > 2*fieldRadius {
		fillRoundedRect(dst, field, fieldRadius, fieldOutline)
		fillRoundedRect(dst, field.Inset(1), fieldRadius-1, color.White)
		drawURL(dst, field, url)
	}

	for _, btn := range windowButtons {
		fillCircle(dst, btn.x, barHeight/2, buttonRadius, btn.col)
	}
	return dst
}

func drawURL(dst *image.RGBA, field image.Rectangle, url string) {
	face := basicfont.Face7x13
	maxChars := (field.Dx() - 32) / face.Advance
	if maxChars <= 0 {
		return
	}
	if runes := []rune(url); len(runes) > maxChars {
		url = string(runes[:maxChars-1]) + "…"
	}
	baseline := field.Min.Y + (field.Dy()+face.Metrics().Ascent.Ceil())/2
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(barText),
		Face: face,
		Dot:  fixed.P(field.Min.X+16, baseline),
	}
	d.DrawString(url)
}

func fillCircle(dst *image.RGBA, cx, cy, r int, c color.Color) {
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r {
				dst.Set(cx+x, cy+y, c)
			}
		}
	}
}

func fillRoundedRect(dst *image.RGBA, rect image.Rectangle, r int, c color.Color) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if insideRounded(rect, r, x, y) {
				dst.Set(x, y, c)
			}
		}
	}
}

func insideRounded(rect image.Rectangle, r, x, y int) bool {
	cx, cy := x, y
	switch {
	case x < rect.Min.X+r:
		cx = rect.Min.X + r
	case x >= rect.Max.X-r:
		cx = rect.Max.X - r - 1
	}
	switch {
	case y < rect.Min.Y+r:
		cy = rect.Min.Y + r
	case y >= rect.Max.Y-r:
		cy = rect.Max.Y - r - 1
	}
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= r*r
}
