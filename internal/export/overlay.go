package export

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// boxOpacity is the opacity of the box behind the overlay text.
const boxOpacity = 0.8

var monoFont *opentype.Font

func loadFont() (*opentype.Font, error) {
	if monoFont != nil {
		return monoFont, nil
	}
	f, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse overlay font: %w", err)
	}
	monoFont = f
	return f, nil
}

// DrawOverlay draws lines in white monospace text on a dark box in the top
// left corner of img and returns the result.
func DrawOverlay(img image.Image, lines []string, size int) (*image.NRGBA, error) {
	f, err := loadFont()
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	defer face.Close()

	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	pad := max(size/4, 2)

	textWidth := 0
	for _, line := range lines {
		textWidth = max(textWidth, font.MeasureString(face, line).Ceil())
	}

	dst := imaging.Clone(img)
	box := imaging.New(textWidth+2*pad, lineHeight*len(lines)+2*pad, color.NRGBA{A: 255})
	dst = imaging.Overlay(dst, box, image.Pt(0, 0), boxOpacity)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
	}
	y := pad + metrics.Ascent.Ceil()
	for _, line := range lines {
		d.Dot = fixed.P(pad, y)
		d.DrawString(line)
		y += lineHeight
	}
	return dst, nil
}
