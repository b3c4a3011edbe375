package pagetrack

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	badgeHeight  = 20
	badgePadding = 6
)

var (
	badgeLabelBg = color.RGBA{0x55, 0x55, 0x55, 0xff}
	badgeValueBg = color.RGBA{0x2e, 0x7d, 0x32, 0xff}
)

// renderBadge draws a two-part "label | value" counter badge and encodes it
// as PNG.
func renderBadge(label, value string) ([]byte, error) {
	face := basicfont.Face7x13
	labelW := font.MeasureString(face, label).Ceil() + 2*badgePadding
	valueW := font.MeasureString(face, value).Ceil() + 2*badgePadding

	img := image.NewRGBA(image.Rect(0, 0, labelW+valueW, badgeHeight))
	draw.Draw(img, image.Rect(0, 0, labelW, badgeHeight), image.NewUniform(badgeLabelBg), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(labelW, 0, labelW+valueW, badgeHeight), image.NewUniform(badgeValueBg), image.Point{}, draw.Src)

	m := face.Metrics()
	baseline := (badgeHeight + m.Ascent.Ceil() - m.Descent.Ceil()) / 2
	d := &font.Drawer{Dst: img, Src: image.White, Face: face}
	d.Dot = fixed.P(badgePadding, baseline)
	d.DrawString(label)
	d.Dot = fixed.P(labelW+badgePadding, baseline)
	d.DrawString(value)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode badge: %w", err)
	}
	return buf.Bytes(), nil
}
