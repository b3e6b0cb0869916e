// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

// Package stamp marks demo-mode output images with a visible banner so
// trial results can never be passed off as full-access output.
package stamp

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// minBannerHeight keeps the banner legible on small images.
	minBannerHeight = 24

	// bannerRatio sizes the banner proportionally to the image height.
	bannerRatio = 12
)

// Stamp returns a copy of img with a semi-opaque banner appended along the
// bottom edge stating demo status and the remaining demo count. The input
// image is never mutated. Stamp cannot fail on a valid image: the text face
// is the compiled-in basicfont, so there is no font file to go missing.
func Stamp(img image.Image, demosLeft int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	bannerHeight := height / bannerRatio
	if bannerHeight < minBannerHeight {
		bannerHeight = minBannerHeight
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height+bannerHeight))
	draw.Draw(out, image.Rect(0, 0, width, height), img, bounds.Min, draw.Src)

	banner := image.Rect(0, height, width, height+bannerHeight)
	draw.Draw(out, banner, &image.Uniform{color.NRGBA{A: 200}}, image.Point{}, draw.Over)

	text := fmt.Sprintf("DEMO MODE - %d demos left - Upgrade to remove watermark", demosLeft)
	drawCentered(out, banner, text)
	return out
}

// drawCentered renders text centered inside rect, clipping rather than
// failing when the banner is narrower than the message.
func drawCentered(dst draw.Image, rect image.Rectangle, text string) {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()

	x := rect.Min.X + (rect.Dx()-textWidth)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	y := rect.Min.Y + (rect.Dy()+face.Ascent)/2

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
