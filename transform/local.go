// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sort"
	"strconv"
)

// Compress re-encodes the image as an optimized JPEG at the requested
// quality (option "quality", default 85).
func Compress(ctx context.Context, req Request) (*Result, error) {
	quality := 85
	if q, err := strconv.Atoi(req.Option("quality", "85")); err == nil && q >= 1 && q <= 100 {
		quality = q
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, req.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return &Result{Payload: buf.Bytes(), ContentType: "image/jpeg"}, nil
}

// Palette extracts the dominant colors of the image as hex strings.
func Palette(ctx context.Context, req Request) (*Result, error) {
	counts := make(map[color.NRGBA]int)
	bounds := req.Image.Bounds()

	// Sample on a coarse grid and quantize to 32 levels per channel so near
	// shades collapse into one palette entry.
	stepX := bounds.Dx()/64 + 1
	stepY := bounds.Dy()/64 + 1
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := req.Image.At(x, y).RGBA()
			q := color.NRGBA{
				R: uint8(r>>8) & 0xE0,
				G: uint8(g>>8) & 0xE0,
				B: uint8(b>>8) & 0xE0,
			}
			counts[q]++
		}
	}

	type entry struct {
		c color.NRGBA
		n int
	}
	entries := make([]entry, 0, len(counts))
	for c, n := range counts {
		entries = append(entries, entry{c, n})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].n > entries[j].n })

	limit := 6
	if len(entries) < limit {
		limit = len(entries)
	}
	colors := make([]string, 0, limit)
	for _, e := range entries[:limit] {
		colors = append(colors, fmt.Sprintf("#%02x%02x%02x", e.c.R, e.c.G, e.c.B))
	}

	payload, err := json.Marshal(map[string][]string{"colors": colors})
	if err != nil {
		return nil, err
	}
	return &Result{Payload: payload, ContentType: "application/json"}, nil
}

// SignatureRip lifts dark ink off a light background onto a transparent
// canvas, for extracting signatures from scanned paper.
func SignatureRip(ctx context.Context, req Request) (*Result, error) {
	bounds := req.Image.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.GrayModel.Convert(req.Image.At(x, y)).(color.Gray)
			// Ink is anything darker than mid gray; alpha scales with
			// darkness so anti-aliased strokes keep soft edges.
			if g.Y < 128 {
				out.SetNRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.NRGBA{A: 255 - g.Y})
			}
		}
	}
	return &Result{Image: out}, nil
}

// AutoTag derives simple descriptive tags from image statistics.
func AutoTag(ctx context.Context, req Request) (*Result, error) {
	bounds := req.Image.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var sum, n uint64
	stepX, stepY := w/64+1, h/64+1
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			g := color.GrayModel.Convert(req.Image.At(x, y)).(color.Gray)
			sum += uint64(g.Y)
			n++
		}
	}

	tags := []string{}
	switch {
	case w > h*5/4:
		tags = append(tags, "landscape")
	case h > w*5/4:
		tags = append(tags, "portrait")
	default:
		tags = append(tags, "square")
	}
	if n > 0 {
		switch avg := sum / n; {
		case avg < 64:
			tags = append(tags, "dark")
		case avg > 192:
			tags = append(tags, "bright")
		}
	}
	if w >= 2000 || h >= 2000 {
		tags = append(tags, "high-resolution")
	}

	payload, err := json.Marshal(map[string][]string{"tags": tags})
	if err != nil {
		return nil, err
	}
	return &Result{Payload: payload, ContentType: "application/json"}, nil
}

// Extend pads the image to a 9:16 vertical canvas, filling the bars with a
// stretched, blurred copy of the source.
func Extend(ctx context.Context, req Request) (*Result, error) {
	bounds := req.Image.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	targetH := w * 16 / 9
	if targetH <= h {
		// Already tall enough, nothing to extend.
		out := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(out, out.Bounds(), req.Image, bounds.Min, draw.Src)
		return &Result{Image: out}, nil
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, targetH))
	drawStretchedBlur(out, req.Image)

	padTop := (targetH - h) / 2
	draw.Draw(out, image.Rect(0, padTop, w, padTop+h), req.Image, bounds.Min, draw.Src)
	return &Result{Image: out}, nil
}

// drawStretchedBlur fills dst with src stretched to dst's size and softened
// by heavy downsampling, which doubles as a cheap blur.
func drawStretchedBlur(dst *image.NRGBA, src image.Image) {
	const coarse = 16

	srcBounds := src.Bounds()
	small := image.NewNRGBA(image.Rect(0, 0, coarse, coarse))
	for y := 0; y < coarse; y++ {
		for x := 0; x < coarse; x++ {
			sx := srcBounds.Min.X + x*srcBounds.Dx()/coarse
			sy := srcBounds.Min.Y + y*srcBounds.Dy()/coarse
			small.Set(x, y, src.At(sx, sy))
		}
	}

	dstBounds := dst.Bounds()
	for y := dstBounds.Min.Y; y < dstBounds.Max.Y; y++ {
		for x := dstBounds.Min.X; x < dstBounds.Max.X; x++ {
			// Bilinear sample from the coarse grid.
			fx := float64(x-dstBounds.Min.X) / float64(dstBounds.Dx()) * (coarse - 1)
			fy := float64(y-dstBounds.Min.Y) / float64(dstBounds.Dy()) * (coarse - 1)
			dst.Set(x, y, bilinear(small, fx, fy))
		}
	}
}

func bilinear(img *image.NRGBA, fx, fy float64) color.NRGBA {
	x0, y0 := int(fx), int(fy)
	x1, y1 := x0+1, y0+1
	max := img.Bounds().Max
	if x1 >= max.X {
		x1 = max.X - 1
	}
	if y1 >= max.Y {
		y1 = max.Y - 1
	}
	dx, dy := fx-float64(x0), fy-float64(y0)

	mix := func(a, b uint8, t float64) float64 {
		return float64(a)*(1-t) + float64(b)*t
	}
	c00 := img.NRGBAAt(x0, y0)
	c10 := img.NRGBAAt(x1, y0)
	c01 := img.NRGBAAt(x0, y1)
	c11 := img.NRGBAAt(x1, y1)

	blend := func(a, b, c, d uint8) uint8 {
		top := mix(a, b, dx)
		bot := mix(c, d, dx)
		return uint8(top*(1-dy) + bot*dy)
	}
	return color.NRGBA{
		R: blend(c00.R, c10.R, c01.R, c11.R),
		G: blend(c00.G, c10.G, c01.G, c11.G),
		B: blend(c00.B, c10.B, c01.B, c11.B),
		A: 255,
	}
}
