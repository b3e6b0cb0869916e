// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testImage(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry(nil)

	if _, err := r.Get("compress"); err != nil {
		t.Errorf("compress should be registered: %v", err)
	}
	if _, err := r.Get("upscale"); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("upscale without model client: err = %v, want ErrUnknownFeature", err)
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("unknown feature: err = %v, want ErrUnknownFeature", err)
	}
}

func TestCompress(t *testing.T) {
	req := Request{
		Image:   testImage(64, 64, color.NRGBA{R: 120, G: 60, B: 30, A: 255}),
		Options: map[string]string{"quality": "70"},
	}

	res, err := Compress(context.Background(), req)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if res.ContentType != "image/jpeg" {
		t.Errorf("content type = %s, want image/jpeg", res.ContentType)
	}
	if _, err := jpeg.Decode(bytes.NewReader(res.Payload)); err != nil {
		t.Errorf("payload is not a valid JPEG: %v", err)
	}
}

func TestPalette(t *testing.T) {
	res, err := Palette(context.Background(), Request{
		Image: testImage(64, 64, color.NRGBA{R: 255, A: 255}),
	})
	if err != nil {
		t.Fatalf("palette: %v", err)
	}

	var out struct {
		Colors []string `json:"colors"`
	}
	if err := json.Unmarshal(res.Payload, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Colors) == 0 {
		t.Fatal("expected at least one color")
	}
	if out.Colors[0][0] != '#' || len(out.Colors[0]) != 7 {
		t.Errorf("color %q is not #rrggbb", out.Colors[0])
	}
}

func TestSignatureRip(t *testing.T) {
	// White page with a black stroke down the middle.
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.White)
		}
		img.Set(16, y, color.Black)
	}

	res, err := SignatureRip(context.Background(), Request{Image: img})
	if err != nil {
		t.Fatalf("signature-rip: %v", err)
	}

	out := res.Image.(*image.NRGBA)
	if out.NRGBAAt(16, 10).A == 0 {
		t.Error("ink pixel should be opaque")
	}
	if out.NRGBAAt(2, 10).A != 0 {
		t.Error("paper pixel should be transparent")
	}
}

func TestAutoTag(t *testing.T) {
	res, err := AutoTag(context.Background(), Request{
		Image: testImage(200, 100, color.Black),
	})
	if err != nil {
		t.Fatalf("auto-tag: %v", err)
	}

	var out struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal(res.Payload, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := map[string]bool{"landscape": false, "dark": false}
	for _, tag := range out.Tags {
		if _, ok := want[tag]; ok {
			want[tag] = true
		}
	}
	for tag, seen := range want {
		if !seen {
			t.Errorf("missing tag %q in %v", tag, out.Tags)
		}
	}
}

func TestExtend(t *testing.T) {
	res, err := Extend(context.Background(), Request{
		Image: testImage(90, 90, color.NRGBA{G: 200, A: 255}),
	})
	if err != nil {
		t.Fatalf("extend: %v", err)
	}

	bounds := res.Image.Bounds()
	if bounds.Dx() != 90 {
		t.Errorf("width = %d, want 90", bounds.Dx())
	}
	if bounds.Dy() != 160 {
		t.Errorf("height = %d, want 160 (9:16)", bounds.Dy())
	}
}

func TestModelClientTransform(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/upscale" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, testImage(8, 8, color.White))
	}))
	defer server.Close()

	client := NewModelClient(server.URL, 5*time.Second)
	fn := client.Transform("upscale")

	res, err := fn(context.Background(), Request{Image: testImage(4, 4, color.Black)})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if res.Image == nil {
		t.Fatal("expected decoded image result")
	}
}

func TestModelClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewModelClient(server.URL, 5*time.Second)
	fn := client.Transform("colorize")

	if _, err := fn(context.Background(), Request{Image: testImage(4, 4, color.Black)}); err == nil {
		t.Fatal("expected error on 500 response")
	}
}
