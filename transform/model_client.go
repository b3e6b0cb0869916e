// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ModelClient invokes the remote inference service that hosts the
// model-backed transforms (upscaling, background removal, colorization and
// the rest). The service exposes one endpoint per feature and speaks
// multipart in, image or payload out.
type ModelClient struct {
	endpoint string
	client   *http.Client
}

// NewModelClient creates a client for the inference service at endpoint.
// A zero timeout defaults to 120s, sized for the slowest model (upscaling).
func NewModelClient(endpoint string, timeout time.Duration) *ModelClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ModelClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

// Transform returns the transform Func for one model-backed feature.
func (c *ModelClient) Transform(feature string) Func {
	return func(ctx context.Context, req Request) (*Result, error) {
		return c.do(ctx, feature, req)
	}
}

func (c *ModelClient) do(ctx context.Context, feature string, req Request) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writeImagePart(writer, "file", req.Image); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if req.Mask != nil {
		if err := writeImagePart(writer, "mask", req.Mask); err != nil {
			return nil, fmt.Errorf("encode mask: %w", err)
		}
	}
	for name, value := range req.Options {
		if err := writer.WriteField(name, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/%s", c.endpoint, feature)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model service %s: %w", feature, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model service %s: status %d: %s", feature, resp.StatusCode, snippet)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "image/png") {
		img, err := png.Decode(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("model service %s: decode response: %w", feature, err)
		}
		return &Result{Image: img}, nil
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("model service %s: read response: %w", feature, err)
	}
	return &Result{Payload: payload, ContentType: contentType}, nil
}

func writeImagePart(writer *multipart.Writer, field string, img image.Image) error {
	part, err := writer.CreateFormFile(field, field+".png")
	if err != nil {
		return err
	}
	return png.Encode(part, img)
}
