// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

// Package transform routes feature names to their image transformations.
// Transforms are opaque to the rest of the gateway: the access engine
// decides whether a call may run, this package only runs it. Model-backed
// features are delegated to a remote inference service; the lightweight
// tool features run in-process.
package transform

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

// ErrUnknownFeature is returned when no transform is registered for a feature
var ErrUnknownFeature = errors.New("unknown feature")

// Request carries one transform invocation.
type Request struct {
	Image image.Image

	// Mask is set only for masked operations (magic-erase).
	Mask image.Image

	// Options are feature-specific knobs (quality, ratio, background type).
	Options map[string]string
}

// Option returns a request option with a fallback.
func (r Request) Option(name, fallback string) string {
	if v, ok := r.Options[name]; ok && v != "" {
		return v
	}
	return fallback
}

// Result is a transform's output: either a decoded image (watermarkable) or
// a raw payload with its content type (SVG, JSON, pre-encoded JPEG).
type Result struct {
	Image       image.Image
	Payload     []byte
	ContentType string
}

// Func executes one transform. Implementations must honor ctx cancellation.
type Func func(ctx context.Context, req Request) (*Result, error)

// Registry maps feature names to transforms. Registration happens at
// startup; lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds a feature name to its transform, replacing any previous
// binding.
func (r *Registry) Register(feature string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[feature] = fn
}

// Get returns the transform for a feature.
func (r *Registry) Get(feature string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[feature]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
	}
	return fn, nil
}

// Features returns all registered feature names.
func (r *Registry) Features() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry wires the production feature set: in-process tool
// transforms plus model-backed transforms routed through client. A nil
// client leaves the model-backed features unregistered, which surfaces as
// ErrUnknownFeature at request time rather than a panic at startup.
func DefaultRegistry(client *ModelClient) *Registry {
	r := NewRegistry()

	r.Register("compress", Compress)
	r.Register("palette", Palette)
	r.Register("signature-rip", SignatureRip)
	r.Register("auto-tag", AutoTag)
	r.Register("extend", Extend)

	if client == nil {
		return r
	}
	for _, feature := range []string{
		"upscale", "remove-bg", "portrait-mode", "sticker-maker",
		"colorize", "anime", "instant-studio",
		"magic-erase", "vectorize", "privacy-blur",
	} {
		r.Register(feature, client.Transform(feature))
	}
	return r
}
