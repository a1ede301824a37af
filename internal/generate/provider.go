package generate

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"mockup/internal/mockup"
	u "mockup/internal/utils"
)

var (
	// ErrUpstream means the image model answered with an error or with no image.
	ErrUpstream = errors.New("image model request failed")
	// ErrNotConfigured means the provider has no credentials.
	ErrNotConfigured = errors.New("image model is not configured")
)

// DefaultPlaceholders are served when no live model is available.
var DefaultPlaceholders = []string{
	"https://images.pexels.com/photos/126271/pexels-photo-126271.jpeg?auto=compress&cs=tinysrgb&w=600",
	"https://images.pexels.com/photos/991509/pexels-photo-991509.jpeg?auto=compress&cs=tinysrgb&w=600",
	"https://images.pexels.com/photos/1648377/pexels-photo-1648377.jpeg?auto=compress&cs=tinysrgb&w=600",
}

// Request is one scene to render. Overlay is the user's artwork.
type Request struct {
	Prompt  string
	Overlay mockup.Artwork
}

// Image is a generated scene, either a remote URL or a data: URL.
type Image struct {
	URL      string `json:"url"`
	Provider string `json:"provider"`
}

// Provider renders a scene.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Image, error)
}

// PlaceholderProvider answers with a stock photo after a random delay in
// [MinDelay, MaxDelay].
type PlaceholderProvider struct {
	URLs     []string
	MinDelay time.Duration
	MaxDelay time.Duration
}

func (p *PlaceholderProvider) Name() string { return "placeholder" }

func (p *PlaceholderProvider) Generate(ctx context.Context, _ Request) (Image, error) {
	urls := p.URLs
	if len(urls) == 0 {
		urls = DefaultPlaceholders
	}

	delay := p.MinDelay
	if span := p.MaxDelay - p.MinDelay; span > 0 {
		delay += rand.N(span)
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Image{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Image{}, err
	}

	return Image{URL: urls[rand.IntN(len(urls))], Provider: p.Name()}, nil
}

// FallbackProvider degrades to Fallback whenever Primary fails, unless the
// caller gave up.
type FallbackProvider struct {
	Primary  Provider
	Fallback Provider
}

func (p *FallbackProvider) Name() string { return p.Primary.Name() }

func (p *FallbackProvider) Generate(ctx context.Context, req Request) (Image, error) {
	img, err := p.Primary.Generate(ctx, req)
	if err == nil {
		return img, nil
	}
	if ctx.Err() != nil {
		return Image{}, err
	}
	u.Warn("Image generation failed, serving placeholder", "provider", p.Primary.Name(), "error", err)
	return p.Fallback.Generate(ctx, req)
}

// NewProvider builds the provider selected by the generate config section.
func NewProvider(cfg u.Config) Provider {
	g := cfg.Generate
	placeholder := &PlaceholderProvider{URLs: g.Placeholders, MinDelay: g.PlaceholderMinDelay, MaxDelay: g.PlaceholderMaxDelay}
	if g.Provider != "gemini" {
		return placeholder
	}
	gemini := &GeminiProvider{APIKey: g.APIKey, Model: g.Model, Endpoint: g.Endpoint, Timeout: g.Timeout}
	if g.FallbackToPlaceholder {
		return &FallbackProvider{Primary: gemini, Fallback: placeholder}
	}
	return gemini
}
