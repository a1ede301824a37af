package handlers

import (
	"context"
	"encoding/json"
	"image/color"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"mockup/internal/generate"
	"mockup/internal/mockup"
)

type recordingProvider struct {
	img  generate.Image
	err  error
	last generate.Request
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Generate(_ context.Context, req generate.Request) (generate.Image, error) {
	p.last = req
	return p.img, p.err
}

func generateApp(p generate.Provider) *fiber.App {
	app := fiber.New()
	svc := NewGenerateService(testMockupCfg(), p)
	app.Post("/v1/generate", svc.HandleGenerate)
	app.Get("/v1/options", HandleOptions)
	return app
}

func TestHandleGenerate_BuildsPromptAndReturnsImage(t *testing.T) {
	p := &recordingProvider{img: generate.Image{URL: "data:image/png;base64,QUJD", Provider: "recording"}}
	art := pngBytes(t, 4, 4, color.White)
	req := multipartRequest(t, "/v1/generate", [][2]string{
		{"productType", string(mockup.ProductTShirt)},
		{"aesthetic", generate.Aesthetics[2]},
		{"tech", generate.Tech[1]},
		{"tech", generate.Tech[4]},
		{"freestyle", "neon glow"},
	}, formFile{field: "file", name: "art.png", contentType: "image/png", data: art})

	resp, err := generateApp(p).Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200 got %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Images   []string `json:"images"`
		Provider string   `json:"provider"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Images) != 1 || out.Images[0] != p.img.URL {
		t.Fatalf("unexpected images %v", out.Images)
	}

	for _, want := range []string{
		"Show a Black cotton t-shirt on a hanger.",
		"Aesthetic & Environment: Sleek modern office with metallic accents.",
		"Technical specs: Square 1:1 for social media, Slightly desaturated, vintage color palette.",
		"Freestyle modifiers: neon glow.",
	} {
		if !strings.Contains(p.last.Prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p.last.Prompt)
		}
	}
	if p.last.Overlay.MIMEType != "image/png" || len(p.last.Overlay.Data) != len(art) {
		t.Fatalf("overlay not forwarded: %+v", p.last.Overlay.MIMEType)
	}
}

func TestHandleGenerate_ErrorMapping(t *testing.T) {
	art := pngBytes(t, 4, 4, color.White)
	tests := []struct {
		name   string
		err    error
		fields [][2]string
		code   int
	}{
		{"missing product", nil, nil, fiber.StatusBadRequest},
		{"upstream", generate.ErrUpstream, [][2]string{{"productType", "mug"}}, fiber.StatusBadGateway},
		{"not configured", generate.ErrNotConfigured, [][2]string{{"productType", "mug"}}, fiber.StatusServiceUnavailable},
		{"timeout", context.DeadlineExceeded, [][2]string{{"productType", "mug"}}, fiber.StatusGatewayTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := generateApp(&recordingProvider{err: tc.err})
			req := multipartRequest(t, "/v1/generate", tc.fields,
				formFile{field: "file", name: "a.png", contentType: "image/png", data: art})
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tc.code {
				t.Fatalf("expected %d got %d", tc.code, resp.StatusCode)
			}
		})
	}
}

func TestHandleGenerate_PlaceholderProvider(t *testing.T) {
	p := &generate.PlaceholderProvider{URLs: []string{"https://example.com/scene.jpg"}}
	req := multipartRequest(t, "/v1/generate", [][2]string{{"productType", "mug"}},
		formFile{field: "file", name: "a.png", contentType: "image/png", data: pngBytes(t, 2, 2, color.White)})

	resp, err := generateApp(p).Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), "https://example.com/scene.jpg") {
		t.Fatalf("unexpected response %d: %s", resp.StatusCode, body)
	}
}

func TestHandleOptions(t *testing.T) {
	resp, err := generateApp(&recordingProvider{}).Test(httptest.NewRequest("GET", "/v1/options", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var c generate.Catalog
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(c.ProductTypes) != 10 || len(c.Aesthetics) != len(generate.Aesthetics) || len(c.Tech) != len(generate.Tech) {
		t.Fatalf("unexpected catalog %+v", c)
	}
}
