package app

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"mockup/internal/generate"
	"mockup/internal/mockup"
	u "mockup/internal/utils"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func newTestApp(t *testing.T) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	mrs, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mrs.Close)

	cfg := u.Config{}
	cfg.Cache.RedisHost = mrs.Addr()
	cfg.Cache.MockupCacheEnabled = true
	cfg.Cache.MockupCacheTTL = time.Minute
	cfg.RateLimiter.Interval = time.Minute
	cfg.Limits.MaxArtworkBytes = 1 << 20
	cfg.Compositor.AssetTimeout = time.Second
	u.AppConfig = cfg
	u.LoadTokens(map[string]u.TokenInfo{"good-key": {UserID: "user-1"}})

	reg, err := mockup.NewRegistry(mockup.Template{
		Product:   mockup.ProductFramedPrint,
		Base:      mockup.BytesSource(testPNG(t, 64, 48)),
		Placement: mockup.Placement{X: 8, Y: 8, Width: 24, Height: 30},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mrs.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app := SetupApp(cfg, Deps{
		Redis:    rdb,
		Registry: reg,
		Provider: &generate.PlaceholderProvider{URLs: []string{"https://example.com/p.jpg"}},
	})
	return app, mrs
}

func TestSetupApp_Routes(t *testing.T) {
	app, _ := newTestApp(t)

	tests := []struct {
		method, path, key string
		code              int
		contains          string
	}{
		{"GET", "/livez", "", fiber.StatusOK, ""},
		{"GET", "/v1/templates", "", fiber.StatusOK, "Framed art print on a gallery wall"},
		{"GET", "/v1/options", "", fiber.StatusOK, "Luxurious art deco setting"},
		{"GET", "/does-not-exist", "", fiber.StatusNotFound, `"error":{"code":404`},
		{"GET", "/v1/templates", "bad-key", fiber.StatusUnauthorized, "invalid api key"},
		{"GET", "/v1/account", "", fiber.StatusServiceUnavailable, "Billing is not configured"},
		{"POST", "/v1/billing/webhook", "", fiber.StatusServiceUnavailable, ""},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.key != "" {
			req.Header.Set("X-API-Key", tc.key)
		}
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("%s %s failed: %v", tc.method, tc.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != tc.code {
			t.Fatalf("%s %s: expected %d got %d: %s", tc.method, tc.path, tc.code, resp.StatusCode, body)
		}
		if tc.contains != "" && !strings.Contains(string(body), tc.contains) {
			t.Fatalf("%s %s: expected %q in %s", tc.method, tc.path, tc.contains, body)
		}
	}
}

func TestSetupApp_CompositeEndToEnd(t *testing.T) {
	app, _ := newTestApp(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("productType", string(mockup.ProductFramedPrint))
	part, _ := w.CreateFormFile("file", "art.png")
	_, _ = part.Write(testPNG(t, 10, 10))
	_ = w.Close()

	req := httptest.NewRequest("POST", "/v1/mockups", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-API-Key", "good-key")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200 got %d: %s", resp.StatusCode, msg)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}
	out, _ := io.ReadAll(resp.Body)
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil || cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("unexpected output %v %dx%d", err, cfg.Width, cfg.Height)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("metrics failed: %v", err)
	}
	metricsBody, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(metricsBody), `mockup_compositor_composites_total{outcome="ok",product="Framed art print on a gallery wall"}`) {
		t.Fatalf("composite not counted:\n%s", metricsBody)
	}
}

func TestSetupApp_GenerateWithPlaceholder(t *testing.T) {
	app, _ := newTestApp(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("productType", string(mockup.ProductBaseballCap))
	part, _ := w.CreateFormFile("file", "art.png")
	_, _ = part.Write(testPNG(t, 4, 4))
	_ = w.Close()

	req := httptest.NewRequest("POST", "/v1/generate", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(out), "https://example.com/p.jpg") {
		t.Fatalf("unexpected response %d: %s", resp.StatusCode, out)
	}
}
